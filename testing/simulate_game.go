// Command simulate_game plays one full run without a terminal UI. When a
// generator is configured it also plays the player; otherwise a scripted
// player argues against each clause in turn.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/tatianab/devil-deal/internal/config"
	"github.com/tatianab/devil-deal/internal/engine"
	"github.com/tatianab/devil-deal/internal/game"
	"github.com/tatianab/devil-deal/internal/logging"
	"github.com/tatianab/devil-deal/internal/models"
	"github.com/tatianab/devil-deal/internal/provider"
	"github.com/tatianab/devil-deal/internal/validate"
	"go.uber.org/zap"
)

const playerStage models.Stage = "player_move"

type player interface {
	argue(ctx context.Context, c models.Contract, history []models.ConversationEntry) game.Argument
	choose(ctx context.Context, ev models.Event) string
}

func main() {
	configPath := flag.String("config", "", "YAML config file")
	settingsPath := flag.String("settings", "", "settings store")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	ctx := context.Background()
	cfg, err := config.LoadConfig(*configPath, *settingsPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	logger, err := logging.New(config.LogConfig{Level: "warn", Development: true, File: cfg.Log.File}, *verbose)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	v, err := validate.New()
	if err != nil {
		log.Fatalf("Failed to load schemas: %v", err)
	}
	client, err := provider.New(ctx, cfg.Provider, logger)
	if err != nil {
		log.Fatalf("Failed to create generator: %v", err)
	}
	defer client.Close()

	orch := engine.New(client, v, logger, engine.Options{
		MaxAttempts: cfg.Generation.MaxAttempts,
		BackoffBase: cfg.Generation.BackoffBase,
		RetryDelay:  cfg.Generation.RetryDelay,
		RepairDelay: cfg.Generation.RepairDelay,
		CallTimeout: cfg.Generation.CallTimeout,
	})
	machine := game.New(cfg.Game, orch, logger)

	var p player = &scriptedPlayer{}
	if cfg.Provider.Configured() {
		p = &llmPlayer{gen: client, fallback: &scriptedPlayer{}, logger: logger}
	}
	fmt.Printf("Generator: %s\n\n", client.Name())

	report, err := simulate(ctx, machine, p)
	if err != nil {
		log.Fatalf("Simulation failed: %v", err)
	}
	fmt.Printf("\n--- Result ---\nOutcome: %s after %d round(s)\n", report.Outcome, report.Rounds)
	fmt.Printf("Final: gold=%d happiness=%d soul=%d\n", report.Final.Gold, report.Final.Happiness, report.Final.Soul)
	if report.UsedFallback {
		fmt.Println("Fallback content was used.")
	}
	if report.Outcome == game.OutcomeSoulLost {
		os.Exit(2)
	}
}

func simulate(ctx context.Context, m *game.Machine, p player) (game.RunReport, error) {
	m.StartRun()
	for {
		fmt.Printf("--- Round %d ---\n", m.Round())
		if err := m.GenerateOffer(ctx); err != nil {
			return game.RunReport{}, err
		}
		c, _ := m.Contract()
		fmt.Printf("%s offers: %s\n", c.Devil.Name, c.Offer.Summary)
		for _, coord := range c.TextIndex.Coords() {
			text, _ := c.TextIndex.Lookup(coord)
			fmt.Printf("  %s %s\n", coord, text)
		}
		if m.UsedFallback() {
			fmt.Printf("(fallback contract: %v)\n", m.LastFailure())
		}

		for m.NegotiationsLeft() > 0 {
			c, _ = m.Contract()
			arg := p.argue(ctx, c, m.Log())
			fmt.Printf("\nPlayer: %s | %s\n", arg.Explain, arg.Counter)
			out, err := m.Negotiate(ctx, arg)
			if err != nil {
				fmt.Printf("Negotiation failed: %v\n", err)
				continue
			}
			fmt.Printf("Devil: %s\n", out.Negotiation.DisplayText)
			fmt.Printf("Score: located=%v explained=%v final=%.2f\n", out.Score.Layer1, out.Score.Layer2, out.Score.FinalScore)
			if out.Defused {
				fmt.Printf("DEFUSED: %s\n", out.FlawID)
			}
		}

		var (
			s   game.Settlement
			err error
		)
		if len(m.Defused()) == m.FlawCount() {
			s, err = m.Accept()
		} else {
			s, err = m.Reject()
		}
		if err != nil {
			return game.RunReport{}, err
		}
		fmt.Printf("\nAccepted: %v  resources: %+v\n", s.Accepted, s.After)
		for _, t := range s.Triggered {
			fmt.Printf("Triggered %s fatal=%v penalty=%+v\n", t.ID, t.Fatal, t.Penalty)
		}
		if r, ok := m.Report(); ok {
			return r, nil
		}

		if err := m.GenerateEvent(ctx); err != nil {
			return game.RunReport{}, err
		}
		ev, _ := m.Event()
		fmt.Printf("\nEvent: %s\n", ev.Text)
		id := p.choose(ctx, ev)
		fmt.Printf("Player chooses %s\n", id)
		r, err := m.ChooseEvent(id)
		if err != nil {
			return game.RunReport{}, err
		}
		if !r.More {
			return r, nil
		}
		if err := m.NextRound(); err != nil {
			return game.RunReport{}, err
		}
	}
}

// scriptedPlayer quotes the contract one sentence at a time.
type scriptedPlayer struct {
	next int
}

func (s *scriptedPlayer) argue(_ context.Context, c models.Contract, _ []models.ConversationEntry) game.Argument {
	coords := c.TextIndex.Coords()
	if len(coords) == 0 {
		return game.Argument{Explain: "This contract is unfair."}
	}
	coord := coords[s.next%len(coords)]
	s.next++
	return game.Argument{
		Quote:   &coord,
		Explain: "This clause is vague and unfair: it lets you define the terms after I sign.",
		Counter: "Cap the cost and let me pay in gold instead.",
	}
}

// choose keeps the soul as high as possible.
func (s *scriptedPlayer) choose(_ context.Context, ev models.Event) string {
	best := ev.Choices[0]
	for _, c := range ev.Choices[1:] {
		if c.Deltas.Soul > best.Deltas.Soul {
			best = c
		}
	}
	return best.ID
}

// llmPlayer asks the generator for its moves and falls back to the script
// when the answer is unusable.
type llmPlayer struct {
	gen      engine.Generator
	fallback *scriptedPlayer
	logger   *zap.Logger
}

type playerMove struct {
	Quote   string `json:"quote"`
	Explain string `json:"explain"`
	Counter string `json:"counter"`
	Choice  string `json:"choice"`
}

func (p *llmPlayer) ask(ctx context.Context, prompt string) (playerMove, bool) {
	raw, err := p.gen.Generate(ctx, engine.Request{
		Stage:  playerStage,
		System: "You are a careful player in a contract negotiation game. Reply with one JSON object only.",
		Prompt: prompt,
	})
	if err != nil {
		p.logger.Warn("player move failed", zap.Error(err))
		return playerMove{}, false
	}
	text, ok := engine.ExtractJSON(raw)
	if !ok {
		return playerMove{}, false
	}
	var move playerMove
	if err := json.Unmarshal([]byte(text), &move); err != nil {
		p.logger.Warn("player move unreadable", zap.Error(err))
		return playerMove{}, false
	}
	return move, true
}

func (p *llmPlayer) argue(ctx context.Context, c models.Contract, history []models.ConversationEntry) game.Argument {
	var b strings.Builder
	fmt.Fprintf(&b, "The devil %s offers this contract:\n%s\n\nSentences:\n", c.Devil.Name, c.Offer.Summary)
	for _, coord := range c.TextIndex.Coords() {
		text, _ := c.TextIndex.Lookup(coord)
		fmt.Fprintf(&b, "%s %s\n", coord, text)
	}
	if len(history) > 0 {
		b.WriteString("\nSo far:\n")
		for _, e := range history {
			fmt.Fprintf(&b, "%s: %s\n", e.Speaker, e.Text)
		}
	}
	b.WriteString(`
Find one hidden loophole. Quote the sentence that contains it, explain why it is unfair, and propose a fix.
Return {"quote": "P<p>-S<s>", "explain": "...", "counter": "..."}`)

	move, ok := p.ask(ctx, b.String())
	if !ok || strings.TrimSpace(move.Explain) == "" {
		return p.fallback.argue(ctx, c, history)
	}
	arg := game.Argument{Explain: move.Explain, Counter: move.Counter}
	if coord, err := models.ParseCoord(move.Quote); err == nil {
		if _, ok := c.TextIndex.Lookup(coord); ok {
			arg.Quote = &coord
		}
	}
	return arg
}

func (p *llmPlayer) choose(ctx context.Context, ev models.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\nChoices:\n", ev.Text)
	for _, c := range ev.Choices {
		fmt.Fprintf(&b, "%s: %s\n", c.ID, c.Text)
	}
	b.WriteString(`Return {"choice": "<id>"}`)

	move, ok := p.ask(ctx, b.String())
	if ok {
		if c, found := ev.ChoiceByID(move.Choice); found {
			return c.ID
		}
	}
	return p.fallback.choose(ctx, ev)
}
