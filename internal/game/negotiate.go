package game

import (
	"context"
	"fmt"
	"strings"

	"github.com/tatianab/devil-deal/internal/engine"
	"github.com/tatianab/devil-deal/internal/models"
	"github.com/tatianab/devil-deal/internal/scoring"
	"go.uber.org/zap"
)

// Argument is one negotiation move by the player.
type Argument struct {
	// Quote optionally points at the sentence under dispute.
	Quote   *models.Coord
	Explain string
	Counter string
}

// text is what local scoring reads.
func (a Argument) text() string {
	return a.Explain + "\n" + a.Counter
}

// NegotiationOutcome is the applied result of one negotiation turn.
type NegotiationOutcome struct {
	Negotiation models.Negotiation
	Score       scoring.Breakdown
	// FlawID is the matched flaw, empty when none matched.
	FlawID  string
	Defused bool
}

// BeginNegotiation spends one unit of budget and starts a negotiation
// request. An unknown quote is rejected before any budget is spent.
func (m *Machine) BeginNegotiation(arg Argument) (Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseOfferReady {
		return Request{}, fmt.Errorf("negotiate in %s: %w", m.phase, ErrWrongPhase)
	}
	if m.budget <= 0 {
		return Request{}, ErrNoAttemptsLeft
	}

	args := engine.Args{Explain: strings.TrimSpace(arg.Explain), Counter: strings.TrimSpace(arg.Counter)}
	if arg.Quote != nil {
		text, ok := m.contract.TextIndex.Lookup(*arg.Quote)
		if !ok {
			return Request{}, fmt.Errorf("%s: %w", arg.Quote, ErrUnknownQuote)
		}
		args.Quote = fmt.Sprintf("%s: %s", arg.Quote, text)
	}
	args.Context = m.negotiationContext()

	m.budget--
	m.phase = PhaseNegotiating
	t := m.issue(models.StageNegotiate)
	m.playerText = arg.text()
	m.logger.Info("negotiation started", append(m.fields(models.StageNegotiate), zap.Int("budget_left", m.budget))...)
	return Request{Ticket: t, Stage: models.StageNegotiate, Args: args}, nil
}

// CompleteNegotiation applies a negotiation result. A failed request leaves
// the contract untouched and returns the failure; the spent budget is not
// refunded.
func (m *Machine) CompleteNegotiation(t Ticket, doc *engine.Document, genErr error) (NegotiationOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.redeem(t); err != nil {
		return NegotiationOutcome{}, err
	}
	log := m.logger.With(m.fields(models.StageNegotiate)...)
	playerText := m.playerText
	m.playerText = ""
	m.phase = PhaseOfferReady

	var wire models.NegotiationDoc
	if genErr == nil {
		if err := doc.Decode(&wire); err != nil {
			genErr = fmt.Errorf("decode negotiation: %w", err)
		}
	}
	if genErr != nil {
		m.lastErr = genErr
		log.Warn("negotiation failed, contract unchanged", zap.Error(genErr))
		return NegotiationOutcome{}, genErr
	}

	n := wire.Negotiation()
	out := NegotiationOutcome{Negotiation: n}

	var flaw models.Flaw
	if f, ok := m.contract.FlawByID(n.MatchedFlawID); ok && n.MatchedFlawID != "" {
		flaw = f
		out.FlawID = f.ID
	}
	out.Score = scoring.Score(playerText, flaw, n.Confidence.Semantic)
	if out.FlawID != "" && out.Score.Layer2 {
		m.defused[out.FlawID] = true
		out.Defused = true
	}

	m.log = append(m.log, n.Log...)
	if n.UpdatedOffer != nil {
		m.contract.Offer.Replace(*n.UpdatedOffer)
	}

	log.Info("negotiation applied",
		zap.String("flaw", out.FlawID),
		zap.Bool("layer1", out.Score.Layer1),
		zap.Bool("layer2", out.Score.Layer2),
		zap.Float64("final_score", out.Score.FinalScore),
		zap.Bool("defused", out.Defused),
	)
	return out, nil
}

// Negotiate runs a full negotiation turn inline.
func (m *Machine) Negotiate(ctx context.Context, arg Argument) (NegotiationOutcome, error) {
	req, err := m.BeginNegotiation(arg)
	if err != nil {
		return NegotiationOutcome{}, err
	}
	doc, genErr := m.Fetch(ctx, req)
	return m.CompleteNegotiation(req.Ticket, doc, genErr)
}
