// Package game owns the authoritative state of a run and the rules that move
// it from offer to settlement to event.
//
// Generation is split in two halves so that a caller can run the slow part
// elsewhere: Begin* validates the phase and returns a Request carrying a
// Ticket, and Complete* applies the result only if that Ticket is still the
// outstanding one. A superseded result is rejected with ErrStaleResult and
// changes nothing. The Generate*/Negotiate helpers run both halves inline.
package game

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/tatianab/devil-deal/internal/config"
	"github.com/tatianab/devil-deal/internal/engine"
	"github.com/tatianab/devil-deal/internal/models"
	"github.com/tatianab/devil-deal/internal/rng"
	"go.uber.org/zap"
)

var (
	ErrWrongPhase     = errors.New("action not allowed in current phase")
	ErrStaleResult    = errors.New("result no longer matches the requested state")
	ErrNoAttemptsLeft = errors.New("no negotiation attempts left this round")
	ErrUnknownChoice  = errors.New("unknown event choice")
	ErrUnknownQuote   = errors.New("quoted sentence does not exist in the contract")
)

// Phase is a state of the round machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaitingOffer
	PhaseOfferReady
	PhaseNegotiating
	PhaseSettled
	PhaseEventPending
	PhaseRoundEnd
	PhaseFailed
)

var phaseNames = [...]string{"idle", "awaiting_offer", "offer_ready", "negotiating", "settled", "event_pending", "round_end", "failed"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// Stager obtains validated stage documents. *engine.Orchestrator
// implements it.
type Stager interface {
	RequestStage(ctx context.Context, stage models.Stage, args engine.Args) (*engine.Document, error)
}

// Ticket identifies one outstanding generation request.
type Ticket struct {
	token uint64
	Stage models.Stage
	Round int
}

// Request is what a caller needs to run one stage request.
type Request struct {
	Ticket Ticket
	Stage  models.Stage
	Args   engine.Args
}

// Machine is the round state machine. All methods are safe to call from
// multiple goroutines, but the game itself is played by one logical thread.
type Machine struct {
	mu sync.Mutex

	rules  config.GameConfig
	stager Stager
	rng    *rng.Source
	logger *zap.Logger

	runID      string
	phase      Phase
	round      int
	resources  models.Resources
	budget     int
	contract   *models.Contract
	defused    map[string]bool
	log        []models.ConversationEntry
	event      *models.Event
	settlement *Settlement
	report     *RunReport
	fallback   bool
	lastErr    error

	token   uint64
	pending *Ticket
	// playerText is the argument of the outstanding negotiation.
	playerText string
}

// New returns an idle Machine. The RNG is seeded once from rules.Seed and is
// not reseeded between runs.
func New(rules config.GameConfig, stager Stager, logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{
		rules:   rules,
		stager:  stager,
		rng:     rng.New(rules.Seed),
		logger:  logger,
		defused: make(map[string]bool),
	}
}

// StartRun resets the run and waits for an offer. Any outstanding request is
// invalidated.
func (m *Machine) StartRun() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.runID = uuid.NewString()
	m.resources = m.rules.Initial
	m.round = 1
	m.fallback = false
	m.settlement = nil
	m.report = nil
	m.resetRound()
	m.invalidate()
	m.phase = PhaseAwaitingOffer
	m.logger.Info("run started", zap.String("run_id", m.runID), zap.Any("resources", m.resources))
}

// Abandon ends the run without a report and drops any outstanding request.
func (m *Machine) Abandon() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidate()
	m.phase = PhaseIdle
	m.logger.Info("run abandoned", zap.String("run_id", m.runID), zap.Int("round", m.round))
}

func (m *Machine) resetRound() {
	m.budget = m.rules.NegotiationBudget
	m.contract = nil
	m.defused = make(map[string]bool)
	m.log = nil
	m.event = nil
	m.lastErr = nil
}

func (m *Machine) invalidate() {
	m.token++
	m.pending = nil
	m.playerText = ""
}

func (m *Machine) issue(stage models.Stage) Ticket {
	m.token++
	t := Ticket{token: m.token, Stage: stage, Round: m.round}
	m.pending = &t
	return t
}

// redeem consumes t if it is the outstanding ticket.
func (m *Machine) redeem(t Ticket) error {
	if m.pending == nil || *m.pending != t {
		m.logger.Debug("stale result dropped", zap.String("stage", string(t.Stage)), zap.Int("round", t.Round))
		return ErrStaleResult
	}
	m.pending = nil
	return nil
}

// Fetch runs req against the machine's stager. It holds no lock, so it may
// run on another goroutine while the machine keeps serving reads.
func (m *Machine) Fetch(ctx context.Context, req Request) (*engine.Document, error) {
	return m.stager.RequestStage(ctx, req.Stage, req.Args)
}

func (m *Machine) fields(stage models.Stage) []zap.Field {
	return []zap.Field{zap.String("run_id", m.runID), zap.Int("round", m.round), zap.String("stage", string(stage))}
}

// RunID identifies the current run.
func (m *Machine) RunID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runID
}

func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

func (m *Machine) Round() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.round
}

func (m *Machine) Resources() models.Resources {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resources
}

// NegotiationsLeft is the remaining negotiation budget this round.
func (m *Machine) NegotiationsLeft() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.budget
}

// Contract returns a copy of the active contract.
func (m *Machine) Contract() (models.Contract, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.contract == nil {
		return models.Contract{}, false
	}
	return m.contract.Clone(), true
}

// FlawCount is the number of flaws in the active contract. The player may
// know how many there are, not where.
func (m *Machine) FlawCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.contract == nil {
		return 0
	}
	return len(m.contract.Flaws)
}

// Defused returns the ids of the neutralized flaws, sorted.
func (m *Machine) Defused() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.defused))
	for id := range m.defused {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Log returns a copy of the conversation log.
func (m *Machine) Log() []models.ConversationEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ConversationEntry(nil), m.log...)
}

// Event returns the pending follow-up event.
func (m *Machine) Event() (models.Event, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.event == nil {
		return models.Event{}, false
	}
	ev := *m.event
	ev.Choices = append([]models.Choice(nil), m.event.Choices...)
	return ev, true
}

// Settlement returns the last settlement of this round.
func (m *Machine) Settlement() (Settlement, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settlement == nil {
		return Settlement{}, false
	}
	return m.settlement.clone(), true
}

// Report returns the run report once the run has finished a round or failed.
func (m *Machine) Report() (RunReport, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.report == nil {
		return RunReport{}, false
	}
	return *m.report, true
}

// UsedFallback reports whether any static content was substituted this run.
func (m *Machine) UsedFallback() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fallback
}

// LastFailure is the most recent generation failure this round, if any.
func (m *Machine) LastFailure() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Pending reports whether a generation request is outstanding.
func (m *Machine) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending != nil
}
