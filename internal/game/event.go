package game

import (
	"context"
	"fmt"

	"github.com/tatianab/devil-deal/internal/engine"
	"github.com/tatianab/devil-deal/internal/fallback"
	"github.com/tatianab/devil-deal/internal/models"
	"go.uber.org/zap"
)

// Outcome is how a run ended.
type Outcome string

const (
	OutcomeSurvived Outcome = "survived"
	OutcomeSoulLost Outcome = "soul_lost"
)

// RunReport summarizes a run at its terminal point.
type RunReport struct {
	RunID        string
	Outcome      Outcome
	Rounds       int
	Final        models.Resources
	UsedFallback bool
	// More is true when another round may be played.
	More bool
}

// BeginEvent starts the follow-up event request after settlement. Calling it
// again before the event arrives supersedes the earlier request.
func (m *Machine) BeginEvent() (Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseSettled && !(m.phase == PhaseEventPending && m.event == nil) {
		return Request{}, fmt.Errorf("generate event in %s: %w", m.phase, ErrWrongPhase)
	}
	m.phase = PhaseEventPending
	t := m.issue(models.StageEvent)
	return Request{Ticket: t, Stage: models.StageEvent, Args: engine.Args{Context: m.eventContext()}}, nil
}

// CompleteEvent installs the event, or the fallback event when generation
// failed.
func (m *Machine) CompleteEvent(t Ticket, doc *engine.Document, genErr error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.redeem(t); err != nil {
		return err
	}
	log := m.logger.With(m.fields(models.StageEvent)...)

	var wire models.EventDoc
	if genErr == nil {
		if err := doc.Decode(&wire); err != nil {
			genErr = fmt.Errorf("decode event: %w", err)
		}
	}
	if genErr != nil {
		wire = fallback.Event()
		m.fallback = true
		m.lastErr = genErr
		log.Warn("event generation failed, using fallback event", zap.Error(genErr))
	}
	ev := wire.DomainEvent()
	m.event = &ev
	log.Info("event ready", zap.String("node", ev.Node))
	return nil
}

// GenerateEvent runs a full event request inline.
func (m *Machine) GenerateEvent(ctx context.Context) error {
	req, err := m.BeginEvent()
	if err != nil {
		return err
	}
	doc, genErr := m.Fetch(ctx, req)
	return m.CompleteEvent(req.Ticket, doc, genErr)
}

// ChooseEvent applies the chosen option and ends the round.
func (m *Machine) ChooseEvent(id string) (RunReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseEventPending || m.event == nil {
		return RunReport{}, fmt.Errorf("choose event in %s: %w", m.phase, ErrWrongPhase)
	}
	choice, ok := m.event.ChoiceByID(id)
	if !ok {
		return RunReport{}, fmt.Errorf("%q: %w", id, ErrUnknownChoice)
	}
	m.resources = m.resources.Apply(choice.Deltas)
	m.logger.Info("event choice applied",
		zap.String("run_id", m.runID),
		zap.Int("round", m.round),
		zap.String("choice", choice.ID),
		zap.Any("resources", m.resources),
	)
	if m.resources.Soul <= 0 {
		m.finish(OutcomeSoulLost)
	} else {
		m.finish(OutcomeSurvived)
	}
	return *m.report, nil
}

// NextRound starts another round of the same run.
func (m *Machine) NextRound() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseRoundEnd || m.round >= m.rules.RoundMax {
		return fmt.Errorf("next round in %s (round %d of %d): %w", m.phase, m.round, m.rules.RoundMax, ErrWrongPhase)
	}
	m.round++
	m.resetRound()
	m.settlement = nil
	m.report = nil
	m.invalidate()
	m.phase = PhaseAwaitingOffer
	m.logger.Info("round started", zap.String("run_id", m.runID), zap.Int("round", m.round))
	return nil
}

// Cancel drops the outstanding request. An abandoned negotiation returns to
// the offer without refunding its budget.
func (m *Machine) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return
	}
	m.invalidate()
	if m.phase == PhaseNegotiating {
		m.phase = PhaseOfferReady
	}
}

func (m *Machine) finish(outcome Outcome) {
	if outcome == OutcomeSoulLost {
		m.phase = PhaseFailed
	} else {
		m.phase = PhaseRoundEnd
	}
	m.report = &RunReport{
		RunID:        m.runID,
		Outcome:      outcome,
		Rounds:       m.round,
		Final:        m.resources,
		UsedFallback: m.fallback,
		More:         outcome == OutcomeSurvived && m.round < m.rules.RoundMax,
	}
	m.logger.Info("round finished", zap.String("run_id", m.runID), zap.String("outcome", string(outcome)), zap.Int("round", m.round))
}
