package game

import (
	"fmt"

	"github.com/tatianab/devil-deal/internal/models"
	"go.uber.org/zap"
)

// TriggeredFlaw records one flaw that fired at settlement.
type TriggeredFlaw struct {
	ID      string
	Fatal   bool
	Penalty models.Deltas
}

// Settlement is the deterministic outcome of accepting or rejecting a
// contract.
type Settlement struct {
	Accepted bool
	Before   models.Resources
	After    models.Resources
	// Base is the accept delta actually applied, after the minimum soul
	// cost was enforced.
	Base      models.Deltas
	MinCost   int
	Triggered []TriggeredFlaw
	Skipped   []string
	Fatal     bool
}

func (s Settlement) clone() Settlement {
	s.Triggered = append([]TriggeredFlaw(nil), s.Triggered...)
	s.Skipped = append([]string(nil), s.Skipped...)
	return s
}

// Accept signs the contract. The accept delta costs at least the minimum
// soul, then every flaw that was not defused fires in list order. A fatal
// flaw leaves the soul at exactly zero whatever else was applied.
func (m *Machine) Accept() (Settlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseOfferReady {
		return Settlement{}, fmt.Errorf("accept in %s: %w", m.phase, ErrWrongPhase)
	}

	c := m.contract
	minCost := c.Offer.MinAcceptSoulCost
	if minCost <= 0 {
		minCost = m.rules.MinAcceptSoulCost
	}
	base := c.Offer.DeltasOnAccept
	base.Soul = min(base.Soul, -minCost)

	s := Settlement{Accepted: true, Before: m.resources, Base: base, MinCost: minCost}
	res := m.resources.Apply(base)
	for _, f := range c.Flaws {
		if m.defused[f.ID] {
			s.Skipped = append(s.Skipped, f.ID)
			continue
		}
		if f.Effect.IsFatal() {
			res.Soul = 0
			s.Fatal = true
			s.Triggered = append(s.Triggered, TriggeredFlaw{ID: f.ID, Fatal: true})
			continue
		}
		penalty := f.Effect.Penalty.Bound(m.rules.MaxPenalty)
		res = res.Apply(penalty)
		s.Triggered = append(s.Triggered, TriggeredFlaw{ID: f.ID, Penalty: penalty})
	}
	if s.Fatal {
		res.Soul = 0
	}
	s.After = res
	return m.settle(s), nil
}

// Reject declines the contract. Nothing is applied.
func (m *Machine) Reject() (Settlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseOfferReady {
		return Settlement{}, fmt.Errorf("reject in %s: %w", m.phase, ErrWrongPhase)
	}
	return m.settle(Settlement{Before: m.resources, After: m.resources}), nil
}

func (m *Machine) settle(s Settlement) Settlement {
	m.resources = s.After
	m.settlement = &s
	m.phase = PhaseSettled
	m.logger.Info("contract settled",
		zap.String("run_id", m.runID),
		zap.Int("round", m.round),
		zap.Bool("accepted", s.Accepted),
		zap.Bool("fatal", s.Fatal),
		zap.Any("resources", s.After),
	)
	if m.resources.Soul <= 0 {
		m.finish(OutcomeSoulLost)
	}
	return s.clone()
}
