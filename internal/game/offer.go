package game

import (
	"context"
	"fmt"

	"github.com/tatianab/devil-deal/internal/engine"
	"github.com/tatianab/devil-deal/internal/fallback"
	"github.com/tatianab/devil-deal/internal/models"
	"go.uber.org/zap"
)

// BeginOffer starts an offer request.
func (m *Machine) BeginOffer() (Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseAwaitingOffer {
		return Request{}, fmt.Errorf("generate offer in %s: %w", m.phase, ErrWrongPhase)
	}
	t := m.issue(models.StageOffer)
	return Request{Ticket: t, Stage: models.StageOffer, Args: engine.Args{Context: m.baseContext()}}, nil
}

// CompleteOffer installs the generated contract. When generation failed the
// fallback contract is used instead, with its fatal variant chosen by the
// run's RNG.
func (m *Machine) CompleteOffer(t Ticket, doc *engine.Document, genErr error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.redeem(t); err != nil {
		return err
	}
	log := m.logger.With(m.fields(models.StageOffer)...)

	var bundle models.OfferBundleDoc
	if genErr == nil {
		if err := doc.Decode(&bundle); err != nil {
			genErr = fmt.Errorf("decode offer bundle: %w", err)
		}
	}
	if genErr != nil {
		fatal := m.rng.Chance(m.rules.FatalSpawnChance)
		bundle = fallback.OfferBundle(fatal)
		m.fallback = true
		m.lastErr = genErr
		log.Warn("offer generation failed, using fallback contract", zap.Bool("fatal", fatal), zap.Error(genErr))
	}

	c := bundle.Contract(m.rules.MaxPenalty)
	m.contract = &c
	m.log = nil
	m.phase = PhaseOfferReady
	log.Info("offer ready", zap.Int("flaws", len(c.Flaws)), zap.Bool("fatal_probe", c.Probe.Present))
	return nil
}

// GenerateOffer runs a full offer request inline.
func (m *Machine) GenerateOffer(ctx context.Context) error {
	req, err := m.BeginOffer()
	if err != nil {
		return err
	}
	doc, genErr := m.Fetch(ctx, req)
	return m.CompleteOffer(req.Ticket, doc, genErr)
}
