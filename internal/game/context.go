package game

import (
	"github.com/tatianab/devil-deal/internal/models"
	"github.com/tatianab/devil-deal/internal/validate"
)

// The generator sees these views of the game. Flaw keyword lists never
// leave the machine.

type gameView struct {
	Round int `json:"round"`
}

type rulesView struct {
	MinAcceptSoulCost int     `json:"min_accept_soul_cost"`
	FlawCountRange    [2]int  `json:"loophole_first_offer_count_range"`
	FatalSpawnChance  float64 `json:"deadly_probe_spawn_chance"`
}

type flawView struct {
	ID               string          `json:"id"`
	QuoteRef         models.CoordDoc `json:"quote_ref"`
	IssueExplanation string          `json:"issue_explanation"`
	Severity         int             `json:"severity"`
	Fatal            bool            `json:"fatal"`
	Defused          bool            `json:"defused"`
}

type offerView struct {
	Offer     models.OfferDoc     `json:"offer"`
	TextIndex models.TextIndexDoc `json:"text_index"`
	Loopholes []flawView          `json:"loopholes"`
	Probe     models.ProbeDoc     `json:"deadly_probe"`
}

type eventView struct {
	Node string `json:"node"`
}

type stageContext struct {
	Game   gameView             `json:"game"`
	Player models.Resources     `json:"player"`
	Devil  models.Devil         `json:"devil"`
	Rules  rulesView            `json:"rules"`
	Offer  *offerView           `json:"current_offer_bundle,omitempty"`
	Log    []models.LogEntryDoc `json:"conversation_log,omitempty"`
	Event  *eventView           `json:"event,omitempty"`
}

func (m *Machine) baseContext() stageContext {
	devil := m.rules.Devil
	if m.contract != nil {
		devil = m.contract.Devil
	}
	return stageContext{
		Game:   gameView{Round: m.round},
		Player: m.resources,
		Devil:  devil,
		Rules: rulesView{
			MinAcceptSoulCost: m.rules.MinAcceptSoulCost,
			FlawCountRange:    [2]int{validate.MinFlaws, validate.MaxFlaws},
			FatalSpawnChance:  m.rules.FatalSpawnChance,
		},
	}
}

func (m *Machine) negotiationContext() stageContext {
	ctx := m.baseContext()
	c := m.contract
	view := &offerView{
		Offer: models.OfferDoc{
			Summary:           c.Offer.Summary,
			FullText:          c.Offer.FullText,
			MinAcceptSoulCost: float64(c.Offer.MinAcceptSoulCost),
			DeltasOnAccept:    models.DocDeltas(c.Offer.DeltasOnAccept),
			AbilitiesGranted:  append([]string{}, c.Offer.AbilitiesGranted...),
			CursesGranted:     append([]string{}, c.Offer.CursesGranted...),
		},
		TextIndex: textIndexDoc(c.TextIndex),
		Probe: models.ProbeDoc{
			Present:     c.Probe.Present,
			SpawnChance: c.Probe.SpawnChance,
			WarningText: c.Probe.WarningText,
		},
	}
	for _, f := range c.Flaws {
		view.Loopholes = append(view.Loopholes, flawView{
			ID:               f.ID,
			QuoteRef:         models.CoordDoc{P: float64(f.QuoteRef.Paragraph), S: float64(f.QuoteRef.Sentence)},
			IssueExplanation: f.IssueExplanation,
			Severity:         f.Severity,
			Fatal:            f.Effect.IsFatal(),
			Defused:          m.defused[f.ID],
		})
	}
	ctx.Offer = view
	ctx.Log = make([]models.LogEntryDoc, 0, len(m.log))
	for _, e := range m.log {
		ctx.Log = append(ctx.Log, models.LogEntryDoc{Role: string(e.Speaker), Content: e.Text})
	}
	return ctx
}

func (m *Machine) eventContext() stageContext {
	ctx := m.baseContext()
	ctx.Event = &eventView{Node: "between_rounds"}
	return ctx
}

func textIndexDoc(t models.TextIndex) models.TextIndexDoc {
	var out models.TextIndexDoc
	for _, p := range t.Paragraphs {
		para := models.ParagraphDoc{P: float64(p.Index)}
		for _, s := range p.Sentences {
			para.Sentences = append(para.Sentences, models.SentenceDoc{S: float64(s.Index), Text: s.Text})
		}
		out.Paragraphs = append(out.Paragraphs, para)
	}
	return out
}
