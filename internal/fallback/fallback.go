// Package fallback holds the statically authored content used when the
// generator cannot produce a valid document. Every bundle here must pass the
// same validation as generated output.
package fallback

import (
	"strings"

	"github.com/tatianab/devil-deal/internal/models"
)

const (
	DevilTier         = "small"
	DevilName         = "Grim Littlehorn"
	MinAcceptSoulCost = 10
	FatalSpawnChance  = 0.3
)

var clauses = []string{
	`Article 1: The devil grants you "better luck tomorrow"; in exchange you agree to pay a soul tax whenever it is needed.`,
	`Article 2: "Whenever it is needed" includes, without limitation: whenever you feel tired, whenever you hesitate, and whenever you say "maybe next time".`,
	`Article 3: The soul tax is priced in whole souls, rounded up.`,
	`Article 4: If you sign without reading every article, you agree that the definition of "soul" is whatever the devil says it is.`,
	`Article 5: You may negotiate twice; if negotiation fails, the devil may propose harsher terms.`,
}

func fullText() string {
	return strings.Join(clauses, "\n\n")
}

func textIndex() models.TextIndexDoc {
	idx := models.TextIndexDoc{}
	for i, c := range clauses {
		idx.Paragraphs = append(idx.Paragraphs, models.ParagraphDoc{
			P:         float64(i),
			Sentences: []models.SentenceDoc{{S: 0, Text: c}},
		})
	}
	return idx
}

func onAccept(apply string) models.TriggerDoc {
	return models.TriggerDoc{Type: "on_accept", Then: models.TriggerThenDoc{Apply: apply}}
}

// OfferBundle returns the fallback contract. With fatal set, the definition
// clause becomes a trap that zeroes the soul.
func OfferBundle(fatal bool) models.OfferBundleDoc {
	definition := models.LoopholeDoc{
		ID:               "L4",
		QuoteRef:         models.CoordDoc{P: 3, S: 0},
		DetectKeywords:   []string{"without reading", "agree", "definition", "devil says"},
		IssueKeywords:    []string{"unfair", "right to define", "void", "limit"},
		IssueExplanation: `Handing the devil the right to define "soul" makes any interpretation binding; that imbalance is the real trap.`,
		Trigger:          onAccept(models.ApplyPenalty),
		PenaltyOnAccept:  models.DeltasDoc{Soul: -35},
		DefuseActions:    []string{"clarify_clause", "remove_condition"},
		Severity:         2,
	}
	if fatal {
		definition.Trigger = onAccept(models.ApplyFatal)
		definition.PenaltyOnAccept = models.DeltasDoc{Soul: -999}
		definition.Severity = 3
	}

	return models.OfferBundleDoc{
		Devil:       models.Devil{Tier: DevilTier, Name: DevilName},
		DisplayText: `(fallback) The devil slides over a contract that looks merciful, while "definition" and "rounding" sharpen their knives in the margins.`,
		Offer: models.OfferDoc{
			Summary:           `The devil promises you "better luck tomorrow" in exchange for a soul tax. The terms look mild but hide a vague trigger and a pricing trap.`,
			FullText:          fullText(),
			MinAcceptSoulCost: MinAcceptSoulCost,
			DeltasOnAccept:    models.DeltasDoc{Gold: 20},
			AbilitiesGranted:  []string{},
			CursesGranted:     []string{},
		},
		TextIndex: textIndex(),
		Probe: models.ProbeDoc{
			Present:     fatal,
			SpawnChance: FatalSpawnChance,
			WarningText: `This contract contains a fatal definition clause. Read every article.`,
		},
		Loopholes: []models.LoopholeDoc{
			{
				ID:               "L1",
				QuoteRef:         models.CoordDoc{P: 1, S: 0},
				DetectKeywords:   []string{"whenever", "without limitation", "tired", "hesitate", "maybe next time"},
				IssueKeywords:    []string{"definition", "too broad", "unlimited", "vague"},
				IssueExplanation: `"Whenever it is needed" is stretched until almost any situation triggers the tax.`,
				Trigger:          onAccept(models.ApplyPenalty),
				PenaltyOnAccept:  models.DeltasDoc{Happiness: -10, Soul: -15},
				DefuseActions:    []string{"clarify_clause", "remove_condition", "cap_penalty"},
				Severity:         2,
			},
			{
				ID:               "L2",
				QuoteRef:         models.CoordDoc{P: 2, S: 0},
				DetectKeywords:   []string{"rounded up", "whole souls", "priced"},
				IssueKeywords:    []string{"unfair", "too high", "cap", "ceiling"},
				IssueExplanation: `Rounding up turns a tiny cost into a whole soul; the pricing is one-sided.`,
				Trigger:          onAccept(models.ApplyPenalty),
				PenaltyOnAccept:  models.DeltasDoc{Soul: -20},
				DefuseActions:    []string{"cap_penalty", "swap_to_gold", "swap_to_happiness"},
				Severity:         2,
			},
			{
				ID:               "L3",
				QuoteRef:         models.CoordDoc{P: 0, S: 0},
				DetectKeywords:   []string{"soul tax", "pay", "needed"},
				IssueKeywords:    []string{"gold instead", "ratio", "installments", "conditions"},
				IssueExplanation: `The price should be a measurable cost in gold or happiness, not a soul tax open to any reading.`,
				Trigger:          onAccept(models.ApplyPenalty),
				PenaltyOnAccept:  models.DeltasDoc{Happiness: -5, Soul: -10},
				DefuseActions:    []string{"swap_to_gold", "swap_to_happiness", "clarify_clause"},
				Severity:         1,
			},
			definition,
		},
	}
}

// Event returns the fallback follow-up event.
func Event() models.EventDoc {
	return models.EventDoc{
		DisplayText: "(fallback) The contract's aftershock arrives at once.",
		Event: models.EventBodyDoc{
			Node:      "between_rounds",
			EventText: `That night you dream of someone tallying your "whole soul" in a ledger. You wake with cold palms.`,
			Choices: []models.ChoiceDoc{
				{
					ID:         "A",
					ChoiceText: "Light a candle and force yourself to calm down (happiness +5, soul -5)",
					Deltas:     models.DeltasDoc{Happiness: 5, Soul: -5},
				},
				{
					ID:         "B",
					ChoiceText: "Turn the fear into action and go earn some money (gold +15, happiness -5)",
					Deltas:     models.DeltasDoc{Gold: 15, Happiness: -5},
				},
			},
		},
	}
}
