package models

import "math"

// The *Doc types mirror the JSON documents exchanged with the generator.
// Numbers are float64 because generators emit 5.0 as readily as 5; the
// conversions below truncate them.

type DeltasDoc struct {
	Gold      float64 `json:"gold"`
	Happiness float64 `json:"happiness"`
	Soul      float64 `json:"soul"`
}

func (d DeltasDoc) Deltas() Deltas {
	return Deltas{Gold: trunc(d.Gold), Happiness: trunc(d.Happiness), Soul: trunc(d.Soul)}
}

// DocDeltas converts d back to its wire form.
func DocDeltas(d Deltas) DeltasDoc {
	return DeltasDoc{Gold: float64(d.Gold), Happiness: float64(d.Happiness), Soul: float64(d.Soul)}
}

type CoordDoc struct {
	P float64 `json:"p"`
	S float64 `json:"s"`
}

func (c CoordDoc) Coord() Coord {
	return Coord{Paragraph: trunc(c.P), Sentence: trunc(c.S)}
}

type SentenceDoc struct {
	S    float64 `json:"s"`
	Text string  `json:"text"`
}

type ParagraphDoc struct {
	P         float64       `json:"p"`
	Sentences []SentenceDoc `json:"sentences"`
}

type TextIndexDoc struct {
	Paragraphs []ParagraphDoc `json:"paragraphs"`
}

func (t TextIndexDoc) TextIndex() TextIndex {
	out := TextIndex{Paragraphs: make([]Paragraph, 0, len(t.Paragraphs))}
	for _, p := range t.Paragraphs {
		para := Paragraph{Index: trunc(p.P), Sentences: make([]Sentence, 0, len(p.Sentences))}
		for _, s := range p.Sentences {
			para.Sentences = append(para.Sentences, Sentence{Index: trunc(s.S), Text: s.Text})
		}
		out.Paragraphs = append(out.Paragraphs, para)
	}
	return out
}

type OfferDoc struct {
	Summary           string    `json:"summary"`
	FullText          string    `json:"full_text"`
	MinAcceptSoulCost float64   `json:"min_accept_soul_cost"`
	DeltasOnAccept    DeltasDoc `json:"deltas_on_accept"`
	AbilitiesGranted  []string  `json:"abilities_granted"`
	CursesGranted     []string  `json:"curses_granted"`
}

type ProbeDoc struct {
	Present     bool    `json:"present"`
	SpawnChance float64 `json:"spawn_chance"`
	WarningText string  `json:"warning_text"`
}

type TriggerThenDoc struct {
	Apply string `json:"apply"`
}

type TriggerDoc struct {
	Type string         `json:"type"`
	Then TriggerThenDoc `json:"then"`
}

type LoopholeDoc struct {
	ID               string     `json:"id"`
	QuoteRef         CoordDoc   `json:"quote_ref"`
	DetectKeywords   []string   `json:"player_detect_keywords"`
	IssueKeywords    []string   `json:"player_issue_keywords"`
	IssueExplanation string     `json:"issue_explanation"`
	Trigger          TriggerDoc `json:"trigger_condition"`
	PenaltyOnAccept  DeltasDoc  `json:"penalty_on_accept"`
	DefuseActions    []string   `json:"defuse_actions"`
	Severity         float64    `json:"severity"`
}

// ApplyFatal is the trigger apply value that zeroes the soul.
const ApplyFatal = "set_soul_zero"

// ApplyPenalty is the trigger apply value for a bounded penalty.
const ApplyPenalty = "penalty"

// OfferBundleDoc is the offer_generate document.
type OfferBundleDoc struct {
	Devil       Devil         `json:"devil"`
	DisplayText string        `json:"display_text"`
	Offer       OfferDoc      `json:"offer"`
	TextIndex   TextIndexDoc  `json:"text_index"`
	Probe       ProbeDoc      `json:"deadly_probe"`
	Loopholes   []LoopholeDoc `json:"loopholes"`
}

// Contract converts the document into domain form. Penalty components are
// bounded to maxPenalty.
func (b OfferBundleDoc) Contract(maxPenalty int) Contract {
	c := Contract{
		Devil:       b.Devil,
		DisplayText: b.DisplayText,
		Offer: Offer{
			Summary:           b.Offer.Summary,
			FullText:          b.Offer.FullText,
			MinAcceptSoulCost: trunc(b.Offer.MinAcceptSoulCost),
			DeltasOnAccept:    b.Offer.DeltasOnAccept.Deltas(),
			AbilitiesGranted:  append([]string(nil), b.Offer.AbilitiesGranted...),
			CursesGranted:     append([]string(nil), b.Offer.CursesGranted...),
		},
		TextIndex: b.TextIndex.TextIndex(),
		Probe: FatalProbe{
			Present:     b.Probe.Present,
			SpawnChance: b.Probe.SpawnChance,
			WarningText: b.Probe.WarningText,
		},
	}
	for _, l := range b.Loopholes {
		effect := PenaltyEffect(l.PenaltyOnAccept.Deltas().Bound(maxPenalty))
		if l.Trigger.Then.Apply == ApplyFatal {
			effect = FatalEffect()
		}
		c.Flaws = append(c.Flaws, Flaw{
			ID:               l.ID,
			QuoteRef:         l.QuoteRef.Coord(),
			DetectKeywords:   append([]string(nil), l.DetectKeywords...),
			IssueKeywords:    append([]string(nil), l.IssueKeywords...),
			IssueExplanation: l.IssueExplanation,
			TriggerType:      l.Trigger.Type,
			Effect:           effect,
			DefuseActions:    append([]string(nil), l.DefuseActions...),
			Severity:         trunc(l.Severity),
		})
	}
	return c
}

type UpdatedOfferDoc struct {
	Summary        string    `json:"summary"`
	FullText       string    `json:"full_text"`
	DeltasOnAccept DeltasDoc `json:"deltas_on_accept"`
}

type ConfidenceDoc struct {
	KeywordScore  float64 `json:"keyword_score"`
	SemanticScore float64 `json:"semantic_score"`
	FinalScore    float64 `json:"final_score"`
}

type LoopholeCheckDoc struct {
	MatchedLoopholeID *string       `json:"matched_loophole_id"`
	Layer1Detected    bool          `json:"layer1_detected"`
	Layer2Explained   bool          `json:"layer2_issue_explained"`
	FullSuccess       bool          `json:"is_full_success"`
	Confidence        ConfidenceDoc `json:"confidence"`
	ResponseMode      string        `json:"devil_response_mode"`
	Concessions       []string      `json:"devil_concession"`
}

type LogEntryDoc struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NegotiationDoc is the negotiate document.
type NegotiationDoc struct {
	DisplayText  string           `json:"display_text"`
	UpdatedOffer *UpdatedOfferDoc `json:"updated_offer"`
	Check        LoopholeCheckDoc `json:"loophole_check"`
	LogAppend    []LogEntryDoc    `json:"conversation_log_append"`
}

// Negotiation converts the document into domain form.
func (n NegotiationDoc) Negotiation() Negotiation {
	out := Negotiation{
		DisplayText:    n.DisplayText,
		Layer1Detected: n.Check.Layer1Detected,
		Layer2Detected: n.Check.Layer2Explained,
		FullSuccess:    n.Check.FullSuccess,
		Confidence: Confidence{
			Keyword:  n.Check.Confidence.KeywordScore,
			Semantic: n.Check.Confidence.SemanticScore,
			Final:    n.Check.Confidence.FinalScore,
		},
		ResponseMode: n.Check.ResponseMode,
		Concessions:  append([]string(nil), n.Check.Concessions...),
	}
	if n.Check.MatchedLoopholeID != nil {
		out.MatchedFlawID = *n.Check.MatchedLoopholeID
	}
	if n.UpdatedOffer != nil {
		out.UpdatedOffer = &OfferUpdate{
			Summary:        n.UpdatedOffer.Summary,
			FullText:       n.UpdatedOffer.FullText,
			DeltasOnAccept: n.UpdatedOffer.DeltasOnAccept.Deltas(),
		}
	}
	for _, e := range n.LogAppend {
		out.Log = append(out.Log, ConversationEntry{Speaker: ParseSpeaker(e.Role), Text: e.Content})
	}
	return out
}

type ChoiceDoc struct {
	ID         string    `json:"id"`
	ChoiceText string    `json:"choice_text"`
	Deltas     DeltasDoc `json:"deltas"`
}

type EventBodyDoc struct {
	Node      string      `json:"node"`
	EventText string      `json:"event_text"`
	Choices   []ChoiceDoc `json:"choices"`
}

// EventDoc is the event_generate document.
type EventDoc struct {
	DisplayText string       `json:"display_text"`
	Event       EventBodyDoc `json:"event"`
}

// DomainEvent converts the document into domain form.
func (e EventDoc) DomainEvent() Event {
	out := Event{DisplayText: e.DisplayText, Node: e.Event.Node, Text: e.Event.EventText}
	for _, c := range e.Event.Choices {
		out.Choices = append(out.Choices, Choice{ID: c.ID, Text: c.ChoiceText, Deltas: c.Deltas.Deltas()})
	}
	return out
}

// trunc converts a document number to int, saturating at the int32 range so
// huge magnitudes keep their sign.
func trunc(f float64) int {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt32:
		return math.MaxInt32
	case f <= math.MinInt32:
		return math.MinInt32
	}
	return int(math.Trunc(f))
}
