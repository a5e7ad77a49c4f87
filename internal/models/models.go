package models

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Stage identifies one generation task and its document schema.
type Stage string

const (
	StageOffer     Stage = "offer_generate"
	StageNegotiate Stage = "negotiate"
	StageEvent     Stage = "event_generate"
	StageRepair    Stage = "repair_json"
)

// Stages lists the stages whose documents are validated.
var Stages = []Stage{StageOffer, StageNegotiate, StageEvent}

// Resources are the player's three meters.
type Resources struct {
	Gold      int `json:"gold" yaml:"gold"`
	Happiness int `json:"happiness" yaml:"happiness"`
	Soul      int `json:"soul" yaml:"soul"`
}

// Deltas is a signed change to Resources.
type Deltas struct {
	Gold      int `json:"gold" yaml:"gold"`
	Happiness int `json:"happiness" yaml:"happiness"`
	Soul      int `json:"soul" yaml:"soul"`
}

// Apply returns r changed by d. Gold never drops below zero; happiness and
// soul stay within [0,100].
func (r Resources) Apply(d Deltas) Resources {
	return Resources{
		Gold:      max(0, r.Gold+d.Gold),
		Happiness: clamp(r.Happiness+d.Happiness, 0, 100),
		Soul:      clamp(r.Soul+d.Soul, 0, 100),
	}
}

// Bound clamps every component of d to [-limit, limit].
func (d Deltas) Bound(limit int) Deltas {
	if limit < 0 {
		limit = -limit
	}
	return Deltas{
		Gold:      clamp(d.Gold, -limit, limit),
		Happiness: clamp(d.Happiness, -limit, limit),
		Soul:      clamp(d.Soul, -limit, limit),
	}
}

// IsZero reports whether d changes nothing.
func (d Deltas) IsZero() bool {
	return d == Deltas{}
}

func clamp(v, lo, hi int) int {
	return min(hi, max(lo, v))
}

// Coord addresses one sentence of a TextIndex.
type Coord struct {
	Paragraph int `json:"p"`
	Sentence  int `json:"s"`
}

func (c Coord) String() string {
	return fmt.Sprintf("P%d-S%d", c.Paragraph, c.Sentence)
}

var coordPattern = regexp.MustCompile(`^[Pp]?(\d+)\s*[-:,\s]\s*[Ss]?(\d+)$`)

// ParseCoord reads a coordinate written as "P2-S0", "2:0" or "2 0".
func ParseCoord(s string) (Coord, error) {
	m := coordPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Coord{}, fmt.Errorf("invalid coordinate %q, want P<paragraph>-S<sentence>", s)
	}
	p, err := strconv.Atoi(m[1])
	if err != nil {
		return Coord{}, fmt.Errorf("invalid coordinate %q: %w", s, err)
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return Coord{}, fmt.Errorf("invalid coordinate %q: %w", s, err)
	}
	return Coord{Paragraph: p, Sentence: n}, nil
}

// Sentence is one addressable unit of contract text.
type Sentence struct {
	Index int
	Text  string
}

// Paragraph is an ordered run of sentences.
type Paragraph struct {
	Index     int
	Sentences []Sentence
}

// TextIndex is the paragraph/sentence breakdown of a contract's full text.
// It is the only scheme used to quote contract text back to the generator.
type TextIndex struct {
	Paragraphs []Paragraph
}

// Lookup resolves c to its sentence text.
func (t TextIndex) Lookup(c Coord) (string, bool) {
	for _, p := range t.Paragraphs {
		if p.Index != c.Paragraph {
			continue
		}
		for _, s := range p.Sentences {
			if s.Index == c.Sentence {
				return s.Text, true
			}
		}
	}
	return "", false
}

// Coords returns every addressable coordinate in reading order.
func (t TextIndex) Coords() []Coord {
	var out []Coord
	for _, p := range t.Paragraphs {
		for _, s := range p.Sentences {
			out = append(out, Coord{Paragraph: p.Index, Sentence: s.Index})
		}
	}
	return out
}

// EffectKind separates the two trigger outcomes a flaw can carry.
type EffectKind int

const (
	EffectPenalty EffectKind = iota
	EffectFatal
)

func (k EffectKind) String() string {
	if k == EffectFatal {
		return "set_soul_zero"
	}
	return "penalty"
}

// TriggerEffect is what an undefused flaw does at settlement.
type TriggerEffect struct {
	Kind    EffectKind
	Penalty Deltas // only meaningful for EffectPenalty
}

// PenaltyEffect returns a bounded resource penalty.
func PenaltyEffect(d Deltas) TriggerEffect {
	return TriggerEffect{Kind: EffectPenalty, Penalty: d}
}

// FatalEffect returns the effect that zeroes the soul.
func FatalEffect() TriggerEffect {
	return TriggerEffect{Kind: EffectFatal}
}

// IsFatal reports whether the effect zeroes the soul.
func (e TriggerEffect) IsFatal() bool {
	return e.Kind == EffectFatal
}

// Flaw is a loophole planted in the contract text.
type Flaw struct {
	ID               string
	QuoteRef         Coord
	DetectKeywords   []string // never shown to the player
	IssueKeywords    []string // never shown to the player
	IssueExplanation string
	TriggerType      string
	Effect           TriggerEffect
	DefuseActions    []string
	Severity         int
}

// Offer is the negotiable part of a contract.
type Offer struct {
	Summary           string
	FullText          string
	MinAcceptSoulCost int
	DeltasOnAccept    Deltas
	AbilitiesGranted  []string
	CursesGranted     []string
}

// OfferUpdate replaces summary, full text and accept deltas together.
type OfferUpdate struct {
	Summary        string
	FullText       string
	DeltasOnAccept Deltas
}

// Replace applies u to o as one unit.
func (o *Offer) Replace(u OfferUpdate) {
	o.Summary = u.Summary
	o.FullText = u.FullText
	o.DeltasOnAccept = u.DeltasOnAccept
}

// Devil is who the player is dealing with.
type Devil struct {
	Tier string `json:"tier" yaml:"tier"`
	Name string `json:"name" yaml:"name"`
}

// FatalProbe declares whether the contract hides a soul-zeroing trap.
type FatalProbe struct {
	Present     bool
	SpawnChance float64
	WarningText string
}

// Contract is a validated offer bundle.
type Contract struct {
	Devil       Devil
	DisplayText string
	Offer       Offer
	TextIndex   TextIndex
	Flaws       []Flaw
	Probe       FatalProbe
}

// FlawByID returns the flaw with the given id.
func (c *Contract) FlawByID(id string) (Flaw, bool) {
	for _, f := range c.Flaws {
		if f.ID == id {
			return f, true
		}
	}
	return Flaw{}, false
}

// Clone returns a deep copy that shares no slices with c.
func (c Contract) Clone() Contract {
	out := c
	out.Offer.AbilitiesGranted = append([]string(nil), c.Offer.AbilitiesGranted...)
	out.Offer.CursesGranted = append([]string(nil), c.Offer.CursesGranted...)
	out.TextIndex.Paragraphs = make([]Paragraph, len(c.TextIndex.Paragraphs))
	for i, p := range c.TextIndex.Paragraphs {
		out.TextIndex.Paragraphs[i] = Paragraph{Index: p.Index, Sentences: append([]Sentence(nil), p.Sentences...)}
	}
	out.Flaws = make([]Flaw, len(c.Flaws))
	for i, f := range c.Flaws {
		f.DetectKeywords = append([]string(nil), f.DetectKeywords...)
		f.IssueKeywords = append([]string(nil), f.IssueKeywords...)
		f.DefuseActions = append([]string(nil), f.DefuseActions...)
		out.Flaws[i] = f
	}
	return out
}

// Speaker is one side of the negotiation transcript.
type Speaker string

const (
	SpeakerPlayer Speaker = "player"
	SpeakerDevil  Speaker = "devil"
)

// ParseSpeaker maps a generator role onto a Speaker. Anything that is not
// the player is the devil.
func ParseSpeaker(role string) Speaker {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "player", "user":
		return SpeakerPlayer
	default:
		return SpeakerDevil
	}
}

// ConversationEntry is one line of the negotiation transcript.
type ConversationEntry struct {
	Speaker Speaker `json:"role"`
	Text    string  `json:"content"`
}

// Confidence is the generator's self-reported judgment of an argument.
type Confidence struct {
	Keyword  float64
	Semantic float64
	Final    float64
}

// Negotiation is a validated negotiation-stage result.
type Negotiation struct {
	DisplayText    string
	UpdatedOffer   *OfferUpdate
	MatchedFlawID  string // empty when the player named no flaw
	Layer1Detected bool
	Layer2Detected bool
	FullSuccess    bool
	Confidence     Confidence
	ResponseMode   string
	Concessions    []string
	Log            []ConversationEntry
}

// Choice is one option of a follow-up event.
type Choice struct {
	ID     string
	Text   string
	Deltas Deltas
}

// Event is a validated follow-up event.
type Event struct {
	DisplayText string
	Node        string
	Text        string
	Choices     []Choice
}

// ChoiceByID returns the choice with the given id.
func (e *Event) ChoiceByID(id string) (Choice, bool) {
	for _, c := range e.Choices {
		if strings.EqualFold(c.ID, id) {
			return c, true
		}
	}
	return Choice{}, false
}
