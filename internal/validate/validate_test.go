package validate

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tatianab/devil-deal/internal/fallback"
	"github.com/tatianab/devil-deal/internal/models"
)

func newValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := New()
	require.NoError(t, err)
	return v
}

func decode(t *testing.T, v any) map[string]any {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func offerDoc(t *testing.T, fatal bool) map[string]any {
	return decode(t, fallback.OfferBundle(fatal))
}

func negotiationDoc(t *testing.T) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{
	  "display_text": "Fine, fine. I will cap it.",
	  "updated_offer": {"summary": "capped", "full_text": "Article 1 ...", "deltas_on_accept": {"gold": 20, "happiness": 0, "soul": -10}},
	  "loophole_check": {
	    "matched_loophole_id": "L2",
	    "layer1_detected": true,
	    "layer2_issue_explained": true,
	    "is_full_success": true,
	    "confidence": {"keyword_score": 1, "semantic_score": 0.8, "final_score": 0.88},
	    "devil_response_mode": "concede",
	    "devil_concession": ["cap_penalty"]
	  },
	  "conversation_log_append": [
	    {"role": "player", "content": "Rounding up is unfair."},
	    {"role": "devil", "content": "Fine, fine."}
	  ]
	}`), &out))
	return out
}

func eventDoc(t *testing.T) map[string]any {
	return decode(t, fallback.Event())
}

// lookup walks a path such as "offer.deltas_on_accept" or "loopholes[0].id"
// and returns the parent container and the final key.
func lookup(t *testing.T, doc map[string]any, path string) (map[string]any, string) {
	t.Helper()
	parts := strings.Split(path, ".")
	cur := doc
	for _, part := range parts[:len(parts)-1] {
		name, idx := splitIndex(part)
		next := cur[name]
		if idx >= 0 {
			next = next.([]any)[idx]
		}
		cur = next.(map[string]any)
	}
	return cur, parts[len(parts)-1]
}

func splitIndex(part string) (string, int) {
	open := strings.IndexByte(part, '[')
	if open < 0 {
		return part, -1
	}
	n, _ := strconv.Atoi(part[open+1 : len(part)-1])
	return part[:open], n
}

func without(t *testing.T, doc map[string]any, path string) map[string]any {
	parent, key := lookup(t, doc, path)
	delete(parent, key)
	return doc
}

func set(t *testing.T, doc map[string]any, path string, v any) map[string]any {
	parent, key := lookup(t, doc, path)
	parent[key] = v
	return doc
}

func TestValidDocuments(t *testing.T) {
	v := newValidator(t)
	assert.Empty(t, v.Validate(models.StageOffer, offerDoc(t, false)))
	assert.Empty(t, v.Validate(models.StageOffer, offerDoc(t, true)))
	assert.Empty(t, v.Validate(models.StageNegotiate, negotiationDoc(t)))
	assert.Empty(t, v.Validate(models.StageEvent, eventDoc(t)))
}

func TestOmittedFieldsAreNamed(t *testing.T) {
	v := newValidator(t)

	cases := map[models.Stage][]string{
		models.StageOffer: {
			"devil", "devil.tier", "devil.name", "display_text",
			"offer", "offer.summary", "offer.full_text", "offer.min_accept_soul_cost",
			"offer.deltas_on_accept", "offer.deltas_on_accept.gold", "offer.deltas_on_accept.happiness",
			"offer.deltas_on_accept.soul", "offer.abilities_granted", "offer.curses_granted",
			"text_index", "text_index.paragraphs", "text_index.paragraphs[0].p",
			"text_index.paragraphs[0].sentences", "text_index.paragraphs[0].sentences[0].s",
			"text_index.paragraphs[0].sentences[0].text",
			"deadly_probe", "deadly_probe.present", "deadly_probe.spawn_chance", "deadly_probe.warning_text",
			"loopholes", "loopholes[0].id", "loopholes[0].quote_ref", "loopholes[0].quote_ref.p",
			"loopholes[0].quote_ref.s", "loopholes[0].player_detect_keywords", "loopholes[0].player_issue_keywords",
			"loopholes[0].issue_explanation", "loopholes[0].trigger_condition", "loopholes[0].trigger_condition.type",
			"loopholes[0].trigger_condition.then", "loopholes[0].trigger_condition.then.apply",
			"loopholes[0].penalty_on_accept", "loopholes[0].penalty_on_accept.soul",
			"loopholes[0].defuse_actions", "loopholes[0].severity",
		},
		models.StageNegotiate: {
			"display_text", "updated_offer", "updated_offer.summary", "updated_offer.full_text",
			"updated_offer.deltas_on_accept", "updated_offer.deltas_on_accept.gold",
			"loophole_check", "loophole_check.layer1_detected", "loophole_check.layer2_issue_explained",
			"loophole_check.is_full_success", "loophole_check.confidence",
			"loophole_check.confidence.keyword_score", "loophole_check.confidence.semantic_score",
			"loophole_check.confidence.final_score", "loophole_check.devil_response_mode",
			"loophole_check.devil_concession", "conversation_log_append",
			"conversation_log_append[0].role", "conversation_log_append[1].content",
		},
		models.StageEvent: {
			"display_text", "event", "event.node", "event.event_text", "event.choices",
			"event.choices[0].id", "event.choices[1].choice_text", "event.choices[0].deltas",
			"event.choices[1].deltas.happiness",
		},
	}
	fresh := map[models.Stage]func() map[string]any{
		models.StageOffer:     func() map[string]any { return offerDoc(t, false) },
		models.StageNegotiate: func() map[string]any { return negotiationDoc(t) },
		models.StageEvent:     func() map[string]any { return eventDoc(t) },
	}

	for stage, paths := range cases {
		for _, path := range paths {
			t.Run(string(stage)+"/"+path, func(t *testing.T) {
				vs := v.Validate(stage, without(t, fresh[stage](), path))
				require.NotEmpty(t, vs)
				assert.True(t, vs.Mentions("$."+path), "violations do not name $.%s:\n%s", path, vs)
			})
		}
	}
}

func TestMissingNumberMessage(t *testing.T) {
	v := newValidator(t)
	vs := v.Validate(models.StageOffer, set(t, offerDoc(t, false), "offer.min_accept_soul_cost", nil))
	assert.Equal(t, []string{"$.offer.min_accept_soul_cost: must be a finite number"}, vs.Strings())
}

func TestNonFiniteNumbersRejected(t *testing.T) {
	v := newValidator(t)
	for _, bad := range []any{math.NaN(), math.Inf(1), math.Inf(-1), "10", true} {
		vs := v.Validate(models.StageOffer, set(t, offerDoc(t, false), "offer.deltas_on_accept.gold", bad))
		assert.True(t, vs.Mentions("$.offer.deltas_on_accept.gold"), "value %v accepted", bad)
	}
}

func TestBlankStringRejected(t *testing.T) {
	v := newValidator(t)
	vs := v.Validate(models.StageOffer, set(t, offerDoc(t, false), "offer.summary", "   "))
	assert.Equal(t, []string{"$.offer.summary: must be a non-empty string"}, vs.Strings())
}

func TestContainerKinds(t *testing.T) {
	v := newValidator(t)

	vs := v.Validate(models.StageOffer, set(t, offerDoc(t, false), "offer.abilities_granted", map[string]any{}))
	assert.Equal(t, []string{"$.offer.abilities_granted: must be an array"}, vs.Strings())

	vs = v.Validate(models.StageOffer, set(t, offerDoc(t, false), "offer", []any{}))
	assert.Equal(t, []string{"$.offer: must be an object"}, vs.Strings())

	vs = v.Validate(models.StageEvent, []any{})
	assert.Equal(t, []string{"$: must be an object"}, vs.Strings())
}

func TestFlawCountBounds(t *testing.T) {
	v := newValidator(t)

	resize := func(n int) map[string]any {
		doc := offerDoc(t, false)
		base := doc["loopholes"].([]any)
		list := make([]any, 0, n)
		for i := 0; i < n; i++ {
			l := make(map[string]any)
			for k, v := range base[i%len(base)].(map[string]any) {
				l[k] = v
			}
			l["id"] = "L" + strconv.Itoa(i+1)
			list = append(list, l)
		}
		doc["loopholes"] = list
		return doc
	}

	for _, n := range []int{0, 3, 7, 9} {
		vs := v.Validate(models.StageOffer, resize(n))
		assert.Contains(t, vs.Strings(), "$.loopholes: length must be in [4,6] (got "+strconv.Itoa(n)+")")
	}
	for _, n := range []int{4, 5, 6} {
		assert.Empty(t, v.Validate(models.StageOffer, resize(n)), "n=%d", n)
	}
}

func TestFatalTrapRequired(t *testing.T) {
	v := newValidator(t)
	doc := set(t, offerDoc(t, true), "loopholes[3].trigger_condition.then.apply", "penalty")

	vs := v.Validate(models.StageOffer, doc)
	require.Len(t, vs, 1)
	assert.Equal(t, "$.loopholes", vs[0].Path)
	assert.Contains(t, vs[0].Message, "deadly_probe.present")
}

func TestDuplicateFlawID(t *testing.T) {
	v := newValidator(t)
	vs := v.Validate(models.StageOffer, set(t, offerDoc(t, false), "loopholes[2].id", "L1"))
	require.Len(t, vs, 1)
	assert.Equal(t, "$.loopholes[2].id", vs[0].Path)
	assert.Contains(t, vs[0].Message, "duplicate id")
}

func TestKeywordSetsDisjoint(t *testing.T) {
	v := newValidator(t)
	doc := set(t, offerDoc(t, false), "loopholes[1].player_issue_keywords", []any{"unfair", "Rounded Up"})
	vs := v.Validate(models.StageOffer, doc)
	require.Len(t, vs, 1)
	assert.Equal(t, "$.loopholes[1].player_issue_keywords[1]", vs[0].Path)
	assert.Contains(t, vs[0].Message, "detect keyword")
}

func TestUnknownTriggerEffect(t *testing.T) {
	v := newValidator(t)
	vs := v.Validate(models.StageOffer, set(t, offerDoc(t, false), "loopholes[1].trigger_condition.then.apply", "explode"))
	require.Len(t, vs, 1)
	assert.Equal(t, "$.loopholes[1].trigger_condition.then.apply", vs[0].Path)
}

func TestConcedeRequiredWhenExplained(t *testing.T) {
	v := newValidator(t)

	vs := v.Validate(models.StageNegotiate, set(t, negotiationDoc(t), "loophole_check.devil_response_mode", "deflect"))
	require.Len(t, vs, 1)
	assert.Equal(t, "$.loophole_check.devil_response_mode", vs[0].Path)
	assert.Contains(t, vs[0].Message, "concede")

	doc := set(t, negotiationDoc(t), "loophole_check.layer2_issue_explained", false)
	doc = set(t, doc, "loophole_check.devil_response_mode", "deflect")
	assert.Empty(t, v.Validate(models.StageNegotiate, doc))

	assert.Empty(t, v.Validate(models.StageNegotiate, set(t, negotiationDoc(t), "loophole_check.devil_response_mode", " Concede ")))

	vs = v.Validate(models.StageNegotiate, set(t, doc, "loophole_check.devil_response_mode", "shrug"))
	assert.True(t, vs.Mentions("$.loophole_check.devil_response_mode"))
}

func TestMatchedIDMayBeNull(t *testing.T) {
	v := newValidator(t)
	doc := set(t, negotiationDoc(t), "loophole_check.matched_loophole_id", nil)
	assert.Empty(t, v.Validate(models.StageNegotiate, doc))

	vs := v.Validate(models.StageNegotiate, set(t, doc, "loophole_check.matched_loophole_id", 3.0))
	assert.Equal(t, []string{"$.loophole_check.matched_loophole_id: must be a string or null"}, vs.Strings())
}

func TestExactlyTwoChoices(t *testing.T) {
	v := newValidator(t)
	doc := eventDoc(t)
	choices := doc["event"].(map[string]any)["choices"].([]any)
	doc["event"].(map[string]any)["choices"] = append(choices, choices[0])

	vs := v.Validate(models.StageEvent, doc)
	assert.Equal(t, []string{"$.event.choices: must contain exactly 2 choices (got 3)"}, vs.Strings())

	doc["event"].(map[string]any)["choices"] = choices[:1]
	vs = v.Validate(models.StageEvent, doc)
	assert.Equal(t, []string{"$.event.choices: must contain exactly 2 choices (got 1)"}, vs.Strings())
}

func TestSchemaBounds(t *testing.T) {
	v := newValidator(t)

	vs := v.Validate(models.StageOffer, set(t, offerDoc(t, false), "loopholes[0].severity", 9.0))
	require.NotEmpty(t, vs)
	assert.True(t, vs.Mentions("$.loopholes[0].severity"), vs.String())

	vs = v.Validate(models.StageOffer, set(t, offerDoc(t, false), "deadly_probe.spawn_chance", 1.5))
	assert.True(t, vs.Mentions("$.deadly_probe.spawn_chance"), vs.String())

	vs = v.Validate(models.StageNegotiate, set(t, negotiationDoc(t), "loophole_check.confidence.semantic_score", -0.2))
	assert.True(t, vs.Mentions("$.loophole_check.confidence.semantic_score"), vs.String())
}

func TestUnknownStage(t *testing.T) {
	v := newValidator(t)
	vs := v.Validate(models.StageRepair, map[string]any{})
	require.Len(t, vs, 1)
	assert.Equal(t, "$", vs[0].Path)
}

func TestSchemaTextEmbedded(t *testing.T) {
	v := newValidator(t)
	for _, stage := range models.Stages {
		text := v.SchemaText(stage)
		assert.Contains(t, text, `"title": "`+string(stage)+`"`)
		assert.True(t, json.Valid([]byte(text)), stage)
	}
}

func TestPointerPath(t *testing.T) {
	cases := map[string]string{
		"":                         "$",
		"#":                        "$",
		"/offer/summary":           "$.offer.summary",
		"/loopholes/0/severity":    "$.loopholes[0].severity",
		"/a~1b/c~0d":               "$.a/b.c~d",
		"#/event/choices/1/deltas": "$.event.choices[1].deltas",
	}
	for in, want := range cases {
		assert.Equal(t, want, pointerPath(in), in)
	}
}
