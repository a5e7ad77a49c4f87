package fallback

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tatianab/devil-deal/internal/models"
	"github.com/tatianab/devil-deal/internal/validate"
)

func decoded(t *testing.T, v any) any {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	var out any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestBundlesPassValidation(t *testing.T) {
	v, err := validate.New()
	require.NoError(t, err)

	for _, fatal := range []bool{false, true} {
		vs := v.Validate(models.StageOffer, decoded(t, OfferBundle(fatal)))
		assert.Empty(t, vs, "fatal=%v: %s", fatal, vs)
	}
	vs := v.Validate(models.StageEvent, decoded(t, Event()))
	assert.Empty(t, vs, vs.String())
}

func TestFatalVariant(t *testing.T) {
	c := OfferBundle(true).Contract(100)
	require.True(t, c.Probe.Present)
	fatal := 0
	for _, f := range c.Flaws {
		if f.Effect.IsFatal() {
			fatal++
		}
	}
	assert.Equal(t, 1, fatal)

	safe := OfferBundle(false).Contract(100)
	assert.False(t, safe.Probe.Present)
	for _, f := range safe.Flaws {
		assert.False(t, f.Effect.IsFatal(), f.ID)
	}
}

func TestQuoteRefsResolve(t *testing.T) {
	for _, fatal := range []bool{false, true} {
		c := OfferBundle(fatal).Contract(100)
		for _, f := range c.Flaws {
			_, ok := c.TextIndex.Lookup(f.QuoteRef)
			assert.True(t, ok, "flaw %s quotes %+v", f.ID, f.QuoteRef)
		}
	}
}

func TestBundlesAreIndependent(t *testing.T) {
	a := OfferBundle(false)
	a.Loopholes[0].DetectKeywords[0] = "mutated"
	b := OfferBundle(false)
	assert.NotEqual(t, "mutated", b.Loopholes[0].DetectKeywords[0])
}
