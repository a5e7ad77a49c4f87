package scoring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tatianab/devil-deal/internal/models"
)

var roundingFlaw = models.Flaw{
	ID:             "L2",
	DetectKeywords: []string{"round up", "rounding"},
	IssueKeywords:  []string{"unfair", "overcharge"},
}

func TestBothKeywordsAndStrongSemantic(t *testing.T) {
	b := Score("The ROUNDING clause is unfair to me.", roundingFlaw, 0.8)

	assert.True(t, b.DetectHit)
	assert.True(t, b.IssueHit)
	assert.Equal(t, []string{"rounding"}, b.DetectHits)
	assert.Equal(t, []string{"unfair"}, b.IssueHits)
	assert.InDelta(t, 1.0, b.KeywordScore, 1e-9)
	assert.InDelta(t, 0.88, b.FinalScore, 1e-9)
	assert.True(t, b.Layer1)
	assert.True(t, b.Layer2)
}

func TestSemanticAloneLocatesButCannotExplain(t *testing.T) {
	b := Score("Something about this feels off.", roundingFlaw, 0.72)

	assert.False(t, b.DetectHit)
	assert.False(t, b.IssueHit)
	assert.Zero(t, b.KeywordScore)
	assert.InDelta(t, 0.6*0.72, b.FinalScore, 1e-9)
	assert.True(t, b.Layer1)
	assert.False(t, b.Layer2)

	// Even a perfect semantic score needs an issue keyword.
	b = Score("Something about this feels off.", roundingFlaw, 1)
	assert.True(t, b.Layer1)
	assert.False(t, b.Layer2)
}

func TestIssueKeywordNeedsSemanticAgreement(t *testing.T) {
	b := Score("that is an overcharge", roundingFlaw, 0.69)
	assert.True(t, b.IssueHit)
	assert.InDelta(t, 0.5, b.KeywordScore, 1e-9)
	assert.False(t, b.Layer1)
	assert.False(t, b.Layer2)

	b = Score("that is an overcharge", roundingFlaw, 0.74)
	assert.True(t, b.Layer1)
	assert.False(t, b.Layer2)

	b = Score("that is an overcharge", roundingFlaw, 0.75)
	assert.True(t, b.Layer1)
	assert.True(t, b.Layer2)
}

func TestDetectKeywordLocates(t *testing.T) {
	b := Score("you round up everything", roundingFlaw, 0)
	assert.True(t, b.Layer1)
	assert.False(t, b.Layer2)
	assert.InDelta(t, 0.5, b.KeywordScore, 1e-9)
	assert.InDelta(t, 0.2, b.FinalScore, 1e-9)
}

func TestSemanticClamped(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{-3, 0},
		{7, 1},
		{math.NaN(), 0},
		{math.Inf(1), 1},
		{0.5, 0.5},
	}
	for _, c := range cases {
		b := Score("", roundingFlaw, c.in)
		assert.Equal(t, c.want, b.SemanticScore, "in=%v", c.in)
		assert.False(t, math.IsNaN(b.FinalScore))
		assert.LessOrEqual(t, b.FinalScore, 1.0)
	}
}

func TestBlankKeywordsIgnored(t *testing.T) {
	flaw := models.Flaw{DetectKeywords: []string{"", "  "}, IssueKeywords: []string{""}}
	b := Score("anything at all", flaw, 0)
	assert.False(t, b.DetectHit)
	assert.False(t, b.IssueHit)
	assert.False(t, b.Layer1)
}
