// Package scoring grades a negotiation argument against one flaw.
//
// The keyword half is computed locally from the flaw's hidden keyword lists.
// The semantic half is the generator's own judgment and is only clamped here.
package scoring

import (
	"strings"

	"github.com/tatianab/devil-deal/internal/models"
)

// Thresholds and weights for the two layers.
const (
	KeywordWeight  = 0.4
	SemanticWeight = 0.6

	LocateThreshold  = 0.70
	ExplainThreshold = 0.75
)

// Breakdown is the full result of scoring one argument.
type Breakdown struct {
	DetectHits    []string
	IssueHits     []string
	DetectHit     bool
	IssueHit      bool
	KeywordScore  float64
	SemanticScore float64
	FinalScore    float64
	// Layer1 means the flaw was located, Layer2 that it was explained.
	Layer1 bool
	Layer2 bool
}

// Score grades playerText against flaw. semantic is the generator-supplied
// score and is clamped to [0,1] before use.
func Score(playerText string, flaw models.Flaw, semantic float64) Breakdown {
	text := strings.ToLower(playerText)
	b := Breakdown{
		DetectHits:    hits(text, flaw.DetectKeywords),
		IssueHits:     hits(text, flaw.IssueKeywords),
		SemanticScore: unit(semantic),
	}
	b.DetectHit = len(b.DetectHits) > 0
	b.IssueHit = len(b.IssueHits) > 0

	if b.DetectHit {
		b.KeywordScore += 0.5
	}
	if b.IssueHit {
		b.KeywordScore += 0.5
	}
	b.KeywordScore = unit(b.KeywordScore)
	b.FinalScore = unit(KeywordWeight*b.KeywordScore + SemanticWeight*b.SemanticScore)

	b.Layer1 = b.DetectHit || b.SemanticScore >= LocateThreshold
	b.Layer2 = b.IssueHit && b.SemanticScore >= ExplainThreshold
	return b
}

// hits returns the keywords that occur in text, which must already be
// lower-cased. Blank keywords never match.
func hits(text string, keywords []string) []string {
	var out []string
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if strings.Contains(text, strings.ToLower(k)) {
			out = append(out, k)
		}
	}
	return out
}

// unit clamps v to [0,1]. NaN becomes 0.
func unit(v float64) float64 {
	if !(v > 0) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
