package scoring

import (
	"math"
	"strings"
	"time"

	"newsdesk/app/policy"
)

// Weights are the composite score coefficients. They are configuration, not
// constants: two weight forms circulated historically and the four-term form
// below was settled on as canonical, so callers that need the old behavior
// can still construct their own Weights.
type Weights struct {
	Trust   float64
	Recency float64
	Quality float64
	Keyword float64
}

// DefaultWeights returns the canonical four-term weights.
func DefaultWeights() Weights {
	return Weights{Trust: 0.33, Recency: 0.42, Quality: 0.18, Keyword: 0.07}
}

const (
	// KeywordBoostCap bounds the summed keyword bonus before weighting.
	KeywordBoostCap = 0.25

	// DiversityPenalty is the multiplier applied when the candidate's
	// source won admission in the section within the cooldown window.
	// Soft by design: a strong candidate can still win.
	DiversityPenalty = 0.92

	markerPenalty = 0.35

	titleLenNorm   = 90
	snippetLenNorm = 280
)

// lowQualityMarkers flag promotional or non-article content.
var lowQualityMarkers = []string{
	"sponsored",
	"press release",
	"podcast",
	"newsletter",
	"webinar",
	"giveaway",
}

// Input carries everything the scorer needs about one candidate.
type Input struct {
	Title      string
	Snippet    string
	TrustScore int // operator-assigned, 0-100
	Age        time.Duration
	HalfLife   time.Duration
	Boosts     []policy.KeywordBoost
	OnCooldown bool
}

// Score computes the bounded [0,1] composite score.
func (w Weights) Score(in Input) float64 {
	trust := clamp(float64(in.TrustScore)/100, 0, 1)
	recency := Recency(in.Age, in.HalfLife)
	quality := Quality(in.Title, in.Snippet)
	boost := clamp(KeywordBoost(in.Title, in.Snippet, in.Boosts), 0, KeywordBoostCap)

	score := clamp(w.Trust*trust+w.Recency*recency+w.Quality*quality+w.Keyword*boost, 0, 1)

	if in.OnCooldown {
		score *= DiversityPenalty
	}

	return score
}

// Recency is exponential freshness decay: 1.0 at age zero, 0.5 at one
// half-life, monotonically decreasing. Non-positive ages count as fresh.
func Recency(age, halfLife time.Duration) float64 {
	if age <= 0 {
		return 1
	}
	if halfLife <= 0 {
		halfLife = 48 * time.Hour
	}
	return math.Pow(0.5, age.Hours()/halfLife.Hours())
}

// Quality is a length-normalized measure of title and snippet substance,
// penalized when either text contains a low-quality marker.
func Quality(title, snippet string) float64 {
	q := 0.5*clamp(float64(len(title))/titleLenNorm, 0, 1) +
		0.5*clamp(float64(len(snippet))/snippetLenNorm, 0, 1)

	text := strings.ToLower(title + " " + snippet)
	for _, marker := range lowQualityMarkers {
		if strings.Contains(text, marker) {
			q -= markerPenalty
			break
		}
	}

	return clamp(q, 0, 1)
}

// KeywordBoost sums the per-keyword bonuses for keywords found in
// title+snippet, case-insensitive substring match.
func KeywordBoost(title, snippet string, boosts []policy.KeywordBoost) float64 {
	if len(boosts) == 0 {
		return 0
	}

	text := strings.ToLower(title + " " + snippet)
	var total float64
	for _, kb := range boosts {
		if strings.Contains(text, strings.ToLower(kb.Keyword)) {
			total += kb.Boost
		}
	}

	return total
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
