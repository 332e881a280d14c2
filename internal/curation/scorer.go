package curation

import (
	"math"
	"time"

	"feedhub/pkg/types"
)

// Weights are the tunable coefficients of the composite relevance score.
// The source signals have no calibrated values; these are configuration,
// not constants, and ship with defaults favoring recency and social signal.
type Weights struct {
	Recency    float64
	Social     float64
	Affinity   float64
	Engagement float64

	// RecencyHalfLife is the age at which the recency term halves.
	RecencyHalfLife time.Duration

	// SocialBaseline is the social term for authors the viewer does not
	// follow. Followed authors contribute their interaction weight instead.
	SocialBaseline float64
}

// DefaultWeights returns the shipped coefficients.
func DefaultWeights() Weights {
	return Weights{
		Recency:         0.35,
		Social:          0.30,
		Affinity:        0.15,
		Engagement:      0.20,
		RecencyHalfLife: 6 * time.Hour,
		SocialBaseline:  1.0,
	}
}

// Scorer computes composite relevance scores.
type Scorer struct {
	w   Weights
	now func() time.Time
}

// NewScorer creates a Scorer with the given weights.
func NewScorer(w Weights) *Scorer {
	return &Scorer{w: w, now: time.Now}
}

// Score returns the composite relevance of item for the viewer described by
// uctx. A nil uctx scores every author at the baseline, which is the
// non-personalized (anonymous) ranking.
//
// score = Wr*recency + Ws*social + Wa*affinity + We*log1p(engagement)
//
// Engagement is log-scaled so viral outliers cannot dominate the sum.
func (s *Scorer) Score(item types.FeedItem, uctx *types.UserContext) float64 {
	social := s.w.SocialBaseline
	if uctx.FollowsAuthor(item.AuthorID) {
		if w, ok := uctx.AuthorWeights[item.AuthorID]; ok {
			social = w
		}
	}
	return s.w.Recency*s.recency(item) +
		s.w.Social*social +
		s.w.Affinity*uctx.AffinityFor(item.Kind) +
		s.w.Engagement*engagement(item)
}

// RecencyScore ranks by age alone. Used when personalization signals are
// unavailable and the feed degrades to a recency ordering.
func (s *Scorer) RecencyScore(item types.FeedItem) float64 {
	return s.recency(item)
}

func (s *Scorer) recency(item types.FeedItem) float64 {
	age := s.now().Sub(item.CreatedAt)
	if age < 0 {
		age = 0
	}
	return math.Exp2(-age.Hours() / s.w.RecencyHalfLife.Hours())
}

// engagement folds the counters into one log-scaled magnitude. Comments and
// shares weigh more than likes.
func engagement(item types.FeedItem) float64 {
	raw := float64(item.Likes) + 2*float64(item.Comments) + 3*float64(item.Shares)
	if raw < 0 {
		raw = 0
	}
	return math.Log1p(raw)
}
