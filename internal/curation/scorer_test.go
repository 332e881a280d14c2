package curation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"feedhub/pkg/types"
)

func fixedScorer(w Weights) *Scorer {
	s := NewScorer(w)
	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }
	return s
}

func TestScore_RecencyDecay(t *testing.T) {
	s := fixedScorer(DefaultWeights())
	now := s.now()

	fresh := types.FeedItem{ID: "a", AuthorID: "x", CreatedAt: now}
	halfLife := types.FeedItem{ID: "b", AuthorID: "x", CreatedAt: now.Add(-6 * time.Hour)}
	old := types.FeedItem{ID: "c", AuthorID: "x", CreatedAt: now.Add(-48 * time.Hour)}

	assert.Greater(t, s.Score(fresh, nil), s.Score(halfLife, nil))
	assert.Greater(t, s.Score(halfLife, nil), s.Score(old, nil))

	// At exactly one half-life the recency term is halved.
	assert.InDelta(t, 0.5, s.RecencyScore(halfLife), 1e-9)
	assert.InDelta(t, 1.0, s.RecencyScore(fresh), 1e-9)

	// Clock skew: an item from the future is treated as brand new.
	future := types.FeedItem{ID: "d", AuthorID: "x", CreatedAt: now.Add(time.Hour)}
	assert.InDelta(t, 1.0, s.RecencyScore(future), 1e-9)
}

func TestScore_EngagementLogScaled(t *testing.T) {
	s := fixedScorer(DefaultWeights())
	now := s.now()

	quiet := types.FeedItem{ID: "a", AuthorID: "x", CreatedAt: now, Likes: 10}
	popular := types.FeedItem{ID: "b", AuthorID: "x", CreatedAt: now, Likes: 100}
	viral := types.FeedItem{ID: "c", AuthorID: "x", CreatedAt: now, Likes: 100000}

	dPopular := s.Score(popular, nil) - s.Score(quiet, nil)
	dViral := s.Score(viral, nil) - s.Score(popular, nil)
	assert.Greater(t, dPopular, 0.0)
	assert.Greater(t, dViral, 0.0)
	// 1000x more likes buys less than the first 10x did.
	assert.Less(t, dViral, 10*dPopular)
}

func TestScore_CommentsOutweighLikes(t *testing.T) {
	s := fixedScorer(DefaultWeights())
	now := s.now()

	liked := types.FeedItem{ID: "a", AuthorID: "x", CreatedAt: now, Likes: 30}
	discussed := types.FeedItem{ID: "b", AuthorID: "x", CreatedAt: now, Comments: 30}
	assert.Greater(t, s.Score(discussed, nil), s.Score(liked, nil))
}

func TestScore_SocialWeightLiftsFollowedAuthor(t *testing.T) {
	s := fixedScorer(DefaultWeights())
	now := s.now()

	// Post by B with moderate engagement; post by an unfollowed author with
	// very high raw engagement, both equally fresh.
	postByB := types.FeedItem{ID: "post-b", AuthorID: "B", Kind: types.KindText, CreatedAt: now, Likes: 50}
	viralPost := types.FeedItem{ID: "post-v", AuthorID: "V", Kind: types.KindText, CreatedAt: now, Likes: 5000}

	// User A follows B with interaction weight 5.0.
	userA := &types.UserContext{
		UserID:        "A",
		Follows:       map[string]bool{"B": true},
		AuthorWeights: map[string]float64{"B": 5.0},
	}

	// Anonymous C ranks the viral post first; A's social weight flips it.
	assert.Greater(t, s.Score(viralPost, nil), s.Score(postByB, nil))
	assert.Greater(t, s.Score(postByB, userA), s.Score(viralPost, userA))
}

func TestScore_KindAffinity(t *testing.T) {
	s := fixedScorer(DefaultWeights())
	now := s.now()

	video := types.FeedItem{ID: "a", AuthorID: "x", Kind: types.KindVideo, CreatedAt: now}
	text := types.FeedItem{ID: "b", AuthorID: "x", Kind: types.KindText, CreatedAt: now}

	videoFan := &types.UserContext{
		UserID:       "u",
		KindAffinity: map[types.ContentKind]float64{types.KindVideo: 1.8},
	}

	assert.Equal(t, s.Score(video, nil), s.Score(text, nil))
	assert.Greater(t, s.Score(video, videoFan), s.Score(text, videoFan))
}

func TestDefaultWeights(t *testing.T) {
	w := DefaultWeights()
	assert.Equal(t, 6*time.Hour, w.RecencyHalfLife)
	assert.Equal(t, 1.0, w.SocialBaseline)
	assert.InDelta(t, 1.0, w.Recency+w.Social+w.Affinity+w.Engagement, 1e-9)
}
