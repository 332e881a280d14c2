package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsValidUserID(t *testing.T) {
	valid := []string{"alice", "user_42", "a", "U-1", "x9y8z7"}
	for _, id := range valid {
		assert.True(t, IsValidUserID(id), "expected valid: %q", id)
	}

	invalid := []string{"", "user with spaces", "user@host", "日本語", string(make([]byte, 51))}
	for _, id := range invalid {
		assert.False(t, IsValidUserID(id), "expected invalid: %q", id)
	}
}

func TestCurationParams_Validate(t *testing.T) {
	base := CurationParams{
		UserID:  "alice",
		Variant: VariantHome,
		Kinds:   []ContentKind{KindText, KindImage},
	}
	assert.NoError(t, base.Validate())

	cases := []struct {
		name   string
		mutate func(*CurationParams)
		want   error
	}{
		{"bad variant", func(p *CurationParams) { p.Variant = "spicy" }, ErrInvalidVariant},
		{"bad kind", func(p *CurationParams) { p.Kinds = []ContentKind{"hologram"} }, ErrInvalidKind},
		{"diversity below range", func(p *CurationParams) { p.DiversityFactor = -0.1 }, ErrInvalidDiversity},
		{"diversity above range", func(p *CurationParams) { p.DiversityFactor = 1.1 }, ErrInvalidDiversity},
		{"bad user", func(p *CurationParams) { p.UserID = "no spaces" }, ErrInvalidUserID},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := base
			tc.mutate(&p)
			assert.ErrorIs(t, p.Validate(), tc.want)
		})
	}

	// Anonymous queries are allowed.
	anon := base
	anon.UserID = ""
	assert.NoError(t, anon.Validate())
}

func TestCurationParams_WantsKind(t *testing.T) {
	all := CurationParams{}
	assert.True(t, all.WantsKind(KindPoll))

	only := CurationParams{Kinds: []ContentKind{KindText}}
	assert.True(t, only.WantsKind(KindText))
	assert.False(t, only.WantsKind(KindVideo))
}

func TestInteractionEvent_Validate(t *testing.T) {
	ok := InteractionEvent{UserID: "alice", ItemID: "item-1", Action: ActionLike, CreatedAt: time.Now()}
	assert.NoError(t, ok.Validate())

	comment := ok
	comment.Action = ActionComment
	comment.Body = "nice post"
	assert.NoError(t, comment.Validate())

	assert.Error(t, InteractionEvent{UserID: "alice", ItemID: "i", Action: "boost"}.Validate())
	assert.Error(t, InteractionEvent{UserID: "alice", Action: ActionLike}.Validate())
	assert.Error(t, InteractionEvent{UserID: "alice", ItemID: "i", Action: ActionComment}.Validate())
	assert.Error(t, InteractionEvent{UserID: "alice", ItemID: "i", Action: ActionLike, Body: "smuggled"}.Validate())
}

func TestUserContext_NilSafety(t *testing.T) {
	var ctx *UserContext
	assert.False(t, ctx.FollowsAuthor("bob"))
	assert.Equal(t, 1.0, ctx.AffinityFor(KindText))

	ctx = &UserContext{
		UserID:       "alice",
		Follows:      map[string]bool{"bob": true},
		KindAffinity: map[ContentKind]float64{KindVideo: 1.4},
	}
	assert.True(t, ctx.FollowsAuthor("bob"))
	assert.False(t, ctx.FollowsAuthor("carol"))
	assert.Equal(t, 1.4, ctx.AffinityFor(KindVideo))
	assert.Equal(t, 1.0, ctx.AffinityFor(KindText))
}
