package types

import (
	"errors"
	"regexp"
)

var (
	ErrInvalidUserID    = errors.New("user ID must be 1-50 characters, alphanumeric plus underscore/hyphen")
	ErrInvalidKind      = errors.New("unknown content kind")
	ErrInvalidVariant   = errors.New("unknown feed variant")
	ErrInvalidDiversity = errors.New("diversity factor must be in [0,1]")
	ErrInvalidAction    = errors.New("unknown interaction action")
)

var userIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,50}$`)

// IsValidUserID reports whether the ID matches the accepted identifier format.
func IsValidUserID(id string) bool {
	return userIDPattern.MatchString(id)
}

// IsValidKind reports whether k is one of the closed content kinds.
func IsValidKind(k ContentKind) bool {
	switch k {
	case KindText, KindImage, KindVideo, KindPoll, KindEphemeral:
		return true
	}
	return false
}

// IsValidVariant reports whether v is a known feed variant.
func IsValidVariant(v FeedVariant) bool {
	switch v {
	case VariantHome, VariantTrending, VariantFollowing:
		return true
	}
	return false
}

// IsValidAction reports whether a is an accepted interaction action.
func IsValidAction(a string) bool {
	switch a {
	case ActionLike, ActionUnlike, ActionComment, ActionShare, ActionBookmark:
		return true
	}
	return false
}

// Validate checks the params against the accepted domains.
func (p CurationParams) Validate() error {
	if p.UserID != "" && !IsValidUserID(p.UserID) {
		return ErrInvalidUserID
	}
	if !IsValidVariant(p.Variant) {
		return ErrInvalidVariant
	}
	for _, k := range p.Kinds {
		if !IsValidKind(k) {
			return ErrInvalidKind
		}
	}
	if p.DiversityFactor < 0 || p.DiversityFactor > 1 {
		return ErrInvalidDiversity
	}
	return nil
}

// Validate checks the event's shape before persistence. Comment bodies are
// capped at 4KB; other actions must not carry a body.
func (e InteractionEvent) Validate() error {
	if !IsValidUserID(e.UserID) {
		return ErrInvalidUserID
	}
	if e.ItemID == "" {
		return errors.New("item ID required")
	}
	if !IsValidAction(e.Action) {
		return ErrInvalidAction
	}
	if e.Action == ActionComment && e.Body == "" {
		return errors.New("comment body required")
	}
	if e.Action != ActionComment && e.Body != "" {
		return errors.New("body only allowed on comments")
	}
	if len(e.Body) > 4096 {
		return errors.New("comment body exceeds 4KB limit")
	}
	return nil
}
