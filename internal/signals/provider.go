// Package signals resolves per-user personalization signals (social graph,
// interaction weights, kind affinities) with a TTL cache in front of the
// backing store.
package signals

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"feedhub/internal/cache"
	"feedhub/pkg/types"
)

// Backend recomputes a user's context from durable state.
type Backend interface {
	FetchUserContext(ctx context.Context, userID string) (*types.UserContext, error)
}

// Refresh outcomes reported to metrics.
type RefreshObserver interface {
	ObserveContextRefresh(result string)
}

// Provider serves user contexts cache-first. Expired entries are recomputed
// at most once per user at a time; concurrent callers for the same user share
// the in-flight result. When recomputation fails, a stale value younger than
// the grace window is served instead.
type Provider struct {
	backend  Backend
	cache    *cache.Cache[string, *types.UserContext]
	grace    time.Duration
	flights  singleflight.Group
	observer RefreshObserver
	log      zerolog.Logger
}

// NewProvider creates a Provider. ttl bounds freshness, grace bounds how old
// a stale value may be when the backend is failing.
func NewProvider(backend Backend, ttl, grace time.Duration, log zerolog.Logger) *Provider {
	return &Provider{
		backend: backend,
		cache:   cache.New[string, *types.UserContext](ttl),
		grace:   grace,
		log:     log.With().Str("component", "signals").Logger(),
	}
}

// SetObserver attaches a metrics observer. Optional.
func (p *Provider) SetObserver(o RefreshObserver) {
	p.observer = o
}

// GetContext returns the user's context, recomputing it when expired.
// Returns an error wrapping types.ErrContextUnavailable when recomputation
// fails and no stale value is within the grace window.
func (p *Provider) GetContext(ctx context.Context, userID string) (*types.UserContext, error) {
	if uctx, ok := p.cache.Get(userID); ok {
		return uctx, nil
	}

	// The flight's result is shared by every concurrent caller, so its
	// lifetime must not be tied to whichever caller happened to start it.
	fetchCtx := context.WithoutCancel(ctx)

	v, err, _ := p.flights.Do(userID, func() (interface{}, error) {
		// A concurrent flight may have refreshed the entry between the
		// miss and this execution.
		if uctx, ok := p.cache.Get(userID); ok {
			return uctx, nil
		}

		uctx, err := p.backend.FetchUserContext(fetchCtx, userID)
		if err != nil {
			return p.fallback(userID, err)
		}
		p.cache.Set(userID, uctx)
		p.observe("refreshed")
		return uctx, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.UserContext), nil
}

// Invalidate drops the cached context for a user, forcing recomputation on
// the next request.
func (p *Provider) Invalidate(userID string) {
	p.cache.Delete(userID)
}

// fallback serves a stale value within the grace window; past it the failure
// surfaces as ContextUnavailable wrapping the backend cause.
func (p *Provider) fallback(userID string, cause error) (interface{}, error) {
	if stale, age, ok := p.cache.Peek(userID); ok && age <= p.grace {
		p.log.Warn().Err(cause).Str("user_id", userID).Dur("stale_age", age).
			Msg("context refresh failed, serving stale value")
		p.observe("stale_fallback")
		// The entry is left expired so the next request retries the
		// backend; its age keeps growing toward the grace limit.
		return stale, nil
	}
	p.observe("unavailable")
	return nil, fmt.Errorf("%w for user %s: %v", types.ErrContextUnavailable, userID, cause)
}

func (p *Provider) observe(result string) {
	if p.observer != nil {
		p.observer.ObserveContextRefresh(result)
	}
}
