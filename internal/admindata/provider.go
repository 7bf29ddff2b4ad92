// Package admindata is the shared data layer for admin-only views. A
// snapshot is materialised only after the guard has authorised an admin,
// and is cached per admin for a short TTL.
package admindata

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/ingresounam/ingreso/internal/client"
	"github.com/ingresounam/ingreso/internal/metrics"
	"github.com/ingresounam/ingreso/internal/session"
)

// ErrNotAdmin is returned when a non-admin asks for admin data
var ErrNotAdmin = errors.New("admin data requires the admin role")

// Fetcher produces fresh snapshots
type Fetcher interface {
	Fetch(ctx context.Context, auth client.Auth) (*Snapshot, error)
}

// Provider serves snapshots from the cache, falling back to the fetcher
type Provider struct {
	fetcher Fetcher
	cache   Cache
	ttl     time.Duration
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// NewProvider creates a Provider. A nil cache means a fresh MemoryCache.
func NewProvider(fetcher Fetcher, cache Cache, ttl time.Duration, log zerolog.Logger, m *metrics.Metrics) *Provider {
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Provider{fetcher: fetcher, cache: cache, ttl: ttl, log: log, metrics: m}
}

// Load returns the admin snapshot for user. Cache failures degrade to a fetch.
func (p *Provider) Load(ctx context.Context, user *session.UserRecord, auth client.Auth) (*Snapshot, error) {
	if !user.IsAdmin() {
		return nil, ErrNotAdmin
	}

	snap, ok, err := p.cache.Get(ctx, user.UserID)
	if err != nil {
		p.log.Warn().Err(err).Str("user_id", user.UserID).Msg("Admin data cache read failed")
	}
	if ok {
		p.metrics.RecordAdminCache(true)
		return snap, nil
	}
	p.metrics.RecordAdminCache(false)

	snap, err = p.fetcher.Fetch(ctx, auth)
	if err != nil {
		return nil, err
	}

	if err := p.cache.Set(ctx, user.UserID, snap, p.ttl); err != nil {
		p.log.Warn().Err(err).Str("user_id", user.UserID).Msg("Admin data cache write failed")
	}
	return snap, nil
}

// Invalidate drops the cached snapshot for user
func (p *Provider) Invalidate(ctx context.Context, user *session.UserRecord) {
	if user == nil {
		return
	}
	if err := p.cache.Delete(ctx, user.UserID); err != nil {
		p.log.Warn().Err(err).Str("user_id", user.UserID).Msg("Admin data cache invalidation failed")
	}
}

type dataKey struct{}

// WithData returns a child context carrying snap
func WithData(ctx context.Context, snap *Snapshot) context.Context {
	return context.WithValue(ctx, dataKey{}, snap)
}

// FromContext returns the snapshot provided to ctx
func FromContext(ctx context.Context) (*Snapshot, bool) {
	snap, ok := ctx.Value(dataKey{}).(*Snapshot)
	return snap, ok && snap != nil
}
