package admindata

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ingresounam/ingreso/internal/client"
	"github.com/ingresounam/ingreso/internal/metrics"
	"github.com/ingresounam/ingreso/internal/session"
)

var (
	admin   = &session.UserRecord{UserID: "a1", Role: session.RoleAdmin}
	student = &session.UserRecord{UserID: "u1", Role: session.RoleStudent}
)

// fakeAdminAPI serves fixed listings, optionally failing one endpoint
type fakeAdminAPI struct {
	failOn string
	calls  atomic.Int32
}

func (f *fakeAdminAPI) fail(name string) error {
	f.calls.Add(1)
	if f.failOn == name {
		return &client.StatusError{Op: name, StatusCode: 500}
	}
	return nil
}

func (f *fakeAdminAPI) AdminStats(ctx context.Context, auth client.Auth) (*client.Stats, error) {
	if err := f.fail("stats"); err != nil {
		return nil, err
	}
	return &client.Stats{TotalUsers: 2}, nil
}

func (f *fakeAdminAPI) AdminUsers(ctx context.Context, auth client.Auth) ([]client.User, error) {
	if err := f.fail("users"); err != nil {
		return nil, err
	}
	return []client.User{{UserID: "a1"}, {UserID: "u1"}}, nil
}

func (f *fakeAdminAPI) AdminQuestions(ctx context.Context, auth client.Auth) ([]client.Question, error) {
	if err := f.fail("questions"); err != nil {
		return nil, err
	}
	return []client.Question{{ID: "q1"}}, nil
}

func (f *fakeAdminAPI) AdminSimulators(ctx context.Context, auth client.Auth) ([]client.Simulator, error) {
	if err := f.fail("simulators"); err != nil {
		return nil, err
	}
	return []client.Simulator{{ID: "s1"}}, nil
}

func (f *fakeAdminAPI) AdminFeedback(ctx context.Context, auth client.Auth) ([]client.Feedback, error) {
	if err := f.fail("feedback"); err != nil {
		return nil, err
	}
	return []client.Feedback{{ID: "f1", Status: "pending"}, {ID: "f2", Status: "resolved"}}, nil
}

func TestSource_Fetch(t *testing.T) {
	api := &fakeAdminAPI{}
	snap, err := NewSource(api).Fetch(context.Background(), client.Auth{Token: "jwt"})
	require.NoError(t, err)

	assert.EqualValues(t, 5, api.calls.Load())
	assert.EqualValues(t, 2, snap.Stats.TotalUsers)
	assert.Len(t, snap.Users, 2)
	assert.Len(t, snap.Questions, 1)
	assert.Len(t, snap.Simulators, 1)
	assert.Equal(t, 1, snap.PendingFeedback())
	assert.False(t, snap.FetchedAt.IsZero())
}

func TestSource_FetchFailure(t *testing.T) {
	_, err := NewSource(&fakeAdminAPI{failOn: "questions"}).Fetch(context.Background(), client.Auth{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "questions")

	var statusErr *client.StatusError
	assert.True(t, errors.As(err, &statusErr))
}

type countingFetcher struct {
	n   int
	err error
}

func (c *countingFetcher) Fetch(ctx context.Context, auth client.Auth) (*Snapshot, error) {
	c.n++
	if c.err != nil {
		return nil, c.err
	}
	return &Snapshot{FetchedAt: time.Now()}, nil
}

func TestProvider_CachesPerAdmin(t *testing.T) {
	_, m := metrics.NewRegistry()
	fetcher := &countingFetcher{}
	p := NewProvider(fetcher, nil, time.Minute, zerolog.Nop(), m)
	ctx := context.Background()

	first, err := p.Load(ctx, admin, client.Auth{})
	require.NoError(t, err)
	second, err := p.Load(ctx, admin, client.Auth{})
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, fetcher.n)

	p.Invalidate(ctx, admin)
	_, err = p.Load(ctx, admin, client.Auth{})
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.n)
}

func TestProvider_RejectsNonAdmin(t *testing.T) {
	fetcher := &countingFetcher{}
	p := NewProvider(fetcher, nil, time.Minute, zerolog.Nop(), nil)

	_, err := p.Load(context.Background(), student, client.Auth{})
	assert.ErrorIs(t, err, ErrNotAdmin)

	_, err = p.Load(context.Background(), nil, client.Auth{})
	assert.ErrorIs(t, err, ErrNotAdmin)
	assert.Zero(t, fetcher.n, "nothing is fetched for non-admins")
}

func TestProvider_FetchErrorIsNotCached(t *testing.T) {
	fetcher := &countingFetcher{err: errors.New("backend down")}
	p := NewProvider(fetcher, nil, time.Minute, zerolog.Nop(), nil)

	_, err := p.Load(context.Background(), admin, client.Auth{})
	require.Error(t, err)

	fetcher.err = nil
	_, err = p.Load(context.Background(), admin, client.Auth{})
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.n)
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) (*Snapshot, bool, error) {
	return nil, false, errors.New("connection refused")
}
func (brokenCache) Set(context.Context, string, *Snapshot, time.Duration) error {
	return errors.New("connection refused")
}
func (brokenCache) Delete(context.Context, string) error { return errors.New("connection refused") }

func TestProvider_CacheFailureDegradesToFetch(t *testing.T) {
	fetcher := &countingFetcher{}
	p := NewProvider(fetcher, brokenCache{}, time.Minute, zerolog.Nop(), nil)

	snap, err := p.Load(context.Background(), admin, client.Auth{})
	require.NoError(t, err)
	assert.NotNil(t, snap)
	p.Invalidate(context.Background(), admin)
}

func TestMemoryCache_Expiry(t *testing.T) {
	cache := NewMemoryCache()
	now := time.Now()
	cache.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "a1", &Snapshot{}, 30*time.Second))

	_, ok, _ := cache.Get(ctx, "a1")
	assert.True(t, ok)

	now = now.Add(30 * time.Second)
	_, ok, _ = cache.Get(ctx, "a1")
	assert.False(t, ok)
}

func TestContextCarriesSnapshot(t *testing.T) {
	snap := &Snapshot{}
	got, ok := FromContext(WithData(context.Background(), snap))
	require.True(t, ok)
	assert.Same(t, snap, got)

	_, ok = FromContext(context.Background())
	assert.False(t, ok)
}

func TestRedisCache_Integration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDRESS")
	if addr == "" {
		t.Skip("REDIS_ADDRESS not set")
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	cache := NewRedisCache(rdb)
	ctx := context.Background()
	key := "test-" + time.Now().Format("150405.000000")

	_, ok, err := cache.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, key, &Snapshot{Stats: &client.Stats{TotalUsers: 7}}, time.Minute))

	got, ok, err := cache.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 7, got.Stats.TotalUsers)

	require.NoError(t, cache.Delete(ctx, key))
	_, ok, err = cache.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}
