package refdata

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flightops/internal/apperr"
)

func TestCatalogResolve(t *testing.T) {
	c := NewDefaultCatalog()
	ctx := context.Background()

	a, err := c.ResolveAerodrome(ctx, " mmun ")
	require.NoError(t, err)
	assert.Equal(t, "Cancun International", a.Name)
	assert.InDelta(t, 21.036667, a.Position().Latitude, 1e-5)

	_, err = c.ResolveAerodrome(ctx, "KJFK")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	ac, err := c.ResolveAircraft(ctx, "xa-chr")
	require.NoError(t, err)
	assert.Equal(t, "3280.5", ac.TotalHours.String())

	_, err = c.ResolveAircraft(ctx, "N12345")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestAerodromeDecimalFallback(t *testing.T) {
	a := Aerodrome{ICAO: "MMXX", Latitude: 19.5, Longitude: -99.25}
	p := a.Position()
	assert.Equal(t, 19.5, p.Latitude)
	assert.Equal(t, -99.25, p.Longitude)

	bad := Aerodrome{ICAO: "MMXX", Coordinates: "garbage"}
	assert.True(t, bad.Position().IsZero())
}

func TestSunsetMinute(t *testing.T) {
	c := NewDefaultCatalog()

	m, ok := c.SunsetMinute("MMMX")
	require.True(t, ok)
	assert.Equal(t, 19*60+5, m)

	_, ok = c.SunsetMinute("ZZZZ")
	assert.False(t, ok)

	_, err := c.SeedAerodrome(context.Background(), Aerodrome{ICAO: "MMBT", Name: "Huatulco", Sunset: "late"})
	require.NoError(t, err)
	_, ok = c.SunsetMinute("MMBT")
	assert.False(t, ok)
}

func TestSeedIsIdempotent(t *testing.T) {
	c := NewCatalog()
	ctx := context.Background()
	ds := DefaultDataset()

	res, err := Seed(ctx, c, ds, logrus.New())
	require.NoError(t, err)
	assert.Equal(t, len(ds.Aerodromes), res.Aerodromes)
	assert.Equal(t, len(ds.Aircraft), res.Aircraft)

	c.AdjustHours("XA-CHR", decimal.RequireFromString("2.47"))

	res, err = Seed(ctx, c, ds, nil)
	require.NoError(t, err)
	assert.Zero(t, res.Aerodromes)
	assert.Zero(t, res.Aircraft)

	ac, err := c.ResolveAircraft(ctx, "XA-CHR")
	require.NoError(t, err)
	assert.Equal(t, "3282.97", ac.TotalHours.String(), "re-seeding must not reset airframe hours")
}

type failingSeeder struct{ *Catalog }

func (f failingSeeder) SeedAircraft(context.Context, Aircraft) (bool, error) {
	return false, errors.New("disk full")
}

func TestSeedPropagatesErrors(t *testing.T) {
	_, err := Seed(context.Background(), failingSeeder{NewCatalog()}, DefaultDataset(), nil)
	assert.ErrorContains(t, err, "seed aircraft XA-LRJ")
}

type fakeRedis struct {
	mu      sync.Mutex
	data    map[string]string
	getErr  error
	setHits int
}

func (f *fakeRedis) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return "", f.getErr
	}
	v, ok := f.data[key]
	if !ok {
		return "", ErrCacheMiss
	}
	return v, nil
}

func (f *fakeRedis) Set(_ context.Context, key, value string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	f.setHits++
	return nil
}

type countingResolver struct {
	next  AerodromeResolver
	calls atomic.Int32
}

func (c *countingResolver) ResolveAerodrome(ctx context.Context, icao string) (Aerodrome, error) {
	c.calls.Add(1)
	return c.next.ResolveAerodrome(ctx, icao)
}

func TestCachedAerodromes(t *testing.T) {
	ctx := context.Background()
	rdb := &fakeRedis{data: map[string]string{}}
	inner := &countingResolver{next: NewDefaultCatalog()}
	cache := NewCachedAerodromes(inner, rdb, time.Hour, nil)

	a, err := cache.ResolveAerodrome(ctx, "mmgl")
	require.NoError(t, err)
	assert.Equal(t, "MMGL", a.ICAO)

	a, err = cache.ResolveAerodrome(ctx, "MMGL")
	require.NoError(t, err)
	assert.Equal(t, "Guadalajara International", a.Name)
	assert.Equal(t, int32(1), inner.calls.Load())
	assert.Contains(t, rdb.data, "flightops:aerodrome:MMGL")

	_, err = cache.ResolveAerodrome(ctx, "XXXX")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	assert.Equal(t, 1, rdb.setHits, "misses must not be cached")
}

func TestCachedAerodromes_CacheDown(t *testing.T) {
	rdb := &fakeRedis{data: map[string]string{}, getErr: errors.New("connection refused")}
	cache := NewCachedAerodromes(NewDefaultCatalog(), rdb, time.Minute, logrus.New())

	a, err := cache.ResolveAerodrome(context.Background(), "MMAA")
	require.NoError(t, err)
	assert.Equal(t, "MMAA", a.ICAO)
}

// gatedResolver blocks lookups until the gate closes and records the context state it saw.
type gatedResolver struct {
	next    AerodromeResolver
	entered chan struct{}
	gate    chan struct{}
	once    sync.Once
	mu      sync.Mutex
	ctxErrs []error
}

func (g *gatedResolver) ResolveAerodrome(ctx context.Context, icao string) (Aerodrome, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.gate
	g.mu.Lock()
	g.ctxErrs = append(g.ctxErrs, ctx.Err())
	g.mu.Unlock()
	return g.next.ResolveAerodrome(ctx, icao)
}

func TestCachedAerodromes_CancelledCallerDoesNotFailOthers(t *testing.T) {
	inner := &gatedResolver{next: NewDefaultCatalog(), entered: make(chan struct{}), gate: make(chan struct{})}
	rdb := &fakeRedis{data: map[string]string{}}
	cache := NewCachedAerodromes(inner, rdb, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := cache.ResolveAerodrome(ctx, "MMPR")
		firstErr <- err
	}()
	<-inner.entered

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	second := make(chan error, 1)
	go func() {
		a, err := cache.ResolveAerodrome(context.Background(), "MMPR")
		if err == nil && a.ICAO != "MMPR" {
			err = errors.New("wrong aerodrome " + a.ICAO)
		}
		second <- err
	}()
	close(inner.gate)
	require.NoError(t, <-second)

	inner.mu.Lock()
	defer inner.mu.Unlock()
	for _, err := range inner.ctxErrs {
		assert.NoError(t, err, "shared lookups must not inherit a caller's cancellation")
	}
	rdb.mu.Lock()
	defer rdb.mu.Unlock()
	assert.Contains(t, rdb.data, "flightops:aerodrome:MMPR")
}
