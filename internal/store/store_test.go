package store

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yudee-19/video-downloader/internal/logger"
	"github.com/Yudee-19/video-downloader/internal/metrics"
)

type failingBackend struct {
	err error
}

func (f *failingBackend) Name() string { return "failing" }
func (f *failingBackend) Set(context.Context, string, []byte, time.Duration) error {
	return f.err
}
func (f *failingBackend) Get(context.Context, string) ([]byte, error) { return nil, f.err }
func (f *failingBackend) Delete(context.Context, string) error        { return f.err }
func (f *failingBackend) Ping(context.Context) error                  { return f.err }
func (f *failingBackend) Close() error                                { return nil }

type record struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func TestMemoryBackend_Expiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "download:a", []byte(`{}`), time.Minute))
	_, err := m.Get(ctx, "download:a")
	require.NoError(t, err)

	now = now.Add(time.Minute)
	_, err = m.Get(ctx, "download:a")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, m.Len())
}

func TestMemoryBackend_Sweep(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend()
	now := time.Now()
	m.now = func() time.Time { return now }

	m.Set(ctx, "a", []byte("1"), time.Second)
	m.Set(ctx, "b", []byte("2"), time.Hour)
	now = now.Add(2 * time.Second)

	assert.Equal(t, 1, m.Sweep())
	assert.Equal(t, 1, m.Len())
}

func TestStatusStore_MemoryOnly(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	assert.Equal(t, "memory", s.Backend())

	require.NoError(t, s.Put(ctx, "download:1", record{ID: "1", Status: "queued"}))

	var got record
	require.NoError(t, s.Get(ctx, "download:1", &got))
	assert.Equal(t, "queued", got.Status)

	require.NoError(t, s.Delete(ctx, "download:1"))
	assert.ErrorIs(t, s.Get(ctx, "download:1", &got), ErrNotFound)
}

func TestStatusStore_FallsBackWhenPrimaryFails(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	m := metrics.New()
	s := New(&failingBackend{err: errors.New("connection refused")},
		WithLogger(logger.New(&buf, logger.LevelInfo, "store")),
		WithMetrics(m))

	require.NoError(t, s.Put(ctx, "batch:b1", record{ID: "b1"}))

	var got record
	require.NoError(t, s.Get(ctx, "batch:b1", &got))
	assert.Equal(t, "b1", got.ID)
	assert.Contains(t, buf.String(), "in-memory fallback")
}

// flakyBackend is a memory backend that can be taken down.
type flakyBackend struct {
	*MemoryBackend
	down bool
}

func (f *flakyBackend) Name() string { return "flaky" }

func (f *flakyBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if f.down {
		return errors.New("connection refused")
	}
	return f.MemoryBackend.Set(ctx, key, value, ttl)
}

func (f *flakyBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if f.down {
		return nil, errors.New("connection refused")
	}
	return f.MemoryBackend.Get(ctx, key)
}

func TestStatusStore_NewerFallbackWinsAfterRecovery(t *testing.T) {
	ctx := context.Background()
	primary := &flakyBackend{MemoryBackend: NewMemoryBackend()}
	s := New(primary, WithLogger(logger.New(&bytes.Buffer{}, logger.LevelInfo, "store")))

	require.NoError(t, s.Put(ctx, "download:1", record{ID: "1", Status: "downloading"}))

	primary.down = true
	require.NoError(t, s.Put(ctx, "download:1", record{ID: "1", Status: "completed"}))

	var got record
	require.NoError(t, s.Get(ctx, "download:1", &got))
	assert.Equal(t, "completed", got.Status)

	primary.down = false
	got = record{}
	require.NoError(t, s.Get(ctx, "download:1", &got))
	assert.Equal(t, "completed", got.Status)

	// copied back to the primary and dropped from the fallback
	raw, err := primary.MemoryBackend.Get(ctx, "download:1")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "completed")
	_, err = s.fallback.Get(ctx, "download:1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStatusStore_PrimaryWriteSupersedesFallback(t *testing.T) {
	ctx := context.Background()
	primary := &flakyBackend{MemoryBackend: NewMemoryBackend(), down: true}
	s := New(primary, WithLogger(logger.New(&bytes.Buffer{}, logger.LevelInfo, "store")))

	require.NoError(t, s.Put(ctx, "download:1", record{ID: "1", Status: "downloading"}))
	primary.down = false
	require.NoError(t, s.Put(ctx, "download:1", record{ID: "1", Status: "completed"}))

	var got record
	require.NoError(t, s.Get(ctx, "download:1", &got))
	assert.Equal(t, "completed", got.Status)
	assert.Equal(t, 0, s.fallback.Len())
}

func TestStatusStore_UnknownKeyWhilePrimaryDown(t *testing.T) {
	primary := &flakyBackend{MemoryBackend: NewMemoryBackend(), down: true}
	s := New(primary, WithLogger(logger.New(&bytes.Buffer{}, logger.LevelInfo, "store")))

	var got record
	assert.ErrorIs(t, s.Get(context.Background(), "download:missing", &got), ErrNotFound)
}

func TestStatusStore_ForwardCompatibleDecode(t *testing.T) {
	ctx := context.Background()
	primary := NewMemoryBackend()
	s := New(primary)

	require.NoError(t, primary.Set(ctx, "download:x", []byte(`{"id":"x","extra":{"nested":true}}`), time.Hour))

	var got record
	require.NoError(t, s.Get(ctx, "download:x", &got))
	assert.Equal(t, "x", got.ID)
	assert.Empty(t, got.Status)
}

func TestStatusStore_Purge(t *testing.T) {
	ctx := context.Background()
	s := New(&failingBackend{err: errors.New("down")}, WithTTL(time.Millisecond))

	require.NoError(t, s.Put(ctx, "download:old", record{ID: "old"}))
	time.Sleep(5 * time.Millisecond)

	n, err := s.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRedisBackend(t *testing.T) {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379/15"
	}
	ctx := context.Background()

	client, err := NewRedisClient(ctx, redisURL, time.Second)
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer client.Close()

	b := NewRedisBackend(client)
	key := "download:test-" + time.Now().Format("150405.000000")
	defer b.Delete(ctx, key)

	require.NoError(t, b.Set(ctx, key, []byte(`{"id":"r"}`), time.Minute))
	got, err := b.Get(ctx, key)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"r"}`, string(got))

	ttl, err := client.TTL(ctx, key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 50*time.Second)

	require.NoError(t, b.Delete(ctx, key))
	_, err = b.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresBackend(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	ctx := context.Background()

	db, err := OpenPostgres(ctx, dsn)
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	b, err := NewPostgresBackend(ctx, db)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.Set(ctx, "batch:pg", []byte(`{"id":"pg"}`), time.Minute))
	got, err := b.Get(ctx, "batch:pg")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"pg"}`, string(got))

	require.NoError(t, b.Set(ctx, "batch:gone", []byte(`{}`), time.Millisecond))
	time.Sleep(10 * time.Millisecond)
	_, err = b.Get(ctx, "batch:gone")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = b.PurgeExpired(ctx)
	require.NoError(t, err)
	require.NoError(t, b.Delete(ctx, "batch:pg"))
}
