package otp

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var opts = Options{TTL: 10 * time.Minute, ResendInterval: time.Minute, MaxAttempts: 5}

// harness drives a Store and moves its clock.
type harness struct {
	store   Store
	advance func(time.Duration)
}

func memoryHarness(t *testing.T) harness {
	s := NewMemoryStore(opts)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	return harness{store: s, advance: func(d time.Duration) { now = now.Add(d) }}
}

func redisHarness(t *testing.T) harness {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStoreWithClient(client, opts)
	t.Cleanup(func() { s.Close() })
	return harness{store: s, advance: mr.FastForward}
}

func TestStores(t *testing.T) {
	backends := []struct {
		name string
		new  func(t *testing.T) harness
	}{
		{"memory", memoryHarness},
		{"redis", redisHarness},
	}

	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("right code verifies once", func(t *testing.T) {
				h := b.new(t)
				require.NoError(t, h.store.Issue(ctx, "Bob@Example.com", "123456"))

				assert.True(t, errors.Is(h.store.Verify(ctx, "bob@example.com", "000000"), ErrMismatch))
				require.NoError(t, h.store.Verify(ctx, "bob@example.com", "123456"))
				assert.True(t, errors.Is(h.store.Verify(ctx, "bob@example.com", "123456"), ErrNotFound))

				ok, err := h.store.ConsumeVerified(ctx, "BOB@example.com")
				require.NoError(t, err)
				assert.True(t, ok)

				ok, err = h.store.ConsumeVerified(ctx, "bob@example.com")
				require.NoError(t, err)
				assert.False(t, ok)
			})

			t.Run("unknown email", func(t *testing.T) {
				h := b.new(t)
				assert.True(t, errors.Is(h.store.Verify(ctx, "nobody@example.com", "123456"), ErrNotFound))
				ok, err := h.store.ConsumeVerified(ctx, "nobody@example.com")
				require.NoError(t, err)
				assert.False(t, ok)
			})

			t.Run("expired code", func(t *testing.T) {
				h := b.new(t)
				require.NoError(t, h.store.Issue(ctx, "a@example.com", "111111"))
				h.advance(opts.TTL + time.Second)
				assert.True(t, errors.Is(h.store.Verify(ctx, "a@example.com", "111111"), ErrNotFound))
			})

			t.Run("resend throttled", func(t *testing.T) {
				h := b.new(t)
				require.NoError(t, h.store.Issue(ctx, "a@example.com", "111111"))
				assert.True(t, errors.Is(h.store.Issue(ctx, "a@example.com", "222222"), ErrTooSoon))

				h.advance(opts.ResendInterval + time.Second)
				require.NoError(t, h.store.Issue(ctx, "a@example.com", "222222"))
				assert.True(t, errors.Is(h.store.Verify(ctx, "a@example.com", "111111"), ErrMismatch))
				require.NoError(t, h.store.Verify(ctx, "a@example.com", "222222"))
			})

			t.Run("burned after max attempts", func(t *testing.T) {
				h := b.new(t)
				require.NoError(t, h.store.Issue(ctx, "a@example.com", "111111"))
				for i := 0; i < opts.MaxAttempts-1; i++ {
					assert.True(t, errors.Is(h.store.Verify(ctx, "a@example.com", "999999"), ErrMismatch))
				}
				assert.True(t, errors.Is(h.store.Verify(ctx, "a@example.com", "999999"), ErrTooManyAttempts))
				assert.True(t, errors.Is(h.store.Verify(ctx, "a@example.com", "111111"), ErrNotFound))
			})

			t.Run("burning a code keeps the resend cooldown", func(t *testing.T) {
				h := b.new(t)
				require.NoError(t, h.store.Issue(ctx, "a@example.com", "111111"))
				for i := 0; i < opts.MaxAttempts; i++ {
					_ = h.store.Verify(ctx, "a@example.com", "999999")
				}
				assert.True(t, errors.Is(h.store.Issue(ctx, "a@example.com", "222222"), ErrTooSoon))

				h.advance(opts.ResendInterval + time.Second)
				require.NoError(t, h.store.Issue(ctx, "a@example.com", "222222"))
			})

			t.Run("verifying a code keeps the resend cooldown", func(t *testing.T) {
				h := b.new(t)
				require.NoError(t, h.store.Issue(ctx, "a@example.com", "111111"))
				require.NoError(t, h.store.Verify(ctx, "a@example.com", "111111"))
				assert.True(t, errors.Is(h.store.Issue(ctx, "a@example.com", "222222"), ErrTooSoon))
			})

			t.Run("reset mark expires", func(t *testing.T) {
				h := b.new(t)
				require.NoError(t, h.store.Issue(ctx, "a@example.com", "111111"))
				require.NoError(t, h.store.Verify(ctx, "a@example.com", "111111"))
				h.advance(opts.TTL + time.Second)
				ok, err := h.store.ConsumeVerified(ctx, "a@example.com")
				require.NoError(t, err)
				assert.False(t, ok)
			})
		})
	}
}

func TestMemorySweep(t *testing.T) {
	h := memoryHarness(t)
	s := h.store.(*MemoryStore)
	ctx := context.Background()

	require.NoError(t, s.Issue(ctx, "a@example.com", "111111"))
	require.NoError(t, s.Issue(ctx, "b@example.com", "222222"))
	require.NoError(t, s.Verify(ctx, "b@example.com", "222222"))
	// a's code, b's reset mark and both cooldowns.
	assert.Equal(t, 4, s.Len())

	assert.Equal(t, 0, s.Sweep())
	h.advance(opts.ResendInterval + time.Second)
	assert.Equal(t, 2, s.Sweep())
	h.advance(opts.TTL)
	assert.Equal(t, 2, s.Sweep())
	assert.Equal(t, 0, s.Len())
}

func TestMemoryRunStopsWithContext(t *testing.T) {
	s := NewMemoryStore(opts)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestGenerateCode(t *testing.T) {
	pattern := regexp.MustCompile(`^\d{6}$`)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		assert.Regexp(t, pattern, code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 1)
}

func TestRedisAttemptOnExpiredCode(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStoreWithClient(client, opts)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	_, err := s.countAttempt(ctx, codeKey("gone@example.com"))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, mr.Exists(codeKey("gone@example.com")))

	require.NoError(t, s.Issue(ctx, "a@example.com", "111111"))
	attempts, err := s.countAttempt(ctx, codeKey("a@example.com"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), attempts)
	assert.Greater(t, mr.TTL(codeKey("a@example.com")), time.Duration(0))
}
