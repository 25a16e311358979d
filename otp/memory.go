package otp

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	code     string
	expires  time.Time
	attempts int
}

// MemoryStore is a process-local Store. Run its sweeper to drop expired
// entries.
type MemoryStore struct {
	mu       sync.Mutex
	codes    map[string]*entry
	verified map[string]time.Time
	// cooldown outlives the code it throttles.
	cooldown map[string]time.Time
	opts     Options
	now      func() time.Time
}

func NewMemoryStore(opts Options) *MemoryStore {
	return &MemoryStore{
		codes:    make(map[string]*entry),
		verified: make(map[string]time.Time),
		cooldown: make(map[string]time.Time),
		opts:     opts.withDefaults(),
		now:      time.Now,
	}
}

func (s *MemoryStore) Issue(ctx context.Context, email, code string) error {
	email = normalizeEmail(email)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if until, ok := s.cooldown[email]; ok && now.Before(until) {
		return ErrTooSoon
	}
	s.cooldown[email] = now.Add(s.opts.ResendInterval)
	s.codes[email] = &entry{
		code:    code,
		expires: now.Add(s.opts.TTL),
	}
	return nil
}

func (s *MemoryStore) Verify(ctx context.Context, email, code string) error {
	email = normalizeEmail(email)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.codes[email]
	if !ok || !now.Before(e.expires) {
		delete(s.codes, email)
		return ErrNotFound
	}
	if !codesEqual(e.code, code) {
		e.attempts++
		if e.attempts >= s.opts.MaxAttempts {
			delete(s.codes, email)
			return ErrTooManyAttempts
		}
		return ErrMismatch
	}

	delete(s.codes, email)
	s.verified[email] = now.Add(s.opts.TTL)
	return nil
}

func (s *MemoryStore) ConsumeVerified(ctx context.Context, email string) (bool, error) {
	email = normalizeEmail(email)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	expires, ok := s.verified[email]
	delete(s.verified, email)
	return ok && now.Before(expires), nil
}

// Sweep removes expired codes, reset marks and cooldowns.
func (s *MemoryStore) Sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, e := range s.codes {
		if !now.Before(e.expires) {
			delete(s.codes, k)
			removed++
		}
	}
	for _, m := range []map[string]time.Time{s.verified, s.cooldown} {
		for k, expires := range m {
			if !now.Before(expires) {
				delete(m, k)
				removed++
			}
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.codes) + len(s.verified) + len(s.cooldown)
}

func (s *MemoryStore) Close() error {
	return nil
}
