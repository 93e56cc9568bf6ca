// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package passkey

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/jeremyhahn/go-passkey/pkg/metrics"
)

// MemoryChallengeStore is an in-memory implementation of ChallengeStore.
// Challenges are short-lived, so in-memory storage is acceptable even in
// production: a restart invalidates in-flight ceremonies, which is safe.
type MemoryChallengeStore struct {
	mu      sync.Mutex
	pending map[string]*PendingChallenge
	ttl     time.Duration
	size    int
	now     func() time.Time
}

// NewMemoryChallengeStore creates a challenge store with the default TTL
// and challenge size.
func NewMemoryChallengeStore() *MemoryChallengeStore {
	return NewMemoryChallengeStoreWithTTL(DefaultChallengeTTL)
}

// NewMemoryChallengeStoreWithTTL creates a challenge store with a custom TTL.
func NewMemoryChallengeStoreWithTTL(ttl time.Duration) *MemoryChallengeStore {
	return &MemoryChallengeStore{
		pending: make(map[string]*PendingChallenge),
		ttl:     ttl,
		size:    DefaultChallengeSize,
		now:     time.Now,
	}
}

// SetChallengeSize overrides the number of random bytes per challenge.
// Values below MinChallengeSize are ignored.
func (s *MemoryChallengeStore) SetChallengeSize(size int) {
	if size < MinChallengeSize {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.size = size
}

// Issue generates a fresh random challenge for the user, superseding any
// pending challenge, and returns the challenge bytes.
func (s *MemoryChallengeStore) Issue(ctx context.Context, userID string, kind CeremonyKind) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	challenge := make([]byte, s.size)
	if _, err := rand.Read(challenge); err != nil {
		return nil, WrapError("issue challenge", err)
	}

	s.pending[userID] = &PendingChallenge{
		UserID:    userID,
		Challenge: challenge,
		Kind:      kind,
		IssuedAt:  s.now(),
	}
	s.publishPending()

	return append([]byte(nil), challenge...), nil
}

// Consume removes and returns the pending challenge for the user.
// The entry is deleted whenever it is found, so a challenge can never
// satisfy two finish calls.
func (s *MemoryChallengeStore) Consume(ctx context.Context, userID string, kind CeremonyKind) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.pending[userID]
	if !ok {
		return nil, ErrNoChallenge
	}
	delete(s.pending, userID)
	s.publishPending()

	if entry.Kind != kind {
		return nil, ErrNoChallenge
	}
	if s.now().Sub(entry.IssuedAt) > s.ttl {
		return nil, ErrChallengeExpired
	}

	return entry.Challenge, nil
}

// Cleanup removes expired challenges and returns the count removed.
func (s *MemoryChallengeStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for userID, entry := range s.pending {
		if now.Sub(entry.IssuedAt) > s.ttl {
			delete(s.pending, userID)
			removed++
		}
	}
	s.publishPending()
	return removed
}

// StartCleanupRoutine starts a background goroutine that periodically
// sweeps expired challenges. Call the returned cancel function to stop it.
func (s *MemoryChallengeStore) StartCleanupRoutine(ctx context.Context, interval time.Duration) context.CancelFunc {
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Cleanup()
			}
		}
	}()

	return cancel
}

// Count returns the number of pending challenges.
func (s *MemoryChallengeStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Clear removes all pending challenges.
func (s *MemoryChallengeStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = make(map[string]*PendingChallenge)
	s.publishPending()
}

// publishPending reflects the pending count into the metrics gauge.
// Caller holds the mutex.
func (s *MemoryChallengeStore) publishPending() {
	metrics.SetPendingChallenges(float64(len(s.pending)))
}
