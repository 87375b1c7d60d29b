package auth

import (
	"context"
	"sync"
	"time"
)

// RevocationStore tracks tokens that must be rejected before their natural
// expiry. Revoke covers a single token by jti; RevokeUser rejects every token
// for userID issued at or before the call, until the given time.
type RevocationStore interface {
	Revoke(ctx context.Context, jti, userID string, expiresAt time.Time) error
	RevokeUser(ctx context.Context, userID string, until time.Time) error
	IsRevoked(ctx context.Context, claims *Claims) (bool, error)
}

type revocationEntry struct {
	ExpiresAt time.Time
	UserID    string
}

type userCutoff struct {
	At    time.Time
	Until time.Time
}

// MemoryRevocationStore keeps revocations in process memory. Entries are
// dropped once the token they cover would have expired anyway.
type MemoryRevocationStore struct {
	mu      sync.RWMutex
	entries map[string]revocationEntry // jti -> entry
	users   map[string]userCutoff
	now     func() time.Time
	done    chan struct{}
}

// NewMemoryRevocationStore creates a store and starts a goroutine that
// removes expired entries every 5 minutes.
func NewMemoryRevocationStore() *MemoryRevocationStore {
	s := &MemoryRevocationStore{
		entries: make(map[string]revocationEntry),
		users:   make(map[string]userCutoff),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

func (s *MemoryRevocationStore) Revoke(_ context.Context, jti, userID string, expiresAt time.Time) error {
	if jti == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[jti] = revocationEntry{ExpiresAt: expiresAt, UserID: userID}
	return nil
}

func (s *MemoryRevocationStore) RevokeUser(_ context.Context, userID string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = userCutoff{At: s.now(), Until: until}
	return nil
}

func (s *MemoryRevocationStore) IsRevoked(_ context.Context, claims *Claims) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.entries[claims.ID]; ok && claims.ID != "" {
		return true, nil
	}
	cut, ok := s.users[claims.Subject]
	if !ok {
		return false, nil
	}
	return issuedNotAfter(claims, cut.At), nil
}

// Count returns the number of individually revoked tokens.
func (s *MemoryRevocationStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close stops the cleanup goroutine. Safe to call more than once.
func (s *MemoryRevocationStore) Close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

func (s *MemoryRevocationStore) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *MemoryRevocationStore) cleanup() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for jti, entry := range s.entries {
		if now.After(entry.ExpiresAt) {
			delete(s.entries, jti)
		}
	}
	for userID, cut := range s.users {
		if now.After(cut.Until) {
			delete(s.users, userID)
		}
	}
}

// issuedNotAfter reports whether the token was issued at or before at.
// Tokens without iat are treated as issued before any cutoff.
func issuedNotAfter(claims *Claims, at time.Time) bool {
	if claims.IssuedAt == nil {
		return true
	}
	return !claims.IssuedAt.Time.After(at.Truncate(time.Second))
}
