package facebook

import (
	"sync"
	"time"

	"fellis.eu/internal/common"
)

const stateTokenSize = 16

// StateStore issues single-use CSRF state tokens for the OAuth redirect
// dance. Tokens expire after ttl; expired entries are swept opportunistically
// whenever a new token is issued.
type StateStore struct {
	mu     sync.Mutex
	states map[string]time.Time
	ttl    time.Duration
	now    func() time.Time
}

// NewStateStore creates a store with the given token lifetime.
func NewStateStore(ttl time.Duration) *StateStore {
	return &StateStore{
		states: make(map[string]time.Time),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue generates a fresh state token and records its issue time.
func (s *StateStore) Issue() (string, error) {
	token, err := common.MakeRandHexString(stateTokenSize)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	s.states[token] = s.now()
	return token, nil
}

// Consume validates and removes the token. A token can be consumed at most
// once; unknown or expired tokens return false.
func (s *StateStore) Consume(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	issued, ok := s.states[token]
	if !ok {
		return false
	}
	delete(s.states, token)
	return s.now().Sub(issued) <= s.ttl
}

func (s *StateStore) sweepLocked() {
	cutoff := s.now().Add(-s.ttl)
	for token, issued := range s.states {
		if issued.Before(cutoff) {
			delete(s.states, token)
		}
	}
}
