// Package oauthstate issues and validates the single-use CSRF state tokens
// round-tripped through the provider's OAuth redirect.
package oauthstate

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log"
	"sync"
	"time"
)

// TTL is how long an issued state token stays valid.
const TTL = 10 * time.Minute

const reapInterval = time.Minute

// Store binds an OAuth round-trip to one account. Implementations must make
// Validate's check-and-remove atomic: a state token validates at most once.
type Store interface {
	// Issue returns an opaque state ID for embedding in the authorize redirect.
	Issue(accountID uint) (string, error)
	// Validate consumes the token. It reports true only for a known,
	// unexpired token issued to the same account; the token is removed on
	// every outcome.
	Validate(stateID string, accountID uint) bool
}

type entry struct {
	accountID uint
	expiresAt time.Time
}

// MemoryStore keeps state tokens in process memory. A restart drops all
// in-flight authorizations, which simply forces the user to start over.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
	done    chan struct{}
	once    sync.Once
}

// NewMemoryStore returns a store with a background reaper for expired tokens.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]entry),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go s.reapLoop()
	return s
}

// Issue derives a one-way state ID from the account and a random nonce, so
// the ID leaks nothing about the account it belongs to.
func (s *MemoryStore) Issue(accountID uint) (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("oauthstate: nonce: %w", err)
	}

	h := sha256.New()
	binary.Write(h, binary.BigEndian, uint64(accountID))
	h.Write(nonce)
	id := hex.EncodeToString(h.Sum(nil))

	s.mu.Lock()
	s.entries[id] = entry{accountID: accountID, expiresAt: s.now().Add(TTL)}
	s.mu.Unlock()
	return id, nil
}

// Validate consumes the token under one lock so two concurrent callbacks
// carrying the same state cannot both win.
func (s *MemoryStore) Validate(stateID string, accountID uint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[stateID]
	if !ok {
		return false
	}
	delete(s.entries, stateID)

	if s.now().After(e.expiresAt) {
		return false
	}
	return e.accountID == accountID
}

// Close stops the reaper goroutine.
func (s *MemoryStore) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *MemoryStore) reapLoop() {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := s.reap(); n > 0 {
				log.Printf("🧹 Reaped %d expired oauth state tokens", n)
			}
		case <-s.done:
			return
		}
	}
}

func (s *MemoryStore) reap() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	reaped := 0
	for id, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, id)
			reaped++
		}
	}
	return reaped
}
