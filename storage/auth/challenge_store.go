package auth

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

// Challenge represents a pending agent wallet verification. The agent must
// echo the nonce back (signed by its wallet) before the challenge expires.
type Challenge struct {
	Nonce       string    `json:"nonce"`
	AgentID     string    `json:"agent_id"`
	Wallet      string    `json:"wallet_address"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
}

// ChallengeStore keeps in-memory verification challenges keyed by agent.
// Expired entries are purged lazily on access.
type ChallengeStore struct {
	mu         sync.Mutex
	ttl        time.Duration
	challenges map[string]Challenge
}

// NewChallengeStore builds a new in-memory challenge store. ttl <= 0
// selects the 30-second default.
func NewChallengeStore(ttl time.Duration) *ChallengeStore {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &ChallengeStore{
		ttl:        ttl,
		challenges: make(map[string]Challenge),
	}
}

// Issue creates or refreshes a challenge for an agent's wallet.
func (s *ChallengeStore) Issue(agentID, wallet string) (Challenge, error) {
	nonce, err := randomNonce()
	if err != nil {
		return Challenge{}, err
	}
	ch := Challenge{
		Nonce:       nonce,
		AgentID:     agentID,
		Wallet:      wallet,
		CreatedAt:   time.Now(),
		ExpiresAt:   time.Now().Add(s.ttl),
		MaxAttempts: 5,
	}
	s.mu.Lock()
	s.challenges[agentID] = ch
	s.mu.Unlock()
	return ch, nil
}

// Verify checks the signature against the outstanding nonce and consumes
// the challenge on success, expiry, or attempt exhaustion.
// NOTE: For now this accepts signature == nonce (placeholder); replace with real secp256k1 verification.
func (s *ChallengeStore) Verify(agentID, signature string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.challenges[agentID]
	if !ok {
		return false
	}
	if time.Now().After(ch.ExpiresAt) {
		delete(s.challenges, agentID)
		return false
	}
	ch.Attempts++
	s.challenges[agentID] = ch
	if ch.Attempts > ch.MaxAttempts {
		delete(s.challenges, agentID)
		return false
	}
	if signature == ch.Nonce {
		delete(s.challenges, agentID)
		return true
	}
	return false
}

func randomNonce() (string, error) {
	b := make([]byte, 16) // 128-bit nonce
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
