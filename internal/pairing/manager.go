// Package pairing implements the code-for-token exchange that
// authorizes Hubs: a six-digit code shown on the device is traded once
// for a persistent 32-character token.
package pairing

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/capydeploy/agent/internal/metrics"
	"github.com/capydeploy/agent/internal/store"
)

// CodeTTL is how long a generated code stays valid. Expiry is checked
// lazily when a confirmation arrives, not by a timer.
const CodeTTL = 60 * time.Second

const (
	tokenLength   = 32
	tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// ErrInvalidCode covers every confirmation failure: no pending pairing,
// expired code, wrong hub, wrong code. Hubs see a single reason and may
// retry until the code expires.
var ErrInvalidCode = errors.New("invalid code")

// AuthorizedHub is one persisted pairing grant.
type AuthorizedHub struct {
	Name     string `json:"name"`
	Token    string `json:"token"`
	PairedAt int64  `json:"pairedAt"`
}

// pendingPair is the single in-flight pairing attempt. Generating a new
// code replaces it wholesale.
type pendingPair struct {
	hubID     string
	hubName   string
	code      string
	expiresAt time.Time
}

// Manager owns the pending slot and the persisted authorized-hubs map.
type Manager struct {
	store *store.Store
	clock clockwork.Clock

	mu      sync.Mutex
	pending *pendingPair
}

// NewManager returns a manager on the real clock.
func NewManager(st *store.Store) *Manager {
	return NewManagerWithClock(st, clockwork.NewRealClock())
}

// NewManagerWithClock injects the clock so tests can drive expiry.
func NewManagerWithClock(st *store.Store, clock clockwork.Clock) *Manager {
	return &Manager{store: st, clock: clock}
}

// GenerateCode replaces any pending pairing with a fresh six-digit code
// for hubID, valid for CodeTTL.
func (m *Manager) GenerateCode(hubID, hubName string) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("generate pairing code: %w", err)
	}
	code := fmt.Sprintf("%06d", n.Int64())

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = &pendingPair{
		hubID:     hubID,
		hubName:   hubName,
		code:      code,
		expiresAt: m.clock.Now().Add(CodeTTL),
	}
	return code, nil
}

// ValidateCode trades a correct, unexpired code for a token and
// persists the grant. On failure the pending slot is left in place so
// the Hub may retry until expiry; on success the code is spent.
func (m *Manager) ValidateCode(hubID, code string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.pending
	switch {
	case p == nil:
		return m.fail("no pending pairing")
	case m.clock.Now().After(p.expiresAt):
		return m.fail("code expired")
	case hubID != p.hubID:
		return m.fail("hub mismatch")
	case code != p.code:
		return m.fail("code mismatch")
	}

	token := generateToken()
	hubs, err := m.loadHubs()
	if err != nil {
		return "", err
	}
	hubs[hubID] = AuthorizedHub{
		Name:     p.hubName,
		Token:    token,
		PairedAt: m.clock.Now().Unix(),
	}
	if err := m.store.Set(store.KeyAuthorizedHubs, hubs); err != nil {
		return "", fmt.Errorf("persist authorized hub: %w", err)
	}
	m.pending = nil
	metrics.PairingOutcomes.WithLabelValues("success").Inc()
	metrics.AuthorizedHubs.Set(float64(len(hubs)))
	return token, nil
}

func (m *Manager) fail(reason string) (string, error) {
	metrics.PairingOutcomes.WithLabelValues("failure").Inc()
	return "", fmt.Errorf("%s: %w", reason, ErrInvalidCode)
}

// ValidateToken reports whether hubID holds token. Store failures read
// as unauthorized.
func (m *Manager) ValidateToken(hubID, token string) bool {
	if token == "" {
		return false
	}
	hubs, err := m.loadHubs()
	if err != nil {
		return false
	}
	grant, ok := hubs[hubID]
	return ok && grant.Token == token
}

// Hubs returns the persisted grants keyed by hub ID.
func (m *Manager) Hubs() (map[string]AuthorizedHub, error) {
	return m.loadHubs()
}

// Revoke removes hubID's grant and reports whether one existed.
// Revoking an unknown hub is a no-op.
func (m *Manager) Revoke(hubID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hubs, err := m.loadHubs()
	if err != nil {
		return false, err
	}
	if _, ok := hubs[hubID]; !ok {
		return false, nil
	}
	delete(hubs, hubID)
	if err := m.store.Set(store.KeyAuthorizedHubs, hubs); err != nil {
		return false, fmt.Errorf("persist hub revocation: %w", err)
	}
	metrics.AuthorizedHubs.Set(float64(len(hubs)))
	return true, nil
}

func (m *Manager) loadHubs() (map[string]AuthorizedHub, error) {
	hubs := make(map[string]AuthorizedHub)
	if _, err := m.store.GetJSON(store.KeyAuthorizedHubs, &hubs); err != nil {
		return nil, fmt.Errorf("load authorized hubs: %w", err)
	}
	return hubs, nil
}

func generateToken() string {
	b := make([]byte, tokenLength)
	_, _ = rand.Read(b)
	tok := make([]byte, tokenLength)
	for i := range tok {
		tok[i] = tokenAlphabet[int(b[i])%len(tokenAlphabet)]
	}
	return string(tok)
}
