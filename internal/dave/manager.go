package dave

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rodrigo-weigert/meu-chapeu/internal/ratchet"
)

// ErrMissingExternalSender is returned by StageTransitionFromWelcome
// when no external sender has been bound yet (spec §4.3).
var ErrMissingExternalSender = errors.New("dave: external sender not set")

// ErrInvalidCommit wraps a library-reported invalid commit (spec §7).
var ErrInvalidCommit = errors.New("dave: invalid commit")

// TransitionType identifies the kind of staged transition (spec §4.3).
type TransitionType int

const (
	TransitionWelcome TransitionType = iota
	TransitionCommit
	TransitionDowngrade
)

func (t TransitionType) String() string {
	switch t {
	case TransitionWelcome:
		return "welcome"
	case TransitionCommit:
		return "commit"
	case TransitionDowngrade:
		return "downgrade"
	default:
		return "unknown"
	}
}

// ExternalSender is the MLS actor authorized to issue proposals (spec
// glossary).
type ExternalSender struct {
	Identity     []byte
	SignatureKey []byte
}

type pendingTransition struct {
	typ              TransitionType
	preparedRatchet  *ratchet.Ratchet
}

// Manager is the per-voice-session DAVE state machine (spec §3's
// DaveSessionManager / §4.3's lifecycle). All mutation happens under a
// single mutex; spec §5 forbids callers from invoking AppendProposals
// and ExecuteTransition concurrently, but the mutex is cheap insurance
// and matches how the rest of this codebase guards per-session state.
type Manager struct {
	mu sync.Mutex

	userID  string
	factory Factory
	session MLSSession

	externalSender *ExternalSender
	keyRatchet     *ratchet.Ratchet
	nonceCounter   uint64

	pending             map[uint16]pendingTransition
	invalidated         bool
	mlsGroupEstablished bool
}

// NewManager constructs a fresh session for userID using factory.
func NewManager(userID string, factory Factory) *Manager {
	return &Manager{
		userID:  userID,
		factory: factory,
		session: factory(userID),
		pending: make(map[uint16]pendingTransition),
	}
}

// KeyPackageMessage returns the current key package to publish.
func (m *Manager) KeyPackageMessage() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.KeyPackageMessage()
}

// SetExternalSender is idempotent; a later call replaces the prior
// value (spec §4.3).
func (m *Manager) SetExternalSender(identity, signatureKey []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.externalSender = &ExternalSender{Identity: identity, SignatureKey: signatureKey}
}

// StageTransitionFromWelcome requires an external sender to already be
// set; it creates the MLS group from the welcome and pre-derives a
// provisional key ratchet from the exported secret (spec §4.3).
func (m *Manager) StageTransitionFromWelcome(transitionID uint16, welcome []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.externalSender == nil {
		return ErrMissingExternalSender
	}

	secret, err := m.session.CreateGroupFromWelcome(m.externalSender.Identity, m.externalSender.SignatureKey, welcome)
	if err != nil {
		return fmt.Errorf("dave: create group from welcome: %w", err)
	}

	m.pending[transitionID] = pendingTransition{
		typ:             TransitionWelcome,
		preparedRatchet: ratchet.New(secret),
	}
	m.mlsGroupEstablished = true
	return nil
}

// AppendProposals appends proposal_bytes to the group, taking the
// initial-creation path before the group is established and the append
// path afterward. Returns (commit||welcome, true, nil) when a welcome
// also comes back, (commit, true, nil) otherwise, and (nil, false, nil)
// when invalidated (spec §4.3).
func (m *Manager) AppendProposals(proposal []byte) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.invalidated {
		return nil, false, nil
	}

	var commit, welcome []byte
	var err error
	if m.mlsGroupEstablished {
		commit, welcome, err = m.session.Propose(proposal)
	} else {
		commit, welcome, err = m.session.CreateGroup(proposal)
		m.mlsGroupEstablished = true
	}
	if err != nil {
		return nil, false, fmt.Errorf("dave: append proposals: %w", err)
	}

	out := commit
	if len(welcome) > 0 {
		out = append(append([]byte{}, commit...), welcome...)
	}
	return out, true, nil
}

// StageTransitionFromCommit merges the commit locally. If the library
// rejects it, invalidated is set and ErrInvalidCommit is returned (spec
// §4.3/§7).
func (m *Manager) StageTransitionFromCommit(transitionID uint16, commit []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	secret, err := m.session.MergeCommit(commit)
	if err != nil {
		m.invalidated = true
		return fmt.Errorf("%w: %v", ErrInvalidCommit, err)
	}

	m.pending[transitionID] = pendingTransition{
		typ:             TransitionCommit,
		preparedRatchet: ratchet.New(secret),
	}
	return nil
}

// StageDowngradeTransition records a pending downgrade with no
// provisional ratchet (spec §4.3).
func (m *Manager) StageDowngradeTransition(transitionID uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[transitionID] = pendingTransition{typ: TransitionDowngrade}
}

// ExecuteTransition installs the provisional ratchet for transitionID
// (or clears it, for a downgrade), clears invalidated on WELCOME, and
// returns the transition's type. An unknown transition id is a no-op:
// (_, false) is returned rather than an error (spec §3 invariant: staged
// transitions are idempotent). A non-WELCOME transition while
// invalidated is silently skipped the same way.
func (m *Manager) ExecuteTransition(transitionID uint16) (TransitionType, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.pending[transitionID]
	if !ok {
		return 0, false
	}
	delete(m.pending, transitionID)

	if m.invalidated && t.typ != TransitionWelcome {
		return 0, false
	}

	m.keyRatchet = t.preparedRatchet
	if t.typ == TransitionWelcome {
		m.invalidated = false
	}
	return t.typ, true
}

// Reset recreates the MLS session and clears ratchet, pending
// transitions, nonce counter and invalidation — used after invalid-commit
// recovery and on sole-member resets (spec §4.3).
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = m.factory(m.userID)
	m.keyRatchet = nil
	m.pending = make(map[uint16]pendingTransition)
	m.nonceCounter = 0
	m.invalidated = false
	m.mlsGroupEstablished = false
}

// Invalidated reports whether the session is in the post-invalid-commit
// state awaiting a new WELCOME.
func (m *Manager) Invalidated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.invalidated
}

// GetCurrentMediaKey advances the 64-bit nonce counter and derives the
// current generation's media key. ok is false when no ratchet is
// installed — transport encryption is then the sole protection layer
// (spec §3 invariant, §4.3).
func (m *Manager) GetCurrentMediaKey() (key ratchet.MediaKey, ok bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.keyRatchet == nil {
		return ratchet.MediaKey{}, false, nil
	}

	m.nonceCounter++
	generation := uint32(m.nonceCounter >> 24)
	low32 := uint32(m.nonceCounter)

	k, err := m.keyRatchet.Key(generation)
	if err != nil {
		return ratchet.MediaKey{}, false, err
	}
	return ratchet.MediaKey{Key: k, Nonce: low32}, true, nil
}
