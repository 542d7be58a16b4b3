// Package dave implements the DAVE (Discord-Audio-Video-Encryption-ish)
// MLS-based end-to-end media encryption session manager (spec §4.3).
//
// The MLS cryptographic primitive library itself is out of scope (spec
// §1): it is treated as an opaque session object behind the MLSSession
// interface. Callers supply a Factory that constructs one per user.
package dave

// MLSSession is the opaque MLS group-state object the session manager
// drives. A concrete implementation lives in whatever MLS library the
// deployment links in; this package only depends on the interface.
type MLSSession interface {
	// KeyPackageMessage returns the serialized key package to publish
	// as DAVE_MLS_KEY_PACKAGE.
	KeyPackageMessage() []byte

	// CreateGroupFromWelcome creates a new MLS group from a Welcome
	// message, binding the external sender's identity/signature key.
	// Returns the group's exporter secret.
	CreateGroupFromWelcome(identity, signatureKey, welcome []byte) (exporterSecret []byte, err error)

	// CreateGroup performs the initial group-creation path: the first
	// proposal this session ever appends, before any group exists.
	// May return a welcome alongside the commit (for the other group
	// members).
	CreateGroup(proposal []byte) (commit, welcome []byte, err error)

	// Propose appends a proposal to an already-established group.
	Propose(proposal []byte) (commit, welcome []byte, err error)

	// MergeCommit merges a commit message produced by another member.
	// Returns ErrInvalidCommit (wrapped) if the library rejects it.
	// On success, returns the new epoch's exporter secret.
	MergeCommit(commit []byte) (exporterSecret []byte, err error)
}

// Factory constructs a fresh MLSSession for a user. Manager.Reset calls
// this again rather than mutating the existing session in place
// (grounded on original_source/dave/session.py's reset_session, which
// recreates the library object).
type Factory func(userID string) MLSSession
