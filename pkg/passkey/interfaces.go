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

import "context"

// CredentialStore persists user records and their enrolled credentials.
// Implementations must make AddCredential's duplicate check atomic with
// the insert, and must fully persist every mutation before returning.
type CredentialStore interface {
	// CreateUser creates an empty-credential record for the user.
	// Returns ErrUserExists if the user already exists.
	CreateUser(ctx context.Context, userID string) (*User, error)

	// GetUser retrieves the user record.
	// Returns ErrUserNotFound if the user does not exist.
	GetUser(ctx context.Context, userID string) (*User, error)

	// AddCredential appends a credential to the user's set.
	// Returns ErrUserNotFound if the user is absent, or
	// ErrDuplicateCredential if the credential ID already exists
	// anywhere in the store, regardless of owner.
	AddCredential(ctx context.Context, userID string, cred *Credential) error

	// FindCredential returns the credential within the user's set.
	// Returns ErrUserNotFound if the user is absent, or
	// ErrCredentialNotFound if the user does not own the credential.
	FindCredential(ctx context.Context, userID string, credentialID []byte) (*Credential, error)

	// UpdateSignCount replaces the stored counter unconditionally and
	// records the credential as used. Counter-regression policy is
	// enforced by the ceremony engine, not the store.
	UpdateSignCount(ctx context.Context, userID string, credentialID []byte, signCount uint32) error
}

// ChallengeStore holds the single pending challenge per user.
// Issue and Consume for the same user must be atomic with respect to
// each other.
type ChallengeStore interface {
	// Issue generates a fresh cryptographically-random challenge,
	// superseding any pending challenge for the user, and returns the
	// challenge bytes.
	Issue(ctx context.Context, userID string, kind CeremonyKind) ([]byte, error)

	// Consume removes and returns the pending challenge for the user.
	// Returns ErrNoChallenge if none exists or it was issued for a
	// different ceremony kind, or ErrChallengeExpired if it outlived
	// its TTL. The entry is removed in every case where it was found;
	// a challenge is never consumable twice.
	Consume(ctx context.Context, userID string, kind CeremonyKind) ([]byte, error)
}

// SignatureVerifier is the external cryptographic capability the
// ceremony engine delegates to. The engine performs challenge, origin,
// RP ID and counter checks itself; the verifier owns key parsing and
// signature mathematics.
type SignatureVerifier interface {
	// VerifyAttestation validates the internal integrity of a
	// registration attestation per its attestation format.
	VerifyAttestation(ctx context.Context, att *AttestationResponse) error

	// VerifyAssertion validates signature over signedPayload with the
	// stored public key.
	VerifyAssertion(ctx context.Context, publicKey, signedPayload, signature []byte) error
}
