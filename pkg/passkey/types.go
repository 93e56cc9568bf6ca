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
	"bytes"
	"time"
)

// CeremonyKind identifies which ceremony a challenge was issued for.
type CeremonyKind string

const (
	// CeremonyRegistration is the credential enrollment ceremony.
	CeremonyRegistration CeremonyKind = "registration"

	// CeremonyAuthentication is the login ceremony.
	CeremonyAuthentication CeremonyKind = "authentication"
)

// Credential is a public-key credential stored by the Relying Party.
// The ID is assigned by the authenticator during registration and is
// globally unique across all users.
type Credential struct {
	// ID is the credential identifier assigned by the authenticator.
	ID []byte `json:"id"`

	// PublicKey is the credential's public key in COSE format,
	// immutable once stored.
	PublicKey []byte `json:"public_key"`

	// SignCount is the authenticator's signature counter, used for
	// clone detection. Monotonically non-decreasing.
	SignCount uint32 `json:"sign_count"`

	// Transports lists transport hints reported by the authenticator.
	// Informational only.
	Transports []string `json:"transports,omitempty"`

	// CreatedAt is when the credential was registered.
	CreatedAt time.Time `json:"created_at"`

	// LastUsedAt is when the credential last verified an assertion.
	LastUsedAt time.Time `json:"last_used_at,omitempty"`
}

// Clone returns a deep copy of the credential.
func (c *Credential) Clone() *Credential {
	dup := *c
	dup.ID = append([]byte(nil), c.ID...)
	dup.PublicKey = append([]byte(nil), c.PublicKey...)
	dup.Transports = append([]string(nil), c.Transports...)
	return &dup
}

// User is a durable record binding a user identity to its enrolled
// credentials. Created on first BeginRegistration, never deleted.
type User struct {
	// ID is the opaque user identity chosen by the caller.
	ID string `json:"id"`

	// Credentials are the user's enrolled credentials.
	Credentials []*Credential `json:"credentials"`
}

// FindCredential returns the credential with the given ID within this
// user's set, or nil if absent.
func (u *User) FindCredential(credentialID []byte) *Credential {
	for _, cred := range u.Credentials {
		if bytes.Equal(cred.ID, credentialID) {
			return cred
		}
	}
	return nil
}

// CredentialIDs returns the IDs of all enrolled credentials.
func (u *User) CredentialIDs() [][]byte {
	ids := make([][]byte, len(u.Credentials))
	for i, cred := range u.Credentials {
		ids[i] = cred.ID
	}
	return ids
}

// Clone returns a deep copy of the user record.
func (u *User) Clone() *User {
	dup := &User{
		ID:          u.ID,
		Credentials: make([]*Credential, len(u.Credentials)),
	}
	for i, cred := range u.Credentials {
		dup.Credentials[i] = cred.Clone()
	}
	return dup
}

// PendingChallenge is the single outstanding challenge for a user.
// At most one exists per user; issuing a new one supersedes it.
type PendingChallenge struct {
	UserID    string
	Challenge []byte
	Kind      CeremonyKind
	IssuedAt  time.Time
}

// AttestationResponse carries the authenticator's registration proof,
// already decoded from the wire format by the transport layer.
type AttestationResponse struct {
	// CredentialID is the new credential's identifier.
	CredentialID []byte

	// PublicKey is the new credential's COSE public key.
	PublicKey []byte

	// Transports are the transport hints reported by the client.
	Transports []string

	// ClientDataJSON is the raw client data the authenticator signed
	// over. Carries the claimed challenge and origin.
	ClientDataJSON []byte

	// AuthenticatorData is the raw authenticator data from the
	// attestation object. Carries the RP ID hash and initial counter.
	AuthenticatorData []byte

	// AttestationObject is the raw CBOR attestation object, passed to
	// the signature verifier for integrity checking.
	AttestationObject []byte
}

// AssertionResponse carries the authenticator's login proof.
type AssertionResponse struct {
	// CredentialID names the credential that produced the assertion.
	CredentialID []byte

	// ClientDataJSON is the raw client data. Carries the claimed
	// challenge and origin.
	ClientDataJSON []byte

	// AuthenticatorData is the raw authenticator data. Carries the RP
	// ID hash, flags and sign counter.
	AuthenticatorData []byte

	// Signature is the assertion signature over
	// AuthenticatorData || SHA-256(ClientDataJSON).
	Signature []byte
}

// RegistrationOptions is returned by BeginRegistration for the client
// to hand to its authenticator.
type RegistrationOptions struct {
	Challenge            []byte
	UserID               string
	RelyingPartyID       string
	RelyingPartyName     string
	ExcludeCredentialIDs [][]byte
}

// AllowedCredential identifies one of the user's enrolled credentials
// in login options, with the transport hints captured at registration.
type AllowedCredential struct {
	ID         []byte
	Transports []string
}

// AuthenticationOptions is returned by BeginAuthentication.
type AuthenticationOptions struct {
	Challenge        []byte
	RelyingPartyID   string
	AllowCredentials []AllowedCredential
}

// CeremonyResult is the outcome of a finish operation.
type CeremonyResult struct {
	Verified bool `json:"verified"`
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
