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
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"

	"github.com/go-webauthn/webauthn/protocol/webauthncbor"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
)

// MockAuthenticator simulates a platform authenticator for testing.
// It produces attestation and assertion responses that pass the full
// ceremony checks, and exposes enough knobs to produce responses that
// fail them in controlled ways.
type MockAuthenticator struct {
	// AAGUID is the authenticator model identifier (16 bytes).
	AAGUID []byte

	// privateKey is the authenticator's signing key (ES256).
	privateKey *ecdsa.PrivateKey

	// CredentialID is the credential identifier.
	CredentialID []byte

	// SignCount is the current signature counter.
	SignCount uint32

	// UserPresent controls the UP flag.
	UserPresent bool

	// UserVerified controls the UV flag.
	UserVerified bool

	// rpID is the Relying Party ID the authenticator is scoped to.
	rpID string

	// rpIDHash is the SHA-256 hash of the RP ID.
	rpIDHash []byte
}

// MockAuthenticatorOption is a functional option for configuring a
// MockAuthenticator.
type MockAuthenticatorOption func(*MockAuthenticator)

// WithCredentialID sets a custom credential ID.
func WithCredentialID(credID []byte) MockAuthenticatorOption {
	return func(m *MockAuthenticator) {
		m.CredentialID = credID
	}
}

// WithSignCount sets the initial sign count.
func WithSignCount(count uint32) MockAuthenticatorOption {
	return func(m *MockAuthenticator) {
		m.SignCount = count
	}
}

// WithUserPresent sets the UP flag.
func WithUserPresent(up bool) MockAuthenticatorOption {
	return func(m *MockAuthenticator) {
		m.UserPresent = up
	}
}

// WithUserVerified sets the UV flag.
func WithUserVerified(uv bool) MockAuthenticatorOption {
	return func(m *MockAuthenticator) {
		m.UserVerified = uv
	}
}

// NewMockAuthenticator creates a mock authenticator scoped to the
// given RP ID with a fresh ES256 key pair.
func NewMockAuthenticator(rpID string, opts ...MockAuthenticatorOption) (*MockAuthenticator, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}

	aaguid := make([]byte, 16)
	if _, err := rand.Read(aaguid); err != nil {
		return nil, err
	}

	credID := make([]byte, 32)
	if _, err := rand.Read(credID); err != nil {
		return nil, err
	}

	rpIDHash := sha256.Sum256([]byte(rpID))

	m := &MockAuthenticator{
		AAGUID:       aaguid,
		privateKey:   privateKey,
		CredentialID: credID,
		SignCount:    0,
		UserPresent:  true,
		UserVerified: true,
		rpID:         rpID,
		rpIDHash:     rpIDHash[:],
	}

	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// PublicKeyBytes returns the credential public key in COSE format.
func (m *MockAuthenticator) PublicKeyBytes() ([]byte, error) {
	pubKey := m.privateKey.Public().(*ecdsa.PublicKey)

	coseKey := map[int]interface{}{
		1:  2,                          // kty: EC2
		3:  int(webauthncose.AlgES256), // alg: ES256
		-1: 1,                          // crv: P-256
		-2: pubKey.X.Bytes(),
		-3: pubKey.Y.Bytes(),
	}

	return webauthncbor.Marshal(coseKey)
}

// SetSignCount sets the sign count, useful for simulating a cloned
// authenticator that replays a stale counter.
func (m *MockAuthenticator) SetSignCount(count uint32) {
	m.SignCount = count
}

// Attest produces a registration response for the given challenge, as
// the engine expects it after transport decoding. The attestation
// format is "none".
func (m *MockAuthenticator) Attest(challenge []byte, origin string) (*AttestationResponse, error) {
	authData, err := m.buildAuthenticatorData(true)
	if err != nil {
		return nil, err
	}

	clientDataJSON := m.buildClientDataJSON(challenge, origin, "webauthn.create")

	attestationObject := map[string]interface{}{
		"authData": authData,
		"fmt":      "none",
		"attStmt":  map[string]interface{}{},
	}
	attestationObjectBytes, err := webauthncbor.Marshal(attestationObject)
	if err != nil {
		return nil, err
	}

	pubKeyBytes, err := m.PublicKeyBytes()
	if err != nil {
		return nil, err
	}

	return &AttestationResponse{
		CredentialID:      append([]byte(nil), m.CredentialID...),
		PublicKey:         pubKeyBytes,
		Transports:        []string{"usb"},
		ClientDataJSON:    clientDataJSON,
		AuthenticatorData: authData,
		AttestationObject: attestationObjectBytes,
	}, nil
}

// Assert produces a login response for the given challenge. The sign
// counter is incremented first, as a real authenticator would.
func (m *MockAuthenticator) Assert(challenge []byte, origin string) (*AssertionResponse, error) {
	m.SignCount++

	authData, err := m.buildAuthenticatorData(false)
	if err != nil {
		return nil, err
	}

	clientDataJSON := m.buildClientDataJSON(challenge, origin, "webauthn.get")
	clientDataHash := sha256.Sum256(clientDataJSON)

	signedData := make([]byte, 0, len(authData)+len(clientDataHash))
	signedData = append(signedData, authData...)
	signedData = append(signedData, clientDataHash[:]...)

	signature, err := m.sign(signedData)
	if err != nil {
		return nil, err
	}

	return &AssertionResponse{
		CredentialID:      append([]byte(nil), m.CredentialID...),
		ClientDataJSON:    clientDataJSON,
		AuthenticatorData: authData,
		Signature:         signature,
	}, nil
}

// buildFlags builds the authenticator flags byte.
func (m *MockAuthenticator) buildFlags(includeCredential bool) byte {
	var flags byte
	if m.UserPresent {
		flags |= 0x01 // UP
	}
	if m.UserVerified {
		flags |= 0x04 // UV
	}
	if includeCredential {
		flags |= 0x40 // AT
	}
	return flags
}

// buildAuthenticatorData builds the raw authenticator data. With
// includeCredential set it appends attested credential data, as during
// registration.
func (m *MockAuthenticator) buildAuthenticatorData(includeCredential bool) ([]byte, error) {
	var buf bytes.Buffer

	// rpIdHash (32 bytes)
	buf.Write(m.rpIDHash)

	// flags (1 byte)
	buf.WriteByte(m.buildFlags(includeCredential))

	// signCount (4 bytes, big-endian)
	signCountBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(signCountBytes, m.SignCount)
	buf.Write(signCountBytes)

	if includeCredential {
		// AAGUID (16 bytes)
		buf.Write(m.AAGUID)

		// Credential ID length (2 bytes, big-endian)
		credIDLen := make([]byte, 2)
		binary.BigEndian.PutUint16(credIDLen, uint16(len(m.CredentialID)))
		buf.Write(credIDLen)

		buf.Write(m.CredentialID)

		pubKeyBytes, err := m.PublicKeyBytes()
		if err != nil {
			return nil, err
		}
		buf.Write(pubKeyBytes)
	}

	return buf.Bytes(), nil
}

// buildClientDataJSON builds the collected client data document.
func (m *MockAuthenticator) buildClientDataJSON(challenge []byte, origin, ceremonyType string) []byte {
	clientData := struct {
		Type      string `json:"type"`
		Challenge string `json:"challenge"`
		Origin    string `json:"origin"`
	}{
		Type:      ceremonyType,
		Challenge: base64.RawURLEncoding.EncodeToString(challenge),
		Origin:    origin,
	}

	jsonBytes, _ := json.Marshal(clientData)
	return jsonBytes
}

// sign creates an ASN.1 DER ECDSA signature over the data.
func (m *MockAuthenticator) sign(data []byte) ([]byte, error) {
	hash := sha256.Sum256(data)
	return ecdsa.SignASN1(rand.Reader, m.privateKey, hash[:])
}
