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

package cose_test

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"testing"

	"github.com/go-webauthn/webauthn/protocol/webauthncbor"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-passkey/pkg/passkey"
	"github.com/jeremyhahn/go-passkey/pkg/passkey/cose"
)

const testRPID = "example.com"

// attestationBuilder constructs attestation objects byte by byte so the
// tests can produce statements a well-behaved authenticator never would.
type attestationBuilder struct {
	key      *ecdsa.PrivateKey
	credID   []byte
	rpIDHash []byte
}

func newAttestationBuilder(t *testing.T) *attestationBuilder {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	credID := make([]byte, 32)
	_, err = rand.Read(credID)
	require.NoError(t, err)

	rpIDHash := sha256.Sum256([]byte(testRPID))

	return &attestationBuilder{key: key, credID: credID, rpIDHash: rpIDHash[:]}
}

func (b *attestationBuilder) coseKey(t *testing.T, alg int) []byte {
	t.Helper()
	pub := b.key.Public().(*ecdsa.PublicKey)
	data, err := webauthncbor.Marshal(map[int]interface{}{
		1:  2, // kty: EC2
		3:  alg,
		-1: 1, // crv: P-256
		-2: pub.X.Bytes(),
		-3: pub.Y.Bytes(),
	})
	require.NoError(t, err)
	return data
}

func (b *attestationBuilder) authData(t *testing.T, alg int) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.Write(b.rpIDHash)
	buf.WriteByte(0x45) // UP | UV | AT

	counter := make([]byte, 4)
	binary.BigEndian.PutUint32(counter, 0)
	buf.Write(counter)

	buf.Write(make([]byte, 16)) // AAGUID

	credIDLen := make([]byte, 2)
	binary.BigEndian.PutUint16(credIDLen, uint16(len(b.credID)))
	buf.Write(credIDLen)
	buf.Write(b.credID)
	buf.Write(b.coseKey(t, alg))

	return buf.Bytes()
}

func (b *attestationBuilder) sign(t *testing.T, data []byte) []byte {
	t.Helper()
	hash := sha256.Sum256(data)
	sig, err := ecdsa.SignASN1(rand.Reader, b.key, hash[:])
	require.NoError(t, err)
	return sig
}

// packed builds a packed self-attestation response. declaredAlg is
// written into the statement; keyAlg into the credential key.
func (b *attestationBuilder) packed(t *testing.T, clientDataJSON []byte, declaredAlg, keyAlg int) *passkey.AttestationResponse {
	t.Helper()

	authData := b.authData(t, keyAlg)
	clientDataHash := sha256.Sum256(clientDataJSON)
	signedData := append(append([]byte(nil), authData...), clientDataHash[:]...)

	attObj, err := webauthncbor.Marshal(map[string]interface{}{
		"authData": authData,
		"fmt":      "packed",
		"attStmt": map[string]interface{}{
			"alg": declaredAlg,
			"sig": b.sign(t, signedData),
		},
	})
	require.NoError(t, err)

	return &passkey.AttestationResponse{
		CredentialID:      b.credID,
		ClientDataJSON:    clientDataJSON,
		AuthenticatorData: authData,
		AttestationObject: attObj,
	}
}

func TestVerifyAttestation_None(t *testing.T) {
	verifier := cose.NewVerifier()

	auth, err := passkey.NewMockAuthenticator(testRPID)
	require.NoError(t, err)

	att, err := auth.Attest(make([]byte, 32), "https://example.com")
	require.NoError(t, err)

	assert.NoError(t, verifier.VerifyAttestation(context.Background(), att))
}

func TestVerifyAttestation_CredentialIDMismatch(t *testing.T) {
	verifier := cose.NewVerifier()

	auth, err := passkey.NewMockAuthenticator(testRPID)
	require.NoError(t, err)

	att, err := auth.Attest(make([]byte, 32), "https://example.com")
	require.NoError(t, err)

	// Response claims a different credential than the attestation object
	att.CredentialID = []byte("someone-elses-credential-id-0000")

	err = verifier.VerifyAttestation(context.Background(), att)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credential id mismatch")
}

func TestVerifyAttestation_MalformedObject(t *testing.T) {
	verifier := cose.NewVerifier()

	err := verifier.VerifyAttestation(context.Background(), &passkey.AttestationResponse{
		AttestationObject: []byte{0xFF, 0x00, 0x01},
	})
	assert.Error(t, err)
}

func TestVerifyAttestation_NoneWithStatement(t *testing.T) {
	verifier := cose.NewVerifier()
	builder := newAttestationBuilder(t)

	authData := builder.authData(t, int(webauthncose.AlgES256))
	attObj, err := webauthncbor.Marshal(map[string]interface{}{
		"authData": authData,
		"fmt":      "none",
		"attStmt": map[string]interface{}{
			"alg": int(webauthncose.AlgES256),
		},
	})
	require.NoError(t, err)

	err = verifier.VerifyAttestation(context.Background(), &passkey.AttestationResponse{
		CredentialID:      builder.credID,
		ClientDataJSON:    []byte("{}"),
		AttestationObject: attObj,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-empty statement")
}

func TestVerifyAttestation_UnsupportedFormat(t *testing.T) {
	verifier := cose.NewVerifier()
	builder := newAttestationBuilder(t)

	authData := builder.authData(t, int(webauthncose.AlgES256))
	attObj, err := webauthncbor.Marshal(map[string]interface{}{
		"authData": authData,
		"fmt":      "fido-u2f",
		"attStmt":  map[string]interface{}{},
	})
	require.NoError(t, err)

	err = verifier.VerifyAttestation(context.Background(), &passkey.AttestationResponse{
		CredentialID:      builder.credID,
		ClientDataJSON:    []byte("{}"),
		AttestationObject: attObj,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported attestation format")
}

func TestVerifyAttestation_PackedSelfAttestation(t *testing.T) {
	verifier := cose.NewVerifier()
	builder := newAttestationBuilder(t)

	att := builder.packed(t, []byte(`{"type":"webauthn.create"}`),
		int(webauthncose.AlgES256), int(webauthncose.AlgES256))

	assert.NoError(t, verifier.VerifyAttestation(context.Background(), att))
}

func TestVerifyAttestation_PackedAlgMismatch(t *testing.T) {
	verifier := cose.NewVerifier()
	builder := newAttestationBuilder(t)

	// Statement declares RS256 but the credential key is ES256
	att := builder.packed(t, []byte(`{"type":"webauthn.create"}`),
		int(webauthncose.AlgRS256), int(webauthncose.AlgES256))

	err := verifier.VerifyAttestation(context.Background(), att)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match")
}

func TestVerifyAttestation_PackedTamperedSignature(t *testing.T) {
	verifier := cose.NewVerifier()
	builder := newAttestationBuilder(t)

	att := builder.packed(t, []byte(`{"type":"webauthn.create"}`),
		int(webauthncose.AlgES256), int(webauthncose.AlgES256))

	// Signing over different client data invalidates the signature
	att.ClientDataJSON = []byte(`{"type":"webauthn.create","tampered":true}`)

	assert.Error(t, verifier.VerifyAttestation(context.Background(), att))
}

func TestVerifyAssertion(t *testing.T) {
	verifier := cose.NewVerifier()
	builder := newAttestationBuilder(t)

	publicKey := builder.coseKey(t, int(webauthncose.AlgES256))
	payload := []byte("authenticator-data-and-client-data-hash")
	sig := builder.sign(t, payload)

	assert.NoError(t, verifier.VerifyAssertion(context.Background(), publicKey, payload, sig))
}

func TestVerifyAssertion_InvalidSignature(t *testing.T) {
	verifier := cose.NewVerifier()
	builder := newAttestationBuilder(t)

	publicKey := builder.coseKey(t, int(webauthncose.AlgES256))
	sig := builder.sign(t, []byte("the payload that was signed"))

	err := verifier.VerifyAssertion(context.Background(), publicKey, []byte("a different payload"), sig)
	assert.Error(t, err)
}

func TestVerifyAssertion_WrongKey(t *testing.T) {
	verifier := cose.NewVerifier()
	signer := newAttestationBuilder(t)
	other := newAttestationBuilder(t)

	payload := []byte("payload")
	sig := signer.sign(t, payload)

	err := verifier.VerifyAssertion(context.Background(),
		other.coseKey(t, int(webauthncose.AlgES256)), payload, sig)
	assert.Error(t, err)
}

func TestVerifyAssertion_GarbageKey(t *testing.T) {
	verifier := cose.NewVerifier()

	err := verifier.VerifyAssertion(context.Background(),
		[]byte{0x01, 0x02, 0x03}, []byte("payload"), []byte("sig"))
	assert.Error(t, err)
}
