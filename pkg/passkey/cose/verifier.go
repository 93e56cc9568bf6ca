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

// Package cose implements the passkey.SignatureVerifier interface using
// COSE key parsing and signature verification from the go-webauthn
// protocol libraries. It supports the "none" and "packed" attestation
// formats and EC2, RSA and OKP credential keys.
package cose

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/x509"
	"fmt"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncbor"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"

	"github.com/jeremyhahn/go-passkey/pkg/passkey"
)

// Verifier performs COSE public key parsing and signature verification.
// The zero value is not usable; create one with NewVerifier.
type Verifier struct{}

// NewVerifier creates a COSE signature verifier.
func NewVerifier() *Verifier {
	return &Verifier{}
}

// VerifyAttestation checks the attestation object's internal
// consistency and, for formats that carry one, its signature.
func (v *Verifier) VerifyAttestation(ctx context.Context, att *passkey.AttestationResponse) error {
	var ao protocol.AttestationObject
	if err := webauthncbor.Unmarshal(att.AttestationObject, &ao); err != nil {
		return fmt.Errorf("decode attestation object: %w", err)
	}
	if err := ao.AuthData.Unmarshal(ao.RawAuthData); err != nil {
		return fmt.Errorf("decode authenticator data: %w", err)
	}

	if !ao.AuthData.Flags.HasAttestedCredentialData() {
		return fmt.Errorf("attested credential data flag not set")
	}
	if !bytes.Equal(ao.AuthData.AttData.CredentialID, att.CredentialID) {
		return fmt.Errorf("credential id mismatch between response and attestation object")
	}

	// The key must parse regardless of attestation format; a credential
	// we cannot later verify assertions for is useless.
	if _, err := webauthncose.ParsePublicKey(ao.AuthData.AttData.CredentialPublicKey); err != nil {
		return fmt.Errorf("parse credential public key: %w", err)
	}

	clientDataHash := sha256.Sum256(att.ClientDataJSON)

	switch ao.Format {
	case "none":
		if len(ao.AttStatement) > 0 {
			return fmt.Errorf("attestation format none with non-empty statement")
		}
		return nil
	case "packed":
		return v.verifyPacked(&ao, clientDataHash[:])
	default:
		return fmt.Errorf("unsupported attestation format %q", ao.Format)
	}
}

// VerifyAssertion verifies an assertion signature over the signed
// payload using the stored COSE public key.
func (v *Verifier) VerifyAssertion(ctx context.Context, publicKey, signedPayload, signature []byte) error {
	key, err := webauthncose.ParsePublicKey(publicKey)
	if err != nil {
		return fmt.Errorf("parse credential public key: %w", err)
	}

	valid, err := verifyWithKey(key, signedPayload, signature)
	if err != nil {
		return fmt.Errorf("verify assertion signature: %w", err)
	}
	if !valid {
		return fmt.Errorf("assertion signature invalid")
	}
	return nil
}

// verifyPacked handles the packed attestation statement: either
// self-attestation with the credential key, or a certificate chain.
func (v *Verifier) verifyPacked(ao *protocol.AttestationObject, clientDataHash []byte) error {
	alg, ok := ao.AttStatement["alg"].(int64)
	if !ok {
		return fmt.Errorf("packed attestation missing alg")
	}
	sig, ok := ao.AttStatement["sig"].([]byte)
	if !ok {
		return fmt.Errorf("packed attestation missing sig")
	}

	signedData := make([]byte, 0, len(ao.RawAuthData)+len(clientDataHash))
	signedData = append(signedData, ao.RawAuthData...)
	signedData = append(signedData, clientDataHash...)

	x5c, hasChain := ao.AttStatement["x5c"].([]any)
	if !hasChain {
		// Self-attestation: signed with the credential key itself, and
		// the declared alg must match the key's.
		key, err := webauthncose.ParsePublicKey(ao.AuthData.AttData.CredentialPublicKey)
		if err != nil {
			return fmt.Errorf("parse credential public key: %w", err)
		}
		if keyAlg := coseAlgorithm(key); keyAlg != 0 && keyAlg != alg {
			return fmt.Errorf("packed attestation alg %d does not match credential key alg %d", alg, keyAlg)
		}
		valid, err := verifyWithKey(key, signedData, sig)
		if err != nil {
			return fmt.Errorf("verify self attestation: %w", err)
		}
		if !valid {
			return fmt.Errorf("self attestation signature invalid")
		}
		return nil
	}

	if len(x5c) == 0 {
		return fmt.Errorf("packed attestation x5c is empty")
	}
	certBytes, ok := x5c[0].([]byte)
	if !ok {
		return fmt.Errorf("packed attestation x5c leaf is not a byte string")
	}
	cert, err := x509.ParseCertificate(certBytes)
	if err != nil {
		return fmt.Errorf("parse attestation certificate: %w", err)
	}

	sigAlg := webauthncose.SigAlgFromCOSEAlg(webauthncose.COSEAlgorithmIdentifier(alg))
	if err := cert.CheckSignature(sigAlg, signedData, sig); err != nil {
		return fmt.Errorf("verify attestation certificate signature: %w", err)
	}
	return nil
}

// verifyWithKey dispatches signature verification on the parsed COSE
// key type.
func verifyWithKey(key any, data, sig []byte) (bool, error) {
	switch pk := key.(type) {
	case webauthncose.EC2PublicKeyData:
		return pk.Verify(data, sig)
	case *webauthncose.EC2PublicKeyData:
		return pk.Verify(data, sig)
	case webauthncose.RSAPublicKeyData:
		return pk.Verify(data, sig)
	case *webauthncose.RSAPublicKeyData:
		return pk.Verify(data, sig)
	case webauthncose.OKPPublicKeyData:
		return pk.Verify(data, sig)
	case *webauthncose.OKPPublicKeyData:
		return pk.Verify(data, sig)
	default:
		return false, fmt.Errorf("unsupported COSE key type %T", key)
	}
}

// coseAlgorithm extracts the declared algorithm from a parsed key, or
// zero when the type is unknown.
func coseAlgorithm(key any) int64 {
	switch pk := key.(type) {
	case webauthncose.EC2PublicKeyData:
		return pk.Algorithm
	case *webauthncose.EC2PublicKeyData:
		return pk.Algorithm
	case webauthncose.RSAPublicKeyData:
		return pk.Algorithm
	case *webauthncose.RSAPublicKeyData:
		return pk.Algorithm
	case webauthncose.OKPPublicKeyData:
		return pk.Algorithm
	case *webauthncose.OKPPublicKeyData:
		return pk.Algorithm
	default:
		return 0
	}
}
