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

package http

import (
	"encoding/base64"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"

	"github.com/jeremyhahn/go-passkey/pkg/passkey"
)

// AttestationFromProtocol converts a parsed browser registration
// response into the engine's attestation form.
func AttestationFromProtocol(parsed *protocol.ParsedCredentialCreationData) *passkey.AttestationResponse {
	transports := make([]string, 0, len(parsed.Raw.AttestationResponse.Transports))
	transports = append(transports, parsed.Raw.AttestationResponse.Transports...)

	return &passkey.AttestationResponse{
		CredentialID:      parsed.RawID,
		PublicKey:         parsed.Response.AttestationObject.AuthData.AttData.CredentialPublicKey,
		Transports:        transports,
		ClientDataJSON:    parsed.Raw.AttestationResponse.ClientDataJSON,
		AuthenticatorData: parsed.Response.AttestationObject.RawAuthData,
		AttestationObject: parsed.Raw.AttestationResponse.AttestationObject,
	}
}

// AssertionFromProtocol converts a parsed browser login response into
// the engine's assertion form.
func AssertionFromProtocol(parsed *protocol.ParsedCredentialAssertionData) *passkey.AssertionResponse {
	return &passkey.AssertionResponse{
		CredentialID:      parsed.RawID,
		ClientDataJSON:    parsed.Raw.AssertionResponse.ClientDataJSON,
		AuthenticatorData: parsed.Raw.AssertionResponse.AuthenticatorData,
		Signature:         parsed.Raw.AssertionResponse.Signature,
	}
}

// CreationOptionsFromEngine converts engine registration options into
// the browser-shaped document.
func CreationOptionsFromEngine(opts *passkey.RegistrationOptions, timeoutMillis int) *CredentialCreationOptions {
	exclude := make([]CredentialDescriptor, 0, len(opts.ExcludeCredentialIDs))
	for _, id := range opts.ExcludeCredentialIDs {
		exclude = append(exclude, CredentialDescriptor{
			Type: "public-key",
			ID:   base64.RawURLEncoding.EncodeToString(id),
		})
	}

	return &CredentialCreationOptions{
		PublicKey: PublicKeyCredentialCreationOptions{
			Challenge: base64.RawURLEncoding.EncodeToString(opts.Challenge),
			RelyingParty: RelyingPartyEntity{
				ID:   opts.RelyingPartyID,
				Name: opts.RelyingPartyName,
			},
			User: UserEntity{
				ID:          base64.RawURLEncoding.EncodeToString([]byte(opts.UserID)),
				Name:        opts.UserID,
				DisplayName: opts.UserID,
			},
			PubKeyCredParams: []CredentialParameter{
				{Type: "public-key", Alg: int(webauthncose.AlgES256)},
				{Type: "public-key", Alg: int(webauthncose.AlgRS256)},
			},
			Timeout:            timeoutMillis,
			ExcludeCredentials: exclude,
			Attestation:        "none",
		},
	}
}

// RequestOptionsFromEngine converts engine authentication options into
// the browser-shaped document.
func RequestOptionsFromEngine(opts *passkey.AuthenticationOptions, timeoutMillis int) *CredentialRequestOptions {
	allow := make([]CredentialDescriptor, 0, len(opts.AllowCredentials))
	for _, cred := range opts.AllowCredentials {
		allow = append(allow, CredentialDescriptor{
			Type:       "public-key",
			ID:         base64.RawURLEncoding.EncodeToString(cred.ID),
			Transports: cred.Transports,
		})
	}

	return &CredentialRequestOptions{
		PublicKey: PublicKeyCredentialRequestOptions{
			Challenge:        base64.RawURLEncoding.EncodeToString(opts.Challenge),
			RelyingPartyID:   opts.RelyingPartyID,
			Timeout:          timeoutMillis,
			AllowCredentials: allow,
			UserVerification: "preferred",
		},
	}
}
