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

import "encoding/json"

// BeginRequest is the request body for starting either ceremony.
type BeginRequest struct {
	// UserID is the caller-chosen user identity (required).
	UserID string `json:"user_id"`
}

// FinishRequest is the request body for finishing either ceremony. The
// response field carries the authenticator's credential JSON exactly as
// the browser API produced it.
type FinishRequest struct {
	// UserID is the caller-chosen user identity (required).
	UserID string `json:"user_id"`

	// Response is the raw PublicKeyCredential JSON from the client.
	Response json.RawMessage `json:"response"`
}

// RelyingPartyEntity describes the Relying Party to the client.
type RelyingPartyEntity struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// UserEntity describes the registering user to the client.
type UserEntity struct {
	// ID is the base64url-encoded user handle.
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

// CredentialParameter names an acceptable credential algorithm.
type CredentialParameter struct {
	Type string `json:"type"`
	Alg  int    `json:"alg"`
}

// CredentialDescriptor identifies an existing credential.
type CredentialDescriptor struct {
	Type string `json:"type"`

	// ID is the base64url-encoded credential ID.
	ID string `json:"id"`

	Transports []string `json:"transports,omitempty"`
}

// PublicKeyCredentialCreationOptions is the browser-shaped options
// document for navigator.credentials.create.
type PublicKeyCredentialCreationOptions struct {
	// Challenge is base64url-encoded.
	Challenge          string                 `json:"challenge"`
	RelyingParty       RelyingPartyEntity     `json:"rp"`
	User               UserEntity             `json:"user"`
	PubKeyCredParams   []CredentialParameter  `json:"pubKeyCredParams"`
	Timeout            int                    `json:"timeout,omitempty"`
	ExcludeCredentials []CredentialDescriptor `json:"excludeCredentials,omitempty"`
	Attestation        string                 `json:"attestation,omitempty"`
}

// CredentialCreationOptions wraps the creation options under the
// "publicKey" key, matching the browser API shape.
type CredentialCreationOptions struct {
	PublicKey PublicKeyCredentialCreationOptions `json:"publicKey"`
}

// PublicKeyCredentialRequestOptions is the browser-shaped options
// document for navigator.credentials.get.
type PublicKeyCredentialRequestOptions struct {
	// Challenge is base64url-encoded.
	Challenge        string                 `json:"challenge"`
	RelyingPartyID   string                 `json:"rpId"`
	Timeout          int                    `json:"timeout,omitempty"`
	AllowCredentials []CredentialDescriptor `json:"allowCredentials,omitempty"`
	UserVerification string                 `json:"userVerification,omitempty"`
}

// CredentialRequestOptions wraps the request options under the
// "publicKey" key.
type CredentialRequestOptions struct {
	PublicKey PublicKeyCredentialRequestOptions `json:"publicKey"`
}

// FinishResponse is returned after a successful finish operation.
type FinishResponse struct {
	Verified bool `json:"verified"`

	// UserID echoes the authenticated identity.
	UserID string `json:"user_id"`
}

// ErrorResponse is the response format for errors.
type ErrorResponse struct {
	// Error is the error code.
	Error string `json:"error"`

	// Message is a human-readable error message.
	Message string `json:"message"`
}

// Error codes returned in ErrorResponse.
const (
	ErrorCodeInvalidRequest      = "invalid_request"
	ErrorCodeUserNotFound        = "user_not_found"
	ErrorCodeAlreadyRegistered   = "already_registered"
	ErrorCodeNoCredentials       = "no_credentials"
	ErrorCodeUnknownCredential   = "unknown_credential"
	ErrorCodeDuplicateCredential = "duplicate_credential"
	ErrorCodeNoChallenge         = "no_challenge"
	ErrorCodeChallengeExpired    = "challenge_expired"
	ErrorCodeVerificationFailed  = "verification_failed"
	ErrorCodeClonedAuthenticator = "cloned_authenticator"
	ErrorCodeStorageUnavailable  = "storage_unavailable"
	ErrorCodeInternalError       = "internal_error"
)
