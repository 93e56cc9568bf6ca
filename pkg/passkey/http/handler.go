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

// Package http exposes the ceremony engine over HTTP with handlers
// that can be mounted on any router.
package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/jeremyhahn/go-passkey/pkg/passkey"
)

// Handler provides HTTP handlers for the four ceremony operations.
type Handler struct {
	service *passkey.Service
	logger  *slog.Logger
}

// NewHandler creates a new ceremony HTTP handler.
func NewHandler(service *passkey.Service) *Handler {
	return &Handler{
		service: service,
		logger:  slog.Default(),
	}
}

// WithLogger sets a custom logger for the handler.
func (h *Handler) WithLogger(logger *slog.Logger) *Handler {
	h.logger = logger
	return h
}

// BeginRegistration handles POST /registration/begin
//
// Request body:
//
//	{
//	    "user_id": "alice"
//	}
//
// Response: browser-shaped CredentialCreationOptions.
func (h *Handler) BeginRegistration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	var req BeginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "user_id is required")
		return
	}

	options, err := h.service.BeginRegistration(r.Context(), req.UserID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, CreationOptionsFromEngine(options, h.timeoutMillis()))
}

// FinishRegistration handles POST /registration/finish
//
// Request body:
//
//	{
//	    "user_id": "alice",
//	    "response": { ... PublicKeyCredential from the browser ... }
//	}
//
// Response: FinishResponse.
func (h *Handler) FinishRegistration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	var req FinishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "user_id is required")
		return
	}

	parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(req.Response))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid attestation response")
		return
	}

	result, err := h.service.FinishRegistration(r.Context(), req.UserID, AttestationFromProtocol(parsed))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, FinishResponse{
		Verified: result.Verified,
		UserID:   req.UserID,
	})
}

// BeginLogin handles POST /login/begin
//
// Request body:
//
//	{
//	    "user_id": "alice"
//	}
//
// Response: browser-shaped CredentialRequestOptions.
func (h *Handler) BeginLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	var req BeginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "user_id is required")
		return
	}

	options, err := h.service.BeginAuthentication(r.Context(), req.UserID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, RequestOptionsFromEngine(options, h.timeoutMillis()))
}

// FinishLogin handles POST /login/finish
//
// Request body:
//
//	{
//	    "user_id": "alice",
//	    "response": { ... PublicKeyCredential from the browser ... }
//	}
//
// Response: FinishResponse.
func (h *Handler) FinishLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	var req FinishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "user_id is required")
		return
	}

	parsed, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(req.Response))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid assertion response")
		return
	}

	result, err := h.service.FinishAuthentication(r.Context(), req.UserID, AssertionFromProtocol(parsed))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, FinishResponse{
		Verified: result.Verified,
		UserID:   req.UserID,
	})
}

// timeoutMillis derives the client-facing ceremony timeout from the
// challenge TTL.
func (h *Handler) timeoutMillis() int {
	return int(h.service.Config().ChallengeTTL.Milliseconds())
}

// handleServiceError maps engine errors to HTTP responses. Cloned
// authenticator detection gets its own code so operators can alert on
// it separately from plain verification failures.
func (h *Handler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, passkey.ErrUserAlreadyRegistered):
		h.writeError(w, http.StatusConflict, ErrorCodeAlreadyRegistered, "user already has a registered credential")
	case errors.Is(err, passkey.ErrUserNotFound):
		h.writeError(w, http.StatusNotFound, ErrorCodeUserNotFound, "user not found")
	case errors.Is(err, passkey.ErrNoCredentials):
		h.writeError(w, http.StatusBadRequest, ErrorCodeNoCredentials, "user has no registered credentials")
	case errors.Is(err, passkey.ErrCredentialNotFound):
		h.writeError(w, http.StatusNotFound, ErrorCodeUnknownCredential, "credential not recognized for this user")
	case errors.Is(err, passkey.ErrDuplicateCredential):
		h.writeError(w, http.StatusConflict, ErrorCodeDuplicateCredential, "credential is already registered")
	case errors.Is(err, passkey.ErrNoChallenge):
		h.writeError(w, http.StatusBadRequest, ErrorCodeNoChallenge, "no pending challenge")
	case errors.Is(err, passkey.ErrChallengeExpired):
		h.writeError(w, http.StatusBadRequest, ErrorCodeChallengeExpired, "challenge expired")
	case errors.Is(err, passkey.ErrCloneDetected):
		h.writeError(w, http.StatusUnauthorized, ErrorCodeClonedAuthenticator, "authenticator clone detected")
	case errors.Is(err, passkey.ErrVerificationFailed):
		h.writeError(w, http.StatusUnauthorized, ErrorCodeVerificationFailed, "verification failed")
	case errors.Is(err, passkey.ErrStoreUnavailable):
		h.writeError(w, http.StatusServiceUnavailable, ErrorCodeStorageUnavailable, "storage unavailable")
	default:
		h.writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal server error")
	}
}

// writeJSON writes a JSON response.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Response headers already written, can only log the error
		h.logger.Error("failed to encode JSON response",
			"error", err,
			"status", status)
	}
}

// writeError writes an error response.
func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: message,
	})
}
