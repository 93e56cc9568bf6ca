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

package http_test

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-passkey/pkg/passkey"
	"github.com/jeremyhahn/go-passkey/pkg/passkey/cose"
	passkeyhttp "github.com/jeremyhahn/go-passkey/pkg/passkey/http"
)

const (
	testRPID   = "example.com"
	testOrigin = "https://example.com"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	svc, err := passkey.NewService(passkey.ServiceParams{
		Config: &passkey.Config{
			RPID:          testRPID,
			RPDisplayName: "Example Corp",
			RPOrigins:     []string{testOrigin},
		},
		CredentialStore: passkey.NewMemoryCredentialStore(),
		ChallengeStore:  passkey.NewMemoryChallengeStore(),
		Verifier:        cose.NewVerifier(),
	})
	require.NoError(t, err)

	r := chi.NewRouter()
	passkeyhttp.MountChi(r, passkeyhttp.NewHandler(svc))
	return r
}

func postJSON(t *testing.T, router http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) passkeyhttp.ErrorResponse {
	t.Helper()
	var resp passkeyhttp.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

// browserCreationJSON shapes an attestation response the way the
// browser credentials API would serialize it.
func browserCreationJSON(t *testing.T, att *passkey.AttestationResponse) json.RawMessage {
	t.Helper()

	enc := base64.RawURLEncoding.EncodeToString
	doc := map[string]interface{}{
		"id":    enc(att.CredentialID),
		"rawId": enc(att.CredentialID),
		"type":  "public-key",
		"response": map[string]interface{}{
			"clientDataJSON":    enc(att.ClientDataJSON),
			"attestationObject": enc(att.AttestationObject),
			"transports":        att.Transports,
		},
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	return data
}

// browserAssertionJSON shapes an assertion response the way the browser
// credentials API would serialize it.
func browserAssertionJSON(t *testing.T, assertion *passkey.AssertionResponse) json.RawMessage {
	t.Helper()

	enc := base64.RawURLEncoding.EncodeToString
	doc := map[string]interface{}{
		"id":    enc(assertion.CredentialID),
		"rawId": enc(assertion.CredentialID),
		"type":  "public-key",
		"response": map[string]interface{}{
			"clientDataJSON":    enc(assertion.ClientDataJSON),
			"authenticatorData": enc(assertion.AuthenticatorData),
			"signature":         enc(assertion.Signature),
		},
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	return data
}

// beginRegistration posts to the begin endpoint and returns the decoded
// challenge bytes.
func beginRegistration(t *testing.T, router http.Handler, userID string) []byte {
	t.Helper()

	rec := postJSON(t, router, "/registration/begin", passkeyhttp.BeginRequest{UserID: userID})
	require.Equal(t, http.StatusOK, rec.Code)

	var opts passkeyhttp.CredentialCreationOptions
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&opts))

	challenge, err := base64.RawURLEncoding.DecodeString(opts.PublicKey.Challenge)
	require.NoError(t, err)
	return challenge
}

// registerUser walks a registration ceremony over HTTP.
func registerUser(t *testing.T, router http.Handler, userID string) *passkey.MockAuthenticator {
	t.Helper()

	challenge := beginRegistration(t, router, userID)

	auth, err := passkey.NewMockAuthenticator(testRPID)
	require.NoError(t, err)

	att, err := auth.Attest(challenge, testOrigin)
	require.NoError(t, err)

	rec := postJSON(t, router, "/registration/finish", passkeyhttp.FinishRequest{
		UserID:   userID,
		Response: browserCreationJSON(t, att),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	return auth
}

func TestBeginRegistration_HTTP(t *testing.T) {
	router := newTestRouter(t)

	rec := postJSON(t, router, "/registration/begin", passkeyhttp.BeginRequest{UserID: "alice"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var opts passkeyhttp.CredentialCreationOptions
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&opts))

	assert.Equal(t, testRPID, opts.PublicKey.RelyingParty.ID)
	assert.Equal(t, "Example Corp", opts.PublicKey.RelyingParty.Name)
	assert.Equal(t, "alice", opts.PublicKey.User.Name)
	assert.Equal(t, "none", opts.PublicKey.Attestation)
	assert.Equal(t, 120000, opts.PublicKey.Timeout)
	require.Len(t, opts.PublicKey.PubKeyCredParams, 2)

	challenge, err := base64.RawURLEncoding.DecodeString(opts.PublicKey.Challenge)
	require.NoError(t, err)
	assert.Len(t, challenge, passkey.DefaultChallengeSize)
}

func TestBeginRegistration_MissingUserID(t *testing.T) {
	router := newTestRouter(t)

	rec := postJSON(t, router, "/registration/begin", passkeyhttp.BeginRequest{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, passkeyhttp.ErrorCodeInvalidRequest, decodeError(t, rec).Error)
}

func TestBeginRegistration_MalformedBody(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/registration/begin", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, passkeyhttp.ErrorCodeInvalidRequest, decodeError(t, rec).Error)
}

func TestBeginRegistration_AlreadyRegistered_HTTP(t *testing.T) {
	router := newTestRouter(t)

	registerUser(t, router, "alice")

	rec := postJSON(t, router, "/registration/begin", passkeyhttp.BeginRequest{UserID: "alice"})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, passkeyhttp.ErrorCodeAlreadyRegistered, decodeError(t, rec).Error)
}

func TestFinishRegistration_HTTP(t *testing.T) {
	router := newTestRouter(t)

	challenge := beginRegistration(t, router, "alice")

	auth, err := passkey.NewMockAuthenticator(testRPID)
	require.NoError(t, err)
	att, err := auth.Attest(challenge, testOrigin)
	require.NoError(t, err)

	rec := postJSON(t, router, "/registration/finish", passkeyhttp.FinishRequest{
		UserID:   "alice",
		Response: browserCreationJSON(t, att),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp passkeyhttp.FinishResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Verified)
	assert.Equal(t, "alice", resp.UserID)
}

func TestFinishRegistration_NoChallenge_HTTP(t *testing.T) {
	router := newTestRouter(t)

	auth, err := passkey.NewMockAuthenticator(testRPID)
	require.NoError(t, err)
	att, err := auth.Attest(make([]byte, 32), testOrigin)
	require.NoError(t, err)

	rec := postJSON(t, router, "/registration/finish", passkeyhttp.FinishRequest{
		UserID:   "alice",
		Response: browserCreationJSON(t, att),
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, passkeyhttp.ErrorCodeNoChallenge, decodeError(t, rec).Error)
}

func TestFinishRegistration_InvalidCredentialJSON(t *testing.T) {
	router := newTestRouter(t)

	beginRegistration(t, router, "alice")

	rec := postJSON(t, router, "/registration/finish", passkeyhttp.FinishRequest{
		UserID:   "alice",
		Response: json.RawMessage(`{"id":""}`),
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, passkeyhttp.ErrorCodeInvalidRequest, decodeError(t, rec).Error)
}

func TestFinishRegistration_WrongOrigin_HTTP(t *testing.T) {
	router := newTestRouter(t)

	challenge := beginRegistration(t, router, "alice")

	auth, err := passkey.NewMockAuthenticator(testRPID)
	require.NoError(t, err)
	att, err := auth.Attest(challenge, "https://evil.example.net")
	require.NoError(t, err)

	rec := postJSON(t, router, "/registration/finish", passkeyhttp.FinishRequest{
		UserID:   "alice",
		Response: browserCreationJSON(t, att),
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, passkeyhttp.ErrorCodeVerificationFailed, decodeError(t, rec).Error)
}

func TestFinishRegistration_DuplicateCredential_HTTP(t *testing.T) {
	router := newTestRouter(t)

	auth := registerUser(t, router, "alice")

	challenge := beginRegistration(t, router, "bob")

	cloned, err := passkey.NewMockAuthenticator(testRPID,
		passkey.WithCredentialID(auth.CredentialID))
	require.NoError(t, err)
	att, err := cloned.Attest(challenge, testOrigin)
	require.NoError(t, err)

	rec := postJSON(t, router, "/registration/finish", passkeyhttp.FinishRequest{
		UserID:   "bob",
		Response: browserCreationJSON(t, att),
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, passkeyhttp.ErrorCodeDuplicateCredential, decodeError(t, rec).Error)
}

func TestBeginLogin_HTTP(t *testing.T) {
	router := newTestRouter(t)

	auth := registerUser(t, router, "alice")

	rec := postJSON(t, router, "/login/begin", passkeyhttp.BeginRequest{UserID: "alice"})
	require.Equal(t, http.StatusOK, rec.Code)

	var opts passkeyhttp.CredentialRequestOptions
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&opts))

	assert.Equal(t, testRPID, opts.PublicKey.RelyingPartyID)
	assert.Equal(t, "preferred", opts.PublicKey.UserVerification)
	require.Len(t, opts.PublicKey.AllowCredentials, 1)
	assert.Equal(t, base64.RawURLEncoding.EncodeToString(auth.CredentialID),
		opts.PublicKey.AllowCredentials[0].ID)
	assert.Equal(t, []string{"usb"}, opts.PublicKey.AllowCredentials[0].Transports)
}

func TestBeginLogin_UnknownUser_HTTP(t *testing.T) {
	router := newTestRouter(t)

	rec := postJSON(t, router, "/login/begin", passkeyhttp.BeginRequest{UserID: "nobody"})
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, passkeyhttp.ErrorCodeUserNotFound, decodeError(t, rec).Error)
}

func TestBeginLogin_NoCredentials_HTTP(t *testing.T) {
	router := newTestRouter(t)

	beginRegistration(t, router, "alice")

	rec := postJSON(t, router, "/login/begin", passkeyhttp.BeginRequest{UserID: "alice"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, passkeyhttp.ErrorCodeNoCredentials, decodeError(t, rec).Error)
}

func TestFinishLogin_HTTP(t *testing.T) {
	router := newTestRouter(t)

	auth := registerUser(t, router, "alice")

	rec := postJSON(t, router, "/login/begin", passkeyhttp.BeginRequest{UserID: "alice"})
	require.Equal(t, http.StatusOK, rec.Code)

	var opts passkeyhttp.CredentialRequestOptions
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&opts))
	challenge, err := base64.RawURLEncoding.DecodeString(opts.PublicKey.Challenge)
	require.NoError(t, err)

	assertion, err := auth.Assert(challenge, testOrigin)
	require.NoError(t, err)

	rec = postJSON(t, router, "/login/finish", passkeyhttp.FinishRequest{
		UserID:   "alice",
		Response: browserAssertionJSON(t, assertion),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp passkeyhttp.FinishResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Verified)
}

func TestFinishLogin_Replay_HTTP(t *testing.T) {
	router := newTestRouter(t)

	auth := registerUser(t, router, "alice")

	rec := postJSON(t, router, "/login/begin", passkeyhttp.BeginRequest{UserID: "alice"})
	require.Equal(t, http.StatusOK, rec.Code)

	var opts passkeyhttp.CredentialRequestOptions
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&opts))
	challenge, err := base64.RawURLEncoding.DecodeString(opts.PublicKey.Challenge)
	require.NoError(t, err)

	assertion, err := auth.Assert(challenge, testOrigin)
	require.NoError(t, err)
	body := browserAssertionJSON(t, assertion)

	rec = postJSON(t, router, "/login/finish", passkeyhttp.FinishRequest{UserID: "alice", Response: body})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(t, router, "/login/finish", passkeyhttp.FinishRequest{UserID: "alice", Response: body})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, passkeyhttp.ErrorCodeNoChallenge, decodeError(t, rec).Error)
}

func TestFinishLogin_CloneDetected_HTTP(t *testing.T) {
	router := newTestRouter(t)

	auth := registerUser(t, router, "alice")

	login := func() *httptest.ResponseRecorder {
		rec := postJSON(t, router, "/login/begin", passkeyhttp.BeginRequest{UserID: "alice"})
		require.Equal(t, http.StatusOK, rec.Code)

		var opts passkeyhttp.CredentialRequestOptions
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&opts))
		challenge, err := base64.RawURLEncoding.DecodeString(opts.PublicKey.Challenge)
		require.NoError(t, err)

		assertion, err := auth.Assert(challenge, testOrigin)
		require.NoError(t, err)

		return postJSON(t, router, "/login/finish", passkeyhttp.FinishRequest{
			UserID:   "alice",
			Response: browserAssertionJSON(t, assertion),
		})
	}

	require.Equal(t, http.StatusOK, login().Code)

	// Replayed stale counter must map to its own error code
	auth.SetSignCount(0)
	rec := login()
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, passkeyhttp.ErrorCodeClonedAuthenticator, decodeError(t, rec).Error)
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/registration/begin", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandler_Routes(t *testing.T) {
	svc, err := passkey.NewService(passkey.ServiceParams{
		Config: &passkey.Config{
			RPID:          testRPID,
			RPDisplayName: "Example Corp",
			RPOrigins:     []string{testOrigin},
		},
		CredentialStore: passkey.NewMemoryCredentialStore(),
		ChallengeStore:  passkey.NewMemoryChallengeStore(),
		Verifier:        cose.NewVerifier(),
	})
	require.NoError(t, err)

	routes := passkeyhttp.NewHandler(svc).Routes()
	require.Len(t, routes, 4)
	for _, route := range routes {
		assert.Equal(t, "POST", route.Method)
		assert.NotNil(t, route.Handler)
	}
}
