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

package rest

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-passkey/internal/config"
	"github.com/jeremyhahn/go-passkey/pkg/passkey"
	passkeyhttp "github.com/jeremyhahn/go-passkey/pkg/passkey/http"
)

const (
	testRPID   = "example.com"
	testOrigin = "https://example.com"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.RelyingParty.ID = testRPID
	cfg.RelyingParty.DisplayName = "Example Corp"
	cfg.RelyingParty.Origins = []string{testOrigin}
	cfg.RateLimit.Enabled = false
	return cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()

	server, err := NewServer(cfg, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, server.Stop(context.Background()))
	})
	return server
}

func postJSON(t *testing.T, handler http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestNewServer_NilConfig(t *testing.T) {
	_, err := NewServer(nil, testLogger())
	assert.Error(t, err)
}

func TestNewServer_UnknownStorageBackend(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Backend = "bolt"

	_, err := NewServer(cfg, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown storage backend")
}

func TestNewServer_StartsResourceCollector(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Enabled = true

	server := newTestServer(t, cfg)
	assert.NotNil(t, server.collector)
}

func TestNewServer_MetricsDisabled_NoCollector(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Enabled = false

	server := newTestServer(t, cfg)
	assert.Nil(t, server.collector)
}

func TestServerAddr(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 9443

	server := newTestServer(t, cfg)
	assert.Equal(t, "127.0.0.1:9443", server.Addr())
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Status string          `json:"status"`
		Uptime string          `json:"uptime"`
		Checks json.RawMessage `json:"checks"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "healthy", body.Status)
	assert.NotEmpty(t, body.Uptime)
	assert.NotEmpty(t, body.Checks)
}

func TestHealthEndpoint_Head(t *testing.T) {
	server := newTestServer(t, testConfig())

	req := httptest.NewRequest(http.MethodHead, "/healthz", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
}

func TestHealthEndpoint_FileBackend(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Backend = "file"
	cfg.Storage.Path = t.TempDir()

	server := newTestServer(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status string `json:"status"`
		Checks []struct {
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"checks"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "healthy", body.Status)
	require.Len(t, body.Checks, 1)
	assert.Equal(t, "storage", body.Checks[0].Name)
	assert.Equal(t, "healthy", body.Checks[0].Status)
}

func TestMetricsEndpoint(t *testing.T) {
	server := newTestServer(t, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "passkey_")
}

func TestFullCeremonyOverHTTP(t *testing.T) {
	server := newTestServer(t, testConfig())
	handler := server.Handler()
	enc := base64.RawURLEncoding.EncodeToString

	// Begin registration
	rec := postJSON(t, handler, "/api/v1/webauthn/registration/begin",
		passkeyhttp.BeginRequest{UserID: "alice"})
	require.Equal(t, http.StatusOK, rec.Code)

	var creation passkeyhttp.CredentialCreationOptions
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&creation))
	challenge, err := base64.RawURLEncoding.DecodeString(creation.PublicKey.Challenge)
	require.NoError(t, err)

	// Finish registration with a simulated authenticator
	auth, err := passkey.NewMockAuthenticator(testRPID)
	require.NoError(t, err)
	att, err := auth.Attest(challenge, testOrigin)
	require.NoError(t, err)

	creationDoc, err := json.Marshal(map[string]interface{}{
		"id":    enc(att.CredentialID),
		"rawId": enc(att.CredentialID),
		"type":  "public-key",
		"response": map[string]interface{}{
			"clientDataJSON":    enc(att.ClientDataJSON),
			"attestationObject": enc(att.AttestationObject),
			"transports":        att.Transports,
		},
	})
	require.NoError(t, err)

	rec = postJSON(t, handler, "/api/v1/webauthn/registration/finish",
		passkeyhttp.FinishRequest{UserID: "alice", Response: creationDoc})
	require.Equal(t, http.StatusOK, rec.Code)

	// Begin login
	rec = postJSON(t, handler, "/api/v1/webauthn/login/begin",
		passkeyhttp.BeginRequest{UserID: "alice"})
	require.Equal(t, http.StatusOK, rec.Code)

	var request passkeyhttp.CredentialRequestOptions
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&request))
	challenge, err = base64.RawURLEncoding.DecodeString(request.PublicKey.Challenge)
	require.NoError(t, err)

	// Finish login
	assertion, err := auth.Assert(challenge, testOrigin)
	require.NoError(t, err)

	assertionDoc, err := json.Marshal(map[string]interface{}{
		"id":    enc(assertion.CredentialID),
		"rawId": enc(assertion.CredentialID),
		"type":  "public-key",
		"response": map[string]interface{}{
			"clientDataJSON":    enc(assertion.ClientDataJSON),
			"authenticatorData": enc(assertion.AuthenticatorData),
			"signature":         enc(assertion.Signature),
		},
	})
	require.NoError(t, err)

	rec = postJSON(t, handler, "/api/v1/webauthn/login/finish",
		passkeyhttp.FinishRequest{UserID: "alice", Response: assertionDoc})
	require.Equal(t, http.StatusOK, rec.Code)

	var finish passkeyhttp.FinishResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&finish))
	assert.True(t, finish.Verified)
	assert.Equal(t, "alice", finish.UserID)
}

func TestCeremonyRoutesAreRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.RequestsPerMin = 1

	server := newTestServer(t, cfg)
	handler := server.Handler()

	rec := postJSON(t, handler, "/api/v1/webauthn/registration/begin",
		passkeyhttp.BeginRequest{UserID: "alice"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(t, handler, "/api/v1/webauthn/registration/begin",
		passkeyhttp.BeginRequest{UserID: "bob"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRateLimitSparesOperationalEndpoints(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.RequestsPerMin = 1

	server := newTestServer(t, cfg)

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestBuildService_MemoryBackendHasNoStorageCheck(t *testing.T) {
	bundle, err := BuildService(testConfig(), testLogger())
	require.NoError(t, err)
	defer bundle.StopSweep()
	defer bundle.Close()

	assert.NotNil(t, bundle.Service)
	assert.Nil(t, bundle.StorageCheck)
}

func TestBuildService_FileBackendStorageCheck(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Backend = "file"
	cfg.Storage.Path = t.TempDir()

	bundle, err := BuildService(cfg, testLogger())
	require.NoError(t, err)
	defer bundle.StopSweep()
	defer bundle.Close()

	require.NotNil(t, bundle.StorageCheck)

	result := bundle.StorageCheck(context.Background())
	assert.Equal(t, "storage", result.Name)
	assert.Equal(t, "healthy", string(result.Status))
}
