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
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/jeremyhahn/go-passkey/pkg/metrics"
)

// Service is the ceremony engine. It orchestrates the four ceremony
// operations against the credential store, the challenge store and the
// external signature verifier. Each ceremony is a single
// begin/finish round trip with no server-side state beyond the one
// pending challenge per user.
type Service struct {
	config     *Config
	creds      CredentialStore
	challenges ChallengeStore
	verifier   SignatureVerifier
	logger     *slog.Logger
}

// ServiceParams contains dependencies for creating a ceremony engine.
type ServiceParams struct {
	// Config is the relying party configuration (required).
	Config *Config

	// CredentialStore is the credential persistence layer (required).
	CredentialStore CredentialStore

	// ChallengeStore holds pending challenges (required).
	ChallengeStore ChallengeStore

	// Verifier is the cryptographic verification capability (required).
	Verifier SignatureVerifier

	// Logger is an optional structured logger. Defaults to slog.Default.
	Logger *slog.Logger
}

// NewService creates a new ceremony engine with the provided dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if params.CredentialStore == nil {
		return nil, fmt.Errorf("credential store is required")
	}
	if params.ChallengeStore == nil {
		return nil, fmt.Errorf("challenge store is required")
	}
	if params.Verifier == nil {
		return nil, fmt.Errorf("signature verifier is required")
	}

	params.Config.SetDefaults()
	if err := params.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		config:     params.Config,
		creds:      params.CredentialStore,
		challenges: params.ChallengeStore,
		verifier:   params.Verifier,
		logger:     logger,
	}, nil
}

// BeginRegistration starts the registration ceremony. The user record
// is created if it does not exist; a user who already holds a
// credential is rejected with ErrUserAlreadyRegistered.
func (s *Service) BeginRegistration(ctx context.Context, userID string) (opts *RegistrationOptions, err error) {
	const op = "begin registration"
	defer recordCeremony(metrics.CeremonyRegistration, metrics.PhaseBegin, time.Now(), &err)

	if userID == "" {
		return nil, NewError(op, fmt.Errorf("user id is required"))
	}

	user, err := s.creds.GetUser(ctx, userID)
	if err != nil {
		if !IsUserNotFound(err) {
			return nil, WrapError(op, err)
		}
		user, err = s.creds.CreateUser(ctx, userID)
		if errors.Is(err, ErrUserExists) {
			// Lost the create race with a concurrent begin for the same
			// new user. The record exists now, so load it instead.
			user, err = s.creds.GetUser(ctx, userID)
		}
		if err != nil {
			return nil, WrapError(op, err)
		}
	}

	if len(user.Credentials) > 0 {
		return nil, NewError(op, ErrUserAlreadyRegistered)
	}

	challenge, err := s.challenges.Issue(ctx, userID, CeremonyRegistration)
	if err != nil {
		return nil, WrapError(op, err)
	}

	return &RegistrationOptions{
		Challenge:            challenge,
		UserID:               userID,
		RelyingPartyID:       s.config.RPID,
		RelyingPartyName:     s.config.RPDisplayName,
		ExcludeCredentialIDs: user.CredentialIDs(),
	}, nil
}

// FinishRegistration completes the registration ceremony. The pending
// challenge is consumed whether or not verification succeeds.
func (s *Service) FinishRegistration(ctx context.Context, userID string, att *AttestationResponse) (result *CeremonyResult, err error) {
	const op = "finish registration"
	defer recordCeremony(metrics.CeremonyRegistration, metrics.PhaseFinish, time.Now(), &err)

	challenge, err := s.challenges.Consume(ctx, userID, CeremonyRegistration)
	if err != nil {
		return nil, WrapError(op, err)
	}

	if err := s.verifyClientData(att.ClientDataJSON, protocol.CreateCeremony, challenge); err != nil {
		return nil, NewError(op, err)
	}

	authData, err := s.verifyAuthenticatorData(att.AuthenticatorData)
	if err != nil {
		return nil, NewError(op, err)
	}

	if err := s.verifier.VerifyAttestation(ctx, att); err != nil {
		s.logger.Debug("attestation verification failed",
			"user_id", userID,
			"error", err)
		return nil, NewError(op, ErrVerificationFailed)
	}

	cred := &Credential{
		ID:         append([]byte(nil), att.CredentialID...),
		PublicKey:  append([]byte(nil), att.PublicKey...),
		SignCount:  authData.Counter,
		Transports: append([]string(nil), att.Transports...),
		CreatedAt:  nowUTC(),
	}

	if err := s.creds.AddCredential(ctx, userID, cred); err != nil {
		// ErrDuplicateCredential must reach the caller: it indicates
		// authenticator reuse across identities.
		return nil, WrapError(op, err)
	}

	s.logger.Info("credential registered",
		"user_id", userID,
		"credential_id", base64.RawURLEncoding.EncodeToString(cred.ID))

	return &CeremonyResult{Verified: true}, nil
}

// BeginAuthentication starts the login ceremony for an enrolled user.
func (s *Service) BeginAuthentication(ctx context.Context, userID string) (opts *AuthenticationOptions, err error) {
	const op = "begin authentication"
	defer recordCeremony(metrics.CeremonyAuthentication, metrics.PhaseBegin, time.Now(), &err)

	user, err := s.creds.GetUser(ctx, userID)
	if err != nil {
		return nil, WrapError(op, err)
	}
	if len(user.Credentials) == 0 {
		return nil, NewError(op, ErrNoCredentials)
	}

	challenge, err := s.challenges.Issue(ctx, userID, CeremonyAuthentication)
	if err != nil {
		return nil, WrapError(op, err)
	}

	// Each allowed credential carries the transport hints captured at
	// registration so clients can route to the right authenticator.
	allow := make([]AllowedCredential, 0, len(user.Credentials))
	for _, cred := range user.Credentials {
		allow = append(allow, AllowedCredential{
			ID:         cred.ID,
			Transports: cred.Transports,
		})
	}

	return &AuthenticationOptions{
		Challenge:        challenge,
		RelyingPartyID:   s.config.RPID,
		AllowCredentials: allow,
	}, nil
}

// FinishAuthentication completes the login ceremony: challenge, origin
// and RP ID matching, delegated signature verification, then the
// clone-detection counter check.
func (s *Service) FinishAuthentication(ctx context.Context, userID string, assertion *AssertionResponse) (result *CeremonyResult, err error) {
	const op = "finish authentication"
	defer recordCeremony(metrics.CeremonyAuthentication, metrics.PhaseFinish, time.Now(), &err)

	challenge, err := s.challenges.Consume(ctx, userID, CeremonyAuthentication)
	if err != nil {
		return nil, WrapError(op, err)
	}

	// Scoped to this user's credential set: an ID enrolled under a
	// different user must not verify here.
	cred, err := s.creds.FindCredential(ctx, userID, assertion.CredentialID)
	if err != nil {
		return nil, WrapError(op, err)
	}

	if err := s.verifyClientData(assertion.ClientDataJSON, protocol.AssertCeremony, challenge); err != nil {
		return nil, NewError(op, err)
	}

	authData, err := s.verifyAuthenticatorData(assertion.AuthenticatorData)
	if err != nil {
		return nil, NewError(op, err)
	}

	clientDataHash := sha256.Sum256(assertion.ClientDataJSON)
	signedPayload := make([]byte, 0, len(assertion.AuthenticatorData)+len(clientDataHash))
	signedPayload = append(signedPayload, assertion.AuthenticatorData...)
	signedPayload = append(signedPayload, clientDataHash[:]...)

	if err := s.verifier.VerifyAssertion(ctx, cred.PublicKey, signedPayload, assertion.Signature); err != nil {
		s.logger.Debug("assertion verification failed",
			"user_id", userID,
			"error", err)
		return nil, NewError(op, ErrVerificationFailed)
	}

	// Clone detection. Authenticators that do not implement a counter
	// always report zero; for the rest the counter must advance.
	newCount := authData.Counter
	if newCount != 0 && newCount <= cred.SignCount {
		s.logger.Warn("sign counter did not advance, possible cloned authenticator",
			"user_id", userID,
			"credential_id", base64.RawURLEncoding.EncodeToString(cred.ID),
			"stored", cred.SignCount,
			"asserted", newCount)
		metrics.RecordCloneDetection()
		return nil, NewError(op, ErrCloneDetected)
	}

	if err := s.creds.UpdateSignCount(ctx, userID, cred.ID, newCount); err != nil {
		return nil, WrapError(op, err)
	}

	return &CeremonyResult{Verified: true}, nil
}

// Config returns the engine configuration.
func (s *Service) Config() *Config {
	return s.config
}

// verifyClientData checks ceremony type, byte-exact challenge match and
// origin membership against the raw client data JSON.
func (s *Service) verifyClientData(clientDataJSON []byte, ceremony protocol.CeremonyType, challenge []byte) error {
	var clientData protocol.CollectedClientData
	if err := json.Unmarshal(clientDataJSON, &clientData); err != nil {
		return ErrVerificationFailed
	}

	if clientData.Type != ceremony {
		return ErrVerificationFailed
	}

	claimed, err := base64.RawURLEncoding.DecodeString(clientData.Challenge)
	if err != nil {
		return ErrVerificationFailed
	}
	if subtle.ConstantTimeCompare(claimed, challenge) != 1 {
		return ErrVerificationFailed
	}

	if !s.config.OriginAllowed(clientData.Origin) {
		return ErrVerificationFailed
	}

	return nil
}

// verifyAuthenticatorData decodes raw authenticator data and checks the
// RP ID hash and user-presence flag.
func (s *Service) verifyAuthenticatorData(raw []byte) (*protocol.AuthenticatorData, error) {
	var authData protocol.AuthenticatorData
	if err := authData.Unmarshal(raw); err != nil {
		return nil, ErrVerificationFailed
	}

	rpIDHash := sha256.Sum256([]byte(s.config.RPID))
	if !bytes.Equal(authData.RPIDHash, rpIDHash[:]) {
		return nil, ErrVerificationFailed
	}

	if !authData.Flags.UserPresent() {
		return nil, ErrVerificationFailed
	}

	return &authData, nil
}

// recordCeremony reports one ceremony operation to the metrics package.
// Deferred with the operation start time; *err is read after the
// operation completes.
func recordCeremony(ceremony, phase string, start time.Time, err *error) {
	status := metrics.StatusSuccess
	if *err != nil {
		status = metrics.StatusError
		metrics.RecordError(ceremony, errorType(*err))
	}
	metrics.RecordCeremony(ceremony, phase, status, time.Since(start).Seconds())
}

// errorType maps an engine error to its error_type metric label.
func errorType(err error) string {
	switch {
	case errors.Is(err, ErrUserAlreadyRegistered):
		return "already_registered"
	case errors.Is(err, ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, ErrNoCredentials):
		return "no_credentials"
	case errors.Is(err, ErrCredentialNotFound):
		return "credential_not_found"
	case errors.Is(err, ErrDuplicateCredential):
		return "duplicate_credential"
	case errors.Is(err, ErrNoChallenge):
		return "no_challenge"
	case errors.Is(err, ErrChallengeExpired):
		return "challenge_expired"
	case errors.Is(err, ErrCloneDetected):
		return "clone_detected"
	case errors.Is(err, ErrVerificationFailed):
		return "verification_failed"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "internal"
	}
}
