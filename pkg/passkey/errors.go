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
	"errors"
	"fmt"
)

// Sentinel errors for ceremony and store operations.
var (
	// ErrUserExists is returned when attempting to create a user that already exists.
	ErrUserExists = errors.New("user already exists")

	// ErrUserAlreadyRegistered is returned when a user who already holds a
	// credential attempts a second initial registration.
	ErrUserAlreadyRegistered = errors.New("user already registered")

	// ErrUserNotFound is returned when a user cannot be found.
	ErrUserNotFound = errors.New("user not found")

	// ErrNoCredentials is returned when a user has no enrolled credentials.
	ErrNoCredentials = errors.New("user has no registered credentials")

	// ErrCredentialNotFound is returned when a credential cannot be found
	// within the user's credential set.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrDuplicateCredential is returned when a credential ID is already
	// registered, for this or any other user. This is security-relevant:
	// it indicates authenticator reuse across identities.
	ErrDuplicateCredential = errors.New("credential already registered")

	// ErrNoChallenge is returned when no pending challenge exists for the
	// user and ceremony kind.
	ErrNoChallenge = errors.New("no pending challenge")

	// ErrChallengeExpired is returned when the pending challenge has
	// outlived its time-to-live.
	ErrChallengeExpired = errors.New("challenge expired")

	// ErrVerificationFailed is returned when challenge, origin, RP ID or
	// signature verification fails.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrCloneDetected is returned when the asserted sign counter did not
	// advance past the stored counter, indicating a possible cloned
	// authenticator. Distinct from ErrVerificationFailed so callers can
	// alert the user.
	ErrCloneDetected = errors.New("possible cloned authenticator detected")

	// ErrStoreUnavailable is returned when the persistence layer fails.
	// This is the only error class eligible for caller-side retry.
	ErrStoreUnavailable = errors.New("credential store unavailable")
)

// CeremonyError wraps an error with the operation that produced it.
type CeremonyError struct {
	Op  string // Operation that failed
	Err error  // Underlying error
}

// Error returns the error message.
func (e *CeremonyError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *CeremonyError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches.
func (e *CeremonyError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a new CeremonyError with the given operation and error.
func NewError(op string, err error) error {
	return &CeremonyError{
		Op:  op,
		Err: err,
	}
}

// WrapError wraps an error with an operation name if it's not nil.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(op, err)
}

// IsUserNotFound returns true if the error indicates a user was not found.
func IsUserNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound)
}

// IsCredentialNotFound returns true if the error indicates a credential was not found.
func IsCredentialNotFound(err error) bool {
	return errors.Is(err, ErrCredentialNotFound)
}

// IsNoChallenge returns true if the error indicates no pending challenge exists.
func IsNoChallenge(err error) bool {
	return errors.Is(err, ErrNoChallenge)
}

// IsChallengeExpired returns true if the error indicates the challenge expired.
func IsChallengeExpired(err error) bool {
	return errors.Is(err, ErrChallengeExpired)
}

// IsVerificationFailed returns true if the error indicates verification failed.
func IsVerificationFailed(err error) bool {
	return errors.Is(err, ErrVerificationFailed)
}

// IsCloneDetected returns true if the error indicates a possible cloned authenticator.
func IsCloneDetected(err error) bool {
	return errors.Is(err, ErrCloneDetected)
}

// IsStoreUnavailable returns true if the error indicates a persistence failure.
func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
