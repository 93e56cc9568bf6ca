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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCeremonyError_Error(t *testing.T) {
	err := NewError("finish registration", ErrNoChallenge)
	assert.Equal(t, "finish registration: no pending challenge", err.Error())

	bare := &CeremonyError{Err: ErrNoChallenge}
	assert.Equal(t, "no pending challenge", bare.Error())
}

func TestCeremonyError_Unwrap(t *testing.T) {
	err := NewError("op", ErrCloneDetected)
	assert.ErrorIs(t, err, ErrCloneDetected)

	var ceremonyErr *CeremonyError
	assert.True(t, errors.As(err, &ceremonyErr))
	assert.Equal(t, "op", ceremonyErr.Op)
	assert.Equal(t, ErrCloneDetected, errors.Unwrap(err))
}

func TestCeremonyError_NestedWrap(t *testing.T) {
	inner := fmt.Errorf("disk full: %w", ErrStoreUnavailable)
	err := NewError("add credential", inner)

	assert.True(t, IsStoreUnavailable(err))
	assert.Contains(t, err.Error(), "disk full")
}

func TestWrapError(t *testing.T) {
	assert.Nil(t, WrapError("op", nil))

	err := WrapError("op", ErrUserNotFound)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestErrorPredicates(t *testing.T) {
	tests := []struct {
		name      string
		predicate func(error) bool
		err       error
	}{
		{"user not found", IsUserNotFound, ErrUserNotFound},
		{"credential not found", IsCredentialNotFound, ErrCredentialNotFound},
		{"no challenge", IsNoChallenge, ErrNoChallenge},
		{"challenge expired", IsChallengeExpired, ErrChallengeExpired},
		{"verification failed", IsVerificationFailed, ErrVerificationFailed},
		{"clone detected", IsCloneDetected, ErrCloneDetected},
		{"store unavailable", IsStoreUnavailable, ErrStoreUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.predicate(tt.err))
			assert.True(t, tt.predicate(NewError("op", tt.err)))
			assert.False(t, tt.predicate(errors.New("unrelated")))
			assert.False(t, tt.predicate(nil))
		})
	}
}

func TestErrorTaxonomyDistinct(t *testing.T) {
	// Clone detection must stay distinguishable from plain failure
	err := NewError("finish authentication", ErrCloneDetected)
	assert.True(t, IsCloneDetected(err))
	assert.False(t, IsVerificationFailed(err))
}
