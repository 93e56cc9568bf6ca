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
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-passkey/pkg/metrics"
)

// The collectors are package globals shared across the test binary, so
// these tests compare before/after deltas rather than absolute values.

func TestServiceRecordsCeremonyMetrics(t *testing.T) {
	metrics.Enable()

	beginOK := metrics.CeremoniesTotal.WithLabelValues(
		metrics.CeremonyRegistration, metrics.PhaseBegin, metrics.StatusSuccess)
	finishOK := metrics.CeremoniesTotal.WithLabelValues(
		metrics.CeremonyRegistration, metrics.PhaseFinish, metrics.StatusSuccess)
	loginBeginOK := metrics.CeremoniesTotal.WithLabelValues(
		metrics.CeremonyAuthentication, metrics.PhaseBegin, metrics.StatusSuccess)
	loginFinishOK := metrics.CeremoniesTotal.WithLabelValues(
		metrics.CeremonyAuthentication, metrics.PhaseFinish, metrics.StatusSuccess)

	beginBefore := testutil.ToFloat64(beginOK)
	finishBefore := testutil.ToFloat64(finishOK)
	loginBeginBefore := testutil.ToFloat64(loginBeginOK)
	loginFinishBefore := testutil.ToFloat64(loginFinishOK)

	svc, _, _ := newTestService(t, &stubVerifier{})
	ctx := context.Background()

	auth := register(t, svc, "alice")

	opts, err := svc.BeginAuthentication(ctx, "alice")
	require.NoError(t, err)
	assertion, err := auth.Assert(opts.Challenge, testOrigin)
	require.NoError(t, err)
	_, err = svc.FinishAuthentication(ctx, "alice", assertion)
	require.NoError(t, err)

	assert.Equal(t, beginBefore+1, testutil.ToFloat64(beginOK))
	assert.Equal(t, finishBefore+1, testutil.ToFloat64(finishOK))
	assert.Equal(t, loginBeginBefore+1, testutil.ToFloat64(loginBeginOK))
	assert.Equal(t, loginFinishBefore+1, testutil.ToFloat64(loginFinishOK))
}

func TestServiceRecordsErrorMetrics(t *testing.T) {
	metrics.Enable()

	beginErr := metrics.CeremoniesTotal.WithLabelValues(
		metrics.CeremonyAuthentication, metrics.PhaseBegin, metrics.StatusError)
	notFound := metrics.ErrorsTotal.WithLabelValues(
		metrics.CeremonyAuthentication, "user_not_found")

	beginErrBefore := testutil.ToFloat64(beginErr)
	notFoundBefore := testutil.ToFloat64(notFound)

	svc, _, _ := newTestService(t, &stubVerifier{})

	_, err := svc.BeginAuthentication(context.Background(), "nobody")
	require.True(t, IsUserNotFound(err))

	assert.Equal(t, beginErrBefore+1, testutil.ToFloat64(beginErr))
	assert.Equal(t, notFoundBefore+1, testutil.ToFloat64(notFound))
}

func TestServiceRecordsCloneDetectionMetrics(t *testing.T) {
	metrics.Enable()

	cloneErrs := metrics.ErrorsTotal.WithLabelValues(
		metrics.CeremonyAuthentication, "clone_detected")

	clonesBefore := testutil.ToFloat64(metrics.CloneDetectionsTotal)
	cloneErrsBefore := testutil.ToFloat64(cloneErrs)

	svc, _, _ := newTestService(t, &stubVerifier{})
	ctx := context.Background()

	auth := register(t, svc, "alice")

	// Advance the stored counter with a legitimate login
	opts, err := svc.BeginAuthentication(ctx, "alice")
	require.NoError(t, err)
	assertion, err := auth.Assert(opts.Challenge, testOrigin)
	require.NoError(t, err)
	_, err = svc.FinishAuthentication(ctx, "alice", assertion)
	require.NoError(t, err)

	// A clone replays a stale counter value
	auth.SetSignCount(0)
	opts, err = svc.BeginAuthentication(ctx, "alice")
	require.NoError(t, err)
	assertion, err = auth.Assert(opts.Challenge, testOrigin)
	require.NoError(t, err)

	_, err = svc.FinishAuthentication(ctx, "alice", assertion)
	require.True(t, IsCloneDetected(err))

	assert.Equal(t, clonesBefore+1, testutil.ToFloat64(metrics.CloneDetectionsTotal))
	assert.Equal(t, cloneErrsBefore+1, testutil.ToFloat64(cloneErrs))
}

func TestStoresPublishGauges(t *testing.T) {
	metrics.Enable()

	svc, _, challenges := newTestService(t, &stubVerifier{})
	ctx := context.Background()

	_, err := svc.BeginRegistration(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.PendingChallenges))

	challenges.Clear()
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.PendingChallenges))

	register(t, svc, "bob")
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CredentialsTotal))
}
