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
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jeremyhahn/go-passkey/internal/config"
	"github.com/jeremyhahn/go-passkey/pkg/health"
	"github.com/jeremyhahn/go-passkey/pkg/passkey"
	"github.com/jeremyhahn/go-passkey/pkg/passkey/cose"
	"github.com/jeremyhahn/go-passkey/pkg/storage"
	"github.com/jeremyhahn/go-passkey/pkg/storage/file"
)

// ServiceBundle is the assembled ceremony engine with its lifecycle
// hooks.
type ServiceBundle struct {
	// Service is the ceremony engine.
	Service *passkey.Service

	// StopSweep cancels the challenge expiry sweeper.
	StopSweep context.CancelFunc

	// Close releases the storage backend.
	Close func() error

	// StorageCheck is a readiness probe for the credential storage
	// backend, nil when the memory backend is in use.
	StorageCheck health.CheckFunc
}

// BuildService wires the ceremony engine from configuration: the
// credential store (memory or file-backed), the in-memory challenge
// store with its expiry sweeper, and the COSE verifier.
func BuildService(cfg *config.Config, logger *slog.Logger) (*ServiceBundle, error) {
	creds, backend, closeBackend, err := buildCredentialStore(cfg)
	if err != nil {
		return nil, err
	}

	challenges := passkey.NewMemoryChallengeStoreWithTTL(cfg.Challenge.TTL)
	challenges.SetChallengeSize(cfg.Challenge.Size)

	sweepInterval := cfg.Challenge.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	stopSweep := challenges.StartCleanupRoutine(context.Background(), sweepInterval)

	service, err := passkey.NewService(passkey.ServiceParams{
		Config: &passkey.Config{
			RPID:          cfg.RelyingParty.ID,
			RPDisplayName: cfg.RelyingParty.DisplayName,
			RPOrigins:     cfg.RelyingParty.Origins,
			ChallengeTTL:  cfg.Challenge.TTL,
			ChallengeSize: cfg.Challenge.Size,
		},
		CredentialStore: creds,
		ChallengeStore:  challenges,
		Verifier:        cose.NewVerifier(),
		Logger:          logger,
	})
	if err != nil {
		stopSweep()
		closeBackend()
		return nil, fmt.Errorf("failed to build ceremony service: %w", err)
	}

	bundle := &ServiceBundle{
		Service:   service,
		StopSweep: stopSweep,
		Close:     closeBackend,
	}
	if backend != nil {
		bundle.StorageCheck = storageCheck(backend)
	}
	return bundle, nil
}

// buildCredentialStore selects the credential store implementation
// from the storage configuration. The returned backend is nil for the
// memory store.
func buildCredentialStore(cfg *config.Config) (passkey.CredentialStore, storage.Backend, func() error, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return passkey.NewMemoryCredentialStore(), nil, func() error { return nil }, nil

	case "file":
		backend, err := file.New(cfg.Storage.Path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open file storage: %w", err)
		}
		store, err := passkey.NewPersistentCredentialStore(backend)
		if err != nil {
			backend.Close()
			return nil, nil, nil, fmt.Errorf("failed to open credential store: %w", err)
		}
		return store, backend, backend.Close, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown storage backend: %s", cfg.Storage.Backend)
	}
}

// storageCheck probes the credential storage backend with a cheap list
// operation.
func storageCheck(backend storage.Backend) health.CheckFunc {
	return func(ctx context.Context) health.CheckResult {
		if _, err := backend.List("users/"); err != nil {
			return health.CheckResult{
				Name:   "storage",
				Status: health.StatusUnhealthy,
				Error:  err.Error(),
			}
		}
		return health.CheckResult{
			Name:    "storage",
			Status:  health.StatusHealthy,
			Message: "storage backend reachable",
		}
	}
}
