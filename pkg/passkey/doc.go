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

// Package passkey implements the server side of a passwordless
// public-key authentication ceremony for a single relying party:
// credential enrollment, one-time challenge issuance, and assertion
// verification with replay, cross-origin and cloned-authenticator
// rejection.
//
// # Architecture
//
//  1. Ceremony engine (Service) - the four begin/finish operations
//  2. Storage layer (CredentialStore, ChallengeStore) - pluggable persistence
//  3. Verifier (SignatureVerifier) - delegated signature cryptography
//  4. HTTP layer (pkg/passkey/http) - composable chi-mountable handlers
//
// The engine performs the protocol checks itself: byte-exact challenge
// matching, origin allow-listing, RP ID hash comparison, single-use
// challenge consumption and sign-counter clone detection. Only the key
// parsing and signature mathematics are delegated to the injected
// SignatureVerifier; pkg/passkey/cose provides the production
// implementation and tests substitute a fake.
//
// # Usage
//
// Basic usage with in-memory storage (for development):
//
//	svc, err := passkey.NewService(passkey.ServiceParams{
//	    Config: &passkey.Config{
//	        RPID:          "localhost",
//	        RPDisplayName: "My App",
//	        RPOrigins:     []string{"https://localhost:3000"},
//	    },
//	    CredentialStore: passkey.NewMemoryCredentialStore(),
//	    ChallengeStore:  passkey.NewMemoryChallengeStore(),
//	    Verifier:        cose.NewVerifier(),
//	})
//
// For production, back the CredentialStore with durable storage; see
// NewPersistentCredentialStore. The ChallengeStore may stay in memory:
// challenges are short-lived and a restart only invalidates in-flight
// ceremonies.
//
// Note: WebAuthn requires HTTPS for all operations. Browsers will only
// expose the credential API in secure contexts.
package passkey
