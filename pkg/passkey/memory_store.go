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
	"encoding/hex"
	"sync"
	"time"

	"github.com/jeremyhahn/go-passkey/pkg/metrics"
)

// MemoryCredentialStore is an in-memory implementation of CredentialStore.
// The credential index spans all users so duplicate credential IDs are
// rejected regardless of owner, and the check is atomic with the insert.
type MemoryCredentialStore struct {
	mu        sync.RWMutex
	users     map[string]*User
	credOwner map[string]string // hex credential ID -> user ID
}

// NewMemoryCredentialStore creates a new in-memory credential store.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{
		users:     make(map[string]*User),
		credOwner: make(map[string]string),
	}
}

// CreateUser creates an empty-credential record for the user.
func (s *MemoryCredentialStore) CreateUser(ctx context.Context, userID string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; ok {
		return nil, ErrUserExists
	}

	user := &User{ID: userID, Credentials: make([]*Credential, 0)}
	s.users[userID] = user
	return user.Clone(), nil
}

// GetUser retrieves the user record.
func (s *MemoryCredentialStore) GetUser(ctx context.Context, userID string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return user.Clone(), nil
}

// AddCredential appends a credential to the user's set. The duplicate
// check covers every user in the store.
func (s *MemoryCredentialStore) AddCredential(ctx context.Context, userID string, cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}

	credKey := hex.EncodeToString(cred.ID)
	if _, ok := s.credOwner[credKey]; ok {
		return ErrDuplicateCredential
	}

	user.Credentials = append(user.Credentials, cred.Clone())
	s.credOwner[credKey] = userID
	metrics.SetCredentialsTotal(float64(len(s.credOwner)))
	return nil
}

// FindCredential returns the credential within the user's set.
func (s *MemoryCredentialStore) FindCredential(ctx context.Context, userID string, credentialID []byte) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}

	cred := user.FindCredential(credentialID)
	if cred == nil {
		return nil, ErrCredentialNotFound
	}
	return cred.Clone(), nil
}

// UpdateSignCount replaces the stored counter unconditionally.
func (s *MemoryCredentialStore) UpdateSignCount(ctx context.Context, userID string, credentialID []byte, signCount uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}

	cred := user.FindCredential(credentialID)
	if cred == nil {
		return ErrCredentialNotFound
	}

	cred.SignCount = signCount
	cred.LastUsedAt = time.Now().UTC()
	return nil
}

// Count returns the number of users in the store.
func (s *MemoryCredentialStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// Clear removes all users and credentials from the store.
func (s *MemoryCredentialStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = make(map[string]*User)
	s.credOwner = make(map[string]string)
}
