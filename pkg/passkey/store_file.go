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
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jeremyhahn/go-passkey/pkg/metrics"
	"github.com/jeremyhahn/go-passkey/pkg/storage"
)

const userKeyPrefix = "users/"

// PersistentCredentialStore is a CredentialStore backed by a
// storage.Backend. Each user is a JSON record under "users/"; the
// cross-user credential index is rebuilt from the backend at
// construction and kept current in memory, so uniqueness checks stay
// atomic with inserts under the store mutex while every mutation is
// fully persisted before it returns.
type PersistentCredentialStore struct {
	mu        sync.Mutex
	backend   storage.Backend
	credOwner map[string]string // hex credential ID -> user ID
}

// NewPersistentCredentialStore creates a credential store over the
// given backend and rebuilds the credential ownership index from the
// records already present.
func NewPersistentCredentialStore(backend storage.Backend) (*PersistentCredentialStore, error) {
	if backend == nil {
		return nil, fmt.Errorf("storage backend is required")
	}

	s := &PersistentCredentialStore{
		backend:   backend,
		credOwner: make(map[string]string),
	}

	keys, err := backend.List(userKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	for _, key := range keys {
		data, err := backend.Get(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		var user User
		if err := json.Unmarshal(data, &user); err != nil {
			return nil, fmt.Errorf("corrupt user record %q: %w", key, err)
		}
		for _, cred := range user.Credentials {
			s.credOwner[hex.EncodeToString(cred.ID)] = user.ID
		}
	}
	metrics.SetCredentialsTotal(float64(len(s.credOwner)))

	return s, nil
}

// CreateUser creates an empty user record.
func (s *PersistentCredentialStore) CreateUser(ctx context.Context, userID string) (*User, error) {
	const op = "create user"

	s.mu.Lock()
	defer s.mu.Unlock()

	key := userKey(userID)
	exists, err := s.backend.Exists(key)
	if err != nil {
		return nil, storeError(op, err)
	}
	if exists {
		return nil, NewError(op, ErrUserExists)
	}

	user := &User{ID: userID, Credentials: []*Credential{}}
	if err := s.persist(op, user); err != nil {
		return nil, err
	}
	return user.Clone(), nil
}

// GetUser returns the user record for the given ID.
func (s *PersistentCredentialStore) GetUser(ctx context.Context, userID string) (*User, error) {
	const op = "get user"

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load(op, userID)
}

// AddCredential appends a credential to the user's record. The
// credential ID must be unique across all users; the in-memory index
// makes the check atomic with the insert.
func (s *PersistentCredentialStore) AddCredential(ctx context.Context, userID string, cred *Credential) error {
	const op = "add credential"

	s.mu.Lock()
	defer s.mu.Unlock()

	credKey := hex.EncodeToString(cred.ID)
	if _, taken := s.credOwner[credKey]; taken {
		return NewError(op, ErrDuplicateCredential)
	}

	user, err := s.load(op, userID)
	if err != nil {
		return err
	}

	user.Credentials = append(user.Credentials, cred.Clone())
	if err := s.persist(op, user); err != nil {
		return err
	}

	s.credOwner[credKey] = userID
	metrics.SetCredentialsTotal(float64(len(s.credOwner)))
	return nil
}

// FindCredential returns the credential with the given ID within the
// user's set.
func (s *PersistentCredentialStore) FindCredential(ctx context.Context, userID string, credentialID []byte) (*Credential, error) {
	const op = "find credential"

	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.load(op, userID)
	if err != nil {
		return nil, err
	}

	cred := user.FindCredential(credentialID)
	if cred == nil {
		return nil, NewError(op, ErrCredentialNotFound)
	}
	return cred.Clone(), nil
}

// UpdateSignCount persists a new sign counter for the credential and
// stamps its last-used time.
func (s *PersistentCredentialStore) UpdateSignCount(ctx context.Context, userID string, credentialID []byte, signCount uint32) error {
	const op = "update sign count"

	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.load(op, userID)
	if err != nil {
		return err
	}

	cred := user.FindCredential(credentialID)
	if cred == nil {
		return NewError(op, ErrCredentialNotFound)
	}

	cred.SignCount = signCount
	cred.LastUsedAt = nowUTC()
	return s.persist(op, user)
}

// Count returns the number of stored user records.
func (s *PersistentCredentialStore) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.backend.List(userKeyPrefix)
	if err != nil {
		return 0, storeError("count users", err)
	}
	return len(keys), nil
}

// load reads and decodes a user record. Caller holds the mutex.
func (s *PersistentCredentialStore) load(op, userID string) (*User, error) {
	data, err := s.backend.Get(userKey(userID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, NewError(op, ErrUserNotFound)
		}
		return nil, storeError(op, err)
	}

	var user User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, NewError(op, fmt.Errorf("corrupt user record: %w", err))
	}
	return &user, nil
}

// persist encodes and durably writes a user record. Caller holds the
// mutex.
func (s *PersistentCredentialStore) persist(op string, user *User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return NewError(op, fmt.Errorf("encode user record: %w", err))
	}
	if err := s.backend.Put(userKey(user.ID), data); err != nil {
		return storeError(op, err)
	}
	return nil
}

// userKey maps a user ID to its backend key. The ID is encoded so
// arbitrary identities cannot influence the key structure.
func userKey(userID string) string {
	return userKeyPrefix + base64.RawURLEncoding.EncodeToString([]byte(userID)) + ".json"
}

// storeError wraps a backend failure as a store availability error.
func storeError(op string, err error) error {
	return NewError(op, fmt.Errorf("%w: %v", ErrStoreUnavailable, err))
}
