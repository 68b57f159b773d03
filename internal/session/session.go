// Package session persists the authenticated session between CLI runs.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-tracker/internal/domain"
	"github.com/spec-kit/ticket-tracker/internal/kv"
)

// DefaultKey is the storage key holding the session record.
const DefaultKey = "support_ai_token"

// ErrNoSession is returned by Read when nothing usable is stored.
var ErrNoSession = errors.New("no saved session")

// Store saves, reads and removes the single session record.
type Store struct {
	storage kv.Storage
	key     string
	logger  *zap.Logger
}

// New builds a Store. An empty key selects DefaultKey.
func New(storage kv.Storage, key string, logger *zap.Logger) *Store {
	if key == "" {
		key = DefaultKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{storage: storage, key: key, logger: logger}
}

// Save replaces any stored session.
func (s *Store) Save(ctx context.Context, sess domain.Session) error {
	if sess.AccessToken == "" {
		return errors.New("session has no access token")
	}
	if sess.TokenType == "" {
		sess.TokenType = "bearer"
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	if err := s.storage.Set(ctx, s.key, raw); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Read returns the stored session. Missing and undecodable records both
// report ErrNoSession.
func (s *Store) Read(ctx context.Context) (*domain.Session, error) {
	raw, err := s.storage.Get(ctx, s.key)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	var sess domain.Session
	if err := json.Unmarshal(raw, &sess); err != nil || sess.AccessToken == "" {
		s.logger.Warn("ignoring unreadable session", zap.String("key", s.key), zap.Error(err))
		return nil, ErrNoSession
	}
	return &sess, nil
}

// Remove deletes the stored session. Removing nothing is not an error.
func (s *Store) Remove(ctx context.Context) error {
	if err := s.storage.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}
