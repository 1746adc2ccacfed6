// Package progress tracks learners' saved code and completed exercises.
package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"runbox/internal/catalog"
	"runbox/internal/storage"
)

// ErrUnknownExercise is returned when a module/exercise pair is not in the catalog.
var ErrUnknownExercise = errors.New("unknown exercise")

const (
	codePrefix = "code:"
	donePrefix = "done:"
)

// Resolver maps a module/exercise pair to its catalog entry.
type Resolver interface {
	Exercise(moduleID, exerciseID string) (catalog.Ref, error)
	DayOf(moduleID string) (int, error)
}

// Store persists progress in the key-value table.
type Store struct {
	db       *storage.DB
	resolver Resolver
	codeTTL  time.Duration
	logger   zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithCodeTTL expires saved code after ttl. Zero keeps it forever.
func WithCodeTTL(ttl time.Duration) Option {
	return func(s *Store) { s.codeTTL = ttl }
}

// WithLogger sets the store logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// NewStore creates a progress store.
func NewStore(db *storage.DB, resolver Resolver, opts ...Option) *Store {
	s := &Store{
		db:       db,
		resolver: resolver,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(prefix, moduleID, exerciseID string) (string, error) {
	ref, err := s.resolver.Exercise(moduleID, exerciseID)
	if err != nil {
		return "", fmt.Errorf("%w: %s/%s", ErrUnknownExercise, moduleID, exerciseID)
	}
	return prefix + ref.Key(), nil
}

// SaveCode stores the editor buffer for an exercise.
func (s *Store) SaveCode(ctx context.Context, moduleID, exerciseID, code string) error {
	key, err := s.key(codePrefix, moduleID, exerciseID)
	if err != nil {
		return err
	}
	if err := s.db.KVSet(ctx, key, code, s.codeTTL); err != nil {
		return fmt.Errorf("save code: %w", err)
	}
	s.logger.Debug().Str("key", key).Int("bytes", len(code)).Msg("code saved")
	return nil
}

// GetSavedCode returns the saved code, with ok false when nothing is saved.
func (s *Store) GetSavedCode(ctx context.Context, moduleID, exerciseID string) (code string, ok bool, err error) {
	key, err := s.key(codePrefix, moduleID, exerciseID)
	if err != nil {
		return "", false, err
	}
	code, err = s.db.KVGet(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get code: %w", err)
	}
	return code, true, nil
}

// ClearCode removes saved code. Clearing an exercise with nothing saved
// is not an error.
func (s *Store) ClearCode(ctx context.Context, moduleID, exerciseID string) error {
	key, err := s.key(codePrefix, moduleID, exerciseID)
	if err != nil {
		return err
	}
	if err := s.db.KVDelete(ctx, key); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("clear code: %w", err)
	}
	return nil
}

// MarkCompleted records the exercise as done. It is idempotent.
func (s *Store) MarkCompleted(ctx context.Context, moduleID, exerciseID string) error {
	key, err := s.key(donePrefix, moduleID, exerciseID)
	if err != nil {
		return err
	}
	if err := s.db.KVSet(ctx, key, time.Now().UTC().Format(time.RFC3339), 0); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return nil
}

// MarkIncomplete clears the completion flag. It is idempotent.
func (s *Store) MarkIncomplete(ctx context.Context, moduleID, exerciseID string) error {
	key, err := s.key(donePrefix, moduleID, exerciseID)
	if err != nil {
		return err
	}
	if err := s.db.KVDelete(ctx, key); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("mark incomplete: %w", err)
	}
	return nil
}

// IsCompleted reports whether the exercise is marked done.
func (s *Store) IsCompleted(ctx context.Context, moduleID, exerciseID string) (bool, error) {
	key, err := s.key(donePrefix, moduleID, exerciseID)
	if err != nil {
		return false, err
	}
	return s.db.KVExists(ctx, key)
}

// GetCompletedCount returns how many exercises of moduleID are done.
func (s *Store) GetCompletedCount(ctx context.Context, moduleID string) (int, error) {
	day, err := s.resolver.DayOf(moduleID)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrUnknownExercise, moduleID)
	}
	return s.db.KVCount(ctx, fmt.Sprintf("%s%d/%s/", donePrefix, day, moduleID))
}

// Reset clears both saved code and completion for an exercise in one
// transaction.
func (s *Store) Reset(ctx context.Context, moduleID, exerciseID string) error {
	codeKey, err := s.key(codePrefix, moduleID, exerciseID)
	if err != nil {
		return err
	}
	doneKey := donePrefix + codeKey[len(codePrefix):]

	return s.db.WithTx(ctx, func(tx *storage.Tx) error {
		for _, key := range []string{codeKey, doneKey} {
			if err := tx.KVDelete(ctx, key); err != nil && !errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("reset %s: %w", key, err)
			}
		}
		return nil
	})
}
