// Package taskstate tracks the lifecycle of command-surface admin verbs for
// GET /tasks/{id} (§6): pending, completed, failed. Backed by the shared
// cache, the same adapter the scheduler's dedup gate uses (§4.5), since task
// state is inherently short-lived and best-effort.
package taskstate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/harvestguard/ingestcore/internal/apperr"
)

// Status is one of the three states named in §6.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// State is the persisted record for one task id.
type State struct {
	TaskID    string    `json:"task_id"`
	Kind      string    `json:"kind"`
	Status    Status    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Cache is the subset of *cache.Cache the store needs.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

const keyPrefix = "task:"
const defaultTTL = 24 * time.Hour

// Store persists task state in the shared cache.
type Store struct {
	cache Cache
	ttl   time.Duration
}

func NewStore(c Cache) *Store {
	return &Store{cache: c, ttl: defaultTTL}
}

// Begin allocates a new pending task id for kind and persists it.
func (s *Store) Begin(ctx context.Context, kind string) (string, error) {
	state := State{TaskID: uuid.NewString(), Kind: kind, Status: StatusPending, UpdatedAt: time.Now().UTC()}
	if err := s.put(ctx, state); err != nil {
		return "", err
	}
	return state.TaskID, nil
}

// Complete marks taskID completed.
func (s *Store) Complete(ctx context.Context, taskID string) error {
	return s.transition(ctx, taskID, StatusCompleted, "")
}

// Fail marks taskID failed with reason.
func (s *Store) Fail(ctx context.Context, taskID, reason string) error {
	return s.transition(ctx, taskID, StatusFailed, reason)
}

func (s *Store) transition(ctx context.Context, taskID string, status Status, reason string) error {
	state, err := s.Get(ctx, taskID)
	if err != nil {
		return err
	}
	state.Status = status
	state.Reason = reason
	state.UpdatedAt = time.Now().UTC()
	return s.put(ctx, *state)
}

// Get loads the state for taskID (§6: "GET /tasks/{id}").
func (s *Store) Get(ctx context.Context, taskID string) (*State, error) {
	raw, found, err := s.cache.Get(ctx, keyPrefix+taskID)
	if err != nil {
		return nil, fmt.Errorf("taskstate: get: %w", err)
	}
	if !found {
		return nil, apperr.New(apperr.InsufficientData, "task not found")
	}
	var state State
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("taskstate: decode: %w", err)
	}
	return &state, nil
}

func (s *Store) put(ctx context.Context, state State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("taskstate: encode: %w", err)
	}
	if err := s.cache.Set(ctx, keyPrefix+state.TaskID, string(raw), s.ttl); err != nil {
		return fmt.Errorf("taskstate: put: %w", err)
	}
	return nil
}
