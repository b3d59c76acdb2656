package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"tickler/internal/domain"
	"tickler/internal/logger"
)

var errMissingID = errors.New("task without id")

// Store mirrors the task collection into a single slot as a JSON array.
type Store struct {
	Slot Slot
	Key  string
	Log  *slog.Logger
}

func New(slot Slot, key string) Store {
	return Store{Slot: slot, Key: key}
}

func (s Store) log() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return logger.With("component", "store")
}

// Load reads the collection. Missing data yields an empty collection;
// malformed data clears the slot and yields an empty collection.
func (s Store) Load(ctx context.Context) []domain.Task {
	raw, ok, err := s.Slot.Get(ctx, s.Key)
	if err != nil {
		s.log().Warn("read slot failed", "key", s.Key, "error", err)
		return []domain.Task{}
	}
	if !ok {
		return []domain.Task{}
	}
	tasks, err := decode(raw)
	if err != nil {
		s.log().Warn("stored tasks are corrupt; resetting", "key", s.Key, "error", err)
		if err := s.Slot.Delete(ctx, s.Key); err != nil {
			s.log().Warn("clear slot failed", "key", s.Key, "error", err)
		}
		return []domain.Task{}
	}
	return tasks
}

// Save writes the full collection.
func (s Store) Save(ctx context.Context, tasks []domain.Task) error {
	if tasks == nil {
		tasks = []domain.Task{}
	}
	data, err := json.Marshal(tasks)
	if err != nil {
		return fmt.Errorf("marshal tasks: %w", err)
	}
	if err := s.Slot.Put(ctx, s.Key, string(data)); err != nil {
		return fmt.Errorf("write slot %s: %w", s.Key, err)
	}
	return nil
}

func decode(raw string) ([]domain.Task, error) {
	var tasks []domain.Task
	if err := json.Unmarshal([]byte(raw), &tasks); err != nil {
		return nil, err
	}
	if tasks == nil {
		// a stored "null"
		return []domain.Task{}, nil
	}
	for i, t := range tasks {
		if t.ID == "" {
			return nil, fmt.Errorf("entry %d: %w", i, errMissingID)
		}
	}
	return tasks, nil
}
