// Package storage persists optimizer checkpoints. The BuntDB backend
// covers in-run snapshots (memory or a single file); the SQL backend
// archives runs behind whatever gorm dialector the caller injects.
package storage

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/buntdb"

	"github.com/quantforge/evorun/pkg/core"
)

// BuntStorage implements core.RunStorage over BuntDB.
type BuntStorage struct {
	db *buntdb.DB
}

// FromMemory creates an in-memory checkpoint store.
func FromMemory() (core.RunStorage, error) {
	return NewBuntStorage(":memory:")
}

// FromFile creates a file-backed checkpoint store.
func FromFile(file string) (core.RunStorage, error) {
	return NewBuntStorage(file)
}

// NewBuntStorage opens the database and builds the saved_at index the
// listing queries iterate over.
func NewBuntStorage(sourceFile string) (core.RunStorage, error) {
	db, err := buntdb.Open(sourceFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open buntdb: %w", err)
	}

	if err := db.CreateIndex("saved_index", "*", buntdb.IndexJSON("saved_at")); err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &BuntStorage{db: db}, nil
}

// checkpointKey orders one run's checkpoints lexically by generation.
func checkpointKey(runID string, generation int) string {
	return fmt.Sprintf("%s:%08d", runID, generation)
}

// SaveCheckpoint stores one progress snapshot. Saving the same run and
// generation twice overwrites, so retries are idempotent.
func (b *BuntStorage) SaveCheckpoint(cp *core.Checkpoint) error {
	return b.db.Update(func(tx *buntdb.Tx) error {
		content, err := json.Marshal(cp)
		if err != nil {
			return fmt.Errorf("failed to marshal checkpoint: %w", err)
		}

		_, _, err = tx.Set(checkpointKey(cp.RunID, cp.Generation), string(content), nil)
		if err != nil {
			return fmt.Errorf("failed to store checkpoint: %w", err)
		}
		return nil
	})
}

// LatestCheckpoint returns the run's highest-generation checkpoint, or
// core.ErrNotFound.
func (b *BuntStorage) LatestCheckpoint(runID string) (*core.Checkpoint, error) {
	var last string

	err := b.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(runID+":*", func(_, value string) bool {
			last = value
			return true
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoints: %w", err)
	}
	if last == "" {
		return nil, fmt.Errorf("%w: run %s has no checkpoints", core.ErrNotFound, runID)
	}

	var cp core.Checkpoint
	if err := json.Unmarshal([]byte(last), &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

// Checkpoints retrieves checkpoints matching all filters, oldest saved
// first.
func (b *BuntStorage) Checkpoints(filters ...core.CheckpointFilter) ([]*core.Checkpoint, error) {
	checkpoints := make([]*core.Checkpoint, 0)

	err := b.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend("saved_index", func(_, value string) bool {
			var cp core.Checkpoint
			if err := json.Unmarshal([]byte(value), &cp); err != nil {
				// Skip unreadable entries and keep iterating.
				return true
			}

			for _, filter := range filters {
				if !filter(cp) {
					return true
				}
			}

			checkpoints = append(checkpoints, &cp)
			return true
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate over checkpoints: %w", err)
	}

	return checkpoints, nil
}

// Close closes the database.
func (b *BuntStorage) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}
