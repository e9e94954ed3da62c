package core

import (
	"time"
)

// Feeder supplies historical bars for a symbol universe. The engine
// reads everything up front into an immutable snapshot; a feeder is
// never queried inside the hot loop.
type Feeder interface {
	// Symbols lists the universe in deterministic order.
	Symbols() []string

	// Bars returns the ordered daily history for one symbol. A
	// symbol whose history cannot be served returns an error and is
	// skipped by the caller, never fatal to the run.
	Bars(symbol string) ([]Bar, error)
}

// Checkpoint is the periodic snapshot of optimizer progress, saved so
// a run's partial results survive interruption.
type Checkpoint struct {
	RunID        string            `json:"run_id"`
	Generation   int               `json:"generation"`
	Best         *Genome           `json:"best,omitempty"`
	Leaderboard  []*Genome         `json:"leaderboard,omitempty"`
	Insights     []LearningInsight `json:"insights,omitempty"`
	MutationRate float64           `json:"mutation_rate"`
	SavedAt      time.Time         `json:"saved_at"`
}

// CheckpointFilter selects checkpoints when querying storage.
type CheckpointFilter func(Checkpoint) bool

// RunStorage persists optimizer checkpoints. Implementations live in
// pkg/storage; the engine treats a nil storage as "don't persist".
type RunStorage interface {
	// SaveCheckpoint stores one progress snapshot.
	SaveCheckpoint(cp *Checkpoint) error

	// LatestCheckpoint returns the newest checkpoint for a run, or
	// ErrNotFound.
	LatestCheckpoint(runID string) (*Checkpoint, error)

	// Checkpoints retrieves checkpoints matching all filters.
	Checkpoints(filters ...CheckpointFilter) ([]*Checkpoint, error)

	// Close releases the underlying store.
	Close() error
}

func WithRun(runID string) CheckpointFilter {
	return func(cp Checkpoint) bool {
		return cp.RunID == runID
	}
}

func WithGenerationFrom(gen int) CheckpointFilter {
	return func(cp Checkpoint) bool {
		return cp.Generation >= gen
	}
}

func WithTrustworthyBest() CheckpointFilter {
	return func(cp Checkpoint) bool {
		return cp.Best != nil && cp.Best.Verdict.Trustworthy()
	}
}
