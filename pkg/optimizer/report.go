package optimizer

import (
	"time"

	"github.com/quantforge/evorun/pkg/core"
)

// StopReason records why a search ended.
type StopReason string

const (
	StopMaxGenerations StopReason = "max_generations"
	StopMaxDuration    StopReason = "max_duration"
	StopCancelled      StopReason = "cancelled"
	StopConverged      StopReason = "converged"
)

func (r StopReason) String() string { return string(r) }

// GenerationTrace is one generation's summary line, kept for the full
// run so reports can chart fitness and diversity over time.
type GenerationTrace struct {
	Generation   int     `json:"generation"`
	Evaluations  int     `json:"evaluations"`
	BestFitness  float64 `json:"best_fitness"`
	AvgFitness   float64 `json:"avg_fitness"`
	Diversity    float64 `json:"diversity"`
	MutationRate float64 `json:"mutation_rate"`
}

// Report is the full outcome of one search run.
type Report struct {
	RunID       string                 `json:"run_id"`
	Best        *core.Genome           `json:"best,omitempty"`
	BestResult  *core.BacktestResult   `json:"best_result,omitempty"`
	Leaderboard []*core.Genome         `json:"leaderboard"`
	Insights    []core.LearningInsight `json:"insights,omitempty"`
	Trace       []GenerationTrace      `json:"trace"`
	Generations int                    `json:"generations"`
	Evaluations int                    `json:"evaluations"`
	Elapsed     time.Duration          `json:"elapsed"`
	StopReason  StopReason             `json:"stop_reason"`
}
