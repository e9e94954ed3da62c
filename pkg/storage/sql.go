package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/quantforge/evorun/pkg/core"
)

// CheckpointRecord is the gorm model a checkpoint is archived as. The
// searchable columns are lifted out; the full snapshot travels as a
// JSON payload so the schema never chases the Checkpoint struct.
type CheckpointRecord struct {
	ID           uint      `gorm:"primaryKey"`
	RunID        string    `gorm:"index"`
	Generation   int       `gorm:"index"`
	MutationRate float64
	SavedAt      time.Time
	Payload      string
}

// SQLStorage implements core.RunStorage over gorm. The dialector is
// injected so the caller decides the driver (sqlite, postgres, mysql).
type SQLStorage struct {
	db *gorm.DB
}

// FromSQL creates a SQL-backed checkpoint archive.
func FromSQL(dialect gorm.Dialector, opts ...gorm.Option) (core.RunStorage, error) {
	db, err := gorm.Open(dialect, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	// Configure connection pooling parameters
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&CheckpointRecord{}); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLStorage{db: db}, nil
}

func toRecord(cp *core.Checkpoint) (*CheckpointRecord, error) {
	payload, err := json.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	return &CheckpointRecord{
		RunID:        cp.RunID,
		Generation:   cp.Generation,
		MutationRate: cp.MutationRate,
		SavedAt:      cp.SavedAt,
		Payload:      string(payload),
	}, nil
}

func fromRecord(record *CheckpointRecord) (*core.Checkpoint, error) {
	var cp core.Checkpoint
	if err := json.Unmarshal([]byte(record.Payload), &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

// SaveCheckpoint archives one progress snapshot. Re-saving a run and
// generation replaces the previous row.
func (s *SQLStorage) SaveCheckpoint(cp *core.Checkpoint) error {
	record, err := toRecord(cp)
	if err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Where("run_id = ? AND generation = ?", cp.RunID, cp.Generation).
			Delete(&CheckpointRecord{})
		if result.Error != nil {
			return fmt.Errorf("failed to replace checkpoint: %w", result.Error)
		}

		if result := tx.Create(record); result.Error != nil {
			return fmt.Errorf("failed to create checkpoint: %w", result.Error)
		}
		return nil
	})
}

// LatestCheckpoint returns the run's highest-generation checkpoint, or
// core.ErrNotFound.
func (s *SQLStorage) LatestCheckpoint(runID string) (*core.Checkpoint, error) {
	var record CheckpointRecord

	result := s.db.Where("run_id = ?", runID).
		Order("generation DESC").
		First(&record)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: run %s has no checkpoints", core.ErrNotFound, runID)
		}
		return nil, fmt.Errorf("failed to fetch checkpoint: %w", result.Error)
	}

	return fromRecord(&record)
}

// Checkpoints retrieves archived checkpoints matching all filters,
// oldest saved first.
func (s *SQLStorage) Checkpoints(filters ...core.CheckpointFilter) ([]*core.Checkpoint, error) {
	var records []*CheckpointRecord

	result := s.db.Order("saved_at ASC").Find(&records)
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to fetch checkpoints: %w", result.Error)
	}

	checkpoints := make([]*core.Checkpoint, 0, len(records))
	for _, record := range records {
		cp, err := fromRecord(record)
		if err != nil {
			return nil, err
		}
		checkpoints = append(checkpoints, cp)
	}

	// Apply filters in memory
	// Note: This could be optimized by translating filters to SQL WHERE clauses
	return lo.Filter(checkpoints, func(cp *core.Checkpoint, _ int) bool {
		for _, filter := range filters {
			if !filter(*cp) {
				return false
			}
		}
		return true
	}), nil
}

// Close closes the database connection.
func (s *SQLStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.Close()
}
