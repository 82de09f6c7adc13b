package storage

import (
	"time"

	"github.com/jiin/botwatch/internal/models"
)

// Storage defines the interface for snapshot persistence
type Storage interface {
	// Save stores a snapshot and enforces the retention cap
	Save(snap *models.Snapshot) error

	// GetHistory returns snapshots matching the query, newest first
	GetHistory(query models.HistoryQuery) ([]models.Snapshot, error)

	// Cleanup deletes snapshots saved before olderThan
	Cleanup(olderThan time.Time) (int64, error)

	// Count returns the number of stored snapshots
	Count() (int, error)
}
