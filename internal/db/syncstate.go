package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/sfriedel/orgmirror/internal/models"
)

// GetSyncState returns the stored watermark for a resource kind, or the zero
// time when the resource has never completed a run.
func (db *DB) GetSyncState(resource string) (time.Time, error) {
	var last time.Time
	err := db.QueryRow(
		`SELECT last_updated_at FROM sync_state WHERE resource = ?`, resource,
	).Scan(&last)
	if err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("failed to get sync state: %w", err)
	}
	return last, nil
}

// SetSyncState upserts the watermark for a resource kind.
func (db *DB) SetSyncState(resource string, lastUpdatedAt time.Time) error {
	query := `
	INSERT INTO sync_state (resource, last_updated_at)
	VALUES (?, ?)
	ON CONFLICT(resource) DO UPDATE SET
		last_updated_at = excluded.last_updated_at
	`

	_, err := db.Exec(query, resource, lastUpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to set sync state: %w", err)
	}
	return nil
}

// StartSyncLog appends a running log row for a resource and returns its id.
func (db *DB) StartSyncLog(resource string) (int64, error) {
	res, err := db.Exec(
		`INSERT INTO sync_log (resource, status, message, started_at) VALUES (?, ?, '', ?)`,
		resource, models.SyncStatusRunning, time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to start sync log: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read sync log id: %w", err)
	}
	return id, nil
}

// FinishSyncLog closes a log row with a terminal status and message.
func (db *DB) FinishSyncLog(id int64, status, message string) error {
	_, err := db.Exec(
		`UPDATE sync_log SET status = ?, message = ?, finished_at = ? WHERE id = ?`,
		status, message, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish sync log: %w", err)
	}
	return nil
}

// GetSyncLog returns a log row by id, or nil if not found.
func (db *DB) GetSyncLog(id int64) (*models.SyncLogEntry, error) {
	var e models.SyncLogEntry
	var message sql.NullString
	var finished sql.NullTime
	err := db.QueryRow(
		`SELECT id, resource, status, message, started_at, finished_at FROM sync_log WHERE id = ?`, id,
	).Scan(&e.ID, &e.Resource, &e.Status, &message, &e.StartedAt, &finished)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get sync log: %w", err)
	}
	e.Message = message.String
	if finished.Valid {
		t := finished.Time
		e.FinishedAt = &t
	}
	return &e, nil
}
