// Package db provides the SQLite persistence layer. Every write is an upsert
// keyed by the entity's remote node id; the engine never deletes rows.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sfriedel/orgmirror/internal/models"
)

// DB represents the database connection.
type DB struct {
	*sql.DB
}

// New creates a new database connection.
func New(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db}, nil
}

// Initialize creates the database schema if it doesn't exist.
func (db *DB) Initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		login TEXT NOT NULL,
		name TEXT,
		avatar_url TEXT,
		custom_avatar_url TEXT
	);

	CREATE TABLE IF NOT EXISTS repositories (
		id TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		name TEXT NOT NULL,
		full_name TEXT NOT NULL UNIQUE,
		private BOOLEAN NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS issues (
		id TEXT PRIMARY KEY,
		number INTEGER NOT NULL,
		repository_id TEXT NOT NULL,
		user_id TEXT,
		title TEXT NOT NULL,
		body TEXT,
		state TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		closed_at TIMESTAMP,
		raw_data TEXT,
		status_timeline TEXT,
		FOREIGN KEY (repository_id) REFERENCES repositories(id),
		FOREIGN KEY (user_id) REFERENCES users(id),
		UNIQUE(repository_id, number)
	);

	CREATE TABLE IF NOT EXISTS pull_requests (
		id TEXT PRIMARY KEY,
		number INTEGER NOT NULL,
		repository_id TEXT NOT NULL,
		user_id TEXT,
		title TEXT NOT NULL,
		body TEXT,
		state TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		closed_at TIMESTAMP,
		merged_at TIMESTAMP,
		FOREIGN KEY (repository_id) REFERENCES repositories(id),
		FOREIGN KEY (user_id) REFERENCES users(id),
		UNIQUE(repository_id, number)
	);

	CREATE TABLE IF NOT EXISTS reviews (
		id TEXT PRIMARY KEY,
		pull_request_id TEXT NOT NULL,
		user_id TEXT,
		state TEXT NOT NULL,
		body TEXT,
		submitted_at TIMESTAMP NOT NULL,
		FOREIGN KEY (pull_request_id) REFERENCES pull_requests(id),
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS comments (
		id TEXT PRIMARY KEY,
		issue_id TEXT,
		pull_request_id TEXT,
		review_id TEXT,
		user_id TEXT,
		body TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		FOREIGN KEY (issue_id) REFERENCES issues(id),
		FOREIGN KEY (pull_request_id) REFERENCES pull_requests(id),
		FOREIGN KEY (review_id) REFERENCES reviews(id),
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS reactions (
		id TEXT PRIMARY KEY,
		subject_id TEXT NOT NULL,
		user_id TEXT,
		content TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS review_requests (
		id TEXT PRIMARY KEY,
		pull_request_id TEXT NOT NULL,
		reviewer_id TEXT NOT NULL,
		requested_at TIMESTAMP NOT NULL,
		removed_at TIMESTAMP,
		FOREIGN KEY (pull_request_id) REFERENCES pull_requests(id),
		FOREIGN KEY (reviewer_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS sync_state (
		resource TEXT PRIMARY KEY,
		last_updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sync_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		resource TEXT NOT NULL,
		status TEXT NOT NULL,
		message TEXT,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP
	);
	`

	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// SaveRepository saves a repository to the database.
func (db *DB) SaveRepository(repo *models.Repository) error {
	query := `
	INSERT INTO repositories (id, owner, name, full_name, private, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		owner = excluded.owner,
		name = excluded.name,
		full_name = excluded.full_name,
		private = excluded.private,
		updated_at = excluded.updated_at
	`

	_, err := db.Exec(query, repo.ID, repo.Owner, repo.Name, repo.FullName,
		repo.Private, repo.CreatedAt, repo.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save repository: %w", err)
	}

	return nil
}

// SaveUser upserts a user. Only the remote fields are written; a custom
// avatar override set locally survives every re-sync.
func (db *DB) SaveUser(user *models.User) error {
	query := `
	INSERT INTO users (id, login, name, avatar_url)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		login = excluded.login,
		name = excluded.name,
		avatar_url = excluded.avatar_url
	`

	_, err := db.Exec(query, user.ID, user.Login, user.Name, user.AvatarURL)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}

	return nil
}

// SetCustomAvatar records a local avatar override for a user.
func (db *DB) SetCustomAvatar(userID, url string) error {
	_, err := db.Exec(`UPDATE users SET custom_avatar_url = ? WHERE id = ?`, url, userID)
	if err != nil {
		return fmt.Errorf("failed to set custom avatar: %w", err)
	}
	return nil
}

// GetUser returns a user by id, or nil if not found.
func (db *DB) GetUser(id string) (*models.User, error) {
	var u models.User
	var name, avatar, custom sql.NullString
	err := db.QueryRow(
		`SELECT id, login, name, avatar_url, custom_avatar_url FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Login, &name, &avatar, &custom)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.Name = name.String
	u.AvatarURL = avatar.String
	u.CustomAvatarURL = custom.String
	return &u, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}
