package db

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/sfriedel/orgmirror/internal/models"
)

// SaveIssue upserts an issue. The derived status_timeline column is not
// touched here; it is only ever written by ClearStatusTimeline.
func (db *DB) SaveIssue(issue *models.Issue) error {
	query := `
	INSERT INTO issues (id, number, repository_id, user_id, title, body, state, created_at, updated_at, closed_at, raw_data)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		number = excluded.number,
		repository_id = excluded.repository_id,
		user_id = excluded.user_id,
		title = excluded.title,
		body = excluded.body,
		state = excluded.state,
		updated_at = excluded.updated_at,
		closed_at = excluded.closed_at,
		raw_data = excluded.raw_data
	`

	_, err := db.Exec(query, issue.ID, issue.Number, issue.RepositoryID,
		nullString(issue.UserID), issue.Title, issue.Body, issue.State,
		issue.CreatedAt, issue.UpdatedAt, issue.ClosedAt, issue.RawData)
	if err != nil {
		return fmt.Errorf("failed to save issue #%d: %w", issue.Number, err)
	}

	return nil
}

// GetIssueProjectHistory returns the project status history stored in an
// issue's raw payload. A missing issue or empty payload yields nil.
func (db *DB) GetIssueProjectHistory(issueID string) ([]models.ProjectStatusEntry, error) {
	var raw sql.NullString
	err := db.QueryRow(`SELECT raw_data FROM issues WHERE id = ?`, issueID).Scan(&raw)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read issue payload: %w", err)
	}
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}

	var data models.IssueRawData
	if err := json.Unmarshal([]byte(raw.String), &data); err != nil {
		return nil, fmt.Errorf("failed to decode issue payload: %w", err)
	}
	return data.ProjectStatusHistory, nil
}

// ClearStatusTimeline wipes the derived activity timeline of an issue.
// Called when a tracked project's status history changed, because project
// status takes precedence over the derived feed.
func (db *DB) ClearStatusTimeline(issueID string) error {
	_, err := db.Exec(`UPDATE issues SET status_timeline = NULL WHERE id = ?`, issueID)
	if err != nil {
		return fmt.Errorf("failed to clear status timeline: %w", err)
	}
	return nil
}

// SaveComment upserts a comment.
func (db *DB) SaveComment(comment *models.Comment) error {
	query := `
	INSERT INTO comments (id, issue_id, pull_request_id, review_id, user_id, body, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		review_id = excluded.review_id,
		user_id = excluded.user_id,
		body = excluded.body,
		updated_at = excluded.updated_at
	`

	_, err := db.Exec(query, comment.ID, nullString(comment.IssueID),
		nullString(comment.PullRequestID), nullString(comment.ReviewID),
		nullString(comment.UserID), comment.Body, comment.CreatedAt, comment.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save comment: %w", err)
	}

	return nil
}

// SaveReaction upserts a reaction.
func (db *DB) SaveReaction(reaction *models.Reaction) error {
	query := `
	INSERT INTO reactions (id, subject_id, user_id, content, created_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		content = excluded.content
	`

	_, err := db.Exec(query, reaction.ID, reaction.SubjectID,
		nullString(reaction.UserID), reaction.Content, reaction.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save reaction: %w", err)
	}

	return nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
