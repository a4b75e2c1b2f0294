package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/sfriedel/orgmirror/internal/models"
)

// SavePullRequest upserts a pull request.
func (db *DB) SavePullRequest(pr *models.PullRequest) error {
	query := `
	INSERT INTO pull_requests (id, number, repository_id, user_id, title, body, state, created_at, updated_at, closed_at, merged_at)
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
		merged_at = excluded.merged_at
	`

	_, err := db.Exec(query, pr.ID, pr.Number, pr.RepositoryID,
		nullString(pr.UserID), pr.Title, pr.Body, pr.State,
		pr.CreatedAt, pr.UpdatedAt, pr.ClosedAt, pr.MergedAt)
	if err != nil {
		return fmt.Errorf("failed to save pull request #%d: %w", pr.Number, err)
	}

	return nil
}

// SaveReview upserts a review.
func (db *DB) SaveReview(review *models.Review) error {
	query := `
	INSERT INTO reviews (id, pull_request_id, user_id, state, body, submitted_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		state = excluded.state,
		body = excluded.body,
		submitted_at = excluded.submitted_at
	`

	_, err := db.Exec(query, review.ID, review.PullRequestID,
		nullString(review.UserID), review.State, review.Body, review.SubmittedAt)
	if err != nil {
		return fmt.Errorf("failed to save review: %w", err)
	}

	return nil
}

// ReviewExists reports whether a review row with the given id is present.
func (db *DB) ReviewExists(id string) (bool, error) {
	var one int
	err := db.QueryRow(`SELECT 1 FROM reviews WHERE id = ?`, id).Scan(&one)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("failed to check review: %w", err)
	}
	return true, nil
}

// SaveReviewRequest upserts a review request keyed by its timeline event id.
// removed_at is deliberately left alone so a replayed timeline cannot reopen
// a request that a later event already closed.
func (db *DB) SaveReviewRequest(req *models.ReviewRequest) error {
	query := `
	INSERT INTO review_requests (id, pull_request_id, reviewer_id, requested_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		requested_at = excluded.requested_at
	`

	_, err := db.Exec(query, req.ID, req.PullRequestID, req.ReviewerID, req.RequestedAt)
	if err != nil {
		return fmt.Errorf("failed to save review request: %w", err)
	}

	return nil
}

// CloseReviewRequest stamps removed_at on the most recent still-open review
// request for (pull request, reviewer) that was requested at or before the
// removal time. When no such request exists the removal was already applied
// on a previous run and this is a no-op.
func (db *DB) CloseReviewRequest(prID, reviewerID string, removedAt time.Time) error {
	query := `
	UPDATE review_requests SET removed_at = ?
	WHERE id = (
		SELECT id FROM review_requests
		WHERE pull_request_id = ? AND reviewer_id = ?
			AND removed_at IS NULL AND requested_at <= ?
		ORDER BY requested_at DESC
		LIMIT 1
	)
	`

	_, err := db.Exec(query, removedAt, prID, reviewerID, removedAt)
	if err != nil {
		return fmt.Errorf("failed to close review request: %w", err)
	}

	return nil
}

// OpenReviewRequests returns the open review requests for a pull request,
// most recent first.
func (db *DB) OpenReviewRequests(prID string) ([]models.ReviewRequest, error) {
	rows, err := db.Query(`
	SELECT id, pull_request_id, reviewer_id, requested_at
	FROM review_requests
	WHERE pull_request_id = ? AND removed_at IS NULL
	ORDER BY requested_at DESC`, prID)
	if err != nil {
		return nil, fmt.Errorf("failed to list review requests: %w", err)
	}
	defer rows.Close()

	var reqs []models.ReviewRequest
	for rows.Next() {
		var r models.ReviewRequest
		if err := rows.Scan(&r.ID, &r.PullRequestID, &r.ReviewerID, &r.RequestedAt); err != nil {
			return nil, fmt.Errorf("failed to scan review request: %w", err)
		}
		reqs = append(reqs, r)
	}
	return reqs, rows.Err()
}
