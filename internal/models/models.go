package models

import (
	"time"
)

// Repository represents a GitHub repository belonging to the mirrored
// organization. Repositories are never deleted by the engine.
type Repository struct {
	ID        string
	Owner     string
	Name      string
	FullName  string
	Private   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// User represents any GitHub account: a human, a bot, or an organization.
// AvatarURL always tracks the remote value; CustomAvatarURL is a local
// override that a re-sync must never clobber.
type User struct {
	ID              string
	Login           string
	Name            string
	AvatarURL       string
	CustomAvatarURL string
}

// Issue represents a GitHub issue. RawData is a JSON payload that carries
// the issue's project status history; StatusTimeline is a separately derived
// activity feed that reconciliation may clear.
type Issue struct {
	ID             string
	Number         int
	RepositoryID   string
	UserID         string
	Title          string
	Body           string
	State          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ClosedAt       *time.Time
	RawData        string
	StatusTimeline string
}

// PullRequest represents a GitHub pull request.
type PullRequest struct {
	ID           string
	Number       int
	RepositoryID string
	UserID       string
	Title        string
	Body         string
	State        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ClosedAt     *time.Time
	MergedAt     *time.Time
}

// Review represents a submitted review on a pull request. Pending reviews
// (no submission time yet) are never collected.
type Review struct {
	ID            string
	PullRequestID string
	UserID        string
	State         string
	Body          string
	SubmittedAt   time.Time
}

// Comment belongs to exactly one of an issue or a pull request. ReviewID is
// set only for review-thread comments whose review exists locally.
type Comment struct {
	ID            string
	IssueID       string
	PullRequestID string
	ReviewID      string
	UserID        string
	Body          string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Reaction is an emoji reaction on an issue, pull request, or comment.
type Reaction struct {
	ID        string
	SubjectID string
	UserID    string
	Content   string
	CreatedAt time.Time
}

// ReviewRequest records one review-requested timeline event for a pull
// request and reviewer. The ID is the timeline event's node id, which makes
// replaying a timeline idempotent. RemovedAt is set when a later removal
// event closes the request.
type ReviewRequest struct {
	ID            string
	PullRequestID string
	ReviewerID    string
	RequestedAt   time.Time
	RemovedAt     *time.Time
}

// StatusRemoved is the sentinel status marking an issue's removal from a
// project board. The remote API has no event for this; the reconciler
// synthesizes it when a previously seen project item disappears.
const StatusRemoved = "REMOVED"

// ProjectStatusEntry is one element of an issue's project status history,
// stored as JSON inside the issue's raw payload. OccurredAt is kept as the
// raw string the API delivered; it is usually RFC 3339 but not guaranteed.
type ProjectStatusEntry struct {
	ProjectItemID string `json:"projectItemId"`
	ProjectTitle  string `json:"projectTitle"`
	Status        string `json:"status"`
	OccurredAt    string `json:"occurredAt"`
}

// IssueRawData is the JSON envelope stored in Issue.RawData.
type IssueRawData struct {
	ProjectStatusHistory []ProjectStatusEntry `json:"projectStatusHistory"`
}

// SyncState holds the per-resource high-water mark: the largest governing
// timestamp observed for that resource, used as the next run's lower bound.
type SyncState struct {
	Resource      string
	LastUpdatedAt time.Time
}

// Sync log statuses.
const (
	SyncStatusRunning = "running"
	SyncStatusSuccess = "success"
	SyncStatusFailed  = "failed"
)

// SyncLogEntry is one append-only run record for a resource kind.
type SyncLogEntry struct {
	ID         int64
	Resource   string
	Status     string
	Message    string
	StartedAt  time.Time
	FinishedAt *time.Time
}
