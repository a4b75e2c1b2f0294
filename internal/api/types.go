package api

import "time"

// Actor is a flattened account reference: a user, bot, or organization.
type Actor struct {
	ID        string
	Login     string
	Name      string
	AvatarURL string
}

// Repository is one node of the organization's repository connection.
type Repository struct {
	ID        string
	Owner     string
	Name      string
	FullName  string
	Private   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProjectStatus is one project-item membership visible on an issue: the
// item, its board, and the current value of the board's Status field.
// OccurredAt is the raw timestamp string the field value carried.
type ProjectStatus struct {
	ItemID       string
	ProjectTitle string
	Status       string
	OccurredAt   string
}

// Reaction is an emoji reaction on an issue, pull request, or comment.
type Reaction struct {
	ID        string
	Content   string
	User      Actor
	CreatedAt time.Time
}

// Issue is one node of a repository's issue connection, including the
// project status snapshot and inline reactions.
type Issue struct {
	ID              string
	Number          int
	Title           string
	Body            string
	State           string
	Author          Actor
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ClosedAt        *time.Time
	ProjectStatuses []ProjectStatus
	Reactions       []Reaction
}

// PullRequest is one node of a repository's pull request connection.
type PullRequest struct {
	ID        string
	Number    int
	Title     string
	Body      string
	State     string
	Author    Actor
	CreatedAt time.Time
	UpdatedAt time.Time
	ClosedAt  *time.Time
	MergedAt  *time.Time
	Reactions []Reaction
}

// Review is one node of a pull request's review connection. SubmittedAt is
// nil for pending reviews, which are excluded from collection.
type Review struct {
	ID          string
	Author      Actor
	State       string
	Body        string
	SubmittedAt *time.Time
}

// Comment is one node of an issue, pull request, or review-thread comment
// connection. ReviewID is set only for review-thread comments.
type Comment struct {
	ID        string
	Author    Actor
	Body      string
	CreatedAt time.Time
	UpdatedAt time.Time
	ReviewID  string
	Reactions []Reaction
}

// TimelineEventKind discriminates the timeline event variants the engine
// consumes. Unknown kinds resolve to EventOther, a no-op.
type TimelineEventKind int

const (
	EventOther TimelineEventKind = iota
	EventReviewRequested
	EventReviewRequestRemoved
)

// TimelineEvent is one review-request lifecycle event. Reviewer is nil for
// team-reviewer targets, which the engine ignores.
type TimelineEvent struct {
	Kind      TimelineEventKind
	ID        string
	CreatedAt time.Time
	Reviewer  *Actor
}

// PageInfo carries connection pagination state.
type PageInfo struct {
	EndCursor   string
	HasNextPage bool
}

// RepositoryPage is one page of the organization repository connection.
type RepositoryPage struct {
	Repositories []Repository
	PageInfo     PageInfo
}

// IssuePage is one page of a repository's issue connection.
type IssuePage struct {
	Issues   []Issue
	PageInfo PageInfo
}

// PullRequestPage is one page of a repository's pull request connection.
type PullRequestPage struct {
	PullRequests []PullRequest
	PageInfo     PageInfo
}

// ReviewPage is one page of a pull request's review connection.
type ReviewPage struct {
	Reviews  []Review
	PageInfo PageInfo
}

// CommentPage is one page of a comment connection, regardless of which of
// the three remote connections produced it.
type CommentPage struct {
	Comments []Comment
	PageInfo PageInfo
}

// TimelinePage is one page of a pull request's review-request timeline.
type TimelinePage struct {
	Events   []TimelineEvent
	PageInfo PageInfo
}
