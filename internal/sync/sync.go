// Package sync implements the incremental collection engine: it walks the
// remote connections, persists normalized rows, reconciles project status
// history, and maintains per-resource watermarks and run logs.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sfriedel/orgmirror/internal/api"
	"github.com/sfriedel/orgmirror/internal/db"
	"github.com/sfriedel/orgmirror/internal/models"
)

// Resource kinds tracked in sync_state and sync_log.
const (
	ResourceRepositories = "repositories"
	ResourceIssues       = "issues"
	ResourcePullRequests = "pull_requests"
	ResourceReviews      = "reviews"
	ResourceComments     = "comments"
)

// API is the remote surface the collectors walk. *api.Client implements it;
// tests substitute a fake.
type API interface {
	OrgRepositories(ctx context.Context, org, cursor string) (*api.RepositoryPage, error)
	Issues(ctx context.Context, owner, name, cursor string) (*api.IssuePage, error)
	PullRequests(ctx context.Context, owner, name, cursor string) (*api.PullRequestPage, error)
	IssueComments(ctx context.Context, owner, name string, number int, cursor string) (*api.CommentPage, error)
	PullRequestComments(ctx context.Context, owner, name string, number int, cursor string) (*api.CommentPage, error)
	ReviewThreadComments(ctx context.Context, owner, name string, number int, cursor string) (*api.CommentPage, error)
	Reviews(ctx context.Context, owner, name string, number int, cursor string) (*api.ReviewPage, error)
	ReviewRequestTimeline(ctx context.Context, owner, name string, number int, cursor string) (*api.TimelinePage, error)
}

// Syncer runs collection passes against one organization's data.
type Syncer struct {
	db      *db.DB
	client  API
	tracked []string
	logger  *slog.Logger
}

// New creates a new syncer. trackedProjects names the boards whose status
// changes invalidate an issue's derived activity timeline.
func New(database *db.DB, client API, trackedProjects []string, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		db:      database,
		client:  client,
		tracked: trackedProjects,
		logger:  logger,
	}
}

// Options bound one collection run. A missing Since entry falls back to the
// stored watermark for that resource; a zero Until leaves the window open.
type Options struct {
	Since  map[string]time.Time
	Until  time.Time
	Logger *slog.Logger
}

// Summary aggregates a completed run: how many repositories were walked and,
// per resource, how many rows were persisted and the latest governing
// timestamp observed.
type Summary struct {
	Repositories int
	Counts       map[string]int
	Watermarks   map[string]time.Time
}

// stageResult accumulates per-resource counts and running maxima inside one
// run.
type stageResult struct {
	counts map[string]int
	maxes  map[string]time.Time
}

func newStageResult() *stageResult {
	return &stageResult{
		counts: make(map[string]int),
		maxes:  make(map[string]time.Time),
	}
}

func (r *stageResult) observe(resource string, ts time.Time) {
	r.counts[resource]++
	if ts.After(r.maxes[resource]) {
		r.maxes[resource] = ts
	}
}

// RunCollection executes one full sync run for an organization: the
// repository stage first (later stages need repository identity), then
// issues with their comments, then pull requests with their comments,
// reviews, and review-request timelines. A failed stage marks its log rows
// failed and aborts the run; rows already persisted stay, and the next run
// resumes from the last successful watermarks.
func (s *Syncer) RunCollection(ctx context.Context, org string, opts Options) (*Summary, error) {
	logger := s.logger
	if opts.Logger != nil {
		logger = opts.Logger
	}

	result := newStageResult()
	actors := make(actorCache)

	// Stage 1: repositories, unbounded by any time window.
	repoLogID, err := s.db.StartSyncLog(ResourceRepositories)
	if err != nil {
		return nil, err
	}
	repos, err := s.collectRepositories(ctx, org, result)
	if err != nil {
		s.failLogs(err, repoLogID)
		return nil, fmt.Errorf("repository collection failed: %w", err)
	}
	s.finishLog(repoLogID, fmt.Sprintf("%d repositories", len(repos)))
	logger.Info("repositories collected", "org", org, "count", len(repos))

	issueWindow, err := s.windowFor(ResourceIssues, opts)
	if err != nil {
		return nil, err
	}
	prWindow, err := s.windowFor(ResourcePullRequests, opts)
	if err != nil {
		return nil, err
	}
	reviewWindow, err := s.windowFor(ResourceReviews, opts)
	if err != nil {
		return nil, err
	}
	commentWindow, err := s.windowFor(ResourceComments, opts)
	if err != nil {
		return nil, err
	}

	// The comments log spans stages 2 and 3: comments hang off both issues
	// and pull requests, and only a fully completed run may mark it success.
	commentsLogID, err := s.db.StartSyncLog(ResourceComments)
	if err != nil {
		return nil, err
	}

	// Stage 2: issues and their comments.
	issuesLogID, err := s.db.StartSyncLog(ResourceIssues)
	if err != nil {
		return nil, err
	}
	for _, repo := range repos {
		if err := s.collectIssues(ctx, repo, issueWindow, commentWindow, actors, result); err != nil {
			s.failLogs(err, issuesLogID, commentsLogID)
			return nil, fmt.Errorf("issue collection failed for %s: %w", repo.FullName, err)
		}
	}
	s.finishLog(issuesLogID, fmt.Sprintf("%d issues", result.counts[ResourceIssues]))
	logger.Info("issues collected", "count", result.counts[ResourceIssues])

	// Stage 3: pull requests with comments, reviews, and timelines.
	prLogID, err := s.db.StartSyncLog(ResourcePullRequests)
	if err != nil {
		return nil, err
	}
	reviewsLogID, err := s.db.StartSyncLog(ResourceReviews)
	if err != nil {
		return nil, err
	}
	for _, repo := range repos {
		if err := s.collectPullRequests(ctx, repo, prWindow, reviewWindow, commentWindow, actors, result); err != nil {
			s.failLogs(err, prLogID, reviewsLogID, commentsLogID)
			return nil, fmt.Errorf("pull request collection failed for %s: %w", repo.FullName, err)
		}
	}
	s.finishLog(prLogID, fmt.Sprintf("%d pull requests", result.counts[ResourcePullRequests]))
	s.finishLog(reviewsLogID, fmt.Sprintf("%d reviews", result.counts[ResourceReviews]))
	s.finishLog(commentsLogID, fmt.Sprintf("%d comments", result.counts[ResourceComments]))
	logger.Info("pull requests collected",
		"pull_requests", result.counts[ResourcePullRequests],
		"reviews", result.counts[ResourceReviews],
		"comments", result.counts[ResourceComments])

	summary := &Summary{
		Repositories: len(repos),
		Counts:       result.counts,
		Watermarks:   make(map[string]time.Time),
	}
	for _, resource := range []string{
		ResourceRepositories, ResourceIssues, ResourcePullRequests,
		ResourceReviews, ResourceComments,
	} {
		max := result.maxes[resource]
		if max.IsZero() {
			continue // nothing advanced the watermark this run
		}
		summary.Watermarks[resource] = max
		if err := s.advanceWatermark(resource, max); err != nil {
			return nil, err
		}
	}

	return summary, nil
}

// collectRepositories walks the organization's full repository connection.
func (s *Syncer) collectRepositories(ctx context.Context, org string, result *stageResult) ([]models.Repository, error) {
	var repos []models.Repository
	cursor := ""
	for {
		page, err := s.client.OrgRepositories(ctx, org, cursor)
		if err != nil {
			return nil, err
		}
		for _, r := range page.Repositories {
			repo := models.Repository{
				ID:        r.ID,
				Owner:     r.Owner,
				Name:      r.Name,
				FullName:  r.FullName,
				Private:   r.Private,
				CreatedAt: r.CreatedAt,
				UpdatedAt: r.UpdatedAt,
			}
			if err := s.db.SaveRepository(&repo); err != nil {
				return nil, err
			}
			result.observe(ResourceRepositories, r.UpdatedAt)
			repos = append(repos, repo)
		}
		if !page.PageInfo.HasNextPage {
			break
		}
		cursor = page.PageInfo.EndCursor
	}
	return repos, nil
}

// windowFor resolves a resource's window from the run options, falling back
// to the stored watermark as the lower bound.
func (s *Syncer) windowFor(resource string, opts Options) (Window, error) {
	since, ok := opts.Since[resource]
	if !ok || since.IsZero() {
		stored, err := s.db.GetSyncState(resource)
		if err != nil {
			return Window{}, err
		}
		since = stored
	}
	return Window{Since: since, Until: opts.Until}, nil
}

// advanceWatermark moves a resource's watermark forward, never backward.
func (s *Syncer) advanceWatermark(resource string, ts time.Time) error {
	stored, err := s.db.GetSyncState(resource)
	if err != nil {
		return err
	}
	if !ts.After(stored) {
		return nil
	}
	return s.db.SetSyncState(resource, ts)
}

func (s *Syncer) finishLog(id int64, message string) {
	if err := s.db.FinishSyncLog(id, models.SyncStatusSuccess, message); err != nil {
		s.logger.Warn("failed to update sync log", "id", id, "error", err)
	}
}

// failLogs marks every log row of the failed stage with the error message.
// This is the only place an error becomes a terminal failed row.
func (s *Syncer) failLogs(cause error, ids ...int64) {
	for _, id := range ids {
		if err := s.db.FinishSyncLog(id, models.SyncStatusFailed, cause.Error()); err != nil {
			s.logger.Warn("failed to update sync log", "id", id, "error", err)
		}
	}
}
