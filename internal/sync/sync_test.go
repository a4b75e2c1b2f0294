package sync

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sfriedel/orgmirror/internal/api"
	"github.com/sfriedel/orgmirror/internal/db"
	"github.com/sfriedel/orgmirror/internal/models"
)

// fakeAPI serves canned single-page connections.
type fakeAPI struct {
	repos          []api.Repository
	issues         []api.Issue
	pulls          []api.PullRequest
	issueComments  map[int][]api.Comment
	prComments     map[int][]api.Comment
	threadComments map[int][]api.Comment
	reviews        map[int][]api.Review
	timeline       map[int][]api.TimelineEvent

	failIssues bool
}

func (f *fakeAPI) OrgRepositories(ctx context.Context, org, cursor string) (*api.RepositoryPage, error) {
	return &api.RepositoryPage{Repositories: f.repos}, nil
}

func (f *fakeAPI) Issues(ctx context.Context, owner, name, cursor string) (*api.IssuePage, error) {
	if f.failIssues {
		return nil, errors.New("issues query exploded")
	}
	return &api.IssuePage{Issues: f.issues}, nil
}

func (f *fakeAPI) PullRequests(ctx context.Context, owner, name, cursor string) (*api.PullRequestPage, error) {
	return &api.PullRequestPage{PullRequests: f.pulls}, nil
}

func (f *fakeAPI) IssueComments(ctx context.Context, owner, name string, number int, cursor string) (*api.CommentPage, error) {
	return &api.CommentPage{Comments: f.issueComments[number]}, nil
}

func (f *fakeAPI) PullRequestComments(ctx context.Context, owner, name string, number int, cursor string) (*api.CommentPage, error) {
	return &api.CommentPage{Comments: f.prComments[number]}, nil
}

func (f *fakeAPI) ReviewThreadComments(ctx context.Context, owner, name string, number int, cursor string) (*api.CommentPage, error) {
	return &api.CommentPage{Comments: f.threadComments[number]}, nil
}

func (f *fakeAPI) Reviews(ctx context.Context, owner, name string, number int, cursor string) (*api.ReviewPage, error) {
	return &api.ReviewPage{Reviews: f.reviews[number]}, nil
}

func (f *fakeAPI) ReviewRequestTimeline(ctx context.Context, owner, name string, number int, cursor string) (*api.TimelinePage, error) {
	return &api.TimelinePage{Events: f.timeline[number]}, nil
}

func testDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.Initialize())
	return database
}

var (
	alice = api.Actor{ID: "U1", Login: "alice", Name: "Alice", AvatarURL: "https://a/alice.png"}
	bob   = api.Actor{ID: "U2", Login: "bob", AvatarURL: "https://a/bob.png"}
)

func ts(hour int) time.Time {
	return time.Date(2024, 3, 1, hour, 0, 0, 0, time.UTC)
}

func testRepo() api.Repository {
	return api.Repository{
		ID: "R1", Owner: "acme", Name: "widgets", FullName: "acme/widgets",
		CreatedAt: ts(0), UpdatedAt: ts(9),
	}
}

func newTestSyncer(t *testing.T, client API, tracked []string) (*Syncer, *db.DB) {
	database := testDB(t)
	return New(database, client, tracked, slog.Default()), database
}

func TestRunCollectionEndToEnd(t *testing.T) {
	submitted := ts(13)
	client := &fakeAPI{
		repos: []api.Repository{testRepo()},
		issues: []api.Issue{{
			ID: "I1", Number: 1, Title: "broken widget", State: "OPEN",
			Author: alice, CreatedAt: ts(9), UpdatedAt: ts(10),
			ProjectStatuses: []api.ProjectStatus{
				{ItemID: "itemA", ProjectTitle: "Roadmap", Status: "todo", OccurredAt: "2024-03-01T09:30:00Z"},
			},
			Reactions: []api.Reaction{{ID: "REA1", Content: "THUMBS_UP", User: bob, CreatedAt: ts(10)}},
		}},
		issueComments: map[int][]api.Comment{
			1: {{ID: "C1", Author: bob, Body: "me too", CreatedAt: ts(10), UpdatedAt: ts(11)}},
		},
		pulls: []api.PullRequest{{
			ID: "PR1", Number: 2, Title: "fix widget", State: "MERGED",
			Author: bob, CreatedAt: ts(11), UpdatedAt: ts(14),
		}},
		prComments: map[int][]api.Comment{
			2: {{ID: "C2", Author: alice, Body: "nice", CreatedAt: ts(12), UpdatedAt: ts(12)}},
		},
		reviews: map[int][]api.Review{
			2: {{ID: "RV1", Author: alice, State: "APPROVED", SubmittedAt: &submitted}},
		},
		threadComments: map[int][]api.Comment{
			2: {{ID: "C3", Author: alice, Body: "typo here", CreatedAt: ts(13), UpdatedAt: ts(13), ReviewID: "RV1"}},
		},
		timeline: map[int][]api.TimelineEvent{
			2: {
				{Kind: api.EventReviewRequested, ID: "E1", CreatedAt: ts(11), Reviewer: &alice},
				{Kind: api.EventReviewRequestRemoved, ID: "E2", CreatedAt: ts(12), Reviewer: &alice},
				{Kind: api.EventOther},
			},
		},
	}

	syncer, database := newTestSyncer(t, client, nil)
	summary, err := syncer.RunCollection(context.Background(), "acme", Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Repositories)
	assert.Equal(t, 1, summary.Counts[ResourceIssues])
	assert.Equal(t, 1, summary.Counts[ResourcePullRequests])
	assert.Equal(t, 1, summary.Counts[ResourceReviews])
	assert.Equal(t, 3, summary.Counts[ResourceComments])
	assert.True(t, summary.Watermarks[ResourceIssues].Equal(ts(10)))
	assert.True(t, summary.Watermarks[ResourcePullRequests].Equal(ts(14)))

	// Watermarks landed in sync_state.
	mark, err := database.GetSyncState(ResourceIssues)
	require.NoError(t, err)
	assert.True(t, mark.Equal(ts(10)))

	// The review-thread comment kept its verified review reference.
	var reviewID string
	require.NoError(t, database.QueryRow(
		`SELECT review_id FROM comments WHERE id = 'C3'`).Scan(&reviewID))
	assert.Equal(t, "RV1", reviewID)

	// The removal event closed the open review request.
	open, err := database.OpenReviewRequests("PR1")
	require.NoError(t, err)
	assert.Empty(t, open)

	// Project history was embedded into the issue payload.
	history, err := database.GetIssueProjectHistory("I1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "todo", history[0].Status)

	// Every stage closed its log as success.
	rows, err := database.Query(`SELECT resource, status FROM sync_log`)
	require.NoError(t, err)
	defer rows.Close()
	statuses := map[string]string{}
	for rows.Next() {
		var resource, status string
		require.NoError(t, rows.Scan(&resource, &status))
		statuses[resource] = status
	}
	require.NoError(t, rows.Err())
	for _, resource := range []string{ResourceRepositories, ResourceIssues, ResourcePullRequests, ResourceReviews, ResourceComments} {
		assert.Equal(t, models.SyncStatusSuccess, statuses[resource], resource)
	}
}

func TestConsecutiveRunsFetchDisjointIssues(t *testing.T) {
	client := &fakeAPI{
		repos: []api.Repository{testRepo()},
		issues: []api.Issue{
			{ID: "I1", Number: 1, Title: "early", State: "OPEN", Author: alice, CreatedAt: ts(9), UpdatedAt: ts(10)},
			{ID: "I2", Number: 2, Title: "late", State: "OPEN", Author: alice, CreatedAt: ts(9), UpdatedAt: ts(12)},
		},
	}

	syncer, database := newTestSyncer(t, client, nil)

	first, err := syncer.RunCollection(context.Background(), "acme", Options{Until: ts(11)})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Counts[ResourceIssues])
	assert.True(t, first.Watermarks[ResourceIssues].Equal(ts(10)))

	var count int
	require.NoError(t, database.QueryRow(`SELECT COUNT(*) FROM issues`).Scan(&count))
	assert.Equal(t, 1, count)

	// The second run resumes from the stored watermark and fetches only
	// the issue past the boundary.
	second, err := syncer.RunCollection(context.Background(), "acme", Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, second.Counts[ResourceIssues])
	assert.True(t, second.Watermarks[ResourceIssues].Equal(ts(12)))
	assert.True(t, second.Watermarks[ResourceIssues].After(first.Watermarks[ResourceIssues]))

	require.NoError(t, database.QueryRow(`SELECT COUNT(*) FROM issues`).Scan(&count))
	assert.Equal(t, 2, count)
}

func TestWindowUpperBoundExcludesBoundaryItem(t *testing.T) {
	client := &fakeAPI{
		repos: []api.Repository{testRepo()},
		issues: []api.Issue{
			{ID: "I1", Number: 1, Title: "at boundary", State: "OPEN", Author: alice, CreatedAt: ts(9), UpdatedAt: ts(11)},
		},
	}

	syncer, database := newTestSyncer(t, client, nil)
	summary, err := syncer.RunCollection(context.Background(), "acme", Options{Until: ts(11)})
	require.NoError(t, err)

	assert.Zero(t, summary.Counts[ResourceIssues])
	_, haveMark := summary.Watermarks[ResourceIssues]
	assert.False(t, haveMark)

	var count int
	require.NoError(t, database.QueryRow(`SELECT COUNT(*) FROM issues`).Scan(&count))
	assert.Zero(t, count)
}

func TestRunIsIdempotent(t *testing.T) {
	client := &fakeAPI{
		repos: []api.Repository{testRepo()},
		issues: []api.Issue{
			{ID: "I1", Number: 1, Title: "stable", State: "OPEN", Author: alice, CreatedAt: ts(9), UpdatedAt: ts(10)},
		},
		issueComments: map[int][]api.Comment{
			1: {{ID: "C1", Author: bob, Body: "hi", CreatedAt: ts(10), UpdatedAt: ts(10)}},
		},
	}

	syncer, database := newTestSyncer(t, client, nil)
	_, err := syncer.RunCollection(context.Background(), "acme", Options{})
	require.NoError(t, err)

	// Replaying the identical remote data must not duplicate any rows.
	_, err = syncer.RunCollection(context.Background(), "acme",
		Options{Since: map[string]time.Time{ResourceIssues: ts(9), ResourceComments: ts(9)}})
	require.NoError(t, err)

	for _, table := range []string{"issues", "comments", "users"} {
		var count int
		require.NoError(t, database.QueryRow(`SELECT COUNT(*) FROM `+table).Scan(&count))
		assert.Equalf(t, countForTable(table), count, "table %s", table)
	}
}

func countForTable(table string) int {
	switch table {
	case "users":
		return 2 // alice and bob
	default:
		return 1
	}
}

func TestFailedIssueStageMarksLogsAndAborts(t *testing.T) {
	client := &fakeAPI{
		repos:      []api.Repository{testRepo()},
		failIssues: true,
	}

	syncer, database := newTestSyncer(t, client, nil)
	_, err := syncer.RunCollection(context.Background(), "acme", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acme/widgets")

	rows, err := database.Query(`SELECT resource, status, message FROM sync_log`)
	require.NoError(t, err)
	defer rows.Close()

	statuses := map[string]string{}
	messages := map[string]string{}
	for rows.Next() {
		var resource, status, message string
		require.NoError(t, rows.Scan(&resource, &status, &message))
		statuses[resource] = status
		messages[resource] = message
	}
	require.NoError(t, rows.Err())

	assert.Equal(t, models.SyncStatusSuccess, statuses[ResourceRepositories])
	assert.Equal(t, models.SyncStatusFailed, statuses[ResourceIssues])
	assert.Equal(t, models.SyncStatusFailed, statuses[ResourceComments])
	assert.Contains(t, messages[ResourceIssues], "exploded")

	// The pull request stage never started.
	_, started := statuses[ResourcePullRequests]
	assert.False(t, started)

	// Repository rows from the completed stage are retained.
	var count int
	require.NoError(t, database.QueryRow(`SELECT COUNT(*) FROM repositories`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestThreadCommentWithUnknownReviewStoredWithoutReference(t *testing.T) {
	client := &fakeAPI{
		repos: []api.Repository{testRepo()},
		pulls: []api.PullRequest{{
			ID: "PR1", Number: 2, Title: "fix", State: "OPEN",
			Author: bob, CreatedAt: ts(11), UpdatedAt: ts(14),
		}},
		threadComments: map[int][]api.Comment{
			2: {{ID: "C1", Author: alice, Body: "stray", CreatedAt: ts(12), UpdatedAt: ts(12), ReviewID: "RV404"}},
		},
	}

	syncer, database := newTestSyncer(t, client, nil)
	_, err := syncer.RunCollection(context.Background(), "acme", Options{})
	require.NoError(t, err)

	var reviewID *string
	require.NoError(t, database.QueryRow(`SELECT review_id FROM comments WHERE id = 'C1'`).Scan(&reviewID))
	assert.Nil(t, reviewID)
}

func TestTrackedProjectClearsDerivedTimeline(t *testing.T) {
	client := &fakeAPI{
		repos: []api.Repository{testRepo()},
		issues: []api.Issue{{
			ID: "I1", Number: 1, Title: "tracked", State: "OPEN",
			Author: alice, CreatedAt: ts(9), UpdatedAt: ts(10),
			ProjectStatuses: []api.ProjectStatus{
				{ItemID: "itemA", ProjectTitle: "Team Roadmap", Status: "doing", OccurredAt: "2024-03-01T09:30:00Z"},
			},
		}},
	}

	syncer, database := newTestSyncer(t, client, []string{"team roadmap"})

	_, err := syncer.RunCollection(context.Background(), "acme", Options{})
	require.NoError(t, err)
	_, derr := database.Exec(`UPDATE issues SET status_timeline = '["stale"]' WHERE id = 'I1'`)
	require.NoError(t, derr)

	// The next run reconciles the tracked board again and clears the feed.
	_, err = syncer.RunCollection(context.Background(), "acme",
		Options{Since: map[string]time.Time{ResourceIssues: ts(9)}})
	require.NoError(t, err)

	var timeline *string
	require.NoError(t, database.QueryRow(`SELECT status_timeline FROM issues WHERE id = 'I1'`).Scan(&timeline))
	assert.Nil(t, timeline)
}

func TestRemovedProjectItemGetsSentinelEntry(t *testing.T) {
	issue := api.Issue{
		ID: "I1", Number: 1, Title: "moving", State: "OPEN",
		Author: alice, CreatedAt: ts(9), UpdatedAt: ts(10),
		ProjectStatuses: []api.ProjectStatus{
			{ItemID: "itemA", ProjectTitle: "Roadmap", Status: "todo", OccurredAt: "2024-03-01T09:30:00Z"},
		},
	}
	client := &fakeAPI{repos: []api.Repository{testRepo()}, issues: []api.Issue{issue}}

	syncer, database := newTestSyncer(t, client, nil)
	_, err := syncer.RunCollection(context.Background(), "acme", Options{})
	require.NoError(t, err)

	// The item left the board; the issue shows up again with no memberships.
	issue.UpdatedAt = ts(12)
	issue.ProjectStatuses = nil
	client.issues = []api.Issue{issue}

	_, err = syncer.RunCollection(context.Background(), "acme", Options{})
	require.NoError(t, err)

	history, err := database.GetIssueProjectHistory("I1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "todo", history[0].Status)
	assert.Equal(t, models.StatusRemoved, history[1].Status)
	assert.Equal(t, "2024-03-01T12:00:00Z", history[1].OccurredAt)
}
