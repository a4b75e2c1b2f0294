package db

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sfriedel/orgmirror/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	database, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.Initialize())
	return database
}

func TestSaveUserIdempotent(t *testing.T) {
	database := testDB(t)

	user := &models.User{ID: "U1", Login: "alice", Name: "Alice", AvatarURL: "https://a/1.png"}
	require.NoError(t, database.SaveUser(user))
	require.NoError(t, database.SaveUser(user))

	var count int
	require.NoError(t, database.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestSaveUserPreservesCustomAvatar(t *testing.T) {
	database := testDB(t)

	require.NoError(t, database.SaveUser(&models.User{ID: "U1", Login: "alice", AvatarURL: "https://a/1.png"}))
	require.NoError(t, database.SetCustomAvatar("U1", "https://local/override.png"))

	// A re-sync with a changed remote avatar must only touch the original.
	require.NoError(t, database.SaveUser(&models.User{ID: "U1", Login: "alice", AvatarURL: "https://a/2.png"}))

	user, err := database.GetUser("U1")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "https://a/2.png", user.AvatarURL)
	assert.Equal(t, "https://local/override.png", user.CustomAvatarURL)
}

func TestSaveRepositoryUpsert(t *testing.T) {
	database := testDB(t)

	repo := &models.Repository{
		ID: "R1", Owner: "acme", Name: "widgets", FullName: "acme/widgets",
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, database.SaveRepository(repo))

	repo.Name = "widgets-renamed"
	repo.FullName = "acme/widgets-renamed"
	require.NoError(t, database.SaveRepository(repo))

	var count int
	require.NoError(t, database.QueryRow(`SELECT COUNT(*) FROM repositories`).Scan(&count))
	assert.Equal(t, 1, count)

	var fullName string
	require.NoError(t, database.QueryRow(`SELECT full_name FROM repositories WHERE id = 'R1'`).Scan(&fullName))
	assert.Equal(t, "acme/widgets-renamed", fullName)
}

func saveTestIssue(t *testing.T, database *DB, history []models.ProjectStatusEntry) {
	t.Helper()
	require.NoError(t, database.SaveRepository(&models.Repository{
		ID: "R1", Owner: "acme", Name: "widgets", FullName: "acme/widgets",
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}))

	raw, err := json.Marshal(models.IssueRawData{ProjectStatusHistory: history})
	require.NoError(t, err)

	require.NoError(t, database.SaveIssue(&models.Issue{
		ID: "I1", Number: 7, RepositoryID: "R1", Title: "broken widget",
		State:     "OPEN",
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		RawData:   string(raw),
	}))
}

func TestIssueProjectHistoryRoundTrip(t *testing.T) {
	database := testDB(t)

	history := []models.ProjectStatusEntry{
		{ProjectItemID: "itemA", ProjectTitle: "Roadmap", Status: "todo", OccurredAt: "2024-01-01T10:00:00Z"},
	}
	saveTestIssue(t, database, history)

	got, err := database.GetIssueProjectHistory("I1")
	require.NoError(t, err)
	assert.Equal(t, history, got)
}

func TestIssueProjectHistoryMissingIssue(t *testing.T) {
	database := testDB(t)

	got, err := database.GetIssueProjectHistory("nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSaveIssuePreservesStatusTimeline(t *testing.T) {
	database := testDB(t)

	saveTestIssue(t, database, nil)
	_, err := database.Exec(`UPDATE issues SET status_timeline = '["derived"]' WHERE id = 'I1'`)
	require.NoError(t, err)

	// Re-saving the issue must not wipe the derived timeline.
	saveTestIssue(t, database, nil)
	var timeline string
	require.NoError(t, database.QueryRow(`SELECT status_timeline FROM issues WHERE id = 'I1'`).Scan(&timeline))
	assert.Equal(t, `["derived"]`, timeline)

	require.NoError(t, database.ClearStatusTimeline("I1"))
	var cleared *string
	require.NoError(t, database.QueryRow(`SELECT status_timeline FROM issues WHERE id = 'I1'`).Scan(&cleared))
	assert.Nil(t, cleared)
}

func TestReviewRequestLifecycle(t *testing.T) {
	database := testDB(t)
	t1 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)
	t3 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, database.SaveReviewRequest(&models.ReviewRequest{
		ID: "E1", PullRequestID: "PR1", ReviewerID: "U1", RequestedAt: t1,
	}))
	require.NoError(t, database.SaveReviewRequest(&models.ReviewRequest{
		ID: "E2", PullRequestID: "PR1", ReviewerID: "U1", RequestedAt: t3,
	}))

	// Removal at t2 closes only the most recent open request at or before it.
	require.NoError(t, database.CloseReviewRequest("PR1", "U1", t2))

	open, err := database.OpenReviewRequests("PR1")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "E2", open[0].ID)
}

func TestReviewRequestReplayIsIdempotent(t *testing.T) {
	database := testDB(t)
	t1 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)

	req := &models.ReviewRequest{ID: "E1", PullRequestID: "PR1", ReviewerID: "U1", RequestedAt: t1}
	require.NoError(t, database.SaveReviewRequest(req))
	require.NoError(t, database.CloseReviewRequest("PR1", "U1", t2))

	// A second replay of the same timeline must not reopen or re-close.
	require.NoError(t, database.SaveReviewRequest(req))
	require.NoError(t, database.CloseReviewRequest("PR1", "U1", t2))

	open, err := database.OpenReviewRequests("PR1")
	require.NoError(t, err)
	assert.Empty(t, open)

	var count int
	require.NoError(t, database.QueryRow(`SELECT COUNT(*) FROM review_requests`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestSyncStateRoundTrip(t *testing.T) {
	database := testDB(t)

	got, err := database.GetSyncState("issues")
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	mark := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, database.SetSyncState("issues", mark))

	got, err = database.GetSyncState("issues")
	require.NoError(t, err)
	assert.True(t, mark.Equal(got))
}

func TestSyncLogLifecycle(t *testing.T) {
	database := testDB(t)

	id, err := database.StartSyncLog("issues")
	require.NoError(t, err)

	entry, err := database.GetSyncLog(id)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, models.SyncStatusRunning, entry.Status)
	assert.Nil(t, entry.FinishedAt)

	require.NoError(t, database.FinishSyncLog(id, models.SyncStatusFailed, "boom"))
	entry, err = database.GetSyncLog(id)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusFailed, entry.Status)
	assert.Equal(t, "boom", entry.Message)
	assert.NotNil(t, entry.FinishedAt)
}
