package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sfriedel/orgmirror/internal/api"
	"github.com/sfriedel/orgmirror/internal/models"
)

// collectIssues walks one repository's issue connection inside the window
// and persists each issue with its comments, reactions, and reconciled
// project status history.
func (s *Syncer) collectIssues(ctx context.Context, repo models.Repository, issueWindow, commentWindow Window, actors actorCache, result *stageResult) error {
	cursor := ""
	for {
		page, err := s.client.Issues(ctx, repo.Owner, repo.Name, cursor)
		if err != nil {
			if api.IsNotFound(err) {
				s.logger.Info("repository vanished upstream, skipping issues", "repo", repo.FullName)
				return nil
			}
			return err
		}

		for _, issue := range page.Issues {
			switch issueWindow.Evaluate(issue.UpdatedAt) {
			case Skip:
				continue
			case Stop:
				return nil
			}

			if err := s.processIssue(ctx, repo, issue, commentWindow, actors, result); err != nil {
				return err
			}
			result.observe(ResourceIssues, issue.UpdatedAt)
		}

		if !page.PageInfo.HasNextPage {
			return nil
		}
		cursor = page.PageInfo.EndCursor
	}
}

func (s *Syncer) processIssue(ctx context.Context, repo models.Repository, issue api.Issue, commentWindow Window, actors actorCache, result *stageResult) error {
	userID, err := s.upsertActor(issue.Author, actors)
	if err != nil {
		return err
	}

	// Reconcile the project status history before the save so the merged
	// timeline lands in the stored payload atomically with the issue row.
	previous, err := s.db.GetIssueProjectHistory(issue.ID)
	if err != nil {
		return err
	}
	current := make([]models.ProjectStatusEntry, 0, len(issue.ProjectStatuses))
	for _, ps := range issue.ProjectStatuses {
		current = append(current, models.ProjectStatusEntry{
			ProjectItemID: ps.ItemID,
			ProjectTitle:  ps.ProjectTitle,
			Status:        ps.Status,
			OccurredAt:    ps.OccurredAt,
		})
	}
	detectedAt := issue.UpdatedAt
	if detectedAt.IsZero() {
		detectedAt = time.Now().UTC()
	}
	history := Reconcile(previous, current, detectedAt)

	rawData, err := json.Marshal(models.IssueRawData{ProjectStatusHistory: history})
	if err != nil {
		return fmt.Errorf("failed to encode issue payload: %w", err)
	}

	row := &models.Issue{
		ID:           issue.ID,
		Number:       issue.Number,
		RepositoryID: repo.ID,
		UserID:       userID,
		Title:        issue.Title,
		Body:         issue.Body,
		State:        issue.State,
		CreatedAt:    issue.CreatedAt,
		UpdatedAt:    issue.UpdatedAt,
		ClosedAt:     issue.ClosedAt,
		RawData:      string(rawData),
	}
	if err := s.db.SaveIssue(row); err != nil {
		return err
	}

	// Project status on a tracked board overrides the derived activity
	// feed, so that feed is stale the moment the history changed.
	if TouchesTrackedProject(history, s.tracked) {
		if err := s.db.ClearStatusTimeline(issue.ID); err != nil {
			return err
		}
	}

	if err := s.saveReactions(issue.ID, issue.Reactions, actors); err != nil {
		return err
	}

	target := commentTarget{kind: issueComments, number: issue.Number, issueID: issue.ID}
	return s.collectComments(ctx, repo, target, commentWindow, actors, result, nil)
}

type commentKind int

const (
	issueComments commentKind = iota
	pullComments
	threadComments
)

// commentTarget selects which of the remote comment connections to walk and
// which parent the rows belong to. The three connections share a node shape
// and map to the same local table.
type commentTarget struct {
	kind          commentKind
	number        int
	issueID       string
	pullRequestID string
}

// collectComments walks one comment connection inside the window. Review
// threads are not delivered in time order, so an out-of-range comment there
// is skipped rather than ending the walk.
func (s *Syncer) collectComments(ctx context.Context, repo models.Repository, target commentTarget, window Window, actors actorCache, result *stageResult, verifiedReviews map[string]bool) error {
	cursor := ""
	for {
		var page *api.CommentPage
		var err error
		switch target.kind {
		case issueComments:
			page, err = s.client.IssueComments(ctx, repo.Owner, repo.Name, target.number, cursor)
		case pullComments:
			page, err = s.client.PullRequestComments(ctx, repo.Owner, repo.Name, target.number, cursor)
		case threadComments:
			page, err = s.client.ReviewThreadComments(ctx, repo.Owner, repo.Name, target.number, cursor)
		}
		if err != nil {
			if api.IsNotFound(err) {
				s.logger.Info("comment parent vanished upstream, skipping",
					"repo", repo.FullName, "number", target.number)
				return nil
			}
			return err
		}

		for _, comment := range page.Comments {
			switch window.Evaluate(comment.UpdatedAt) {
			case Skip:
				continue
			case Stop:
				if target.kind == threadComments {
					continue
				}
				return nil
			}

			if err := s.processComment(comment, target, actors, verifiedReviews); err != nil {
				return err
			}
			result.observe(ResourceComments, comment.UpdatedAt)
		}

		if !page.PageInfo.HasNextPage {
			return nil
		}
		cursor = page.PageInfo.EndCursor
	}
}

func (s *Syncer) processComment(comment api.Comment, target commentTarget, actors actorCache, verifiedReviews map[string]bool) error {
	userID, err := s.upsertActor(comment.Author, actors)
	if err != nil {
		return err
	}

	reviewID := comment.ReviewID
	if reviewID != "" {
		ok, err := s.verifyReview(reviewID, verifiedReviews)
		if err != nil {
			return err
		}
		if !ok {
			s.logger.Warn("comment references unknown review, storing without it",
				"comment", comment.ID, "review", reviewID)
			reviewID = ""
		}
	}

	row := &models.Comment{
		ID:            comment.ID,
		IssueID:       target.issueID,
		PullRequestID: target.pullRequestID,
		ReviewID:      reviewID,
		UserID:        userID,
		Body:          comment.Body,
		CreatedAt:     comment.CreatedAt,
		UpdatedAt:     comment.UpdatedAt,
	}
	if err := s.db.SaveComment(row); err != nil {
		return err
	}

	return s.saveReactions(comment.ID, comment.Reactions, actors)
}

// verifyReview checks a referenced review id against the per-pull-request
// cache, falling back to the database once per id.
func (s *Syncer) verifyReview(reviewID string, verified map[string]bool) (bool, error) {
	if verified == nil {
		return false, nil
	}
	if ok, seen := verified[reviewID]; seen {
		return ok, nil
	}
	exists, err := s.db.ReviewExists(reviewID)
	if err != nil {
		return false, err
	}
	verified[reviewID] = exists
	return exists, nil
}

func (s *Syncer) saveReactions(subjectID string, reactions []api.Reaction, actors actorCache) error {
	for _, r := range reactions {
		userID, err := s.upsertActor(r.User, actors)
		if err != nil {
			return err
		}
		row := &models.Reaction{
			ID:        r.ID,
			SubjectID: subjectID,
			UserID:    userID,
			Content:   r.Content,
			CreatedAt: r.CreatedAt,
		}
		if err := s.db.SaveReaction(row); err != nil {
			return err
		}
	}
	return nil
}
