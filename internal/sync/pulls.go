package sync

import (
	"context"

	"github.com/sfriedel/orgmirror/internal/api"
	"github.com/sfriedel/orgmirror/internal/models"
)

// collectPullRequests walks one repository's pull request connection inside
// the window; each taken pull request pulls in its comments, review-thread
// comments, reviews, and review-request timeline.
func (s *Syncer) collectPullRequests(ctx context.Context, repo models.Repository, prWindow, reviewWindow, commentWindow Window, actors actorCache, result *stageResult) error {
	cursor := ""
	for {
		page, err := s.client.PullRequests(ctx, repo.Owner, repo.Name, cursor)
		if err != nil {
			if api.IsNotFound(err) {
				s.logger.Info("repository vanished upstream, skipping pull requests", "repo", repo.FullName)
				return nil
			}
			return err
		}

		for _, pr := range page.PullRequests {
			switch prWindow.Evaluate(pr.UpdatedAt) {
			case Skip:
				continue
			case Stop:
				return nil
			}

			if err := s.processPullRequest(ctx, repo, pr, reviewWindow, commentWindow, actors, result); err != nil {
				return err
			}
			result.observe(ResourcePullRequests, pr.UpdatedAt)
		}

		if !page.PageInfo.HasNextPage {
			return nil
		}
		cursor = page.PageInfo.EndCursor
	}
}

func (s *Syncer) processPullRequest(ctx context.Context, repo models.Repository, pr api.PullRequest, reviewWindow, commentWindow Window, actors actorCache, result *stageResult) error {
	userID, err := s.upsertActor(pr.Author, actors)
	if err != nil {
		return err
	}

	row := &models.PullRequest{
		ID:           pr.ID,
		Number:       pr.Number,
		RepositoryID: repo.ID,
		UserID:       userID,
		Title:        pr.Title,
		Body:         pr.Body,
		State:        pr.State,
		CreatedAt:    pr.CreatedAt,
		UpdatedAt:    pr.UpdatedAt,
		ClosedAt:     pr.ClosedAt,
		MergedAt:     pr.MergedAt,
	}
	if err := s.db.SavePullRequest(row); err != nil {
		return err
	}

	if err := s.saveReactions(pr.ID, pr.Reactions, actors); err != nil {
		return err
	}

	// Reviews go first: review-thread comments reference them, and the
	// verification cache below is scoped to this pull request.
	if err := s.collectReviews(ctx, repo, pr, reviewWindow, actors, result); err != nil {
		return err
	}

	verifiedReviews := make(map[string]bool)
	threadTarget := commentTarget{kind: threadComments, number: pr.Number, pullRequestID: pr.ID}
	if err := s.collectComments(ctx, repo, threadTarget, commentWindow, actors, result, verifiedReviews); err != nil {
		return err
	}

	convTarget := commentTarget{kind: pullComments, number: pr.Number, pullRequestID: pr.ID}
	if err := s.collectComments(ctx, repo, convTarget, commentWindow, actors, result, nil); err != nil {
		return err
	}

	return s.replayReviewRequests(ctx, repo, pr, actors)
}

// collectReviews walks a pull request's reviews. The governing timestamp is
// the submission time; pending reviews have none and are skipped entirely.
func (s *Syncer) collectReviews(ctx context.Context, repo models.Repository, pr api.PullRequest, window Window, actors actorCache, result *stageResult) error {
	cursor := ""
	for {
		page, err := s.client.Reviews(ctx, repo.Owner, repo.Name, pr.Number, cursor)
		if err != nil {
			if api.IsNotFound(err) {
				s.logger.Info("pull request vanished upstream, skipping reviews",
					"repo", repo.FullName, "number", pr.Number)
				return nil
			}
			return err
		}

		for _, review := range page.Reviews {
			if review.SubmittedAt == nil {
				continue // pending review, excluded until submitted
			}
			switch window.Evaluate(*review.SubmittedAt) {
			case Skip:
				continue
			case Stop:
				return nil
			}

			userID, err := s.upsertActor(review.Author, actors)
			if err != nil {
				return err
			}
			row := &models.Review{
				ID:            review.ID,
				PullRequestID: pr.ID,
				UserID:        userID,
				State:         review.State,
				Body:          review.Body,
				SubmittedAt:   *review.SubmittedAt,
			}
			if err := s.db.SaveReview(row); err != nil {
				return err
			}
			result.observe(ResourceReviews, *review.SubmittedAt)
		}

		if !page.PageInfo.HasNextPage {
			return nil
		}
		cursor = page.PageInfo.EndCursor
	}
}

// replayReviewRequests walks the pull request's ordered review-request
// timeline. Requested events upsert a row keyed by the event id; removal
// events close the most recent still-open request for that reviewer. The
// replay is idempotent, so no window applies. Team reviewers and unknown
// event kinds are no-ops.
func (s *Syncer) replayReviewRequests(ctx context.Context, repo models.Repository, pr api.PullRequest, actors actorCache) error {
	cursor := ""
	for {
		page, err := s.client.ReviewRequestTimeline(ctx, repo.Owner, repo.Name, pr.Number, cursor)
		if err != nil {
			if api.IsNotFound(err) {
				s.logger.Info("pull request vanished upstream, skipping timeline",
					"repo", repo.FullName, "number", pr.Number)
				return nil
			}
			return err
		}

		for _, event := range page.Events {
			if event.Reviewer == nil {
				continue
			}
			reviewerID, err := s.upsertActor(*event.Reviewer, actors)
			if err != nil {
				return err
			}

			switch event.Kind {
			case api.EventReviewRequested:
				req := &models.ReviewRequest{
					ID:            event.ID,
					PullRequestID: pr.ID,
					ReviewerID:    reviewerID,
					RequestedAt:   event.CreatedAt,
				}
				if err := s.db.SaveReviewRequest(req); err != nil {
					return err
				}
			case api.EventReviewRequestRemoved:
				if err := s.db.CloseReviewRequest(pr.ID, reviewerID, event.CreatedAt); err != nil {
					return err
				}
			}
		}

		if !page.PageInfo.HasNextPage {
			return nil
		}
		cursor = page.PageInfo.EndCursor
	}
}
