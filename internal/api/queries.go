package api

import (
	"context"
	"fmt"
	"time"

	"github.com/shurcooL/githubv4"
)

// pageSize is the node count requested per connection page.
const pageSize = 50

// Client exposes the remote connections the collectors walk. Every call is
// one GraphQL query routed through the executor's retry policy.
type Client struct {
	exec *Executor
}

// NewClient builds a client over an executor.
func NewClient(exec *Executor) *Client {
	return &Client{exec: exec}
}

type gqlPageInfo struct {
	EndCursor   githubv4.String
	HasNextPage githubv4.Boolean
}

// gqlActor selects the Actor interface plus inline fragments for the node id
// and display name, which the interface itself does not expose.
type gqlActor struct {
	Login     githubv4.String
	AvatarURL githubv4.String `graphql:"avatarUrl"`
	User      struct {
		ID   githubv4.ID
		Name githubv4.String
	} `graphql:"... on User"`
	Bot struct {
		ID githubv4.ID
	} `graphql:"... on Bot"`
	Organization struct {
		ID   githubv4.ID
		Name githubv4.String
	} `graphql:"... on Organization"`
}

type gqlReaction struct {
	ID        githubv4.ID
	Content   githubv4.String
	CreatedAt githubv4.DateTime
	User      struct {
		ID        githubv4.ID
		Login     githubv4.String
		Name      githubv4.String
		AvatarURL githubv4.String `graphql:"avatarUrl"`
	}
}

type gqlProjectItem struct {
	ID      githubv4.ID
	Project struct {
		Title githubv4.String
	}
	FieldValueByName struct {
		SingleSelect struct {
			Name      githubv4.String
			UpdatedAt githubv4.DateTime
		} `graphql:"... on ProjectV2ItemFieldSingleSelectValue"`
	} `graphql:"fieldValueByName(name: \"Status\")"`
}

type gqlIssue struct {
	ID           githubv4.ID
	Number       githubv4.Int
	Title        githubv4.String
	Body         githubv4.String
	State        githubv4.String
	CreatedAt    githubv4.DateTime
	UpdatedAt    githubv4.DateTime
	ClosedAt     *githubv4.DateTime
	Author       gqlActor
	ProjectItems struct {
		Nodes []gqlProjectItem
	} `graphql:"projectItems(first: 20)"`
	Reactions struct {
		Nodes []gqlReaction
	} `graphql:"reactions(first: 50)"`
}

type gqlPullRequest struct {
	ID        githubv4.ID
	Number    githubv4.Int
	Title     githubv4.String
	Body      githubv4.String
	State     githubv4.String
	CreatedAt githubv4.DateTime
	UpdatedAt githubv4.DateTime
	ClosedAt  *githubv4.DateTime
	MergedAt  *githubv4.DateTime
	Author    gqlActor
	Reactions struct {
		Nodes []gqlReaction
	} `graphql:"reactions(first: 50)"`
}

type gqlComment struct {
	ID        githubv4.ID
	Body      githubv4.String
	CreatedAt githubv4.DateTime
	UpdatedAt githubv4.DateTime
	Author    gqlActor
	Reactions struct {
		Nodes []gqlReaction
	} `graphql:"reactions(first: 50)"`
}

type gqlReview struct {
	ID          githubv4.ID
	State       githubv4.String
	Body        githubv4.String
	SubmittedAt *githubv4.DateTime
	Author      gqlActor
}

// gqlReviewer selects the RequestedReviewer union. Team targets decode into
// the Team fragment and are dropped during conversion.
type gqlReviewer struct {
	User struct {
		ID        githubv4.ID
		Login     githubv4.String
		Name      githubv4.String
		AvatarURL githubv4.String `graphql:"avatarUrl"`
	} `graphql:"... on User"`
	Team struct {
		ID githubv4.ID
	} `graphql:"... on Team"`
}

func idString(id githubv4.ID) string {
	if id == nil {
		return ""
	}
	return fmt.Sprint(id)
}

func convertActor(a gqlActor) Actor {
	actor := Actor{
		Login:     string(a.Login),
		AvatarURL: string(a.AvatarURL),
	}
	switch {
	case a.User.ID != nil:
		actor.ID = idString(a.User.ID)
		actor.Name = string(a.User.Name)
	case a.Bot.ID != nil:
		actor.ID = idString(a.Bot.ID)
	case a.Organization.ID != nil:
		actor.ID = idString(a.Organization.ID)
		actor.Name = string(a.Organization.Name)
	case a.Login != "":
		// Deleted accounts and exotic actor types carry no node id; key
		// them by login so references still resolve somewhere.
		actor.ID = "login:" + string(a.Login)
	}
	return actor
}

func convertReactions(nodes []gqlReaction) []Reaction {
	var out []Reaction
	for _, n := range nodes {
		out = append(out, Reaction{
			ID:        idString(n.ID),
			Content:   string(n.Content),
			CreatedAt: n.CreatedAt.Time,
			User: Actor{
				ID:        idString(n.User.ID),
				Login:     string(n.User.Login),
				Name:      string(n.User.Name),
				AvatarURL: string(n.User.AvatarURL),
			},
		})
	}
	return out
}

func convertTime(dt *githubv4.DateTime) *time.Time {
	if dt == nil {
		return nil
	}
	t := dt.Time
	return &t
}

func convertPageInfo(pi gqlPageInfo) PageInfo {
	return PageInfo{
		EndCursor:   string(pi.EndCursor),
		HasNextPage: bool(pi.HasNextPage),
	}
}

func cursorArg(cursor string) *githubv4.String {
	if cursor == "" {
		return (*githubv4.String)(nil)
	}
	return githubv4.NewString(githubv4.String(cursor))
}

// OrgRepositories returns one page of the organization's repositories,
// ordered ascending by update time.
func (c *Client) OrgRepositories(ctx context.Context, org, cursor string) (*RepositoryPage, error) {
	var query struct {
		Organization struct {
			Repositories struct {
				Nodes []struct {
					ID    githubv4.ID
					Name  githubv4.String
					Owner struct {
						Login githubv4.String
					}
					NameWithOwner githubv4.String
					IsPrivate     githubv4.Boolean
					CreatedAt     githubv4.DateTime
					UpdatedAt     githubv4.DateTime
				}
				PageInfo gqlPageInfo
			} `graphql:"repositories(first: $pageSize, after: $cursor, orderBy: {field: UPDATED_AT, direction: ASC})"`
		} `graphql:"organization(login: $org)"`
	}

	variables := map[string]interface{}{
		"org":      githubv4.String(org),
		"pageSize": githubv4.Int(pageSize),
		"cursor":   cursorArg(cursor),
	}

	if err := c.exec.Execute(ctx, &query, variables); err != nil {
		return nil, fmt.Errorf("failed to query organization repositories: %w", err)
	}

	page := &RepositoryPage{PageInfo: convertPageInfo(query.Organization.Repositories.PageInfo)}
	for _, node := range query.Organization.Repositories.Nodes {
		page.Repositories = append(page.Repositories, Repository{
			ID:        idString(node.ID),
			Owner:     string(node.Owner.Login),
			Name:      string(node.Name),
			FullName:  string(node.NameWithOwner),
			Private:   bool(node.IsPrivate),
			CreatedAt: node.CreatedAt.Time,
			UpdatedAt: node.UpdatedAt.Time,
		})
	}
	return page, nil
}

// Issues returns one page of a repository's issues, ordered ascending by
// update time, with the project status snapshot and inline reactions.
func (c *Client) Issues(ctx context.Context, owner, name, cursor string) (*IssuePage, error) {
	var query struct {
		Repository struct {
			Issues struct {
				Nodes    []gqlIssue
				PageInfo gqlPageInfo
			} `graphql:"issues(first: $pageSize, after: $cursor, orderBy: {field: UPDATED_AT, direction: ASC})"`
		} `graphql:"repository(owner: $owner, name: $name)"`
	}

	variables := map[string]interface{}{
		"owner":    githubv4.String(owner),
		"name":     githubv4.String(name),
		"pageSize": githubv4.Int(pageSize),
		"cursor":   cursorArg(cursor),
	}

	if err := c.exec.Execute(ctx, &query, variables); err != nil {
		return nil, fmt.Errorf("failed to query issues: %w", err)
	}

	page := &IssuePage{PageInfo: convertPageInfo(query.Repository.Issues.PageInfo)}
	for _, node := range query.Repository.Issues.Nodes {
		issue := Issue{
			ID:        idString(node.ID),
			Number:    int(node.Number),
			Title:     string(node.Title),
			Body:      string(node.Body),
			State:     string(node.State),
			Author:    convertActor(node.Author),
			CreatedAt: node.CreatedAt.Time,
			UpdatedAt: node.UpdatedAt.Time,
			ClosedAt:  convertTime(node.ClosedAt),
			Reactions: convertReactions(node.Reactions.Nodes),
		}
		for _, item := range node.ProjectItems.Nodes {
			status := item.FieldValueByName.SingleSelect
			if status.Name == "" {
				continue // item has no Status single-select value
			}
			issue.ProjectStatuses = append(issue.ProjectStatuses, ProjectStatus{
				ItemID:       idString(item.ID),
				ProjectTitle: string(item.Project.Title),
				Status:       string(status.Name),
				OccurredAt:   status.UpdatedAt.Format(time.RFC3339),
			})
		}
		page.Issues = append(page.Issues, issue)
	}
	return page, nil
}

// PullRequests returns one page of a repository's pull requests, ordered
// ascending by update time.
func (c *Client) PullRequests(ctx context.Context, owner, name, cursor string) (*PullRequestPage, error) {
	var query struct {
		Repository struct {
			PullRequests struct {
				Nodes    []gqlPullRequest
				PageInfo gqlPageInfo
			} `graphql:"pullRequests(first: $pageSize, after: $cursor, orderBy: {field: UPDATED_AT, direction: ASC})"`
		} `graphql:"repository(owner: $owner, name: $name)"`
	}

	variables := map[string]interface{}{
		"owner":    githubv4.String(owner),
		"name":     githubv4.String(name),
		"pageSize": githubv4.Int(pageSize),
		"cursor":   cursorArg(cursor),
	}

	if err := c.exec.Execute(ctx, &query, variables); err != nil {
		return nil, fmt.Errorf("failed to query pull requests: %w", err)
	}

	page := &PullRequestPage{PageInfo: convertPageInfo(query.Repository.PullRequests.PageInfo)}
	for _, node := range query.Repository.PullRequests.Nodes {
		page.PullRequests = append(page.PullRequests, PullRequest{
			ID:        idString(node.ID),
			Number:    int(node.Number),
			Title:     string(node.Title),
			Body:      string(node.Body),
			State:     string(node.State),
			Author:    convertActor(node.Author),
			CreatedAt: node.CreatedAt.Time,
			UpdatedAt: node.UpdatedAt.Time,
			ClosedAt:  convertTime(node.ClosedAt),
			MergedAt:  convertTime(node.MergedAt),
			Reactions: convertReactions(node.Reactions.Nodes),
		})
	}
	return page, nil
}

// IssueComments returns one page of an issue's comments, ordered ascending
// by update time.
func (c *Client) IssueComments(ctx context.Context, owner, name string, number int, cursor string) (*CommentPage, error) {
	var query struct {
		Repository struct {
			Issue struct {
				Comments struct {
					Nodes    []gqlComment
					PageInfo gqlPageInfo
				} `graphql:"comments(first: $pageSize, after: $cursor, orderBy: {field: UPDATED_AT, direction: ASC})"`
			} `graphql:"issue(number: $number)"`
		} `graphql:"repository(owner: $owner, name: $name)"`
	}

	variables := commentVariables(owner, name, number, cursor)
	if err := c.exec.Execute(ctx, &query, variables); err != nil {
		return nil, fmt.Errorf("failed to query issue comments: %w", err)
	}

	return convertCommentPage(query.Repository.Issue.Comments.Nodes, query.Repository.Issue.Comments.PageInfo), nil
}

// PullRequestComments returns one page of a pull request's conversation
// comments, ordered ascending by update time.
func (c *Client) PullRequestComments(ctx context.Context, owner, name string, number int, cursor string) (*CommentPage, error) {
	var query struct {
		Repository struct {
			PullRequest struct {
				Comments struct {
					Nodes    []gqlComment
					PageInfo gqlPageInfo
				} `graphql:"comments(first: $pageSize, after: $cursor, orderBy: {field: UPDATED_AT, direction: ASC})"`
			} `graphql:"pullRequest(number: $number)"`
		} `graphql:"repository(owner: $owner, name: $name)"`
	}

	variables := commentVariables(owner, name, number, cursor)
	if err := c.exec.Execute(ctx, &query, variables); err != nil {
		return nil, fmt.Errorf("failed to query pull request comments: %w", err)
	}

	return convertCommentPage(query.Repository.PullRequest.Comments.Nodes, query.Repository.PullRequest.Comments.PageInfo), nil
}

// ReviewThreadComments returns one page of review threads flattened into
// their comments, each carrying the id of the review it was posted under.
// Thread order is not time-ordered, so callers must not early-exit on it.
func (c *Client) ReviewThreadComments(ctx context.Context, owner, name string, number int, cursor string) (*CommentPage, error) {
	var query struct {
		Repository struct {
			PullRequest struct {
				ReviewThreads struct {
					Nodes []struct {
						Comments struct {
							Nodes []struct {
								gqlComment
								PullRequestReview struct {
									ID githubv4.ID
								}
							}
						} `graphql:"comments(first: 100)"`
					}
					PageInfo gqlPageInfo
				} `graphql:"reviewThreads(first: $pageSize, after: $cursor)"`
			} `graphql:"pullRequest(number: $number)"`
		} `graphql:"repository(owner: $owner, name: $name)"`
	}

	variables := commentVariables(owner, name, number, cursor)
	if err := c.exec.Execute(ctx, &query, variables); err != nil {
		return nil, fmt.Errorf("failed to query review threads: %w", err)
	}

	threads := query.Repository.PullRequest.ReviewThreads
	page := &CommentPage{PageInfo: convertPageInfo(threads.PageInfo)}
	for _, thread := range threads.Nodes {
		for _, node := range thread.Comments.Nodes {
			comment := convertComment(node.gqlComment)
			comment.ReviewID = idString(node.PullRequestReview.ID)
			page.Comments = append(page.Comments, comment)
		}
	}
	return page, nil
}

// Reviews returns one page of a pull request's reviews.
func (c *Client) Reviews(ctx context.Context, owner, name string, number int, cursor string) (*ReviewPage, error) {
	var query struct {
		Repository struct {
			PullRequest struct {
				Reviews struct {
					Nodes    []gqlReview
					PageInfo gqlPageInfo
				} `graphql:"reviews(first: $pageSize, after: $cursor)"`
			} `graphql:"pullRequest(number: $number)"`
		} `graphql:"repository(owner: $owner, name: $name)"`
	}

	variables := commentVariables(owner, name, number, cursor)
	if err := c.exec.Execute(ctx, &query, variables); err != nil {
		return nil, fmt.Errorf("failed to query reviews: %w", err)
	}

	reviews := query.Repository.PullRequest.Reviews
	page := &ReviewPage{PageInfo: convertPageInfo(reviews.PageInfo)}
	for _, node := range reviews.Nodes {
		page.Reviews = append(page.Reviews, Review{
			ID:          idString(node.ID),
			Author:      convertActor(node.Author),
			State:       string(node.State),
			Body:        string(node.Body),
			SubmittedAt: convertTime(node.SubmittedAt),
		})
	}
	return page, nil
}

// ReviewRequestTimeline returns one page of a pull request's
// review-requested and review-request-removed timeline events, in timeline
// order.
func (c *Client) ReviewRequestTimeline(ctx context.Context, owner, name string, number int, cursor string) (*TimelinePage, error) {
	var query struct {
		Repository struct {
			PullRequest struct {
				TimelineItems struct {
					Nodes []struct {
						Typename  githubv4.String `graphql:"__typename"`
						Requested struct {
							ID                githubv4.ID
							CreatedAt         githubv4.DateTime
							RequestedReviewer gqlReviewer
						} `graphql:"... on ReviewRequestedEvent"`
						Removed struct {
							ID                githubv4.ID
							CreatedAt         githubv4.DateTime
							RequestedReviewer gqlReviewer
						} `graphql:"... on ReviewRequestRemovedEvent"`
					}
					PageInfo gqlPageInfo
				} `graphql:"timelineItems(first: $pageSize, after: $cursor, itemTypes: [REVIEW_REQUESTED_EVENT, REVIEW_REQUEST_REMOVED_EVENT])"`
			} `graphql:"pullRequest(number: $number)"`
		} `graphql:"repository(owner: $owner, name: $name)"`
	}

	variables := commentVariables(owner, name, number, cursor)
	if err := c.exec.Execute(ctx, &query, variables); err != nil {
		return nil, fmt.Errorf("failed to query review request timeline: %w", err)
	}

	items := query.Repository.PullRequest.TimelineItems
	page := &TimelinePage{PageInfo: convertPageInfo(items.PageInfo)}
	for _, node := range items.Nodes {
		switch string(node.Typename) {
		case "ReviewRequestedEvent":
			page.Events = append(page.Events, TimelineEvent{
				Kind:      EventReviewRequested,
				ID:        idString(node.Requested.ID),
				CreatedAt: node.Requested.CreatedAt.Time,
				Reviewer:  convertReviewer(node.Requested.RequestedReviewer),
			})
		case "ReviewRequestRemovedEvent":
			page.Events = append(page.Events, TimelineEvent{
				Kind:      EventReviewRequestRemoved,
				ID:        idString(node.Removed.ID),
				CreatedAt: node.Removed.CreatedAt.Time,
				Reviewer:  convertReviewer(node.Removed.RequestedReviewer),
			})
		default:
			page.Events = append(page.Events, TimelineEvent{Kind: EventOther})
		}
	}
	return page, nil
}

func convertReviewer(r gqlReviewer) *Actor {
	if r.User.ID == nil {
		return nil // team target, ignored
	}
	return &Actor{
		ID:        idString(r.User.ID),
		Login:     string(r.User.Login),
		Name:      string(r.User.Name),
		AvatarURL: string(r.User.AvatarURL),
	}
}

func convertComment(node gqlComment) Comment {
	return Comment{
		ID:        idString(node.ID),
		Author:    convertActor(node.Author),
		Body:      string(node.Body),
		CreatedAt: node.CreatedAt.Time,
		UpdatedAt: node.UpdatedAt.Time,
		Reactions: convertReactions(node.Reactions.Nodes),
	}
}

func convertCommentPage(nodes []gqlComment, pi gqlPageInfo) *CommentPage {
	page := &CommentPage{PageInfo: convertPageInfo(pi)}
	for _, node := range nodes {
		page.Comments = append(page.Comments, convertComment(node))
	}
	return page
}

func commentVariables(owner, name string, number int, cursor string) map[string]interface{} {
	return map[string]interface{}{
		"owner":    githubv4.String(owner),
		"name":     githubv4.String(name),
		"number":   githubv4.Int(number),
		"pageSize": githubv4.Int(pageSize),
		"cursor":   cursorArg(cursor),
	}
}
