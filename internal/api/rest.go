package api

import (
	"context"
	"fmt"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// VerifyToken checks the token against the REST API before a run starts and
// returns the authenticated login. A bad token fails here with a clear
// message instead of partway through a collection.
func VerifyToken(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("github token is empty")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	client := github.NewClient(oauth2.NewClient(ctx, ts))

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	user, _, err := client.Users.Get(ctx, "")
	if err != nil {
		return "", fmt.Errorf("failed to verify github token: %w", err)
	}

	return user.GetLogin(), nil
}
