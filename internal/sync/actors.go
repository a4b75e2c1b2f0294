package sync

import (
	"fmt"

	"github.com/sfriedel/orgmirror/internal/api"
	"github.com/sfriedel/orgmirror/internal/models"
)

// actorCache dedups actor upserts within one run. It is created per run and
// passed down the call tree; there is no cross-run state.
type actorCache map[string]bool

// upsertActor normalizes an account reference into the users table and
// returns its id. Actors without any resolvable identity are skipped (empty
// id). The upsert only touches remote fields, so a custom avatar override
// set locally survives.
func (s *Syncer) upsertActor(a api.Actor, seen actorCache) (string, error) {
	if a.ID == "" {
		return "", nil
	}
	if seen[a.ID] {
		return a.ID, nil
	}

	user := &models.User{
		ID:        a.ID,
		Login:     a.Login,
		Name:      a.Name,
		AvatarURL: a.AvatarURL,
	}
	if err := s.db.SaveUser(user); err != nil {
		return "", fmt.Errorf("failed to save user %s: %w", a.Login, err)
	}

	seen[a.ID] = true
	return a.ID, nil
}
