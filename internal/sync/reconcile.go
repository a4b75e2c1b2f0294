package sync

import (
	"sort"
	"strings"
	"time"

	"github.com/sfriedel/orgmirror/internal/models"
)

type entryKey struct {
	item       string
	status     string
	occurredAt string
}

// Reconcile merges an issue's previously stored project status history with
// the freshly fetched snapshot of its board memberships. Entries are keyed
// by (item, status, occurredAt); a collision keeps the stored entry but
// backfills a missing project title. A previously observed entry is never
// dropped. Items present before but absent from the snapshot get one
// synthetic terminal entry with the removal sentinel, stamped detectedAt.
// The result is sorted ascending by occurrence time.
func Reconcile(previous, current []models.ProjectStatusEntry, detectedAt time.Time) []models.ProjectStatusEntry {
	merged := make([]models.ProjectStatusEntry, 0, len(previous)+len(current))
	index := make(map[entryKey]int)

	add := func(e models.ProjectStatusEntry) {
		key := entryKey{e.ProjectItemID, e.Status, e.OccurredAt}
		if i, ok := index[key]; ok {
			if merged[i].ProjectTitle == "" && e.ProjectTitle != "" {
				merged[i].ProjectTitle = e.ProjectTitle
			}
			return
		}
		index[key] = len(merged)
		merged = append(merged, e)
	}

	for _, e := range previous {
		add(e)
	}
	for _, e := range current {
		add(e)
	}

	currentItems := make(map[string]bool, len(current))
	for _, e := range current {
		currentItems[e.ProjectItemID] = true
	}

	removed := make(map[string]bool)
	title := make(map[string]string)
	for _, e := range merged {
		if e.Status == models.StatusRemoved {
			removed[e.ProjectItemID] = true
		}
		if e.ProjectTitle != "" {
			title[e.ProjectItemID] = e.ProjectTitle
		}
	}

	seen := make(map[string]bool)
	for _, e := range previous {
		item := e.ProjectItemID
		if seen[item] || currentItems[item] || removed[item] {
			seen[item] = true
			continue
		}
		seen[item] = true
		add(models.ProjectStatusEntry{
			ProjectItemID: item,
			ProjectTitle:  title[item],
			Status:        models.StatusRemoved,
			OccurredAt:    detectedAt.UTC().Format(time.RFC3339),
		})
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return occursBefore(merged[i].OccurredAt, merged[j].OccurredAt)
	})
	return merged
}

// occursBefore orders occurrence timestamps: parseable ones by time,
// unparseable ones lexically after every parseable one.
func occursBefore(a, b string) bool {
	ta, errA := time.Parse(time.RFC3339, a)
	tb, errB := time.Parse(time.RFC3339, b)
	switch {
	case errA == nil && errB == nil:
		return ta.Before(tb)
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return a < b
	}
}

// TouchesTrackedProject reports whether any entry belongs to one of the
// tracked boards. Titles match case-insensitively with surrounding
// whitespace ignored.
func TouchesTrackedProject(entries []models.ProjectStatusEntry, tracked []string) bool {
	if len(tracked) == 0 {
		return false
	}
	names := make(map[string]bool, len(tracked))
	for _, t := range tracked {
		names[strings.ToLower(strings.TrimSpace(t))] = true
	}
	for _, e := range entries {
		if names[strings.ToLower(strings.TrimSpace(e.ProjectTitle))] {
			return true
		}
	}
	return false
}
