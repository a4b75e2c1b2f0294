package sync

import "time"

// Window is the {since, until} bound a collector applies to each item's
// governing timestamp. A zero bound is open on that side.
type Window struct {
	Since time.Time
	Until time.Time
}

// Decision is the outcome of evaluating one item against a window.
type Decision int

const (
	// Take: the item is inside the window; persist it.
	Take Decision = iota
	// Skip: the item is at or before since; skip it but keep scanning,
	// since older items can appear interleaved.
	Skip
	// Stop: the item is at or past until. Pages arrive ascending by the
	// governing timestamp, so everything after it is out of range too and
	// the whole walk stops.
	Stop
)

// Evaluate classifies a governing timestamp against the window. An item
// exactly at Since was already observed by the run that produced that
// watermark and is skipped; an item exactly at Until stops the walk.
func (w Window) Evaluate(ts time.Time) Decision {
	if !w.Since.IsZero() && !ts.After(w.Since) {
		return Skip
	}
	if !w.Until.IsZero() && !ts.Before(w.Until) {
		return Stop
	}
	return Take
}
