package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindowEvaluate(t *testing.T) {
	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	testCases := []struct {
		name   string
		window Window
		ts     time.Time
		want   Decision
	}{
		{"inside window", Window{Since: since, Until: until}, since.Add(time.Hour), Take},
		{"before since", Window{Since: since, Until: until}, since.Add(-time.Hour), Skip},
		{"exactly at since", Window{Since: since, Until: until}, since, Skip},
		{"just after since", Window{Since: since, Until: until}, since.Add(time.Second), Take},
		{"exactly at until", Window{Since: since, Until: until}, until, Stop},
		{"after until", Window{Since: since, Until: until}, until.Add(time.Hour), Stop},
		{"open lower bound", Window{Until: until}, time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), Take},
		{"open upper bound", Window{Since: since}, time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC), Take},
		{"fully open", Window{}, time.Now(), Take},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.window.Evaluate(tc.ts))
		})
	}
}
