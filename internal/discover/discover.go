// Package discover holds the two interchangeable Discovery stage
// implementations: a deterministic fixture for validation runs and a live
// multi-source collector. Both emit the same output document; mode never
// leaks past this stage.
package discover

import (
	"fmt"
	"sort"
	"time"

	"trendpress/internal/adapter"
	"trendpress/internal/config"
	"trendpress/internal/stage"
)

// Mode selects the Discovery implementation for a run.
const (
	ModeFixture = "fixture"
	ModeLive    = "live"
)

// Select resolves the Discovery implementation for the configured mode.
// It is a pure function of the configuration: resolved once per run,
// consulted nowhere else.
func Select(cfg config.Config) (adapter.Implementation, error) {
	switch cfg.Mode {
	case ModeFixture:
		return NewFixture(cfg.Discovery), nil
	case ModeLive:
		return NewLive(cfg.Discovery), nil
	default:
		return nil, fmt.Errorf("discover: unknown mode %q", cfg.Mode)
	}
}

// finalize applies the shared downstream contract: order by descending
// score and truncate to topN. Window filtering is live-mode-only and must
// happen before this is called.
func finalize(items []stage.Candidate, topN int) []stage.Candidate {
	sort.SliceStable(items, func(i, j int) bool { return items[i].Score > items[j].Score })
	if len(items) > topN {
		items = items[:topN]
	}
	return items
}

// withinWindow reports whether observed falls inside the preceding window
// relative to the run start. Future-dated records are out of window.
func withinWindow(observed, start time.Time, window time.Duration) bool {
	cutoff := start.Add(-window)
	return !observed.Before(cutoff) && !observed.After(start)
}
