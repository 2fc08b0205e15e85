package discover

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"trendpress/internal/config"
	"trendpress/internal/stage"
)

// Fixture is the deterministic Discovery implementation. It returns a
// fixed candidate set, or the contents of a fixture file when one is
// configured, so downstream stages can be validated without network access.
type Fixture struct {
	cfg config.DiscoveryConfig
}

// NewFixture creates the fixture implementation.
func NewFixture(cfg config.DiscoveryConfig) *Fixture {
	return &Fixture{cfg: cfg}
}

func (f *Fixture) Name() string { return "discovery-fixture" }

// Execute produces the fixture candidates, observed at the run start so
// they would also survive a live-mode window filter.
func (f *Fixture) Execute(_ context.Context, runID string, input any) (any, error) {
	req, ok := input.(stage.RunRequest)
	if !ok {
		return nil, fmt.Errorf("discover: unexpected input type %T", input)
	}

	items, err := f.items(req.StartedAt)
	if err != nil {
		return nil, err
	}

	return stage.DiscoveryDoc{
		RunID:       runID,
		Mode:        ModeFixture,
		GeneratedAt: time.Now().UTC(),
		Items:       finalize(items, req.TopN),
	}, nil
}

func (f *Fixture) items(observedAt time.Time) ([]stage.Candidate, error) {
	if f.cfg.FixturePath != "" {
		data, err := os.ReadFile(f.cfg.FixturePath)
		if err != nil {
			return nil, fmt.Errorf("discover: read fixture: %w", err)
		}
		var items []stage.Candidate
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("discover: parse fixture: %w", err)
		}
		return items, nil
	}
	return []stage.Candidate{
		{
			Name:        "cordless handheld vacuum",
			IssueReason: "back-to-school season spike in small home appliance interest",
			EvidenceLinks: []string{
				"https://trends.google.com/",
				"https://news.google.com/",
			},
			Score:      84,
			ObservedAt: observedAt,
			Source:     "fixture",
		},
		{
			Name:        "portable power bank",
			IssueReason: "travel uptick driving demand for charging accessories",
			EvidenceLinks: []string{
				"https://trends.google.com/",
			},
			Score:      79,
			ObservedAt: observedAt,
			Source:     "fixture",
		},
	}, nil
}
