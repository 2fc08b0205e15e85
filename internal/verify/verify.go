// Package verify holds the monetization-link Verification stage
// implementation. The matching strategy itself is an external concern;
// this fixture emulates a partner-catalog lookup and applies the
// configured acceptance rules to each candidate.
package verify

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"trendpress/internal/config"
	"trendpress/internal/stage"
)

// Fixture is a deterministic verifier: every candidate resolves to a
// partner listing with a confidence derived from its discovery score, and
// the acceptance rules decide availability.
type Fixture struct {
	cfg config.VerificationConfig
}

// NewFixture creates the fixture verifier.
func NewFixture(cfg config.VerificationConfig) *Fixture {
	return &Fixture{cfg: cfg}
}

func (f *Fixture) Name() string { return "verify-fixture" }

func (f *Fixture) Execute(_ context.Context, runID string, input any) (any, error) {
	doc, ok := input.(stage.DiscoveryDoc)
	if !ok {
		return nil, fmt.Errorf("verify: unexpected input type %T", input)
	}

	items := make([]stage.VerifiedItem, 0, len(doc.Items))
	for i, c := range doc.Items {
		slug := Slugify(c.Name, i+1)
		queries := []string{c.Name, "buy " + c.Name}

		// Confidence tracks the discovery score into the resolver's band,
		// capped the way the product resolver caps its match confidence.
		confidence := 0.35 + c.Score/200
		if confidence > 0.98 {
			confidence = 0.98
		}

		item := stage.VerifiedItem{
			Slug:             slug,
			Name:             c.Name,
			CanonicalName:    titleCase(c.Name),
			ListingTitle:     titleCase(c.Name) + " - best seller",
			PartnerURL:       fmt.Sprintf("https://partners.example.com/a/%s", slug),
			MatchConfidence:  round2(confidence),
			QueriesAttempted: queries,
			IssueReason:      c.IssueReason,
			EvidenceLinks:    c.EvidenceLinks,
		}
		item.Available, item.RejectReason = f.accept(item)
		if !item.Available {
			item.PartnerURL = ""
		}
		items = append(items, item)
	}

	return stage.VerificationDoc{
		RunID:       runID,
		GeneratedAt: time.Now().UTC(),
		Items:       items,
	}, nil
}

// accept applies the acceptance rules. A rejected item is a per-item
// outcome recorded on the document, never a stage failure.
func (f *Fixture) accept(item stage.VerifiedItem) (bool, string) {
	if item.MatchConfidence < f.cfg.MinConfidence {
		return false, fmt.Sprintf("match confidence %.2f below threshold %.2f",
			item.MatchConfidence, f.cfg.MinConfidence)
	}
	if f.cfg.RequirePartnerURL && item.PartnerURL == "" {
		return false, "no partner link resolved"
	}
	return true, ""
}

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify builds a stable item slug from the candidate name and its
// 1-based position in the discovery output.
func Slugify(name string, pos int) string {
	s := slugStrip.ReplaceAllString(strings.ToLower(name), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		s = "item"
	}
	return fmt.Sprintf("%s-%d", s, pos)
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if len(w) > 0 {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
