package review

import (
	"context"
	"strings"
	"testing"
	"time"

	"trendpress/internal/stage"
)

func verifiedItem(slug string) stage.VerifiedItem {
	return stage.VerifiedItem{
		Slug:            slug,
		Name:            "cordless vacuum",
		Available:       true,
		CanonicalName:   "Cordless Vacuum",
		PartnerURL:      "https://partners.example.com/a/" + slug,
		MatchConfidence: 0.8,
		IssueReason:     "seasonal spike",
		EvidenceLinks:   []string{"https://trends.google.com/"},
	}
}

func TestReviewPassesAvailableItems(t *testing.T) {
	in := stage.VerificationDoc{
		RunID:       "r1",
		GeneratedAt: time.Now().UTC(),
		Items:       []stage.VerifiedItem{verifiedItem("vacuum-1")},
	}
	out, err := NewFixture().Execute(context.Background(), "r1", in)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	doc := out.(stage.ReviewDoc)
	if len(doc.Items) != 1 {
		t.Fatalf("items: %+v", doc.Items)
	}
	item := doc.Items[0]
	if item.Verdict != stage.VerdictPassMinorEdits {
		t.Errorf("verdict: %s", item.Verdict)
	}
	if item.Title == "" || item.Draft == "" {
		t.Error("passed item is missing its rendered draft")
	}
	if item.PartnerURL == "" {
		t.Error("partner URL not carried to the publisher")
	}
	if len(item.Reasons) == 0 {
		t.Error("verdict without reasons")
	}
}

func TestReviewFailsUnavailableItems(t *testing.T) {
	rejected := verifiedItem("gadget-1")
	rejected.Available = false
	rejected.RejectReason = "match confidence 0.45 below threshold 0.70"
	rejected.PartnerURL = ""

	in := stage.VerificationDoc{RunID: "r1", GeneratedAt: time.Now().UTC(), Items: []stage.VerifiedItem{rejected}}
	out, err := NewFixture().Execute(context.Background(), "r1", in)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	item := out.(stage.ReviewDoc).Items[0]
	if item.Verdict != stage.VerdictFail {
		t.Errorf("verdict: %s", item.Verdict)
	}
	if len(item.Reasons) == 0 || !strings.Contains(item.Reasons[0], "rejected during verification") {
		t.Errorf("reasons: %v", item.Reasons)
	}
}

func TestReviewFailsThinEvidence(t *testing.T) {
	thin := verifiedItem("vacuum-1")
	thin.EvidenceLinks = nil

	in := stage.VerificationDoc{RunID: "r1", GeneratedAt: time.Now().UTC(), Items: []stage.VerifiedItem{thin}}
	out, err := NewFixture().Execute(context.Background(), "r1", in)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	item := out.(stage.ReviewDoc).Items[0]
	if item.Verdict != stage.VerdictFail {
		t.Errorf("verdict for thin evidence: %s", item.Verdict)
	}
}

func TestRenderDraft(t *testing.T) {
	v := verifiedItem("vacuum-1")
	title, body := RenderDraft(v)

	if !strings.Contains(title, v.CanonicalName) {
		t.Errorf("title: %q", title)
	}
	for _, want := range []string{v.CanonicalName, v.IssueReason, v.EvidenceLinks[0], v.PartnerURL} {
		if !strings.Contains(body, want) {
			t.Errorf("draft body missing %q", want)
		}
	}
}

func TestRenderDraftWithoutPartnerLink(t *testing.T) {
	v := verifiedItem("vacuum-1")
	v.PartnerURL = ""
	_, body := RenderDraft(v)
	if strings.Contains(body, "partner link") {
		t.Error("draft advertises a partner link it does not have")
	}
}
