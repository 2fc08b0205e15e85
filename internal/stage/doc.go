package stage

import "time"

// RunRequest is the input document for the Discovery stage. The controller
// builds it from the run's configuration; the adapter validates it like any
// other stage input.
type RunRequest struct {
	RunID       string    `json:"run_id"`
	Mode        string    `json:"mode"`
	TopN        int       `json:"top_n"`
	WindowHours int       `json:"window_hours"`
	StartedAt   time.Time `json:"started_at"`
}

// Candidate is one discovered item: a product-shaped topic with the reason
// it is trending, evidence links, and a 0-100 score.
type Candidate struct {
	Name          string    `json:"item_name"`
	IssueReason   string    `json:"issue_reason"`
	EvidenceLinks []string  `json:"evidence_links"`
	Score         float64   `json:"score"`
	ObservedAt    time.Time `json:"observed_at"`
	Source        string    `json:"source,omitempty"`
}

// DiscoveryDoc is the Discovery stage output: at most TopN candidates,
// ordered by descending score. Both fixture and live implementations emit
// this shape.
type DiscoveryDoc struct {
	RunID       string      `json:"run_id"`
	Mode        string      `json:"mode"`
	GeneratedAt time.Time   `json:"generated_at"`
	Items       []Candidate `json:"items"`
}

// VerifiedItem is one candidate after monetization-link verification.
// Rejected items stay in the document with Available=false and a
// RejectReason; they are per-item outcomes, not stage failures.
type VerifiedItem struct {
	Slug             string   `json:"item_slug"`
	Name             string   `json:"item_name"`
	Available        bool     `json:"available"`
	CanonicalName    string   `json:"canonical_product_name"`
	ListingTitle     string   `json:"matched_listing_title,omitempty"`
	PartnerURL       string   `json:"partner_url,omitempty"`
	MatchConfidence  float64  `json:"match_confidence"`
	QueriesAttempted []string `json:"queries_attempted"`
	RejectReason     string   `json:"reject_reason,omitempty"`
	IssueReason      string   `json:"issue_reason,omitempty"`
	EvidenceLinks    []string `json:"evidence_links,omitempty"`
}

// VerificationDoc is the Verification stage output.
type VerificationDoc struct {
	RunID       string         `json:"run_id"`
	GeneratedAt time.Time      `json:"generated_at"`
	Items       []VerifiedItem `json:"items"`
}

// Verdict values for the Review stage.
const (
	VerdictPass           = "pass"
	VerdictPassMinorEdits = "pass_with_minor_edits"
	VerdictFail           = "fail"
)

// ReviewedItem is the editorial verdict for one drafted item. The reviewer
// renders the draft itself from the verified item, so the verdict carries
// the title, draft body, and partner URL the publisher needs.
type ReviewedItem struct {
	Slug          string   `json:"item_slug"`
	Verdict       string   `json:"qa_status"`
	Reasons       []string `json:"reasons"`
	RequiredFixes []string `json:"required_fixes"`
	Title         string   `json:"title,omitempty"`
	Draft         string   `json:"draft,omitempty"`
	PartnerURL    string   `json:"partner_url,omitempty"`
}

// ReviewDoc is the Review stage output.
type ReviewDoc struct {
	RunID       string         `json:"run_id"`
	GeneratedAt time.Time      `json:"generated_at"`
	Items       []ReviewedItem `json:"items"`
}

// PostResult is the publication outcome for one item.
type PostResult struct {
	Slug        string    `json:"item_slug"`
	PostID      string    `json:"post_id,omitempty"`
	PostURL     string    `json:"post_url,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	Status      string    `json:"status"` // "success" or "fail"
	Error       string    `json:"error,omitempty"`
}

// PublishDoc is the Publish stage output: one entry per reviewed item that
// passed review, with per-item success or fail status.
type PublishDoc struct {
	RunID       string       `json:"run_id"`
	GeneratedAt time.Time    `json:"generated_at"`
	Posts       []PostResult `json:"posts"`
}
