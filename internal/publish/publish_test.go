package publish

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"trendpress/internal/config"
	"trendpress/internal/stage"
)

func reviewDoc(items ...stage.ReviewedItem) stage.ReviewDoc {
	return stage.ReviewDoc{RunID: "r1", GeneratedAt: time.Now().UTC(), Items: items}
}

func passedItem(slug string) stage.ReviewedItem {
	return stage.ReviewedItem{
		Slug:          slug,
		Verdict:       stage.VerdictPassMinorEdits,
		Reasons:       []string{"reads well"},
		RequiredFixes: []string{},
		Title:         "Why is everyone talking about it?",
		Draft:         "# Draft body",
		PartnerURL:    "https://partners.example.com/a/" + slug,
	}
}

// --- Selection ---

func TestSelectFixtureWhenNoBaseURL(t *testing.T) {
	impl, err := Select(config.PublishConfig{})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if impl.Name() != "publish-fixture" {
		t.Errorf("impl: %s", impl.Name())
	}

	impl, err = Select(config.PublishConfig{BaseURL: "https://blog.example.com/api"})
	if err != nil {
		t.Fatalf("Select platform: %v", err)
	}
	if impl.Name() != "publish-platform" {
		t.Errorf("impl: %s", impl.Name())
	}
}

// --- Fixture publisher ---

func TestFixturePublishesOnlyPassedItems(t *testing.T) {
	failed := stage.ReviewedItem{Slug: "bad-1", Verdict: stage.VerdictFail, Reasons: []string{"x"}, RequiredFixes: []string{}}
	in := reviewDoc(passedItem("vacuum-1"), failed, passedItem("charger-2"))

	out, err := NewFixturePublisher().Execute(context.Background(), "r1", in)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	doc := out.(stage.PublishDoc)
	if len(doc.Posts) != 2 {
		t.Fatalf("posts: %+v", doc.Posts)
	}
	for _, p := range doc.Posts {
		if p.Status != "success" || p.PostID == "" || p.PostURL == "" {
			t.Errorf("post: %+v", p)
		}
		if p.Slug == "bad-1" {
			t.Error("failed item was published")
		}
	}
}

func TestFixtureEmptyReviewYieldsEmptyPosts(t *testing.T) {
	out, err := NewFixturePublisher().Execute(context.Background(), "r1", reviewDoc())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	doc := out.(stage.PublishDoc)
	if doc.Posts == nil || len(doc.Posts) != 0 {
		t.Errorf("posts: %#v", doc.Posts)
	}
}

// --- Platform client ---

func TestCreatePost(t *testing.T) {
	var gotReq PostRequest
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/posts" {
			t.Errorf("request: %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_ = json.NewEncoder(w).Encode(PostResponse{PostID: "p-1", URL: "https://blog.example.com/p-1"})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "tok", WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	resp, err := c.CreatePost(context.Background(), PostRequest{Slug: "vacuum-1", Title: "T", Body: "B"})
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
	if resp.PostID != "p-1" {
		t.Errorf("post id: %s", resp.PostID)
	}
	if gotReq.Slug != "vacuum-1" || gotAuth != "Bearer tok" {
		t.Errorf("request payload: %+v auth %q", gotReq, gotAuth)
	}
}

func TestCreatePostErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, "tok", WithHTTPClient(srv.Client()))
	_, err := c.CreatePost(context.Background(), PostRequest{Slug: "x"})
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("error: %v", err)
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient("", "tok"); err == nil {
		t.Error("empty base URL accepted")
	}
}

// --- Platform publisher ---

func TestPublisherRecordsPerItemFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req PostRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Slug == "flaky-2" {
			http.Error(w, "upstream hiccup", http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(PostResponse{PostID: "p-" + req.Slug, URL: "https://blog/" + req.Slug})
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, "tok", WithHTTPClient(srv.Client()))
	p := &Publisher{client: client}

	out, err := p.Execute(context.Background(), "r1", reviewDoc(passedItem("vacuum-1"), passedItem("flaky-2")))
	if err != nil {
		t.Fatalf("one good upload should carry the stage: %v", err)
	}
	doc := out.(stage.PublishDoc)
	if len(doc.Posts) != 2 {
		t.Fatalf("posts: %+v", doc.Posts)
	}
	byslug := map[string]stage.PostResult{}
	for _, p := range doc.Posts {
		byslug[p.Slug] = p
	}
	if byslug["vacuum-1"].Status != "success" {
		t.Errorf("vacuum-1: %+v", byslug["vacuum-1"])
	}
	if byslug["flaky-2"].Status != "fail" || byslug["flaky-2"].Error == "" {
		t.Errorf("flaky-2: %+v", byslug["flaky-2"])
	}
}

func TestPublisherFailsWhenAllUploadsFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, "tok", WithHTTPClient(srv.Client()))
	p := &Publisher{client: client}

	_, err := p.Execute(context.Background(), "r1", reviewDoc(passedItem("a-1"), passedItem("b-2")))
	if err == nil {
		t.Error("expected stage error when every upload fails")
	}
}

func TestPublisherMissingCredential(t *testing.T) {
	p := &Publisher{tokenEnv: "TRENDPRESS_TEST_ABSENT_BLOG_TOKEN"}
	_, err := p.Execute(context.Background(), "r1", reviewDoc(passedItem("a-1")))
	if err == nil || !strings.Contains(err.Error(), "TRENDPRESS_TEST_ABSENT_BLOG_TOKEN") {
		t.Errorf("missing credential: %v", err)
	}
}

func TestPublishableVerdicts(t *testing.T) {
	tests := []struct {
		verdict string
		want    bool
	}{
		{stage.VerdictPass, true},
		{stage.VerdictPassMinorEdits, true},
		{stage.VerdictFail, false},
	}
	for _, tt := range tests {
		if got := publishable(stage.ReviewedItem{Verdict: tt.verdict}); got != tt.want {
			t.Errorf("publishable(%s): got %v want %v", tt.verdict, got, tt.want)
		}
	}
}
