package publish

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"trendpress/internal/adapter"
	"trendpress/internal/config"
	"trendpress/internal/stage"
)

// Select resolves the Publish implementation: the platform client when a
// base URL is configured, the fixture otherwise.
func Select(cfg config.PublishConfig) (adapter.Implementation, error) {
	if cfg.BaseURL == "" {
		return NewFixturePublisher(), nil
	}
	var token string
	if cfg.TokenEnv != "" {
		// An empty credential is surfaced at execute time so the run fails
		// with an execution error instead of refusing to start.
		token = os.Getenv(cfg.TokenEnv)
	}
	client, err := NewClient(cfg.BaseURL, token, WithTimeout(30*time.Second))
	if err != nil {
		return nil, err
	}
	return &Publisher{client: client, tokenEnv: cfg.TokenEnv}, nil
}

// publishable reports whether a reviewed item may be uploaded.
func publishable(item stage.ReviewedItem) bool {
	return item.Verdict == stage.VerdictPass || item.Verdict == stage.VerdictPassMinorEdits
}

// Publisher uploads passed items through the platform client. A per-item
// upload failure is recorded in the output document as a fail entry; the
// stage itself fails only when every upload errored or credentials are
// missing.
type Publisher struct {
	client   *Client
	tokenEnv string
}

func (p *Publisher) Name() string { return "publish-platform" }

func (p *Publisher) Execute(ctx context.Context, runID string, input any) (any, error) {
	doc, ok := input.(stage.ReviewDoc)
	if !ok {
		return nil, fmt.Errorf("publish: unexpected input type %T", input)
	}
	if p.tokenEnv != "" && os.Getenv(p.tokenEnv) == "" {
		return nil, fmt.Errorf("publish: credential %s is not set", p.tokenEnv)
	}

	posts := []stage.PostResult{}
	failed := 0
	for _, item := range doc.Items {
		if !publishable(item) {
			continue
		}
		resp, err := p.client.CreatePost(ctx, PostRequest{
			Slug:  item.Slug,
			Title: item.Title,
			Body:  item.Draft,
		})
		if err != nil {
			failed++
			posts = append(posts, stage.PostResult{
				Slug:        item.Slug,
				PublishedAt: time.Now().UTC(),
				Status:      "fail",
				Error:       err.Error(),
			})
			continue
		}
		posts = append(posts, stage.PostResult{
			Slug:        item.Slug,
			PostID:      resp.PostID,
			PostURL:     resp.URL,
			PublishedAt: time.Now().UTC(),
			Status:      "success",
		})
	}
	if len(posts) > 0 && failed == len(posts) {
		return nil, fmt.Errorf("publish: all %d uploads failed", failed)
	}

	return stage.PublishDoc{
		RunID:       runID,
		GeneratedAt: time.Now().UTC(),
		Posts:       posts,
	}, nil
}

// FixturePublisher emulates the platform: every passed item publishes
// successfully with a deterministic-looking post id and URL.
type FixturePublisher struct{}

// NewFixturePublisher creates the fixture publisher.
func NewFixturePublisher() *FixturePublisher { return &FixturePublisher{} }

func (p *FixturePublisher) Name() string { return "publish-fixture" }

func (p *FixturePublisher) Execute(_ context.Context, runID string, input any) (any, error) {
	doc, ok := input.(stage.ReviewDoc)
	if !ok {
		return nil, fmt.Errorf("publish: unexpected input type %T", input)
	}

	posts := []stage.PostResult{}
	for _, item := range doc.Items {
		if !publishable(item) {
			continue
		}
		posts = append(posts, stage.PostResult{
			Slug:        item.Slug,
			PostID:      "mock-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
			PostURL:     "https://example.com/" + item.Slug,
			PublishedAt: time.Now().UTC(),
			Status:      "success",
		})
	}

	return stage.PublishDoc{
		RunID:       runID,
		GeneratedAt: time.Now().UTC(),
		Posts:       posts,
	}, nil
}
