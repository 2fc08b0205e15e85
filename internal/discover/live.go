package discover

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"trendpress/internal/config"
	"trendpress/internal/logging"
	"trendpress/internal/stage"
)

// Signal is one raw observation from a live source prior to candidate
// building: a title, a link, and when it was observed.
type Signal struct {
	Title      string
	Link       string
	ObservedAt time.Time
	Source     string
	Weight     float64
}

// Source fetches raw signals from one external feed.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]Signal, error)
}

// Live is the live Discovery implementation: it fans out over the
// configured sources, filters signals to the run's observation window, and
// aggregates them into scored candidates. The window filter runs before
// truncation, never after.
type Live struct {
	cfg     config.DiscoveryConfig
	sources []Source
}

// NewLive creates the live implementation from the configured sources.
func NewLive(cfg config.DiscoveryConfig) *Live {
	var sources []Source
	for _, sc := range cfg.Sources {
		sources = append(sources, NewFeedSource(sc, nil))
	}
	return &Live{cfg: cfg, sources: sources}
}

// NewLiveWithSources creates the live implementation with explicit sources;
// used by tests and by callers that assemble sources themselves.
func NewLiveWithSources(cfg config.DiscoveryConfig, sources []Source) *Live {
	return &Live{cfg: cfg, sources: sources}
}

func (l *Live) Name() string { return "discovery-live" }

// Execute collects signals from every source concurrently, tolerating
// individual source failures. Collection fails as a whole only when no
// source yielded any in-window signal.
func (l *Live) Execute(ctx context.Context, runID string, input any) (any, error) {
	req, ok := input.(stage.RunRequest)
	if !ok {
		return nil, fmt.Errorf("discover: unexpected input type %T", input)
	}
	if len(l.sources) == 0 {
		return nil, fmt.Errorf("discover: no live sources configured")
	}

	logger := logging.New("discover")
	window := time.Duration(req.WindowHours) * time.Hour

	var mu sync.Mutex
	var signals []Signal
	var sourceErrs []string

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, src := range l.sources {
		src := src
		g.Go(func() error {
			rows, err := src.Fetch(gctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Warn("source fetch failed", "source", src.Name(), "error", err)
				sourceErrs = append(sourceErrs, fmt.Sprintf("%s: %v", src.Name(), err))
				return nil // per-source failures don't cancel the rest
			}
			signals = append(signals, rows...)
			return nil
		})
	}
	_ = g.Wait()

	// Window filter precedes every other step: out-of-window signals must
	// never survive into scoring or truncation.
	var recent []Signal
	for _, s := range signals {
		if withinWindow(s.ObservedAt, req.StartedAt, window) {
			recent = append(recent, s)
		}
	}
	if len(recent) == 0 {
		return nil, fmt.Errorf("discover: no signals within the last %dh (source errors: %s)",
			req.WindowHours, strings.Join(append([]string{}, sourceErrs...), "; "))
	}

	items := buildCandidates(recent)
	if len(items) == 0 {
		return nil, fmt.Errorf("discover: no product-shaped candidates among %d in-window signals", len(recent))
	}
	return stage.DiscoveryDoc{
		RunID:       runID,
		Mode:        ModeLive,
		GeneratedAt: time.Now().UTC(),
		Items:       finalize(items, req.TopN),
	}, nil
}

// FeedSource fetches an RSS-style feed over HTTP. When the source names a
// token environment variable, an empty variable is a fetch error so the
// adapter surfaces missing credentials as an execution error, not a crash.
type FeedSource struct {
	cfg    config.SourceConfig
	client *http.Client
}

// NewFeedSource creates a feed source; a nil client gets a 15s-timeout default.
func NewFeedSource(cfg config.SourceConfig, client *http.Client) *FeedSource {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.Weight == 0 {
		cfg.Weight = 1.0
	}
	return &FeedSource{cfg: cfg, client: client}
}

func (f *FeedSource) Name() string { return f.cfg.Name }

func (f *FeedSource) Fetch(ctx context.Context) ([]Signal, error) {
	var token string
	if f.cfg.TokenEnv != "" {
		token = os.Getenv(f.cfg.TokenEnv)
		if token == "" {
			return nil, fmt.Errorf("discover: credential %s is not set", f.cfg.TokenEnv)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("discover: create request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("discover: fetch %s: %w", f.cfg.Name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("discover: fetch %s: status %s", f.cfg.Name, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("discover: read %s: %w", f.cfg.Name, err)
	}
	return f.parse(body)
}

type rssFeed struct {
	Items []rssItem `xml:"channel>item"`
}

type rssItem struct {
	Title   string `xml:"title"`
	Link    string `xml:"link"`
	PubDate string `xml:"pubDate"`
}

func (f *FeedSource) parse(body []byte) ([]Signal, error) {
	var feed rssFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("discover: parse %s feed: %w", f.cfg.Name, err)
	}
	var out []Signal
	for _, it := range feed.Items {
		title := strings.TrimSpace(it.Title)
		link := strings.TrimSpace(it.Link)
		if title == "" || link == "" {
			continue
		}
		ts, ok := parsePubDate(it.PubDate)
		if !ok {
			continue // undated signals cannot be window-checked; drop them
		}
		out = append(out, Signal{
			Title:      title,
			Link:       link,
			ObservedAt: ts,
			Source:     f.cfg.Name,
			Weight:     f.cfg.Weight,
		})
	}
	return out, nil
}

func parsePubDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC1123Z, time.RFC1123, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
