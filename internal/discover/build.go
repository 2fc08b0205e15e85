package discover

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"trendpress/internal/stage"
)

// Candidate building mirrors the collector heuristics: derive a
// product-shaped name from each signal title, drop noise, aggregate
// mentions into a weighted count, and score into the 0-100 band.

var stopwords = map[string]bool{
	"today": true, "breaking": true, "news": true, "video": true, "watch": true,
	"live": true, "review": true, "best": true, "price": true, "deal": true,
	"official": true, "update": true, "report": true, "exclusive": true,
}

var noiseHints = []string{
	"election", "minister", "weather", "stocks", "match", "player", "coach",
	"singer", "actor", "verdict", "court",
}

var productHints = []string{
	"vacuum", "battery", "earbuds", "headset", "keyboard", "mouse", "monitor",
	"fan", "humidifier", "purifier", "vitamin", "massager", "blender",
	"coffee maker", "dehumidifier", "dashcam", "speaker", "tablet", "laptop",
	"lamp", "mattress", "pillow", "toothbrush", "shampoo", "detergent",
	"dryer", "charger", "cooker", "fryer", "tracker", "projector",
}

var nonWord = regexp.MustCompile(`[^0-9A-Za-z\s]`)

// deriveName extracts a candidate product name from a signal title, or ""
// when the title does not look product-shaped.
func deriveName(title string) string {
	clean := nonWord.ReplaceAllString(strings.ToLower(title), " ")
	tokens := strings.Fields(clean)

	for i, tok := range tokens {
		for _, hint := range productHints {
			if tok != hint {
				continue
			}
			// Prefer a two-token name using the qualifier before the hint.
			if i > 0 && !stopwords[tokens[i-1]] && len(tokens[i-1]) <= 12 {
				return tokens[i-1] + " " + tok
			}
			return tok
		}
	}
	return ""
}

func isNoise(name string) bool {
	for _, n := range noiseHints {
		if strings.Contains(name, n) {
			return true
		}
	}
	return false
}

type aggregate struct {
	weight  float64
	links   []string
	titles  []string
	sources map[string]int
}

// buildCandidates aggregates in-window signals into scored candidates.
// Callers apply the window filter first; this function never drops a
// signal for recency.
func buildCandidates(signals []Signal) []stage.Candidate {
	agg := make(map[string]*aggregate)
	var order []string

	for _, s := range signals {
		name := deriveName(s.Title)
		if name == "" || isNoise(name) {
			continue
		}
		a, ok := agg[name]
		if !ok {
			a = &aggregate{sources: make(map[string]int)}
			agg[name] = a
			order = append(order, name)
		}
		a.weight += s.Weight
		if s.Link != "" && !containsString(a.links, s.Link) {
			a.links = append(a.links, s.Link)
		}
		a.titles = append(a.titles, s.Title)
		a.sources[s.Source]++
	}

	var out []stage.Candidate
	for _, name := range order {
		a := agg[name]
		score := 48 + a.weight*10
		if score > 100 {
			score = 100
		}

		reason := "multi-source mention increase within the observation window"
		if len(a.titles) > 0 {
			t := a.titles[0]
			if r := []rune(t); len(r) > 50 {
				t = string(r[:50])
			}
			reason += fmt.Sprintf(" (e.g. %s)", t)
		}
		srcs := make([]string, 0, len(a.sources))
		for src := range a.sources {
			srcs = append(srcs, src)
		}
		sort.Strings(srcs)
		mix := make([]string, 0, len(srcs))
		for _, src := range srcs {
			mix = append(mix, fmt.Sprintf("%s:%d", src, a.sources[src]))
		}
		if len(mix) > 0 {
			reason += " / sources[" + strings.Join(mix, ", ") + "]"
		}

		links := a.links
		if len(links) > 5 {
			links = links[:5]
		}

		obs := signals[0].ObservedAt
		for _, s := range signals {
			if deriveName(s.Title) == name && s.ObservedAt.After(obs) {
				obs = s.ObservedAt
			}
		}

		out = append(out, stage.Candidate{
			Name:          name,
			IssueReason:   reason,
			EvidenceLinks: links,
			Score:         score,
			ObservedAt:    obs,
			Source:        "live",
		})
	}
	return out
}

func containsString(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
