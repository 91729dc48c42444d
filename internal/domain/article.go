package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// Article is one news item collected from a source endpoint.
type Article struct {
	ID          string
	ViewURL     string
	OriginalURL string
	Title       string
	Body        string
	Excerpt     string
	OutletID    string
	Channels    string
	Source      string
	CollectedAt time.Time
	// Seq is the position in the run's collection order; higher means collected later.
	Seq int
}

// Text returns the body, falling back to the excerpt.
func (a Article) Text() string {
	if body := strings.TrimSpace(a.Body); body != "" {
		return body
	}
	return strings.TrimSpace(a.Excerpt)
}

// HasText reports whether the article carries text worth classifying.
func (a Article) HasText() bool {
	return a.Text() != ""
}

// ClassificationText is the text sent to the classifier for every brand.
func (a Article) ClassificationText() string {
	return "Título: " + strings.TrimSpace(a.Title) + "\n\nConteúdo: " + a.Text()
}

// Completeness counts the populated fields that matter downstream.
func (a Article) Completeness() int {
	score := 0
	for _, field := range []string{a.Text(), a.ViewURL, a.OriginalURL, a.Title} {
		if strings.TrimSpace(field) != "" {
			score++
		}
	}
	return score
}

// Prefer reports whether candidate should replace current for the same ID:
// the more complete variant wins, ties go to the most recently collected one.
func Prefer(candidate, current Article) bool {
	if c, k := candidate.Completeness(), current.Completeness(); c != k {
		return c > k
	}
	if !candidate.CollectedAt.Equal(current.CollectedAt) {
		return candidate.CollectedAt.After(current.CollectedAt)
	}
	return candidate.Seq > current.Seq
}

// MergeByID collapses articles sharing an ID using Prefer. The result keeps
// first-seen order; merged is the number of records folded into another.
// Articles without an ID are kept as-is.
func MergeByID(articles []Article) (unique []Article, merged int) {
	index := make(map[string]int, len(articles))
	unique = make([]Article, 0, len(articles))
	for _, art := range articles {
		id := strings.TrimSpace(art.ID)
		if id == "" {
			unique = append(unique, art)
			continue
		}
		pos, ok := index[id]
		if !ok {
			index[id] = len(unique)
			unique = append(unique, art)
			continue
		}
		merged++
		if Prefer(art, unique[pos]) {
			unique[pos] = art
		}
	}
	return unique, merged
}

// Brand is a configured brand name with the terms that route articles to it.
type Brand struct {
	Name          string
	ChannelTerms  []string
	ContentChecks []ContentCheck
}

// ContentCheck forces a minimum Citation hint when Channel is listed on the
// article and Term shows up in its text.
type ContentCheck struct {
	Channel string
	Term    string
}

// BrandNames flattens brands into their names, keeping order.
func BrandNames(brands []Brand) []string {
	names := make([]string, len(brands))
	for i, b := range brands {
		names[i] = b.Name
	}
	return names
}

// Endpoint describes one source request. Payload and Headers are opaque to the core.
type Endpoint struct {
	Name    string
	Kind    string
	URL     string
	Payload json.RawMessage
	Headers map[string]string
}
