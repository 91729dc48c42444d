package source

import (
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

var strictPolicy = bluemonday.StrictPolicy()

// cleanTitle strips markup and entities from a headline.
func cleanTitle(raw string) string {
	return normalizeWhitespace(html.UnescapeString(strictPolicy.Sanitize(raw)))
}

// bodyText reduces an HTML body to readable text, keeping paragraph breaks.
// Plain text passes through with whitespace tidied.
func bodyText(raw string) string {
	if !strings.Contains(raw, "<") {
		return tidyParagraphs(raw)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return normalizeWhitespace(html.UnescapeString(strictPolicy.Sanitize(raw)))
	}
	doc.Find("script, style, noscript").Remove()

	var paragraphs []string
	doc.Find("p, li, h1, h2, h3, h4, blockquote").Each(func(_ int, s *goquery.Selection) {
		if s.Find("p, li").Length() > 0 {
			return
		}
		if text := normalizeWhitespace(s.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	if len(paragraphs) == 0 {
		return normalizeWhitespace(doc.Text())
	}
	return strings.Join(paragraphs, "\n\n")
}

func tidyParagraphs(raw string) string {
	var out []string
	for _, line := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		if text := normalizeWhitespace(line); text != "" {
			out = append(out, text)
		}
	}
	return strings.Join(out, "\n")
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// tidyChannels splits the channel list on its usual separators, drops
// blanks and repeats, and joins it back with ", ".
func tidyChannels(raw string) string {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == '|'
	})
	seen := make(map[string]struct{}, len(parts))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = normalizeWhitespace(p)
		key := strings.ToLower(p)
		if p == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	return strings.Join(out, ", ")
}
