package protagonism

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"ProtagonismAnalyzer/internal/domain"
)

// fold lowercases s and strips diacritics so "ITAÚ" and "itau" compare equal.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// CountMentions counts whole-word occurrences of term in text. Word edges are
// Unicode-aware: "Bradesco" does not match inside "Bradescoprev".
func CountMentions(text, term string) int {
	needle := fold(strings.TrimSpace(term))
	if needle == "" {
		return 0
	}
	haystack := fold(text)

	count := 0
	offset := 0
	for {
		idx := strings.Index(haystack[offset:], needle)
		if idx < 0 {
			return count
		}
		start := offset + idx
		end := start + len(needle)
		if isEdge(haystack[:start], true) && isEdge(haystack[end:], false) {
			count++
			offset = end
		} else {
			_, size := utf8.DecodeRuneInString(haystack[start:])
			offset = start + size
		}
	}
}

// Mentions reports whether term appears as a whole word in text.
func Mentions(text, term string) bool {
	return CountMentions(text, term) > 0
}

func isEdge(s string, before bool) bool {
	if s == "" {
		return true
	}
	var r rune
	if before {
		r, _ = utf8.DecodeLastRuneInString(s)
	} else {
		r, _ = utf8.DecodeRuneInString(s)
	}
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
}

// InChannels reports whether the article's channel field routes it to brand,
// either by the brand name itself or one of its channel terms.
func InChannels(channels string, brand domain.Brand) bool {
	if Mentions(channels, brand.Name) {
		return true
	}
	for _, term := range brand.ChannelTerms {
		if Mentions(channels, term) {
			return true
		}
	}
	return false
}

// ContentHints returns the content-check terms found for brand in the article.
func ContentHints(article domain.Article, brand domain.Brand) []string {
	var found []string
	text := article.ClassificationText()
	for _, check := range brand.ContentChecks {
		if Mentions(article.Channels, check.Channel) && Mentions(text, check.Term) {
			found = append(found, check.Term)
		}
	}
	return found
}
