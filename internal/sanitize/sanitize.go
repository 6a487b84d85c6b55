// Package sanitize normalises extracted titles and guards every string that
// leaves the extractor. Titles scraped from a hostile, frequently-changing
// page must never carry markup into lookup keys or display payloads.
package sanitize

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strict = bluemonday.StrictPolicy()

	trademarkRe  = regexp.MustCompile(`[™®©]`)
	savePrefixRe = regexp.MustCompile(`(?i)^save\s+\d+%\s+(?:on|when\s+you\s+buy)\s+`)
	// Bracketed promotional text: "[50% OFF]", "(Weekend Sale)", "(save 10%)".
	promoBracketRe = regexp.MustCompile(`(?i)\s*[\[(][^\[\]()]*\b(?:off|sale|discount|save|free\s+weekend)\b[^\[\]()]*[\])]`)
	steamSuffixRe  = regexp.MustCompile(`(?i)\s*(?:\bon\s+steam|\bsur\s+steam|\ben\s+steam|[-–—|:]\s*steam)\s*$`)
	multiSpaceRe   = regexp.MustCompile(`\s+`)
)

// Normalize turns a raw extracted title into its canonical display form:
// markup stripped, zero-width characters removed, trademark glyphs dropped,
// storefront suffixes and promotional text removed, underscores flattened,
// whitespace collapsed. Stable under re-application.
func Normalize(raw string) string {
	s := StripMarkup(raw)
	s = removeZeroWidth(s)
	s = trademarkRe.ReplaceAllString(s, "")
	s = savePrefixRe.ReplaceAllString(s, "")
	s = promoBracketRe.ReplaceAllString(s, " ")
	for {
		next := steamSuffixRe.ReplaceAllString(s, "")
		if next == s {
			break
		}
		s = next
	}
	s = strings.ReplaceAll(s, "_", " ")
	s = CollapseWhitespace(s)
	return strings.TrimSpace(s)
}

// StripMarkup removes every HTML element and entity-decodes the remainder.
func StripMarkup(s string) string {
	return html.UnescapeString(strict.Sanitize(s))
}

// CollapseWhitespace reduces any whitespace run to a single space.
func CollapseWhitespace(s string) string {
	return multiSpaceRe.ReplaceAllString(s, " ")
}

func removeZeroWidth(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '\u200b', '\u200c', '\u200d', '\ufeff', '\u00ad':
			return -1
		}
		return r
	}, s)
}
