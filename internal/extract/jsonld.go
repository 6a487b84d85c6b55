package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"
)

// dangerSubstrings are prototype-pollution markers. A structured-data block
// containing any of them is skipped without parsing; the chain falls through
// to the next strategy. The content is data, never evaluated as code, but a
// payload carrying these names has no legitimate reason to exist on a store
// page.
var dangerSubstrings = []string{"__proto__", "constructor", "prototype"}

// jsonLDName reads the product name from the first safe
// application/ld+json block in the document.
func jsonLDName(doc *goquery.Document) (string, bool) {
	var name string
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		raw := strings.TrimSpace(s.Text())
		if raw == "" || !safeJSONLD(raw) {
			return true // keep looking
		}
		if n := lookupName(raw); n != "" {
			name = n
			return false
		}
		return true
	})
	return name, name != ""
}

// safeJSONLD rejects blocks that contain pollution markers or are not valid
// JSON. gjson probes fields without building Go maps, so even a safe-looking
// block never materialises attacker-shaped structures.
func safeJSONLD(raw string) bool {
	lower := strings.ToLower(raw)
	for _, danger := range dangerSubstrings {
		if strings.Contains(lower, danger) {
			return false
		}
	}
	if !gjson.Valid(raw) {
		return false
	}
	for _, danger := range dangerSubstrings {
		if gjson.Get(raw, danger).Exists() {
			return false
		}
	}
	return true
}

// lookupName finds "name" at the top level, in the first array element, or
// in the first @graph entry.
func lookupName(raw string) string {
	// Leading backslash keeps gjson from reading @graph as a modifier.
	for _, path := range []string{"name", "0.name", `\@graph.0.name`} {
		if v := gjson.Get(raw, path); v.Type == gjson.String {
			return strings.TrimSpace(v.Str)
		}
	}
	return ""
}
