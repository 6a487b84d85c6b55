package extract

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/playsense/storewatch/internal/classify"
	"github.com/playsense/storewatch/internal/fault"
	"github.com/playsense/storewatch/internal/sanitize"
)

// minTitleLen is the shortest raw candidate accepted by a strategy, in runes
// after trimming. Shorter strings are noise (icons, counters, glyphs).
const minTitleLen = 3

// strategy is one step of the title chain.
type strategy struct {
	method Method
	run    func(doc *goquery.Document) (string, bool)
}

// strategies is the ordered chain, most reliable first. The first candidate
// surviving the length gate wins.
var strategies = []strategy{
	{MethodMetaTag, metaTagTitle},
	{MethodAppHub, appHubTitle},
	{MethodJSONLD, jsonLDName},
	{MethodBreadcrumb, breadcrumbTitle},
	{MethodDocTitle, docTitle},
	{MethodHeading, headingTitle},
}

// Detect runs identifier extraction and the title strategy chain over a
// parsed snapshot of the page. It never panics on hostile markup: goquery
// queries on absent nodes return empty selections, and structured data is
// probed, not unmarshalled.
func Detect(rawURL string, doc *goquery.Document) (*GameInfo, error) {
	appID, ok := identifier(rawURL, doc)
	if !ok {
		return nil, fault.NoIdentifier(rawURL)
	}

	raw, method, ok := title(doc)
	if !ok {
		raw, ok = urlSegmentTitle(rawURL)
		method = MethodURLSegment
	}
	if !ok {
		return nil, fault.NoTitle(rawURL)
	}

	normalized := sanitize.Normalize(raw)
	meta := pageMetadata(doc)

	info := &GameInfo{
		AppID:       appID,
		Title:       normalized,
		RawTitle:    raw,
		PageType:    classify.ClassifyPage(rawURL),
		ProductType: classify.ClassifyProduct(rawURL, normalized, meta.Tags),
		SourceURL:   rawURL,
		Metadata:    meta,
		Method:      method,
		DetectedAt:  time.Now().UnixMilli(),
	}
	info.Confidence = Score(method, true, meta, normalized)
	return info, nil
}

func title(doc *goquery.Document) (string, Method, bool) {
	for _, s := range strategies {
		raw, ok := s.run(doc)
		if !ok {
			continue
		}
		raw = strings.TrimSpace(raw)
		if utf8.RuneCountInString(raw) < minTitleLen {
			continue
		}
		return raw, s.method, true
	}
	return "", "", false
}

// urlSegmentTitle is the last resort when the DOM yields nothing: the
// human-readable path segment after the app ID, with underscores restored
// to spaces ("Portal_2" reads as "Portal 2").
func urlSegmentTitle(rawURL string) (string, bool) {
	seg, ok := classify.URLTitle(rawURL)
	if !ok {
		return "", false
	}
	title := strings.TrimSpace(strings.ReplaceAll(seg, "_", " "))
	if utf8.RuneCountInString(title) < minTitleLen {
		return "", false
	}
	return title, true
}

// identifier tries the URL pattern first (no DOM), then known
// attribute-bearing elements, then the canonical link.
func identifier(rawURL string, doc *goquery.Document) (string, bool) {
	if id, ok := classify.AppID(rawURL); ok {
		return id, true
	}
	if id, ok := doc.Find("[data-appid]").First().Attr("data-appid"); ok {
		id = strings.TrimSpace(id)
		if isDigits(id) {
			return id, true
		}
	}
	if href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok {
		if id, ok := classify.AppID(href); ok {
			return id, true
		}
	}
	return "", false
}

func metaTagTitle(doc *goquery.Document) (string, bool) {
	content, ok := doc.Find(`meta[property="og:title"]`).First().Attr("content")
	if !ok {
		content, ok = doc.Find(`meta[name="twitter:title"]`).First().Attr("content")
	}
	return content, ok
}

func appHubTitle(doc *goquery.Document) (string, bool) {
	text := doc.Find(".apphub_AppName").First().Text()
	return text, text != ""
}

func breadcrumbTitle(doc *goquery.Document) (string, bool) {
	text := doc.Find(".breadcrumbs a").Last().Text()
	return text, text != ""
}

func docTitle(doc *goquery.Document) (string, bool) {
	text := doc.Find("title").First().Text()
	return text, text != ""
}

func headingTitle(doc *goquery.Document) (string, bool) {
	for _, sel := range []string{"h1.pageheader", "#appHubAppName", "h1"} {
		if text := doc.Find(sel).First().Text(); strings.TrimSpace(text) != "" {
			return text, true
		}
	}
	return "", false
}

// pageMetadata collects best-effort store metadata. Every field may come
// back empty; nothing here fails detection.
func pageMetadata(doc *goquery.Document) Metadata {
	meta := Metadata{
		Developer:   firstText(doc, "#developers_list a", ".dev_row .summary a"),
		Publisher:   firstText(doc, `.dev_row:contains("Publisher") .summary a`, ".glance_ctn .publisher a"),
		ReleaseDate: firstText(doc, ".release_date .date"),
		Price:       firstText(doc, ".discount_final_price", ".game_purchase_price"),
	}

	doc.Find(".glance_tags a.app_tag").Each(func(_ int, s *goquery.Selection) {
		tag := strings.TrimSpace(s.Text())
		if tag != "" && tag != "+" {
			meta.Tags = append(meta.Tags, tag)
		}
	})

	if img, ok := doc.Find(`meta[property="og:image"]`).First().Attr("content"); ok && img != "" {
		meta.Images = append(meta.Images, img)
	}
	return meta
}

func firstText(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if text := strings.TrimSpace(doc.Find(sel).First().Text()); text != "" {
			return sanitize.CollapseWhitespace(text)
		}
	}
	return ""
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
