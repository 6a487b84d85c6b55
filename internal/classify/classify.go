// Package classify decides, from a URL alone, whether a page is worth any
// further work and what kind of product it shows. Everything here is pure
// string matching: the fast-reject gate runs on every navigation event and
// every mutation tick, so it must never touch the page.
package classify

import (
	"net/url"
	"regexp"
	"strings"
)

// PageType is the host-level classification.
type PageType string

const (
	PageStorefront PageType = "storefront"
	PageCommunity  PageType = "community"
	PageUnknown    PageType = "unknown"
)

// ProductType is the product-level classification.
type ProductType string

const (
	ProductGame     ProductType = "game"
	ProductDLC      ProductType = "dlc"
	ProductDemo     ProductType = "demo"
	ProductBundle   ProductType = "bundle"
	ProductSoftware ProductType = "software"
)

const (
	storeHost     = "store.steampowered.com"
	communityHost = "steamcommunity.com"
)

var (
	appIDRe    = regexp.MustCompile(`/app/(\d+)`)
	bundleIDRe = regexp.MustCompile(`/(?:bundle|sub)/(\d+)`)
	dlcPathRe  = regexp.MustCompile(`(?i)/dlc(?:/|$)`)
	demoPathRe = regexp.MustCompile(`(?i)(?:/demo(?:/|$)|_demo(?:/|$))`)
)

// IsCandidatePage reports whether the URL is on one of the two supported
// hosts. It is the gate called before any other work.
func IsCandidatePage(rawURL string) bool {
	host := hostOf(rawURL)
	return host == storeHost || host == communityHost
}

// ClassifyPage maps the URL host to a page type.
func ClassifyPage(rawURL string) PageType {
	switch hostOf(rawURL) {
	case storeHost:
		return PageStorefront
	case communityHost:
		return PageCommunity
	default:
		return PageUnknown
	}
}

// AppID extracts the numeric app identifier from the URL path. The bundle
// pattern is deliberately separate: a bundle page has no app ID.
func AppID(rawURL string) (string, bool) {
	if m := appIDRe.FindStringSubmatch(rawURL); m != nil {
		return m[1], true
	}
	return "", false
}

// BundleID extracts the numeric bundle or sub identifier from the URL path.
func BundleID(rawURL string) (string, bool) {
	if m := bundleIDRe.FindStringSubmatch(rawURL); m != nil {
		return m[1], true
	}
	return "", false
}

// URLTitle returns the human-readable path segment following the app ID,
// e.g. "Portal_2" for /app/620/Portal_2/. Best effort.
func URLTitle(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, p := range parts {
		if p == "app" && i+2 < len(parts) {
			seg, err := url.PathUnescape(parts[i+2])
			if err != nil || seg == "" {
				return "", false
			}
			return seg, true
		}
	}
	return "", false
}

// ClassifyProduct runs the ordered product checks: bundle pattern first
// (independent of the app pattern), then DLC and demo against both URL and
// lower-cased title, then tag-based inference, defaulting to Game.
func ClassifyProduct(rawURL, title string, tags []string) ProductType {
	if _, ok := BundleID(rawURL); ok {
		return ProductBundle
	}

	lowerTitle := strings.ToLower(title)
	if dlcPathRe.MatchString(rawURL) || containsWord(lowerTitle, "dlc") ||
		strings.Contains(lowerTitle, "downloadable content") {
		return ProductDLC
	}
	if demoPathRe.MatchString(rawURL) || containsWord(lowerTitle, "demo") {
		return ProductDemo
	}

	for _, tag := range tags {
		switch strings.ToLower(tag) {
		case "software", "utilities", "animation & modeling", "audio production",
			"video production", "design & illustration":
			return ProductSoftware
		case "downloadable content":
			return ProductDLC
		}
	}
	return ProductGame
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// containsWord reports whether s contains w as a whole word, so "demolition"
// does not classify as a demo.
func containsWord(s, w string) bool {
	idx := 0
	for {
		i := strings.Index(s[idx:], w)
		if i < 0 {
			return false
		}
		i += idx
		before := i == 0 || !isWordByte(s[i-1])
		afterIdx := i + len(w)
		after := afterIdx >= len(s) || !isWordByte(s[afterIdx])
		if before && after {
			return true
		}
		idx = i + len(w)
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}
