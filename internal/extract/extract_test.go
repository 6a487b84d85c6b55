package extract

import (
	"math"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/playsense/storewatch/internal/classify"
	"github.com/playsense/storewatch/internal/fault"
)

const storeURL = "https://store.steampowered.com/app/620/Portal_2/"

func parse(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return doc
}

func TestDetectFullStorePage(t *testing.T) {
	doc := parse(t, `<html><head>
		<meta property="og:title" content="Portal 2 on Steam">
		<meta property="og:image" content="https://cdn.example/620.jpg">
		<title>Save 50% on Portal 2 on Steam</title>
	</head><body>
		<div class="apphub_AppName">Portal 2</div>
		<div id="developers_list"><a href="#">Valve</a></div>
		<div class="release_date"><div class="date">18 Apr, 2011</div></div>
		<div class="glance_tags popular_tags">
			<a class="app_tag" href="#">Puzzle</a>
			<a class="app_tag" href="#">Co-op</a>
		</div>
	</body></html>`)

	info, err := Detect(storeURL, doc)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if info.AppID != "620" {
		t.Errorf("AppID = %q, want 620", info.AppID)
	}
	if info.Title != "Portal 2" {
		t.Errorf("Title = %q, want Portal 2", info.Title)
	}
	if info.Method != MethodMetaTag {
		t.Errorf("Method = %q, want %q", info.Method, MethodMetaTag)
	}
	if info.PageType != classify.PageStorefront {
		t.Errorf("PageType = %q", info.PageType)
	}
	if info.Metadata.Developer != "Valve" {
		t.Errorf("Developer = %q", info.Metadata.Developer)
	}
	if len(info.Metadata.Tags) != 2 {
		t.Errorf("Tags = %v", info.Metadata.Tags)
	}
	// 0.9 base + 0.1 id + 0.05 dev + 0.05 release + 0.05 tags, clamped.
	if info.Confidence != 1.0 {
		t.Errorf("Confidence = %v, want 1.0", info.Confidence)
	}
	if info.DetectedAt == 0 {
		t.Error("DetectedAt not set")
	}
}

func TestDetectStrategyOrder(t *testing.T) {
	cases := []struct {
		name       string
		html       string
		wantTitle  string
		wantMethod Method
	}{
		{
			"apphub when no meta",
			`<div class="apphub_AppName">Half-Life 2</div><title>ignored title</title>`,
			"Half-Life 2", MethodAppHub,
		},
		{
			"json-ld when no elements",
			`<script type="application/ld+json">{"@type":"VideoGame","name":"Dota 2"}</script>`,
			"Dota 2", MethodJSONLD,
		},
		{
			"breadcrumb after poisoned json-ld",
			`<script type="application/ld+json">{"name":"Evil","__proto__":{"x":1}}</script>
			 <div class="breadcrumbs"><a href="#">All Games</a><a href="#">Portal 2</a></div>`,
			"Portal 2", MethodBreadcrumb,
		},
		{
			"document title with promo stripping",
			`<title>Save 75% on Half-Life 2 on Steam</title>`,
			"Half-Life 2", MethodDocTitle,
		},
		{
			"heading fallback",
			`<h1>Team Fortress 2</h1>`,
			"Team Fortress 2", MethodHeading,
		},
		{
			"short candidates are skipped",
			`<meta property="og:title" content="X"><h1>Team Fortress 2</h1>`,
			"Team Fortress 2", MethodHeading,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			info, err := Detect(storeURL, parse(t, tc.html))
			if err != nil {
				t.Fatalf("Detect: %v", err)
			}
			if info.Title != tc.wantTitle {
				t.Errorf("Title = %q, want %q", info.Title, tc.wantTitle)
			}
			if info.Method != tc.wantMethod {
				t.Errorf("Method = %q, want %q", info.Method, tc.wantMethod)
			}
		})
	}
}

func TestDetectIdentifierFallbacks(t *testing.T) {
	noIDURL := "https://steamcommunity.com/sharedfiles/filedetails/?id=123"

	doc := parse(t, `<div data-appid="440" class="apphub_HomeHeaderContent"></div>
		<div class="apphub_AppName">Team Fortress 2</div>`)
	info, err := Detect(noIDURL, doc)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if info.AppID != "440" {
		t.Errorf("AppID = %q, want 440 (data attribute)", info.AppID)
	}

	doc = parse(t, `<link rel="canonical" href="https://store.steampowered.com/app/570/Dota_2/">
		<div class="apphub_AppName">Dota 2</div>`)
	info, err = Detect(noIDURL, doc)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if info.AppID != "570" {
		t.Errorf("AppID = %q, want 570 (canonical link)", info.AppID)
	}

	doc = parse(t, `<div data-appid="not-a-number"></div><div class="apphub_AppName">Dota 2</div>`)
	_, err = Detect(noIDURL, doc)
	if !fault.IsKind(err, fault.KindNoIdentifierFound) {
		t.Errorf("err = %v, want NoIdentifierFound", err)
	}
}

func TestDetectURLSegmentFallback(t *testing.T) {
	// Nothing usable in the DOM, but the URL still names the game.
	info, err := Detect(storeURL, parse(t, `<div class="unrelated"></div>`))
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if info.Title != "Portal 2" {
		t.Errorf("Title = %q, want Portal 2", info.Title)
	}
	if info.Method != MethodURLSegment {
		t.Errorf("Method = %q, want %q", info.Method, MethodURLSegment)
	}
	// 0.4 base + 0.1 identifier, no metadata on a bare page.
	if math.Abs(info.Confidence-0.5) > 1e-9 {
		t.Errorf("Confidence = %v, want 0.5", info.Confidence)
	}
}

func TestDetectNoTitle(t *testing.T) {
	// No DOM candidates and no readable URL segment either.
	_, err := Detect("https://store.steampowered.com/app/620/", parse(t, `<div class="unrelated"></div>`))
	if !fault.IsKind(err, fault.KindNoTitleFound) {
		t.Errorf("err = %v, want NoTitleFound", err)
	}
}

func TestSafeJSONLD(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want bool
	}{
		{"clean", `{"name":"Portal 2"}`, true},
		{"proto substring", `{"name":"a","__proto__":{}}`, false},
		{"constructor substring", `{"constructor":"x"}`, false},
		{"prototype substring", `{"a":"uses prototype chains"}`, false},
		{"invalid json", `{"name":`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := safeJSONLD(tc.raw); got != tc.want {
				t.Errorf("safeJSONLD(%q) = %v, want %v", tc.raw, got, tc.want)
			}
		})
	}
}

func TestScoreBounds(t *testing.T) {
	methods := []Method{MethodMetaTag, MethodAppHub, MethodJSONLD, MethodBreadcrumb, MethodDocTitle, MethodURLSegment, MethodHeading}
	metas := []Metadata{
		{},
		{Developer: "Valve"},
		{Developer: "Valve", ReleaseDate: "2011", Tags: []string{"Puzzle"}},
	}
	titles := []string{"", "ab", "Portal 2"}

	for _, m := range methods {
		for _, hasID := range []bool{true, false} {
			for _, meta := range metas {
				for _, title := range titles {
					got := Score(m, hasID, meta, title)
					if got < 0 || got > 1 {
						t.Fatalf("Score(%v,%v,%+v,%q) = %v out of [0,1]", m, hasID, meta, title, got)
					}
				}
			}
		}
	}
}

func TestScoreValues(t *testing.T) {
	if got := Score(MethodHeading, false, Metadata{}, "ab"); math.Abs(got) > 1e-9 {
		t.Errorf("degenerate heading score = %v, want 0", got)
	}
	if got := Score(MethodDocTitle, true, Metadata{}, "Portal 2"); math.Abs(got-0.6) > 1e-9 {
		t.Errorf("doc title with id = %v, want 0.6", got)
	}
}
