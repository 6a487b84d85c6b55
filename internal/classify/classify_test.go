package classify

import "testing"

func TestIsCandidatePage(t *testing.T) {
	cases := []struct {
		url  string
		want bool
	}{
		{"https://store.steampowered.com/app/620/Portal_2/", true},
		{"https://steamcommunity.com/app/620", true},
		{"https://STORE.STEAMPOWERED.COM/app/620", true},
		{"https://store.steampowered.com:443/app/620", true},
		{"https://example.com/app/620", false},
		{"https://store.steampowered.com.evil.com/app/620", false},
		{"https://partner.steampowered.com/", false},
		{"not a url", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := IsCandidatePage(tc.url); got != tc.want {
			t.Errorf("IsCandidatePage(%q) = %v, want %v", tc.url, got, tc.want)
		}
	}
}

func TestClassifyPage(t *testing.T) {
	if got := ClassifyPage("https://store.steampowered.com/app/620"); got != PageStorefront {
		t.Errorf("got %v, want storefront", got)
	}
	if got := ClassifyPage("https://steamcommunity.com/app/620"); got != PageCommunity {
		t.Errorf("got %v, want community", got)
	}
	if got := ClassifyPage("https://example.com/"); got != PageUnknown {
		t.Errorf("got %v, want unknown", got)
	}
}

func TestAppID(t *testing.T) {
	id, ok := AppID("https://store.steampowered.com/app/620/Portal_2/")
	if !ok || id != "620" {
		t.Fatalf("AppID = %q, %v; want 620, true", id, ok)
	}
	if _, ok := AppID("https://store.steampowered.com/bundle/232/"); ok {
		t.Error("bundle URL must not yield an app ID")
	}
}

func TestURLTitle(t *testing.T) {
	title, ok := URLTitle("https://store.steampowered.com/app/620/Portal_2/")
	if !ok || title != "Portal_2" {
		t.Fatalf("URLTitle = %q, %v; want Portal_2, true", title, ok)
	}
	if _, ok := URLTitle("https://store.steampowered.com/app/620"); ok {
		t.Error("URL without title segment must report not found")
	}
}

func TestClassifyProduct(t *testing.T) {
	cases := []struct {
		name  string
		url   string
		title string
		tags  []string
		want  ProductType
	}{
		{"plain game", "https://store.steampowered.com/app/620/Portal_2/", "Portal 2", nil, ProductGame},
		{"bundle path", "https://store.steampowered.com/bundle/232/Valve_Complete/", "Valve Complete Pack", nil, ProductBundle},
		{"sub path", "https://store.steampowered.com/sub/469/", "Counter-Strike", nil, ProductBundle},
		{"dlc in title", "https://store.steampowered.com/app/323200/", "Shadow of Mordor DLC", nil, ProductDLC},
		{"demo path", "https://store.steampowered.com/app/1000/Game_Demo/", "Some Game", nil, ProductDemo},
		{"demo in title", "https://store.steampowered.com/app/1000/", "Stray Demo", nil, ProductDemo},
		{"demolition is not a demo", "https://store.steampowered.com/app/1001/", "Demolition Crew", nil, ProductGame},
		{"software tag", "https://store.steampowered.com/app/1840/", "Source Filmmaker", []string{"Software"}, ProductSoftware},
		{"dlc tag", "https://store.steampowered.com/app/2000/", "Season Pass", []string{"Downloadable Content"}, ProductDLC},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ClassifyProduct(tc.url, tc.title, tc.tags)
			if got != tc.want {
				t.Errorf("ClassifyProduct = %v, want %v", got, tc.want)
			}
		})
	}
}
