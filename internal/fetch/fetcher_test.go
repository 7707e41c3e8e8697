package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/abelbrown/newswire/internal/feeds"
)

func rssBody(items ...string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Test Feed</title>%s</channel></rss>`, joinItems(items))
}

func joinItems(items []string) string {
	out := ""
	for _, it := range items {
		out += it
	}
	return out
}

func rssItem(title, link, guid string, published time.Time) string {
	return fmt.Sprintf(`<item><title>%s</title><link>%s</link><guid>%s</guid><pubDate>%s</pubDate></item>`,
		title, link, guid, published.Format(time.RFC1123Z))
}

func testSource(endpoint string, fallbacks ...string) feeds.SourceConfig {
	return feeds.SourceConfig{
		ID: "test", Name: "Test", Endpoint: endpoint, Fallbacks: fallbacks,
		Enabled: true, Language: "en",
	}
}

func TestFetchParsesAndSorts(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rssBody(
			rssItem("Older story", "https://example.com/1", "g1", now.Add(-2*time.Hour)),
			rssItem("Newer story", "https://example.com/2", "g2", now.Add(-time.Hour)),
		))
	}))
	defer srv.Close()

	f := NewFetcher(5*time.Second, 6000)
	arts, err := f.Fetch(context.Background(), testSource(srv.URL))
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(arts) != 2 {
		t.Fatalf("got %d articles", len(arts))
	}
	if arts[0].Title != "Newer story" {
		t.Errorf("newest first ordering broken: %q", arts[0].Title)
	}
	if arts[0].SourceID != "test" || arts[0].ID == "" {
		t.Errorf("article not normalized: %+v", arts[0])
	}
	if arts[0].Language != "en" {
		t.Errorf("language = %q", arts[0].Language)
	}
}

func TestFetchFallbackURL(t *testing.T) {
	now := time.Now().UTC()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rssBody(rssItem("Story", "https://example.com/1", "g1", now)))
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer bad.Close()

	f := NewFetcher(5*time.Second, 6000)
	arts, err := f.Fetch(context.Background(), testSource(bad.URL, good.URL))
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(arts) != 1 {
		t.Fatalf("got %d articles", len(arts))
	}
}

func TestFetchAllCandidatesFail(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	f := NewFetcher(5*time.Second, 6000)
	_, err := f.Fetch(context.Background(), testSource(bad.URL))
	if err == nil {
		t.Fatal("want error when every candidate fails")
	}
	var serr *SourceError
	if !errors.As(err, &serr) || serr.SourceID != "test" {
		t.Fatalf("error type = %T: %v", err, err)
	}
}

func TestIdentityStableAcrossMirrors(t *testing.T) {
	// Same story from the same source must hash identically whether it
	// arrives wrapped or direct.
	wrapped := NormalizeLink("https://www.bing.com/news/apiclick.aspx?url=https%3A%2F%2Fexample.com%2Fs1")
	direct := NormalizeLink("https://example.com/s1")
	if feeds.Identity("src", "", wrapped, "t") != feeds.Identity("src", "", direct, "t") {
		t.Error("identities differ after link normalization")
	}
}

func TestImageChainOrder(t *testing.T) {
	r := NewImageResolver(http.DefaultClient, false, "https://fallback.img")
	art := feeds.Article{Image: "https://entry.img", Link: "https://example.com/story"}
	src := feeds.SourceConfig{LogoDomain: "example.com"}

	chain := r.Chain(art, src)
	ctx := context.Background()

	want := []string{
		"https://entry.img",
		"https://logo.clearbit.com/example.com",
		"https://www.google.com/s2/favicons?domain=example.com&sz=256",
		"https://fallback.img",
	}
	for i, w := range want {
		if got := chain.Next(ctx); got != w {
			t.Fatalf("candidate %d = %q, want %q", i, got, w)
		}
	}
	if got := chain.Next(ctx); got != "" {
		t.Fatalf("chain not exhausted: %q", got)
	}
}

func TestImageChainSkipsEmptySteps(t *testing.T) {
	r := NewImageResolver(http.DefaultClient, false, "https://fallback.img")
	chain := r.Chain(feeds.Article{}, feeds.SourceConfig{})
	if got := chain.Next(context.Background()); got != "https://fallback.img" {
		t.Fatalf("got %q, want fallback", got)
	}
}
