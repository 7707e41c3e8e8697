// Package fetch retrieves raw entries from feed sources and normalizes
// them into canonical articles. A source failure is returned to the
// caller and never aborts the surrounding cycle.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/time/rate"

	"github.com/abelbrown/newswire/internal/feeds"
	"github.com/abelbrown/newswire/internal/logging"
)

const userAgent = "Newswire/1.0 (+https://github.com/abelbrown/newswire)"

// SourceError wraps a per-source fetch failure (network, parse, timeout).
type SourceError struct {
	SourceID string
	Err      error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.SourceID, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// Fetcher retrieves items from feed sources.
type Fetcher struct {
	client *http.Client

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	perMin   int
}

// NewFetcher creates a Fetcher with the given HTTP timeout and a
// per-source rate limit of ratePerMinute requests.
func NewFetcher(timeout time.Duration, ratePerMinute int) *Fetcher {
	if ratePerMinute <= 0 {
		ratePerMinute = 30
	}
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		limiters: make(map[string]*rate.Limiter),
		perMin:   ratePerMinute,
	}
}

// Client exposes the underlying HTTP client so collaborators (image
// resolution) share the same timeout policy.
func (f *Fetcher) Client() *http.Client { return f.client }

// Fetch retrieves and normalizes entries for one source. Feed URL
// candidates are tried in order; the first that fetches and parses wins.
// Returned articles are sorted newest first with entries in the source's
// preferred language ahead of the rest.
func (f *Fetcher) Fetch(ctx context.Context, src feeds.SourceConfig) ([]feeds.Article, error) {
	if err := f.limiter(src.ID).Wait(ctx); err != nil {
		return nil, &SourceError{SourceID: src.ID, Err: err}
	}

	var lastErr error
	for _, url := range src.Candidates() {
		if ctx.Err() != nil {
			return nil, &SourceError{SourceID: src.ID, Err: ctx.Err()}
		}
		feed, err := f.fetchOne(ctx, url)
		if err != nil {
			lastErr = err
			continue
		}
		if url != src.Endpoint {
			logging.Info("feed fallback hit", "source", src.ID, "url", url)
		}
		return normalizeFeed(feed, src, time.Now()), nil
	}

	if lastErr == nil {
		lastErr = errors.New("no feed candidates configured")
	}
	return nil, &SourceError{SourceID: src.ID, Err: lastErr}
}

func (f *Fetcher) fetchOne(ctx context.Context, url string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}
	return feed, nil
}

func (f *Fetcher) limiter(sourceID string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[sourceID]
	if !ok {
		l = rate.NewLimiter(rate.Every(time.Minute/time.Duration(f.perMin)), 1)
		f.limiters[sourceID] = l
	}
	return l
}

// normalizeFeed converts parsed feed items into canonical articles,
// newest first, preferred-language entries ahead of the rest.
func normalizeFeed(feed *gofeed.Feed, src feeds.SourceConfig, now time.Time) []feeds.Article {
	articles := make([]feeds.Article, 0, len(feed.Items))
	for _, entry := range feed.Items {
		art := convertEntry(entry, src, now)
		if art.Title == "" && art.Link == "" {
			continue
		}
		articles = append(articles, art)
	}

	sort.SliceStable(articles, func(i, j int) bool {
		return articles[i].Published.After(articles[j].Published)
	})

	pref := src.Language
	if pref == "" {
		pref = "en"
	}
	preferred := make([]feeds.Article, 0, len(articles))
	rest := make([]feeds.Article, 0)
	for _, a := range articles {
		if a.Language == pref {
			preferred = append(preferred, a)
		} else {
			rest = append(rest, a)
		}
	}
	return append(preferred, rest...)
}

func convertEntry(entry *gofeed.Item, src feeds.SourceConfig, now time.Time) feeds.Article {
	link := NormalizeLink(entry.Link)

	// Published time falls back to the update time; a zero value marks the
	// entry undated and the classifier treats it as stale.
	var published time.Time
	if entry.PublishedParsed != nil {
		published = *entry.PublishedParsed
	} else if entry.UpdatedParsed != nil {
		published = *entry.UpdatedParsed
	}

	return feeds.Article{
		ID:        feeds.Identity(src.ID, entry.GUID, link, entry.Title),
		SourceID:  src.ID,
		Title:     entry.Title,
		Link:      link,
		Published: published,
		Image:     NormalizeImageURL(entryImage(entry)),
		Language:  DetectLanguage(entry.Title),
		FirstSeen: now,
	}
}

// entryImage picks the best image URL the feed entry itself carries.
func entryImage(entry *gofeed.Item) string {
	if entry.Image != nil && entry.Image.URL != "" {
		return entry.Image.URL
	}
	for _, enc := range entry.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		if len(enc.Type) >= 5 && enc.Type[:5] == "image" {
			return enc.URL
		}
	}
	if media, ok := entry.Extensions["media"]; ok {
		for _, key := range []string{"content", "thumbnail"} {
			for _, ext := range media[key] {
				if url := ext.Attrs["url"]; url != "" {
					return url
				}
			}
		}
	}
	return ""
}
