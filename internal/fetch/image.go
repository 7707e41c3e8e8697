package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/abelbrown/newswire/internal/feeds"
)

// maxArticleBody caps how much of an article page is read when hunting
// for a preview image.
const maxArticleBody = 700_000

// ImageChain yields image URL candidates for an article, lazily, in
// preference order: the feed entry's own image, the article page's
// og/twitter image (fetched only when reached), the source logo, then the
// configured fallback. Evaluation stops as soon as the consumer accepts
// a candidate.
type ImageChain struct {
	steps []func(ctx context.Context) string
	next  int
}

// Next returns the next non-empty candidate, or "" when exhausted.
func (c *ImageChain) Next(ctx context.Context) string {
	for c.next < len(c.steps) {
		step := c.steps[c.next]
		c.next++
		if url := step(ctx); url != "" {
			return url
		}
	}
	return ""
}

// ImageResolver builds image chains. fetchArticle=false skips the article
// page lookup (the slowest step).
type ImageResolver struct {
	client       *http.Client
	fetchArticle bool
	fallback     string
}

// NewImageResolver creates a resolver sharing the fetcher's timeout policy.
func NewImageResolver(client *http.Client, fetchArticle bool, fallback string) *ImageResolver {
	return &ImageResolver{client: client, fetchArticle: fetchArticle, fallback: fallback}
}

// Chain builds the candidate chain for one article.
func (r *ImageResolver) Chain(art feeds.Article, src feeds.SourceConfig) *ImageChain {
	chain := &ImageChain{}

	chain.steps = append(chain.steps, func(context.Context) string {
		return art.Image
	})

	if r.fetchArticle && art.Link != "" {
		link := art.Link
		chain.steps = append(chain.steps, func(ctx context.Context) string {
			return NormalizeImageURL(r.articleImage(ctx, link))
		})
	}

	if src.LogoDomain != "" {
		domain := src.LogoDomain
		chain.steps = append(chain.steps,
			func(context.Context) string {
				return fmt.Sprintf("https://logo.clearbit.com/%s", domain)
			},
			func(context.Context) string {
				return fmt.Sprintf("https://www.google.com/s2/favicons?domain=%s&sz=256", domain)
			},
		)
	}

	if r.fallback != "" {
		chain.steps = append(chain.steps, func(context.Context) string {
			return r.fallback
		})
	}

	return chain
}

// articleImage fetches the article page and extracts its preview image.
// Any failure yields "" so the chain moves to the next candidate.
func (r *ImageResolver) articleImage(ctx context.Context, link string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	if !strings.Contains(ct, "text/html") && !strings.Contains(ct, "application/xhtml+xml") {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxArticleBody))
	if err != nil {
		return ""
	}

	finalURL := link
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	return extractPreviewImage(doc, finalURL)
}

// extractPreviewImage walks the usual meta tags, then the first <img>.
func extractPreviewImage(doc *goquery.Document, pageURL string) string {
	selectors := []struct {
		query string
		attr  string
	}{
		{`meta[property="og:image"]`, "content"},
		{`meta[name="twitter:image"]`, "content"},
		{`link[rel="image_src"]`, "href"},
		{`img`, "src"},
	}
	for _, sel := range selectors {
		if val, ok := doc.Find(sel.query).First().Attr(sel.attr); ok {
			val = strings.TrimSpace(val)
			if val != "" {
				return resolveRelative(pageURL, val)
			}
		}
	}
	return ""
}

func resolveRelative(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
