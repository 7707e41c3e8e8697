package fetch

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

// NormalizeLink unwraps aggregator redirect links so that the same story
// hashes to the same identity regardless of which mirror served it.
// Currently handles the Bing News click-tracking wrapper.
func NormalizeLink(link string) string {
	link = strings.TrimSpace(link)
	if link == "" {
		return ""
	}
	u, err := url.Parse(link)
	if err != nil {
		return link
	}
	host := strings.ToLower(u.Host)
	if strings.HasSuffix(host, "bing.com") && strings.HasPrefix(u.Path, "/news/apiclick.aspx") {
		if raw := u.Query().Get("url"); raw != "" {
			if unwrapped, err := url.QueryUnescape(raw); err == nil && unwrapped != "" {
				return unwrapped
			}
			return raw
		}
	}
	return link
}

var (
	googleSizeToken  = regexp.MustCompile(`=s0-w\d+(-rw)?`)
	googleWHToken    = regexp.MustCompile(`=w\d+-h\d+(-p)?`)
)

// NormalizeImageURL upgrades plain-http image URLs to https and rewrites
// known thumbnail services to serve a high-resolution frame.
func NormalizeImageURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "http://") {
		raw = "https://" + raw[len("http://"):]
	}

	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	host := strings.ToLower(u.Host)

	// Bing News default thumbnail is often 100x100; request a large frame.
	if strings.HasSuffix(host, "bing.com") && u.Path == "/th" {
		q := u.Query()
		if q.Get("id") != "" || q.Get("thid") != "" {
			q.Set("w", "1600")
			q.Set("h", "900")
			q.Set("c", "14")
			q.Set("rs", "1")
			u.RawQuery = q.Encode()
			return u.String()
		}
	}

	// Google-hosted images carry width tokens like '=s0-w300-rw'.
	if strings.HasSuffix(host, "googleusercontent.com") {
		raw = googleSizeToken.ReplaceAllString(raw, "=s0-w1600-rw")
		raw = googleWHToken.ReplaceAllString(raw, "=w1600-h900-p")
		return raw
	}

	return raw
}

// DetectLanguage classifies a title as "zh", "en" or "other" from its
// script. CJK wins over Latin when both are present, matching how mixed
// headlines from Chinese outlets read.
func DetectLanguage(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return "other"
	}
	hasLatin := false
	for _, r := range title {
		if unicode.Is(unicode.Han, r) {
			return "zh"
		}
		if r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' {
			hasLatin = true
		}
	}
	if hasLatin {
		return "en"
	}
	return "other"
}
