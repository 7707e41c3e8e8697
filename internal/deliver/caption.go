package deliver

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/abelbrown/newswire/internal/feeds"
)

// maxCaptionLen is the Telegram photo caption ceiling.
const maxCaptionLen = 1024

// Caption renders the single-item message text. Pure: the same article
// and prefix always format to the same string.
func Caption(art feeds.Article, prefix string) string {
	title := strings.TrimSpace(art.Title)
	if title == "" {
		title = "(untitled)"
	}

	published := "unknown time"
	if !art.Published.IsZero() {
		published = art.Published.UTC().Format("2006-01-02 15:04 UTC")
	}

	text := strings.TrimSpace(fmt.Sprintf("%s[%s] \U0001F525%.1f\n%s\n%s\n%s",
		prefix, art.SourceID, art.Heat, title, published, strings.TrimSpace(art.Link)))
	return Truncate(text, maxCaptionLen)
}

// Truncate clamps s to at most max bytes without splitting a UTF-8 rune;
// a cut that would land inside a multibyte sequence backs up to the
// rune's start.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
