package digest

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/abelbrown/newswire/internal/feeds"
	"github.com/abelbrown/newswire/internal/heat"
)

// maxMessageLen is the Telegram message body ceiling with headroom for
// entity parsing.
const maxMessageLen = 3900

// maxTitleLen keeps headlines to one line in the grouped digest.
const maxTitleLen = 92

// RenderOptions parameterize digest rendering.
type RenderOptions struct {
	Label        string // message header label, e.g. "Overnight digest"
	ChunkSize    int    // entries per message; digests longer than this are split
	MaxHeadlines int    // headline cap per message
	TZName       string
}

// Render formats buffered entries as one or more HTML digest messages,
// grouped by topic with the hottest topic first. Heat is re-evaluated at
// the given instant. Pure: the same inputs always yield the same text.
func Render(entries []Entry, scorer heat.Scorer, now time.Time, loc *time.Location,
	priority func(sourceID string) feeds.Priority, opts RenderOptions) []string {

	if len(entries) == 0 {
		return nil
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 15
	}
	if opts.MaxHeadlines <= 0 {
		opts.MaxHeadlines = opts.ChunkSize
	}
	if loc == nil {
		loc = time.UTC
	}

	rescored := rescore(entries, scorer, now)

	var chunks [][]Entry
	for i := 0; i < len(rescored); i += opts.ChunkSize {
		end := i + opts.ChunkSize
		if end > len(rescored) {
			end = len(rescored)
		}
		chunks = append(chunks, rescored[i:end])
	}

	messages := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		msg := renderChunk(chunk, now, loc, priority, opts)
		if len(chunks) > 1 {
			msg = fmt.Sprintf("<b>[Part %d/%d]</b>\n%s", i+1, len(chunks), msg)
		}
		msg = truncate(msg, maxMessageLen)
		messages = append(messages, msg)
	}
	return messages
}

// rescore recomputes heat at flush time and returns entries in global
// heat order so chunk boundaries cut at the coldest stories.
func rescore(entries []Entry, scorer heat.Scorer, now time.Time) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	for i := range out {
		if scorer != nil {
			out[i].Heat = scorer.Score(out[i].Article, now)
			out[i].Article.Heat = out[i].Heat
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Heat > out[j].Heat
	})
	return out
}

func renderChunk(entries []Entry, now time.Time, loc *time.Location,
	priority func(string) feeds.Priority, opts RenderOptions) string {

	grouped := make(map[string][]Entry)
	sourceCounts := make(map[string]int)
	for _, e := range entries {
		topic := e.Topic
		if topic == "" {
			topic = "General"
		}
		grouped[topic] = append(grouped[topic], e)
		sourceCounts[e.Article.SourceID]++
	}

	type topicStat struct {
		name    string
		avgHeat float64
		count   int
	}
	stats := make([]topicStat, 0, len(grouped))
	for name, bucket := range grouped {
		sum := 0.0
		for _, e := range bucket {
			sum += e.Heat
		}
		stats = append(stats, topicStat{name: name, avgHeat: sum / float64(len(bucket)), count: len(bucket)})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].avgHeat != stats[j].avgHeat {
			return stats[i].avgHeat > stats[j].avgHeat
		}
		if stats[i].count != stats[j].count {
			return stats[i].count > stats[j].count
		}
		return stats[i].name < stats[j].name
	})

	label := opts.Label
	if label == "" {
		label = "News digest"
	}
	var lines []string
	lines = append(lines, fmt.Sprintf("<b>[%s] %d stories (%s %s)</b>",
		html.EscapeString(label), len(entries), now.In(loc).Format("2006-01-02 15:04"), opts.TZName))
	lines = append(lines, "Top sources: "+html.EscapeString(topSources(sourceCounts)))
	lines = append(lines, "")

	idx := 1
	for _, ts := range stats {
		if idx > opts.MaxHeadlines {
			break
		}
		bucket := grouped[ts.name]
		sortBucket(bucket, priority)
		lines = append(lines, fmt.Sprintf("<b>%s (%d, avg \U0001F525%.1f)</b>",
			html.EscapeString(ts.name), ts.count, ts.avgHeat))
		for _, e := range bucket {
			if idx > opts.MaxHeadlines {
				break
			}
			lines = append(lines, headlineLine(idx, e))
			idx++
		}
		lines = append(lines, "")
	}
	if idx <= len(entries) {
		lines = append(lines, fmt.Sprintf("… %d more held for the next digest", len(entries)-idx+1))
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// sortBucket orders one topic's entries: heat desc, then most recent,
// then primary sources ahead of fallback mirrors.
func sortBucket(bucket []Entry, priority func(string) feeds.Priority) {
	sort.SliceStable(bucket, func(i, j int) bool {
		if bucket[i].Heat != bucket[j].Heat {
			return bucket[i].Heat > bucket[j].Heat
		}
		if !bucket[i].Article.Published.Equal(bucket[j].Article.Published) {
			return bucket[i].Article.Published.After(bucket[j].Article.Published)
		}
		if priority != nil {
			pi := priority(bucket[i].Article.SourceID)
			pj := priority(bucket[j].Article.SourceID)
			if pi != pj {
				return pi == feeds.PriorityPrimary
			}
		}
		return false
	})
}

func headlineLine(idx int, e Entry) string {
	title := strings.ReplaceAll(strings.TrimSpace(e.Article.Title), "\n", " ")
	if title == "" {
		title = "(untitled)"
	}
	if len(title) > maxTitleLen {
		title = truncate(title, maxTitleLen-3) + "..."
	}
	safeTitle := html.EscapeString(fmt.Sprintf("[%s] %s", e.Article.SourceID, title))
	if e.Article.Link != "" {
		return fmt.Sprintf("%d. <a href=\"%s\">%s</a> (\U0001F525%.1f)",
			idx, html.EscapeString(e.Article.Link), safeTitle, e.Heat)
	}
	return fmt.Sprintf("%d. %s (\U0001F525%.1f)", idx, safeTitle, e.Heat)
}

// truncate clamps s to at most max bytes on a rune boundary, so a cut
// never produces invalid UTF-8.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

func topSources(counts map[string]int) string {
	type kv struct {
		id string
		n  int
	}
	out := make([]kv, 0, len(counts))
	for id, n := range counts {
		out = append(out, kv{id, n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].n != out[j].n {
			return out[i].n > out[j].n
		}
		return out[i].id < out[j].id
	})
	if len(out) > 5 {
		out = out[:5]
	}
	parts := make([]string, len(out))
	for i, s := range out {
		parts[i] = fmt.Sprintf("%s:%d", s.id, s.n)
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}
