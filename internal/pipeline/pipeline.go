// Package pipeline wires the stages together and runs the poll loop. One
// cycle is fetch (concurrent), reduce (serialized), route, deliver,
// persist. The pipeline mutex serializes cycles and manual pushes, so the
// dedup store and the buffers only ever see one writer at a time.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/abelbrown/newswire/internal/classify"
	"github.com/abelbrown/newswire/internal/config"
	"github.com/abelbrown/newswire/internal/dedup"
	"github.com/abelbrown/newswire/internal/deliver"
	"github.com/abelbrown/newswire/internal/digest"
	"github.com/abelbrown/newswire/internal/feeds"
	"github.com/abelbrown/newswire/internal/fetch"
	"github.com/abelbrown/newswire/internal/heat"
	"github.com/abelbrown/newswire/internal/history"
	"github.com/abelbrown/newswire/internal/logging"
	"github.com/abelbrown/newswire/internal/report"
	"github.com/abelbrown/newswire/internal/state"
)

// Options carry the injectable collaborators. Zero values get production
// defaults in New.
type Options struct {
	Dispatcher *deliver.Dispatcher
	History    *history.Store // nil disables the audit trail
	Reporter   *report.Reporter
	Clock      func() time.Time
}

// Pipeline owns the full cycle state. All exported methods are safe for
// concurrent use; cycles and manual pushes are serialized by mu.
type Pipeline struct {
	cfg        config.Config
	registry   *feeds.Registry
	fetcher    *fetch.Fetcher
	images     *fetch.ImageResolver
	classifier *classify.Classifier
	scorer     heat.Scorer
	machine    *digest.Machine
	dispatcher *deliver.Dispatcher
	history    *history.Store
	reporter   *report.Reporter
	clock      func() time.Time

	mu             sync.Mutex
	seen           *dedup.Store
	night          *digest.Buffer
	low            *digest.Buffer
	initialized    bool
	lastDigestDate string
	lastLowSlot    string
	counters       state.Counters
	statePath      string
}

// item is one accepted article moving through routing.
type item struct {
	art    feeds.Article
	src    feeds.SourceConfig
	exempt bool
}

// New builds the pipeline and restores persisted state. A missing state
// file starts fresh; an unreadable one is a fatal persistence error.
func New(cfg config.Config, opts Options) (*Pipeline, error) {
	ccfg := cfg.Classifier
	classify.ApplyDefaults(&ccfg)

	hcfg := cfg.Heat
	if len(hcfg.SourceWeights) == 0 {
		hcfg.SourceWeights = heat.DefaultSourceWeights
	}

	p := &Pipeline{
		cfg:        cfg,
		registry:   feeds.NewRegistry(cfg.Sources),
		fetcher:    fetch.NewFetcher(time.Duration(cfg.Fetch.TimeoutSeconds)*time.Second, cfg.Fetch.RatePerMinute),
		classifier: classify.New(ccfg),
		scorer:     heat.New(hcfg),
		machine:    digest.NewMachine(cfg.Quiet.StartHour, cfg.Quiet.EndHour, cfg.Location()),
		dispatcher: opts.Dispatcher,
		history:    opts.History,
		reporter:   opts.Reporter,
		clock:      opts.Clock,
		seen:       dedup.NewStore(),
		night:      digest.NewBuffer(cfg.Digest.Capacity),
		low:        digest.NewBuffer(cfg.Digest.Capacity),
		statePath:  cfg.StateFile,
	}
	p.images = fetch.NewImageResolver(p.fetcher.Client(), cfg.Fetch.ArticleImage, cfg.Channels.FallbackImage)
	if p.clock == nil {
		p.clock = time.Now
	}
	if p.dispatcher == nil {
		return nil, fmt.Errorf("pipeline: dispatcher is required")
	}
	if p.reporter == nil {
		p.reporter = report.NewReporter(p.dispatcher.Stats())
	}

	snap, err := state.Load(p.statePath)
	if err != nil {
		return nil, err
	}
	p.seen.Restore(snap.SeenMap())
	p.night.Restore(snap.NightBuffer)
	p.low.Restore(snap.LowBuffer)
	p.initialized = snap.Initialized
	p.lastDigestDate = snap.LastDigestDate
	p.lastLowSlot = snap.LastLowSlot
	p.counters = snap.Counters
	if p.counters.Delivery != nil {
		p.dispatcher.Stats().RestoreLifetime(p.counters.Delivery)
	}

	logging.Info("pipeline restored",
		"seen", p.seen.Len(), "night", p.night.Len(), "low", p.low.Len(),
		"initialized", p.initialized)
	return p, nil
}

// Start runs the poll loop until the context is cancelled. The first cycle
// runs immediately.
func (p *Pipeline) Start(ctx context.Context) error {
	interval := time.Duration(p.cfg.PollSeconds) * time.Second
	if interval <= 0 {
		interval = 2 * time.Minute
	}

	logging.Info("pipeline started", "interval", interval, "sources", len(p.registry.Enabled()))
	p.RunCycle(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logging.Info("pipeline stopping", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			p.RunCycle(ctx)
			p.reporter.SetPhase(report.PhaseIdle)
		}
	}
}

// RunCycle executes one full poll cycle and returns its summary. Safe to
// call concurrently with manual pushes; calls are serialized.
func (p *Pipeline) RunCycle(ctx context.Context) report.CycleSummary {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock()
	sum := report.CycleSummary{StartedAt: now}
	p.reporter.SetPhase(report.PhaseRunning)
	evictedBefore := p.night.Evicted() + p.low.Evicted()

	p.flushNightDigest(ctx, now)
	p.flushLowSlot(ctx, now)

	results := p.fetchAll(ctx)

	p.reporter.SetPhase(report.PhaseFiltering)
	bootstrap := !p.initialized && p.cfg.Digest.BootstrapSilent
	var accepted []item
	for _, res := range results {
		if res.err != nil {
			sum.SourcesFail++
			logging.Warn("source fetch failed", "source", res.src.ID, "error", res.err)
			p.reporter.Eventf("fetch failed: %s: %v", res.src.ID, res.err)
			continue
		}
		sum.SourcesOK++
		accepted = append(accepted, p.reduceSource(res.src, res.articles, now, bootstrap, &sum)...)
	}
	sum.New = len(accepted)

	if bootstrap {
		// First run on a fresh state file: everything already published is
		// recorded as seen but not delivered, so a redeploy cannot replay
		// the whole backlog into the channel.
		p.initialized = true
		p.reporter.Eventf("bootstrap: %d articles seeded silently", len(accepted))
		logging.Info("bootstrap cycle, seeding silently", "articles", len(accepted))
	} else {
		p.routeAndDeliver(ctx, accepted, now, &sum)
	}

	pruned := p.seen.Prune(now, time.Duration(p.cfg.Dedup.TTLHours)*time.Hour)
	if pruned > 0 {
		logging.Debug("dedup pruned", "removed", pruned)
	}
	if p.history != nil {
		if _, err := p.history.Prune(now, time.Duration(p.cfg.History.RetentionDays)*24*time.Hour); err != nil {
			logging.Warn("history prune failed", "error", err)
		}
	}

	p.counters.CyclesRun++
	if err := p.saveState(); err != nil {
		sum.Err = err.Error()
		p.reporter.RecordError(err)
		logging.Error("state save failed", "error", err)
	}

	if sum.SourcesOK == 0 && sum.SourcesFail > 0 && sum.Err == "" {
		sum.Err = "all sources failed"
	}

	sum.FinishedAt = p.clock()
	sum.NightBuffer = p.night.Len()
	sum.LowBuffer = p.low.Len()
	sum.Evicted = int(p.night.Evicted() + p.low.Evicted() - evictedBefore)
	p.reporter.CycleDone(sum)
	return sum
}

type fetchResult struct {
	src      feeds.SourceConfig
	articles []feeds.Article
	err      error
}

// fetchAll retrieves every enabled source concurrently, bounded by the
// configured concurrency, and returns results in registration order so
// the reduce stage is deterministic.
func (p *Pipeline) fetchAll(ctx context.Context) []fetchResult {
	sources := p.registry.Enabled()
	results := make([]fetchResult, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency())
	for i, src := range sources {
		g.Go(func() error {
			arts, err := p.fetcher.Fetch(gctx, src)
			results[i] = fetchResult{src: src, articles: arts, err: err}
			return nil // per-source failures never abort the cycle
		})
	}
	g.Wait()
	return results
}

func (p *Pipeline) concurrency() int {
	if p.cfg.Fetch.Concurrency > 0 {
		return p.cfg.Fetch.Concurrency
	}
	return 5
}

// reduceSource runs dedup and classification over one source's articles,
// serialized under the pipeline mutex. Every processed identity is
// recorded seen whether accepted or skipped, so the next cycle never
// re-evaluates it.
func (p *Pipeline) reduceSource(src feeds.SourceConfig, articles []feeds.Article, now time.Time, bootstrap bool, sum *report.CycleSummary) []item {
	maxItems := p.cfg.Fetch.MaxItemsPerSource
	if maxItems <= 0 {
		maxItems = 3
	}

	var out []item
	taken := 0
	for _, art := range articles {
		if !p.seen.IsNew(art.ID) {
			sum.SkippedSeen++
			continue
		}
		p.seen.Record(art.ID, now)

		dec := p.classifier.Classify(art, now)
		art.Topic = dec.Topic
		if !dec.Accept {
			p.recordSkip(art, dec.Reason.String(), now, sum)
			continue
		}
		if taken >= maxItems && !dec.Exempt {
			// A bootstrap run only seeds the dedup set; parking the backlog
			// would leak it into the next low-heat flush.
			if bootstrap {
				continue
			}
			// Per-source cap spent this cycle; park the rest for a low-heat
			// digest instead of flooding the channel.
			art.Heat = p.scorer.Score(art, now)
			p.low.Add(digest.Entry{Article: art, Topic: art.Topic, Heat: art.Heat, EnqueuedAt: now})
			continue
		}

		art.Heat = p.scorer.Score(art, now)
		out = append(out, item{art: art, src: src, exempt: dec.Exempt})
		taken++
	}
	return out
}

func (p *Pipeline) recordSkip(art feeds.Article, reason string, now time.Time, sum *report.CycleSummary) {
	switch reason {
	case "stale":
		sum.SkippedOld++
	case "major_only":
		sum.SkippedMajor++
	case "language":
		sum.SkippedLang++
	}
	if p.history == nil {
		return
	}
	err := p.history.RecordSkip(history.SkipRecord{
		ArticleID: art.ID, SourceID: art.SourceID, Reason: reason, At: now,
	})
	if err != nil {
		logging.Warn("skip record failed", "error", err)
	}
}

// routeAndDeliver sends accepted items according to the current mode:
// quiet buffers everything non-exempt for the overnight digest, active
// delivers hot items now and parks cool ones for the next low-heat slot.
func (p *Pipeline) routeAndDeliver(ctx context.Context, items []item, now time.Time, sum *report.CycleSummary) {
	quiet := p.machine.Mode(now) == digest.Quiet

	var immediate []item
	for _, it := range items {
		entry := digest.Entry{Article: it.art, Topic: it.art.Topic, Heat: it.art.Heat, EnqueuedAt: now}
		switch {
		case it.exempt:
			immediate = append(immediate, it)
		case quiet:
			p.night.Add(entry)
		case it.art.Heat < p.cfg.Heat.ImmediateMin:
			p.low.Add(entry)
		default:
			immediate = append(immediate, it)
		}
	}
	if len(immediate) == 0 {
		return
	}

	threshold := p.cfg.Digest.SummaryThreshold
	if threshold > 0 && len(immediate) > threshold {
		p.deliverSummary(ctx, immediate, now, sum)
		return
	}
	p.deliverSingles(ctx, immediate, sum)
}

// deliverSingles pushes each item as its own message, photo first.
func (p *Pipeline) deliverSingles(ctx context.Context, items []item, sum *report.CycleSummary) {
	p.reporter.SetPhase(report.PhasePushingSingle)
	for _, it := range items {
		prefix := ""
		if it.exempt {
			prefix = "\U0001F6A8 "
		}
		caption := deliver.Caption(it.art, prefix)
		chain := p.images.Chain(it.art, it.src)

		out := p.dispatcher.DeliverItem(ctx, caption, chain, it.exempt)
		p.recordDelivery(caption, out, sum)
	}
}

// deliverSummary collapses a burst of items into one grouped message so a
// backlog flush cannot flood the channel.
func (p *Pipeline) deliverSummary(ctx context.Context, items []item, now time.Time, sum *report.CycleSummary) {
	p.reporter.SetPhase(report.PhasePushingSummary)

	entries := make([]digest.Entry, len(items))
	for i, it := range items {
		entries[i] = digest.Entry{Article: it.art, Topic: it.art.Topic, Heat: it.art.Heat, EnqueuedAt: now}
	}
	messages := digest.Render(entries, p.scorer, now, p.cfg.Location(), p.sourcePriority, digest.RenderOptions{
		Label:        "News burst",
		ChunkSize:    p.cfg.Digest.ChunkSize,
		MaxHeadlines: p.cfg.Digest.MaxHeadlines,
		TZName:       p.cfg.Timezone,
	})

	major := false
	for _, it := range items {
		if it.exempt {
			major = true
			break
		}
	}
	for _, msg := range messages {
		out := p.dispatcher.DeliverText(ctx, msg, true, major)
		p.recordDelivery("summary", out, sum)
	}
}

// flushNightDigest empties the overnight buffer once per local day when
// the quiet window ends. A failed flush requeues so the next cycle
// retries; the date marker is only advanced on success.
func (p *Pipeline) flushNightDigest(ctx context.Context, now time.Time) {
	if !p.machine.DigestDue(now, p.lastDigestDate) {
		return
	}
	entries := p.night.DrainTopic(digest.AllTopics)
	if len(entries) == 0 {
		p.lastDigestDate = digest.DateKey(now, p.cfg.Location())
		return
	}

	if p.deliverDigest(ctx, entries, now, "Overnight digest") {
		p.lastDigestDate = digest.DateKey(now, p.cfg.Location())
		p.reporter.Eventf("overnight digest sent: %d stories", len(entries))
	} else {
		p.night.Requeue(entries)
		logging.Warn("overnight digest failed, requeued", "entries", len(entries))
	}
}

// flushLowSlot empties the low-heat buffer at the configured local hours,
// at most once per slot per day.
func (p *Pipeline) flushLowSlot(ctx context.Context, now time.Time) {
	key, due := digest.SlotDue(now, p.cfg.Location(), p.cfg.Digest.LowSlots, p.lastLowSlot)
	if !due {
		return
	}
	entries := p.low.DrainTopic(digest.AllTopics)
	if len(entries) == 0 {
		p.lastLowSlot = key
		return
	}

	if p.deliverDigest(ctx, entries, now, "Low-heat digest") {
		p.lastLowSlot = key
		p.reporter.Eventf("low-heat digest sent: %d stories", len(entries))
	} else {
		p.low.Requeue(entries)
		logging.Warn("low-heat digest failed, requeued", "entries", len(entries))
	}
}

// deliverDigest renders and sends one digest; true means every message
// part was accepted by at least one channel.
func (p *Pipeline) deliverDigest(ctx context.Context, entries []digest.Entry, now time.Time, label string) bool {
	p.reporter.SetPhase(report.PhasePushingSummary)
	messages := digest.Render(entries, p.scorer, now, p.cfg.Location(), p.sourcePriority, digest.RenderOptions{
		Label:        label,
		ChunkSize:    p.cfg.Digest.ChunkSize,
		MaxHeadlines: p.cfg.Digest.MaxHeadlines,
		TZName:       p.cfg.Timezone,
	})

	allOK := true
	for _, msg := range messages {
		out := p.dispatcher.DeliverText(ctx, msg, true, false)
		p.recordDelivery(label, out, nil)
		if !out.Delivered() {
			allOK = false
		}
	}
	return allOK
}

func (p *Pipeline) recordDelivery(message string, out deliver.Outcome, sum *report.CycleSummary) {
	if out.Delivered() {
		p.counters.PushedOK++
		p.reporter.RecordPush(p.clock())
		if sum != nil {
			sum.PushedOK++
		}
	} else {
		p.counters.PushedFail++
		if sum != nil {
			sum.PushedFail++
		}
		p.reporter.RecordError(out.Err)
	}
	if p.history == nil {
		return
	}
	message = deliver.Truncate(message, 200)
	channel, ok := "primary", out.PrimaryOK
	if !out.PrimaryOK && out.SecondaryTried {
		channel, ok = "secondary", out.SecondaryOK
	}
	errMsg := ""
	if out.Err != nil {
		errMsg = out.Err.Error()
	}
	err := p.history.RecordDelivery(history.DeliveryRecord{
		Message: message, Channel: channel, OK: ok, Error: errMsg, At: p.clock(),
	})
	if err != nil {
		logging.Warn("delivery record failed", "error", err)
	}
}

func (p *Pipeline) sourcePriority(sourceID string) feeds.Priority {
	if src, ok := p.registry.Lookup(sourceID); ok && src.Priority != "" {
		return src.Priority
	}
	return feeds.PriorityPrimary
}

// PushTopic drains buffered entries for a topic (the AllTopics sentinel
// drains everything) and delivers them immediately, bypassing quiet hours.
// Returns the number of stories pushed. Shares the pipeline mutex, so a
// manual push never interleaves with a running cycle.
func (p *Pipeline) PushTopic(ctx context.Context, topic string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock()
	fromNight := p.night.DrainTopic(topic)
	fromLow := p.low.DrainTopic(topic)
	entries := append(append([]digest.Entry{}, fromNight...), fromLow...)
	if len(entries) == 0 {
		return 0, nil
	}

	label := "Manual push"
	if topic != digest.AllTopics {
		label = "Manual push: " + topic
	}
	if !p.deliverDigest(ctx, entries, now, label) {
		// Entries go back to the buffer they came from, so a failed push
		// cannot migrate low-heat stories into the overnight digest.
		p.night.Requeue(fromNight)
		p.low.Requeue(fromLow)
		return 0, fmt.Errorf("manual push failed for topic %q", topic)
	}

	if err := p.saveState(); err != nil {
		logging.Error("state save after manual push failed", "error", err)
	}
	p.reporter.Eventf("manual push: topic=%s stories=%d", topic, len(entries))
	return len(entries), nil
}

// Status returns the read model with up to n recent events.
func (p *Pipeline) Status(n int) report.Status {
	return p.reporter.Snapshot(n)
}

// saveState persists the snapshot, retrying once on failure before
// reporting the cycle-fatal persistence error.
func (p *Pipeline) saveState() error {
	p.counters.Delivery = p.dispatcher.Stats().Lifetime()
	p.counters.NightEvicted = p.night.Evicted()
	p.counters.LowEvicted = p.low.Evicted()

	snap := state.Snapshot{
		Initialized:    p.initialized,
		Seen:           state.SeenRecords(p.seen.Snapshot()),
		NightBuffer:    p.night.Snapshot(),
		LowBuffer:      p.low.Snapshot(),
		LastDigestDate: p.lastDigestDate,
		LastLowSlot:    p.lastLowSlot,
		Counters:       p.counters,
	}

	err := state.Save(p.statePath, snap)
	if err == nil {
		return nil
	}
	logging.Warn("state save failed, retrying", "error", err)
	return state.Save(p.statePath, snap)
}
