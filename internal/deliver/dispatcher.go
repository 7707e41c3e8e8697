package deliver

import (
	"context"
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/abelbrown/newswire/internal/logging"
)

// Error wraps a delivery failure after retries were exhausted.
type Error struct {
	Channel Channel
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("deliver %s: %v", e.Channel, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ImageChain yields image URL candidates lazily; "" means exhausted.
type ImageChain interface {
	Next(ctx context.Context) string
}

// Outcome records what happened across channels for one message.
type Outcome struct {
	PrimaryOK      bool
	SecondaryTried bool
	SecondaryOK    bool
	AlertTried     bool
	AlertOK        bool
	Err            error
}

// Delivered reports whether any non-alert channel accepted the message.
func (o Outcome) Delivered() bool { return o.PrimaryOK || o.SecondaryOK }

// Dispatcher fans one message out to the channel plan. A nil secondary or
// alert transport means that channel is not configured.
type Dispatcher struct {
	primary   Transport
	secondary Transport
	alert     Transport
	stats     *Stats
	retries   int
	backoff   time.Duration
	clock     func() time.Time
}

// NewDispatcher wires the transports. retries bounds attempts per channel
// (minimum 1); backoff is the initial delay, doubled between attempts.
func NewDispatcher(primary, secondary, alert Transport, stats *Stats, retries int, backoff time.Duration) *Dispatcher {
	if retries < 1 {
		retries = 1
	}
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	if stats == nil {
		stats = NewStats(time.Hour)
	}
	return &Dispatcher{
		primary:   primary,
		secondary: secondary,
		alert:     alert,
		stats:     stats,
		retries:   retries,
		backoff:   backoff,
		clock:     time.Now,
	}
}

// Stats exposes the channel health counters.
func (d *Dispatcher) Stats() *Stats { return d.stats }

// DeliverText sends a text message through the channel plan: primary
// first, secondary only on primary failure, alert mirrored for major
// messages regardless of the other outcomes.
func (d *Dispatcher) DeliverText(ctx context.Context, text string, asHTML, major bool) Outcome {
	var out Outcome

	err := d.withRetry(ctx, func(c context.Context) error {
		return d.sendTextDegrading(c, d.primary, text, asHTML)
	})
	d.bump(ChannelPrimary, err)
	out.PrimaryOK = err == nil

	if err != nil && d.secondary != nil {
		out.SecondaryTried = true
		serr := d.withRetry(ctx, func(c context.Context) error {
			return d.sendTextDegrading(c, d.secondary, text, asHTML)
		})
		d.bump(ChannelSecondary, serr)
		out.SecondaryOK = serr == nil
	}

	if major {
		out.AlertTried, out.AlertOK = d.mirrorToAlert(ctx, text)
	}

	if !out.Delivered() {
		out.Err = &Error{Channel: ChannelPrimary, Err: err}
		d.notifyFailure(ctx, fmt.Sprintf("text delivery failed: %v", err))
	}
	return out
}

// DeliverItem sends a single-article message: photo with caption when an
// image candidate works, plain caption otherwise. The image chain is
// evaluated lazily and stops at the first accepted candidate.
func (d *Dispatcher) DeliverItem(ctx context.Context, caption string, images ImageChain, major bool) Outcome {
	var out Outcome

	err := d.sendItem(ctx, d.primary, caption, images)
	d.bump(ChannelPrimary, err)
	out.PrimaryOK = err == nil

	if err != nil && d.secondary != nil {
		out.SecondaryTried = true
		serr := d.sendItem(ctx, d.secondary, caption, images)
		d.bump(ChannelSecondary, serr)
		out.SecondaryOK = serr == nil
	}

	if major {
		out.AlertTried, out.AlertOK = d.mirrorToAlert(ctx, caption)
	}

	if !out.Delivered() {
		out.Err = &Error{Channel: ChannelPrimary, Err: err}
		d.notifyFailure(ctx, fmt.Sprintf("item delivery failed: %v", err))
	}
	return out
}

// sendItem tries each image candidate once as a photo message, then falls
// back to a retried plain-text send.
func (d *Dispatcher) sendItem(ctx context.Context, t Transport, caption string, images ImageChain) error {
	if t == nil {
		return errors.New("channel not configured")
	}

	if images != nil {
		tried := make(map[string]bool)
		for {
			url := images.Next(ctx)
			if url == "" {
				break
			}
			if tried[url] {
				continue
			}
			tried[url] = true
			if err := t.SendPhoto(ctx, url, caption); err != nil {
				logging.Debug("sendPhoto candidate failed", "url", url, "error", err)
				continue
			}
			return nil
		}
	}

	return d.withRetry(ctx, func(c context.Context) error {
		return t.SendText(c, caption, false, true)
	})
}

// sendTextDegrading sends HTML, and on rejection retries the same content
// as plain text (malformed entities are the usual 400 cause).
func (d *Dispatcher) sendTextDegrading(ctx context.Context, t Transport, text string, asHTML bool) error {
	if t == nil {
		return errors.New("channel not configured")
	}
	err := t.SendText(ctx, text, asHTML, false)
	if err == nil || !asHTML {
		return err
	}
	logging.Warn("HTML send failed, retrying as plain text", "error", err)
	return t.SendText(ctx, StripHTML(text), false, false)
}

// mirrorToAlert sends the message to the alert channel; major events go
// there independent of primary/secondary outcome.
func (d *Dispatcher) mirrorToAlert(ctx context.Context, text string) (tried, ok bool) {
	if d.alert == nil {
		return false, false
	}
	err := d.withRetry(ctx, func(c context.Context) error {
		return d.alert.SendText(c, StripHTML(text), false, false)
	})
	d.bump(ChannelAlert, err)
	return true, err == nil
}

// notifyFailure raises a push-failure notice on the alert channel.
func (d *Dispatcher) notifyFailure(ctx context.Context, reason string) {
	if d.alert == nil {
		return
	}
	text := fmt.Sprintf("[Push Failure Alert]\ntime=%s\nreason=%s",
		d.clock().Format("2006-01-02 15:04:05"), Truncate(reason, 500))
	err := d.alert.SendText(ctx, text, false, false)
	d.bump(ChannelAlert, err)
	if err != nil {
		logging.Error("failure alert send failed", "error", err)
	}
}

// withRetry runs op up to d.retries times with doubling delay, checking
// cancellation between attempts.
func (d *Dispatcher) withRetry(ctx context.Context, op func(context.Context) error) error {
	delay := d.backoff
	var err error
	for attempt := 1; attempt <= d.retries; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if attempt == d.retries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}

func (d *Dispatcher) bump(ch Channel, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	d.stats.Bump(ch, err == nil, msg, d.clock())
}

var tagPattern = regexp.MustCompile(`<[^>]+>`)

// StripHTML removes markup and unescapes entities, for plain-text
// fallbacks of HTML digests.
func StripHTML(s string) string {
	return strings.TrimSpace(html.UnescapeString(tagPattern.ReplaceAllString(s, "")))
}
