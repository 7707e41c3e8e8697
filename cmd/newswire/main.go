// Command newswire polls the configured feed sources and pushes breaking
// news to Telegram, buffering overnight stories into a morning digest.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abelbrown/newswire/internal/config"
	"github.com/abelbrown/newswire/internal/deliver"
	"github.com/abelbrown/newswire/internal/digest"
	"github.com/abelbrown/newswire/internal/history"
	"github.com/abelbrown/newswire/internal/logging"
	"github.com/abelbrown/newswire/internal/pipeline"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config (default $NEWSWIRE_CONFIG)")
	once := flag.Bool("once", false, "run a single cycle and exit")
	push := flag.String("push", "", "manually push a buffered topic and exit (\"all\" for everything)")
	flag.Parse()

	if err := run(*configPath, *once, *push); err != nil {
		fmt.Fprintln(os.Stderr, "newswire:", err)
		os.Exit(1)
	}
}

func run(configPath string, once bool, push string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logging.Init(cfg.DataDir, cfg.Logging.Level); err != nil {
		return err
	}
	defer logging.Close()

	timeout := time.Duration(cfg.Channels.TimeoutSeconds) * time.Second
	primary := deliver.NewTelegram(cfg.Channels.Primary, timeout)
	secondary := deliver.NewTelegram(cfg.Channels.Secondary, timeout)
	alert := deliver.NewTelegram(cfg.Channels.Alert, timeout)
	if primary == nil {
		return errors.New("primary channel is not configured")
	}

	dispatcher := deliver.NewDispatcher(primary, asTransport(secondary), asTransport(alert),
		deliver.NewStats(time.Hour),
		cfg.Channels.Retries,
		time.Duration(cfg.Channels.BackoffMillis)*time.Millisecond)

	var hist *history.Store
	if cfg.HistoryDB != "" {
		hist, err = history.Open(cfg.HistoryDB)
		if err != nil {
			return err
		}
		defer hist.Close()
	}

	pipe, err := pipeline.New(cfg, pipeline.Options{
		Dispatcher: dispatcher,
		History:    hist,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch {
	case push != "":
		topic := push
		if topic == "all" {
			topic = digest.AllTopics
		}
		n, err := pipe.PushTopic(ctx, topic)
		if err != nil {
			return err
		}
		logging.Info("manual push complete", "topic", push, "stories", n)
		return nil
	case once:
		sum := pipe.RunCycle(ctx)
		if sum.Err != "" {
			return errors.New(sum.Err)
		}
		return nil
	default:
		if err := pipe.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
}

// asTransport converts a possibly-nil *Telegram into the interface the
// dispatcher expects; a typed nil inside a non-nil interface would defeat
// its nil checks.
func asTransport(t *deliver.Telegram) deliver.Transport {
	if t == nil {
		return nil
	}
	return t
}
