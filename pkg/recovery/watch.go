package recovery

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch blocks until ctx is cancelled, running a reconciliation pass whenever
// the restart-signal file appears. An operator (or a process supervisor hook)
// touches the signal file after restarting agent-side infrastructure; the
// Coordinator then re-checks the tracker for orphaned work. Falls back to
// pure polling when fsnotify is unavailable.
func (c *Coordinator) Watch(ctx context.Context) error {
	if c.cfg.SignalPath == "" {
		<-ctx.Done()
		return ctx.Err()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return c.watchPoll(ctx)
	}
	defer func() { _ = watcher.Close() }()

	// Watch the parent directory: the signal file usually does not exist yet.
	if err := watcher.Add(filepath.Dir(c.cfg.SignalPath)); err != nil {
		return c.watchPoll(ctx)
	}

	fallback := time.NewTicker(c.cfg.FallbackPollInterval)
	defer fallback.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-watcher.Events:
			if ev.Name != c.cfg.SignalPath {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			c.consumeSignal(ctx)
		case err := <-watcher.Errors:
			if err != nil {
				c.logger.Printf("recovery: watcher error: %v", err)
			}
		case <-fallback.C:
			// Safety net: fsnotify can miss events on some filesystems.
			if _, err := os.Stat(c.cfg.SignalPath); err == nil {
				c.consumeSignal(ctx)
			}
		}
	}
}

// watchPoll is the fallback loop when fsnotify is unavailable.
func (c *Coordinator) watchPoll(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.FallbackPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := os.Stat(c.cfg.SignalPath); err == nil {
				c.consumeSignal(ctx)
			}
		}
	}
}

// consumeSignal removes the signal file and runs one reconciliation pass.
// Removing first keeps a slow pass from being re-triggered by its own signal.
func (c *Coordinator) consumeSignal(ctx context.Context) {
	if err := os.Remove(c.cfg.SignalPath); err != nil && !os.IsNotExist(err) {
		c.logger.Printf("recovery: remove signal file: %v", err)
	}
	report, err := c.Run(ctx)
	if err != nil {
		c.logger.Printf("recovery: reconcile: %v", err)
		return
	}
	if len(report.Redispatched) > 0 || len(report.Skipped) > 0 {
		c.logger.Printf("recovery: re-dispatched %d issue(s), skipped %d", len(report.Redispatched), len(report.Skipped))
	}
}
