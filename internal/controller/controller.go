// © 2025 Termos47. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package controller owns the polling cycle: fetch feeds, filter out
// already-published entries, enhance, render, publish, persist, sleep.
//
// One background worker runs the loop; the command surface drives it only
// through Start, Stop, Restart and the read-only Running and Stats
// accessors. No error inside a cycle ever terminates the worker, only an
// explicit stop does.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Termos47/info-sender/internal/feed"
	"github.com/Termos47/info-sender/internal/syncx"
	"github.com/Termos47/info-sender/internal/yagpt"
)

// ErrAlreadyRunning is returned by Start when a worker is already alive.
var ErrAlreadyRunning = errors.New("already running")

// Aggregator fetches fresh, normalized entries from one feed URL.
type Aggregator interface {
	Fetch(ctx context.Context, url string) ([]feed.Entry, error)
}

// Enhancer rewrites a title/body pair. A (nil, nil) return means "keep
// the original"; an error degrades to the original too, but is counted.
type Enhancer interface {
	Enabled() bool
	Enhance(ctx context.Context, title, body string) (*yagpt.Enhanced, error)
}

// Renderer draws a headline card and returns the image path.
type Renderer interface {
	Render(title string) (string, error)
}

// Publisher sends one entry to the channel, disposing of the image file.
type Publisher interface {
	Publish(e feed.Entry, title, body, imagePath string) error
}

// Store is the dedup store of already-published entry IDs.
type Store interface {
	Contains(id string) bool
	Record(id string)
	Load() error
	Save() error
	Len() int
}

// Notifier delivers operational messages to the operator chat.
type Notifier interface {
	Notify(text string)
}

// Config holds the loop timings and sources.
type Config struct {
	Sources       []string
	CheckInterval time.Duration // between cycles
	PostDelay     time.Duration // between successive publishes
	Cooldown      time.Duration // after a cycle-level panic; defaults to 30s
	StopTimeout   time.Duration // bounded wait for the worker on Stop; defaults to 5s
}

// Deps are the collaborators of the controller. Enhancer, Renderer and
// Notifier may be nil; the corresponding pass is skipped.
type Deps struct {
	Aggregator Aggregator
	Enhancer   Enhancer
	Renderer   Renderer
	Publisher  Publisher
	Store      Store
	Notifier   Notifier
	Log        *slog.Logger
}

// Stats are the counters of the current run. Reset on every Start.
type Stats struct {
	StartTime       time.Time `json:"start_time"`
	Cycles          int       `json:"cycles"`
	Seen            int       `json:"seen"`
	Published       int       `json:"published"`
	Errors          int       `json:"errors"`
	EnhanceUsed     int       `json:"enhance_used"`
	EnhanceErrors   int       `json:"enhance_errors"`
	ImagesGenerated int       `json:"images_generated"`
	LastCheck       time.Time `json:"last_check"`
	LastPost        time.Time `json:"last_post"`
}

// Controller drives the polling worker.
type Controller struct {
	cfg  Config
	deps Deps

	mu      sync.Mutex // guards state transitions
	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}

	stats *syncx.Protected[*Stats]
	// now is time.Now, overridable for tests.
	now func() time.Time
}

// New returns a stopped Controller.
func New(cfg Config, deps Deps) *Controller {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 5 * time.Second
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	return &Controller{
		cfg:   cfg,
		deps:  deps,
		stats: syncx.Protect(&Stats{}),
		now:   time.Now,
	}
}

// Running reports whether the worker is alive.
func (c *Controller) Running() bool { return c.running.Load() }

// Stats returns a snapshot of the current run's counters.
func (c *Controller) Stats() Stats {
	var snapshot Stats
	c.stats.ReadAccess(func(s *Stats) { snapshot = *s })
	return snapshot
}

// Sources returns the configured feed URLs.
func (c *Controller) Sources() []string { return c.cfg.Sources }

// Start resets the stats, loads the dedup store and spawns the worker.
// Starting a running controller is a no-op signaled by ErrAlreadyRunning.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running.Load() {
		return ErrAlreadyRunning
	}

	if err := c.deps.Store.Load(); err != nil {
		// Non-fatal: start with an empty history.
		c.deps.Log.Warn("loading dedup history failed", "error", err)
	}

	c.stats.WriteAccess(func(s *Stats) { *s = Stats{StartTime: c.now()} })

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running.Store(true)
	go c.loop(ctx)

	c.deps.Log.Info("polling started", "sources", len(c.cfg.Sources), "interval", c.cfg.CheckInterval)
	return nil
}

// Stop signals the worker and waits (bounded) for the in-flight cycle to
// observe it. It reports whether a worker was actually running.
func (c *Controller) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running.Load() {
		return false
	}

	c.cancel()
	select {
	case <-c.done:
	case <-time.After(c.cfg.StopTimeout):
		c.deps.Log.Warn("worker did not stop in time", "timeout", c.cfg.StopTimeout)
	}
	c.running.Store(false)

	if err := c.deps.Store.Save(); err != nil {
		c.deps.Log.Warn("saving dedup history failed", "error", err)
	}

	c.deps.Log.Info("polling stopped")
	return true
}

// Restart is stop-then-start. Stats are reset by the inner Start.
func (c *Controller) Restart() error {
	c.Stop()
	return c.Start()
}

func (c *Controller) loop(ctx context.Context) {
	defer close(c.done)
	defer c.running.Store(false)

	for {
		cooldown := c.runCycle(ctx)

		wait := c.cfg.CheckInterval
		if cooldown {
			wait = c.cfg.Cooldown
		}
		if !sleepCtx(ctx, wait) {
			return
		}
	}
}

// runCycle executes one cycle, containing panics: a panicking cycle is
// logged, counted as an error and followed by a cooldown instead of the
// regular interval. The worker itself never dies.
func (c *Controller) runCycle(ctx context.Context) (cooldown bool) {
	defer func() {
		if r := recover(); r != nil {
			c.deps.Log.Error("cycle crashed", "panic", r)
			c.addError()
			cooldown = true
		}
	}()
	c.cycle(ctx)
	return false
}

// cycle is one full pass over all configured sources.
func (c *Controller) cycle(ctx context.Context) {
	c.stats.WriteAccess(func(s *Stats) {
		s.Cycles++
		s.LastCheck = c.now()
	})

	published := 0
	for _, url := range c.cfg.Sources {
		if ctx.Err() != nil {
			break
		}

		entries, err := c.deps.Aggregator.Fetch(ctx, url)
		if err != nil {
			c.deps.Log.Warn("feed fetch failed", "feed", url, "error", err)
			c.addError()
			continue
		}
		c.deps.Log.Debug("feed fetched", "feed", url, "entries", len(entries))

		for _, e := range entries {
			if ctx.Err() != nil {
				break
			}
			c.stats.WriteAccess(func(s *Stats) { s.Seen++ })

			if e.ID == "" || c.deps.Store.Contains(e.ID) {
				continue
			}
			if !c.processEntry(ctx, e) {
				continue
			}
			published++
			if !sleepCtx(ctx, c.cfg.PostDelay) {
				break
			}
		}
	}

	if err := c.deps.Store.Save(); err != nil {
		c.deps.Log.Warn("saving dedup history failed", "error", err)
		c.addError()
	}

	if published > 0 && c.deps.Notifier != nil {
		c.deps.Notifier.Notify(fmt.Sprintf("📬 Отправлено %d новостей в канал", published))
	}
}

// processEntry runs one entry through enhance, render and publish. Every
// stage failure degrades rather than aborts; only a failed publish makes
// the entry eligible for a retry on the next cycle (its ID stays
// unrecorded).
func (c *Controller) processEntry(ctx context.Context, e feed.Entry) bool {
	title, body := e.Title, e.Body

	if c.deps.Enhancer != nil && c.deps.Enhancer.Enabled() {
		enhanced, err := c.deps.Enhancer.Enhance(ctx, title, body)
		switch {
		case err != nil:
			c.deps.Log.Warn("enhancement failed", "entry", e.ID, "error", err)
			c.stats.WriteAccess(func(s *Stats) { s.EnhanceErrors++ })
		case enhanced != nil:
			title, body = enhanced.Title, enhanced.Description
			c.stats.WriteAccess(func(s *Stats) { s.EnhanceUsed++ })
		}
	}

	var imagePath string
	if c.deps.Renderer != nil {
		path, err := c.deps.Renderer.Render(title)
		if err != nil {
			c.deps.Log.Warn("image rendering failed", "entry", e.ID, "error", err)
		} else {
			imagePath = path
			c.stats.WriteAccess(func(s *Stats) { s.ImagesGenerated++ })
		}
	}

	if err := c.deps.Publisher.Publish(e, title, body, imagePath); err != nil {
		c.deps.Log.Warn("publish failed", "entry", e.ID, "error", err)
		c.addError()
		return false
	}

	c.deps.Store.Record(e.ID)
	c.stats.WriteAccess(func(s *Stats) {
		s.Published++
		s.LastPost = c.now()
	})
	c.deps.Log.Info("published", "entry", e.ID)
	return true
}

func (c *Controller) addError() {
	c.stats.WriteAccess(func(s *Stats) { s.Errors++ })
}

// sleepCtx waits for d or until ctx is canceled, whichever comes first.
// It reports whether the full duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
