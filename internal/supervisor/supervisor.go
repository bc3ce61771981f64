// Package supervisor owns the two I/O concerns feeding the reconciler: the
// periodic full-refresh poll and the long-lived push-channel subscription.
// The reconciler stays correct whether or not push updates ever arrive; on
// push failure the system degrades to poll-only while reconnecting with
// backoff.
package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gridpulse/gridpulse-ui/internal/alerts"
	"github.com/gridpulse/gridpulse-ui/internal/feed"
	"github.com/gridpulse/gridpulse-ui/internal/grid"
	"github.com/gridpulse/gridpulse-ui/internal/reconcile"
)

// PushReader abstracts one live push connection.
type PushReader interface {
	Read() (reconcile.PushEvent, error)
	Close() error
}

// DialFunc opens a push connection. Injectable for tests.
type DialFunc func(ctx context.Context) (PushReader, error)

// Options configures the supervisor's timing behavior.
type Options struct {
	PollInterval   time.Duration // full-refresh cadence (default 30s)
	FetchTimeout   time.Duration // per-fetch bound (default 10s)
	BackoffMin     time.Duration // initial push reconnect delay (default 1s)
	BackoffMax     time.Duration // cap for push reconnect delay (default 1m)
	AlertSyncLimit int           // alert records fetched per refresh (default 100)
}

func (o *Options) applyDefaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = 30 * time.Second
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 10 * time.Second
	}
	if o.BackoffMin <= 0 {
		o.BackoffMin = time.Second
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = time.Minute
	}
	if o.AlertSyncLimit <= 0 {
		o.AlertSyncLimit = 100
	}
}

// Supervisor schedules refreshes and push reads, feeding the reconciler.
type Supervisor struct {
	client  feed.Client
	dial    DialFunc
	rec     *reconcile.Reconciler
	manager *alerts.Manager
	store   *grid.Store
	opts    Options
	logger  *slog.Logger

	live atomic.Bool
	wg   sync.WaitGroup
}

// New creates a Supervisor. dial may be nil to disable the push channel
// entirely (poll-only operation).
func New(client feed.Client, dial DialFunc, rec *reconcile.Reconciler,
	manager *alerts.Manager, store *grid.Store, opts Options, logger *slog.Logger) *Supervisor {

	if logger == nil {
		logger = slog.Default()
	}
	opts.applyDefaults()
	return &Supervisor{
		client:  client,
		dial:    dial,
		rec:     rec,
		manager: manager,
		store:   store,
		opts:    opts,
		logger:  logger,
	}
}

// Live reports push-channel health only. Data can still be fresh from
// polling while the push channel is down.
func (s *Supervisor) Live() bool {
	return s.live.Load()
}

// Run starts the poll and push loops and blocks until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.pollLoop(ctx)
	}()

	if s.dial != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.pushLoop(ctx)
		}()
	}

	<-ctx.Done()
	s.wg.Wait()
}

// pollLoop fires an immediate refresh, then refreshes on a fixed ticker.
// Each refresh runs in its own goroutine so a hung fetch never blocks the
// next scheduled tick; its late result is generation-checked on arrival.
func (s *Supervisor) pollLoop(ctx context.Context) {
	s.refreshAsync(ctx)

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refreshAsync(ctx)
		}
	}
}

func (s *Supervisor) refreshAsync(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.refresh(ctx)
	}()
}

// refresh fetches a topology snapshot and the current alert records.
// A response arriving after a newer snapshot already cut over (the
// generation advanced while this fetch was in flight) is discarded so a
// zombie response cannot revert state.
func (s *Supervisor) refresh(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
	defer cancel()

	genAtStart := s.store.Generation()

	topo, err := s.client.FetchTopology(fetchCtx)
	if err != nil {
		s.logger.Warn("topology refresh failed, keeping last-known-good state", "error", err)
		return
	}

	if s.store.Generation() != genAtStart {
		s.logger.Debug("discarding superseded refresh result", "generation", genAtStart)
		return
	}
	s.rec.ApplySnapshot(topo)

	if s.manager == nil {
		return
	}
	records, err := s.client.FetchAlerts(fetchCtx, s.opts.AlertSyncLimit)
	if err != nil {
		s.logger.Warn("alert sync failed", "error", err)
		return
	}
	for _, rec := range records {
		s.manager.IngestRecord(rec)
	}
}

// pushLoop maintains the push subscription with exponential backoff.
// Persistent failure is not fatal: the dashboard degrades to poll-only.
func (s *Supervisor) pushLoop(ctx context.Context) {
	backoff := s.opts.BackoffMin

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := s.dial(ctx)
		if err != nil {
			s.live.Store(false)
			s.logger.Warn("push channel connect failed, falling back to polling",
				"error", err, "retry_in", backoff)
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, s.opts.BackoffMax)
			continue
		}

		s.live.Store(true)
		s.logger.Info("push channel connected")
		backoff = s.opts.BackoffMin

		s.readUntilError(ctx, conn)
		_ = conn.Close()
		s.live.Store(false)

		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("push channel disconnected, reconnecting", "retry_in", backoff)
		if !sleepCtx(ctx, backoff) {
			return
		}
	}
}

func (s *Supervisor) readUntilError(ctx context.Context, conn PushReader) {
	// Close the connection when ctx ends so a blocked Read unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		ev, err := conn.Read()
		if err != nil {
			return
		}
		// Tag the event with the generation it was received under; the
		// reconciler uses this to bound the snapshot-cutover race window.
		ev.Generation = s.store.Generation()
		s.rec.ApplyEvent(ev)
	}
}

// sleepCtx sleeps for d or until ctx is done; returns false when cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
