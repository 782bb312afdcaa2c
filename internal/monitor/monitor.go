// Package monitor keeps a near-real-time view of scan jobs by polling the
// backend's stats snapshot on a fixed period.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/CosmoTheDev/scanboard/internal/api"
	"github.com/CosmoTheDev/scanboard/internal/journal"
	"github.com/CosmoTheDev/scanboard/internal/metrics"
	"github.com/CosmoTheDev/scanboard/models"
)

// DefaultInterval matches the dashboard refresh period of the web console.
const DefaultInterval = 2 * time.Second

// ErrNotStoppable is returned for jobs the last snapshot shows as not running.
var ErrNotStoppable = errors.New("scan is not running")

// Source is the slice of the REST API the monitor depends on.
type Source interface {
	Stats(ctx context.Context) (*models.Stats, error)
	StopScan(ctx context.Context, jobID int64) error
}

// Snapshot is the result of the last poll.
type Snapshot struct {
	Stats     *models.Stats
	FetchedAt time.Time
	// Err is the error of the most recent poll. When set, Stats still holds
	// the last successful snapshot (if any).
	Err error
	// Seq increases with every poll, successful or not.
	Seq uint64
}

// Monitor polls Source and publishes snapshots. Each successful poll
// replaces the previous snapshot wholesale.
type Monitor struct {
	src      Source
	interval time.Duration
	journal  journal.Recorder

	mu      sync.RWMutex
	current Snapshot
	subs    map[chan Snapshot]struct{}
	running bool
}

// New creates a Monitor. A non-positive interval selects DefaultInterval.
func New(src Source, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		src:      src,
		interval: interval,
		subs:     make(map[chan Snapshot]struct{}),
	}
}

// WithJournal records stop requests to j.
func (m *Monitor) WithJournal(j journal.Recorder) *Monitor {
	m.journal = j
	return m
}

// Snapshot returns the current snapshot.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Subscribe returns a channel receiving every published snapshot. The channel
// is closed when Run returns. Slow subscribers miss snapshots rather than
// block polling.
func (m *Monitor) Subscribe() <-chan Snapshot {
	ch := make(chan Snapshot, 4)
	m.mu.Lock()
	m.subs[ch] = struct{}{}
	m.mu.Unlock()
	return ch
}

// Run polls immediately and then every interval until ctx is cancelled.
// It must be called at most once per Monitor.
func (m *Monitor) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("monitor already running")
	}
	m.running = true
	m.mu.Unlock()
	defer m.closeSubscribers()

	slog.Debug("scan monitor started", "interval", m.interval)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Debug("scan monitor stopped")
			return nil
		case <-ticker.C:
			m.Poll(ctx)
		}
	}
}

// Poll fetches one snapshot and publishes it. A poll that completes after
// ctx was cancelled is discarded.
func (m *Monitor) Poll(ctx context.Context) {
	stats, err := m.src.Stats(ctx)
	if ctx.Err() != nil {
		return
	}
	metrics.MonitorPolls.WithLabelValues(metrics.Outcome(err)).Inc()

	m.mu.Lock()
	next := Snapshot{Stats: m.current.Stats, FetchedAt: m.current.FetchedAt, Err: err, Seq: m.current.Seq + 1}
	if err == nil {
		next.Stats = stats
		next.FetchedAt = time.Now()
		metrics.ActiveScans.Set(float64(stats.ActiveScans))
	} else {
		slog.Debug("scan monitor poll failed", "error", err)
	}
	m.current = next
	for ch := range m.subs {
		select {
		case ch <- next:
		default:
		}
	}
	m.mu.Unlock()
}

// Stop requests cancellation of job jobID. A job the current snapshot shows
// as anything other than running is refused locally. The snapshot itself is never
// modified; the next poll reports the job's real status.
func (m *Monitor) Stop(ctx context.Context, jobID int64) error {
	snap := m.Snapshot()
	if job, ok := snap.Stats.Job(jobID); ok && !job.Stoppable() {
		return fmt.Errorf("%w: job %d is %s", ErrNotStoppable, jobID, job.Status)
	}

	err := m.src.StopScan(ctx, jobID)
	if m.journal != nil {
		a := journal.Action{Kind: journal.KindStop, JobID: jobID, Outcome: journal.OutcomeOK}
		if err != nil {
			a.Outcome = journal.OutcomeError
			a.Error = api.UserMessage(err)
		}
		if jerr := m.journal.Record(context.WithoutCancel(ctx), a); jerr != nil {
			slog.Warn("journal write failed", "kind", a.Kind, "error", jerr)
		}
	}
	if err != nil {
		slog.Info("stop request rejected", "job_id", jobID, "error", err)
		return err
	}
	slog.Info("stop requested", "job_id", jobID)
	return nil
}

func (m *Monitor) closeSubscribers() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ch := range m.subs {
		close(ch)
		delete(m.subs, ch)
	}
}
