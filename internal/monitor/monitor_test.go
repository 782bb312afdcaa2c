package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/CosmoTheDev/scanboard/internal/api"
	"github.com/CosmoTheDev/scanboard/internal/journal"
	"github.com/CosmoTheDev/scanboard/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu      sync.Mutex
	stats   *models.Stats
	err     error
	polls   int
	stops   []int64
	stopErr error
}

func (f *fakeSource) Stats(ctx context.Context) (*models.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.err != nil {
		return nil, f.err
	}
	cp := *f.stats
	cp.RecentScans = append([]models.ScanJob(nil), f.stats.RecentScans...)
	return &cp, nil
}

func (f *fakeSource) StopScan(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops = append(f.stops, id)
	return f.stopErr
}

func (f *fakeSource) set(s *models.Stats, err error) {
	f.mu.Lock()
	f.stats, f.err = s, err
	f.mu.Unlock()
}

func (f *fakeSource) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

type memJournal struct {
	mu      sync.Mutex
	actions []journal.Action
}

func (m *memJournal) Record(ctx context.Context, a journal.Action) error {
	m.mu.Lock()
	m.actions = append(m.actions, a)
	m.mu.Unlock()
	return nil
}

func statsWith(jobs ...models.ScanJob) *models.Stats {
	return &models.Stats{ActiveScans: int64(len(jobs)), RecentScans: jobs}
}

func TestPollFullyReplacesSnapshot(t *testing.T) {
	src := &fakeSource{}
	src.set(&models.Stats{
		TotalVulnerabilities: 10,
		VulnerabilityChange:  "+100%",
		RecentScans:          []models.ScanJob{{ID: 1, Target: "a.example.com", Status: models.JobRunning}},
	}, nil)
	m := New(src, time.Hour)
	ctx := context.Background()

	m.Poll(ctx)
	require.NotNil(t, m.Snapshot().Stats)
	assert.Equal(t, "+100%", m.Snapshot().Stats.VulnerabilityChange)

	src.set(&models.Stats{RecentScans: []models.ScanJob{{ID: 1, Target: "a.example.com", Status: models.JobCompleted}}}, nil)
	m.Poll(ctx)

	snap := m.Snapshot()
	assert.EqualValues(t, 0, snap.Stats.TotalVulnerabilities)
	assert.Empty(t, snap.Stats.VulnerabilityChange, "fields absent from the new snapshot must not survive")
	job, ok := snap.Stats.Job(1)
	require.True(t, ok)
	assert.Equal(t, models.JobCompleted, job.Status)
	assert.EqualValues(t, 2, snap.Seq)
}

func TestFailedPollKeepsLastSnapshot(t *testing.T) {
	src := &fakeSource{}
	src.set(statsWith(models.ScanJob{ID: 3, Status: models.JobRunning}), nil)
	m := New(src, time.Hour)
	m.Poll(context.Background())
	first := m.Snapshot()

	src.set(nil, &api.TransportError{Op: "stats", Err: errors.New("connection refused")})
	m.Poll(context.Background())

	snap := m.Snapshot()
	require.Error(t, snap.Err)
	assert.Same(t, first.Stats, snap.Stats)
	assert.Equal(t, first.FetchedAt, snap.FetchedAt)
}

func TestStopNonRunningJobIsRefusedWithoutNetworkCall(t *testing.T) {
	for _, status := range []models.JobStatus{models.JobQueued, models.JobCompleted, models.JobStopped, models.JobFailed} {
		t.Run(string(status), func(t *testing.T) {
			src := &fakeSource{}
			src.set(statsWith(models.ScanJob{ID: 5, Status: status}), nil)
			m := New(src, time.Hour)
			m.Poll(context.Background())
			before := m.Snapshot()

			err := m.Stop(context.Background(), 5)
			require.ErrorIs(t, err, ErrNotStoppable)
			assert.Empty(t, src.stops)
			assert.Equal(t, before, m.Snapshot())
		})
	}
}

func TestStopDoesNotFlipStatusLocally(t *testing.T) {
	src := &fakeSource{}
	src.set(statsWith(models.ScanJob{ID: 8, Status: models.JobRunning}), nil)
	j := &memJournal{}
	m := New(src, time.Hour).WithJournal(j)
	m.Poll(context.Background())

	require.NoError(t, m.Stop(context.Background(), 8))
	assert.Equal(t, []int64{8}, src.stops)

	job, _ := m.Snapshot().Stats.Job(8)
	assert.Equal(t, models.JobRunning, job.Status, "status changes only on the next poll")

	src.set(statsWith(models.ScanJob{ID: 8, Status: models.JobStopped}), nil)
	m.Poll(context.Background())
	job, _ = m.Snapshot().Stats.Job(8)
	assert.Equal(t, models.JobStopped, job.Status)

	require.Len(t, j.actions, 1)
	assert.Equal(t, journal.KindStop, j.actions[0].Kind)
	assert.Equal(t, journal.OutcomeOK, j.actions[0].Outcome)
}

func TestStopRejectionLeavesSnapshotUntouched(t *testing.T) {
	src := &fakeSource{stopErr: &api.APIError{Op: "stop_scan", StatusCode: 400, Message: "scan already finished"}}
	src.set(statsWith(models.ScanJob{ID: 9, Status: models.JobRunning}), nil)
	m := New(src, time.Hour)
	m.Poll(context.Background())
	before := m.Snapshot()

	err := m.Stop(context.Background(), 9)
	require.Error(t, err)
	assert.Equal(t, "scan already finished", api.UserMessage(err))
	assert.Equal(t, before, m.Snapshot())
}

func TestRunPublishesAndStopsOnCancel(t *testing.T) {
	src := &fakeSource{}
	src.set(statsWith(models.ScanJob{ID: 1, Status: models.JobRunning}), nil)
	m := New(src, 10*time.Millisecond)
	updates := m.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	select {
	case snap := <-updates:
		require.NotNil(t, snap.Stats)
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot published")
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	for range updates {
		// drain until closed
	}
	polls := src.pollCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, polls, src.pollCount(), "no polls after teardown")
}

func TestPollAfterCancelIsDiscarded(t *testing.T) {
	src := &fakeSource{}
	src.set(statsWith(), nil)
	m := New(src, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m.Poll(ctx)
	assert.Nil(t, m.Snapshot().Stats)
	assert.Zero(t, m.Snapshot().Seq)
}
