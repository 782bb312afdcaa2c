package findings

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

type reply struct {
	f    *models.Finding
	list []models.Finding
	err  error
}

type call struct {
	op    string
	id    int64
	state models.FindingState
	reply chan reply
}

// gatedBackend hands every mutation to the test, which decides when and in
// which order each one resolves.
type gatedBackend struct {
	list      []models.Finding
	gateLists bool
	calls     chan *call
}

func newGatedBackend(list ...models.Finding) *gatedBackend {
	return &gatedBackend{list: list, calls: make(chan *call, 8)}
}

func (b *gatedBackend) ListFindings(ctx context.Context) ([]models.Finding, error) {
	if !b.gateLists {
		return append([]models.Finding(nil), b.list...), nil
	}
	c := &call{op: "list", reply: make(chan reply, 1)}
	b.calls <- c
	r := <-c.reply
	return r.list, r.err
}

func (b *gatedBackend) GetFinding(ctx context.Context, id int64) (*models.Finding, error) {
	return b.wait(&call{op: "get", id: id})
}

func (b *gatedBackend) UpdateFindingState(ctx context.Context, id int64, state models.FindingState) (*models.Finding, error) {
	return b.wait(&call{op: "update", id: id, state: state})
}

func (b *gatedBackend) DeleteFinding(ctx context.Context, id int64) error {
	_, err := b.wait(&call{op: "delete", id: id})
	return err
}

func (b *gatedBackend) wait(c *call) (*models.Finding, error) {
	c.reply = make(chan reply, 1)
	b.calls <- c
	r := <-c.reply
	return r.f, r.err
}

func (b *gatedBackend) next(t *testing.T) *call {
	t.Helper()
	select {
	case c := <-b.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("expected a backend call")
		return nil
	}
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

func (m *memJournal) all() []journal.Action {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]journal.Action(nil), m.actions...)
}

type result struct {
	f   *models.Finding
	err error
}

func goSetState(s *Store, id int64, st models.FindingState) <-chan result {
	out := make(chan result, 1)
	go func() {
		f, err := s.SetState(context.Background(), id, st)
		out <- result{f, err}
	}()
	return out
}

func goDelete(s *Store, id int64) <-chan error {
	out := make(chan error, 1)
	go func() { out <- s.Delete(context.Background(), id) }()
	return out
}

func await[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("operation did not complete")
		var zero T
		return zero
	}
}

func loadedStore(t *testing.T, b *gatedBackend) *Store {
	t.Helper()
	s := NewStore(b)
	require.NoError(t, s.Load(context.Background()))
	return s
}

func open(id int64) models.Finding {
	return models.Finding{ID: id, Name: "finding", Severity: "high", State: models.StateOpen, Host: "app.example.com"}
}

func TestSetStateRejectsNonTriageTargetWithoutCall(t *testing.T) {
	b := newGatedBackend(open(1))
	s := loadedStore(t, b)

	_, err := s.SetState(context.Background(), 1, models.StateOpen)
	require.ErrorIs(t, err, ErrNotTriageTarget)
	assert.Empty(t, b.calls)
	f, _ := s.Get(1)
	assert.Equal(t, models.StateOpen, f.State)
}

func TestSetStateReplacesWholeRecordWithServerResponse(t *testing.T) {
	b := newGatedBackend(open(42))
	s := loadedStore(t, b)

	done := goSetState(s, 42, models.StateFalsePositive)
	c := b.next(t)
	assert.Equal(t, "update", c.op)
	assert.Equal(t, models.StateFalsePositive, c.state)

	// Nothing changes locally before the backend answers.
	assert.True(t, s.Pending(42))
	f, _ := s.Get(42)
	assert.Equal(t, models.StateOpen, f.State)

	server := models.Finding{ID: 42, Name: "renamed by server", Severity: "critical", State: models.StateFalsePositive}
	c.reply <- reply{f: &server}
	r := await(t, done)
	require.NoError(t, r.err)

	got, ok := s.Get(42)
	require.True(t, ok)
	assert.Equal(t, server, got)
	assert.Empty(t, got.Host, "local fields are not merged into the response")
	assert.False(t, s.Pending(42))
}

func TestSetStateFailureLeavesRecordUntouched(t *testing.T) {
	b := newGatedBackend(open(3))
	j := &memJournal{}
	s := loadedStore(t, b).WithJournal(j)
	before, _ := s.Get(3)

	done := goSetState(s, 3, models.StateFixed)
	b.next(t).reply <- reply{err: &api.APIError{Op: "update_finding_state", StatusCode: 500, Message: "Action failed"}}
	r := await(t, done)
	require.Error(t, r.err)

	after, _ := s.Get(3)
	assert.Equal(t, before, after)

	actions := j.all()
	require.Len(t, actions, 1)
	assert.Equal(t, journal.KindTriage, actions[0].Kind)
	assert.Equal(t, journal.OutcomeError, actions[0].Outcome)
	assert.Equal(t, "FIXED", actions[0].State)
}

func TestStaleStateResponseIsDiscarded(t *testing.T) {
	b := newGatedBackend(open(5))
	s := loadedStore(t, b)

	first := goSetState(s, 5, models.StateFixed)
	c1 := b.next(t)
	second := goSetState(s, 5, models.StateAcceptedRisk)
	c2 := b.next(t)

	c2.reply <- reply{f: &models.Finding{ID: 5, State: models.StateAcceptedRisk}}
	require.NoError(t, await(t, second).err)

	c1.reply <- reply{f: &models.Finding{ID: 5, State: models.StateFixed}}
	require.NoError(t, await(t, first).err)

	got, _ := s.Get(5)
	assert.Equal(t, models.StateAcceptedRisk, got.State, "the later request wins")
}

func TestStaleLoadDoesNotReplaceNewerCollection(t *testing.T) {
	b := newGatedBackend(open(1), open(2))
	s := loadedStore(t, b)
	b.gateLists = true

	load := func() <-chan error {
		out := make(chan error, 1)
		go func() { out <- s.Load(context.Background()) }()
		return out
	}
	older := load()
	c1 := b.next(t)
	newer := load()
	c2 := b.next(t)

	c2.reply <- reply{list: []models.Finding{open(1), open(3)}}
	require.NoError(t, await(t, newer))
	assert.Equal(t, []int64{1, 3}, ids(s.All()))

	c1.reply <- reply{list: []models.Finding{open(1), open(2)}}
	require.NoError(t, await(t, older))
	assert.Equal(t, []int64{1, 3}, ids(s.All()), "older load must not win")
}

func TestDuplicateDeleteRemovesOnce(t *testing.T) {
	b := newGatedBackend(open(6), open(7), open(8))
	s := loadedStore(t, b)

	d1 := goDelete(s, 7)
	c1 := b.next(t)
	d2 := goDelete(s, 7)
	c2 := b.next(t)

	_, still := s.Get(7)
	assert.True(t, still, "entry stays until the backend confirms")

	// Second request resolves first; the first then races in with a 404.
	c2.reply <- reply{}
	require.NoError(t, await(t, d2))
	c1.reply <- reply{err: &api.APIError{Op: "delete_finding", StatusCode: 404, Message: "Finding not found"}}
	require.NoError(t, await(t, d1))

	assert.Equal(t, []int64{6, 8}, ids(s.All()))
	assert.False(t, s.Pending(7))

	// A third delete of the same id is a no-op.
	require.NoError(t, s.Delete(context.Background(), 7))
	assert.Empty(t, b.calls)
}

func TestDuplicateDeleteLateSuccess(t *testing.T) {
	b := newGatedBackend(open(6), open(7), open(8))
	s := loadedStore(t, b)

	d1 := goDelete(s, 7)
	c1 := b.next(t)
	d2 := goDelete(s, 7)
	c2 := b.next(t)

	c2.reply <- reply{}
	require.NoError(t, await(t, d2))
	assert.Equal(t, []int64{6, 8}, ids(s.All()))

	c1.reply <- reply{}
	require.NoError(t, await(t, d1))
	assert.Equal(t, []int64{6, 8}, ids(s.All()), "entry removed exactly once")
	assert.False(t, s.Pending(7))
}

func TestTriagedFindingStaysVisibleWithNewLabel(t *testing.T) {
	f := open(42)
	f.Severity = "critical"
	b := newGatedBackend(f, open(43))
	s := loadedStore(t, b)
	s.SetSeverities(NewSeveritySet(models.SeverityCritical))
	require.Equal(t, []int64{42}, ids(s.Visible()))

	done := goSetState(s, 42, models.StateFalsePositive)
	server := f
	server.State = models.StateFalsePositive
	b.next(t).reply <- reply{f: &server}
	require.NoError(t, await(t, done).err)

	assert.Equal(t, []int64{42}, ids(s.Visible()))
	got, _ := s.Get(42)
	assert.Equal(t, "FALSE POSITIVE", got.State.Label())
}

func TestLateStateResponseAfterDeleteIsNoop(t *testing.T) {
	b := newGatedBackend(open(9))
	s := loadedStore(t, b)

	upd := goSetState(s, 9, models.StateFixed)
	cu := b.next(t)
	del := goDelete(s, 9)
	cd := b.next(t)

	cd.reply <- reply{}
	require.NoError(t, await(t, del))
	cu.reply <- reply{f: &models.Finding{ID: 9, State: models.StateFixed}}
	require.NoError(t, await(t, upd).err)

	_, ok := s.Get(9)
	assert.False(t, ok, "deleted finding must not be resurrected")
	assert.Empty(t, s.All())

	_, err := s.SetState(context.Background(), 9, models.StateFixed)
	assert.ErrorIs(t, err, api.ErrNotFound)
}

func TestDeleteFailureKeepsEntry(t *testing.T) {
	b := newGatedBackend(open(10))
	s := loadedStore(t, b)

	d := goDelete(s, 10)
	b.next(t).reply <- reply{err: &api.TransportError{Op: "delete_finding", Err: errors.New("connection refused")}}
	err := await(t, d)
	require.Error(t, err)
	assert.Equal(t, "Failed to connect to backend. Is it running?", api.UserMessage(err))

	_, ok := s.Get(10)
	assert.True(t, ok)
}

func TestDeleteNotFoundDropsLocalEntry(t *testing.T) {
	b := newGatedBackend(open(11))
	s := loadedStore(t, b)

	d := goDelete(s, 11)
	b.next(t).reply <- reply{err: &api.APIError{Op: "delete_finding", StatusCode: 404, Message: "Finding not found"}}
	assert.ErrorIs(t, await(t, d), api.ErrNotFound)
	_, ok := s.Get(11)
	assert.False(t, ok)
}

func TestLoadSkipsTombstonesAndKeepsNewerMutations(t *testing.T) {
	b := newGatedBackend(open(1), open(2))
	s := loadedStore(t, b)

	d := goDelete(s, 1)
	b.next(t).reply <- reply{}
	require.NoError(t, await(t, d))

	// Backend list still carries the deleted id (e.g. cached response).
	require.NoError(t, s.Load(context.Background()))
	assert.Equal(t, []int64{2}, ids(s.All()))

	up := goSetState(s, 2, models.StateFixed)
	b.next(t).reply <- reply{f: &models.Finding{ID: 2, State: models.StateFixed}}
	require.NoError(t, await(t, up).err)
	got, _ := s.Get(2)
	assert.Equal(t, models.StateFixed, got.State)
}

func TestVisibleAppliesFilter(t *testing.T) {
	b := newGatedBackend(sample()...)
	s := loadedStore(t, b)

	s.SetQuery("example")
	s.SetSeverities(NewSeveritySet(models.SeverityHigh))
	assert.Equal(t, []int64{1}, ids(s.Visible()))

	s.ToggleSeverity(models.SeverityCritical)
	assert.Equal(t, []int64{1, 2}, ids(s.Visible()))

	s.SetSeverities(SeveritySet{})
	assert.Empty(t, s.Visible())
	assert.Len(t, s.All(), 5)

	counts := s.SeverityCounts()
	assert.Equal(t, 2, counts[models.SeverityUnknown])
	assert.Equal(t, 1, counts[models.SeverityCritical])
}

func TestRefreshDropsVanishedFinding(t *testing.T) {
	b := newGatedBackend(open(12))
	s := loadedStore(t, b)

	done := make(chan error, 1)
	go func() {
		_, err := s.Refresh(context.Background(), 12)
		done <- err
	}()
	b.next(t).reply <- reply{err: &api.APIError{Op: "get_finding", StatusCode: 404, Message: "Finding not found"}}
	assert.ErrorIs(t, await(t, done), api.ErrNotFound)
	assert.Empty(t, s.All())
}
