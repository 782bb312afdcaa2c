package findings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/CosmoTheDev/scanboard/internal/api"
	"github.com/CosmoTheDev/scanboard/internal/journal"
	"github.com/CosmoTheDev/scanboard/internal/metrics"
	"github.com/CosmoTheDev/scanboard/models"
)

// Backend is the slice of the REST API the store depends on.
type Backend interface {
	ListFindings(ctx context.Context) ([]models.Finding, error)
	GetFinding(ctx context.Context, id int64) (*models.Finding, error)
	UpdateFindingState(ctx context.Context, id int64, state models.FindingState) (*models.Finding, error)
	DeleteFinding(ctx context.Context, id int64) error
}

// Store is the locally cached view of the backend's findings.
//
// Writes are pessimistic: nothing changes locally until the backend confirms.
// Every request touching an id takes a sequence number; a response is applied
// only when its sequence is newer than the last one applied for that id, so
// a slow stale response can never overwrite a newer authoritative one.
// Confirmed deletes tombstone the id and win over anything still in flight.
type Store struct {
	backend Backend
	journal journal.Recorder

	mu         sync.Mutex
	items      []models.Finding
	query      string
	severities SeveritySet
	loaded     bool

	seq       uint64
	loadedGen uint64
	applied   map[int64]uint64
	pending map[int64]int
	deleted map[int64]struct{}
}

// NewStore creates an empty store showing every severity.
func NewStore(backend Backend) *Store {
	return &Store{
		backend:    backend,
		severities: AllSeverities(),
		applied:    make(map[int64]uint64),
		pending:    make(map[int64]int),
		deleted:    make(map[int64]struct{}),
	}
}

// WithJournal records confirmed and failed mutations to j.
func (s *Store) WithJournal(j journal.Recorder) *Store {
	s.journal = j
	return s
}

// Load fetches the whole collection and replaces the cache. A load that
// resolves after a newer load is discarded. Records updated by a mutation
// issued after this load started are kept.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	s.seq++
	gen := s.seq
	s.mu.Unlock()

	list, err := s.backend.ListFindings(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen <= s.loadedGen {
		slog.Debug("stale findings load discarded", "gen", gen, "loaded", s.loadedGen)
		return nil
	}
	s.loadedGen = gen
	current := make(map[int64]models.Finding, len(s.items))
	for _, f := range s.items {
		current[f.ID] = f
	}
	next := make([]models.Finding, 0, len(list))
	for _, f := range list {
		if _, gone := s.deleted[f.ID]; gone {
			continue
		}
		if s.applied[f.ID] > gen {
			if local, ok := current[f.ID]; ok {
				next = append(next, local)
				continue
			}
		} else {
			s.applied[f.ID] = gen
		}
		next = append(next, f)
	}
	s.items = next
	s.loaded = true
	slog.Debug("findings loaded", "count", len(next))
	return nil
}

// Loaded reports whether at least one Load succeeded.
func (s *Store) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// All returns a copy of the unfiltered collection.
func (s *Store) All() []models.Finding {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Finding(nil), s.items...)
}

// Visible returns the collection narrowed by the current query and severities.
func (s *Store) Visible() []models.Finding {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Filter(s.items, s.query, s.severities)
}

// Get returns the cached finding with id.
func (s *Store) Get(id int64) (models.Finding, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.items[i], true
	}
	return models.Finding{}, false
}

// Query returns the active search text.
func (s *Store) Query() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query
}

func (s *Store) SetQuery(q string) {
	s.mu.Lock()
	s.query = q
	s.mu.Unlock()
}

// Severities returns a copy of the active severity set.
func (s *Store) Severities() SeveritySet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.severities.Clone()
}

func (s *Store) SetSeverities(set SeveritySet) {
	s.mu.Lock()
	s.severities = set.Clone()
	s.mu.Unlock()
}

func (s *Store) ToggleSeverity(level models.SeverityLevel) {
	s.mu.Lock()
	s.severities = s.severities.Toggle(level)
	s.mu.Unlock()
}

// SeverityCounts counts the unfiltered collection per bucket.
func (s *Store) SeverityCounts() map[models.SeverityLevel]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[models.SeverityLevel]int, len(models.Severities))
	for _, f := range s.items {
		out[f.SeverityLevel()]++
	}
	return out
}

// Pending reports whether a mutation for id is in flight.
func (s *Store) Pending(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[id] > 0
}

// Refresh re-fetches one finding. A finding the backend no longer knows is
// dropped from the cache and ErrNotFound is returned.
func (s *Store) Refresh(ctx context.Context, id int64) (*models.Finding, error) {
	s.mu.Lock()
	gen := s.beginLocked(id)
	s.mu.Unlock()

	f, err := s.backend.GetFinding(ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.endLocked(id)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			s.removeLocked(id)
		}
		return nil, err
	}
	if !s.applyLocked(id, gen, *f) {
		if cur, ok := s.getLocked(id); ok {
			return &cur, nil
		}
	}
	return f, nil
}

// SetState asks the backend to move finding id to target. Only triage targets
// are accepted. On success the cached record is replaced by the backend's
// response; on failure the cache is untouched.
func (s *Store) SetState(ctx context.Context, id int64, target models.FindingState) (*models.Finding, error) {
	if !IsTriageTarget(target) {
		return nil, fmt.Errorf("%w: %s", ErrNotTriageTarget, target)
	}

	s.mu.Lock()
	if _, gone := s.deleted[id]; gone {
		s.mu.Unlock()
		return nil, fmt.Errorf("finding %d: %w", id, api.ErrNotFound)
	}
	gen := s.beginLocked(id)
	s.mu.Unlock()

	f, err := s.backend.UpdateFindingState(ctx, id, target)

	s.mu.Lock()
	s.endLocked(id)
	applied := false
	if err == nil {
		if f.ID == 0 {
			f.ID = id
		}
		applied = s.applyLocked(id, gen, *f)
	}
	s.mu.Unlock()

	metrics.Mutations.WithLabelValues("triage", metrics.Outcome(err)).Inc()
	s.record(ctx, journal.Action{Kind: journal.KindTriage, FindingID: id, State: string(target)}, err)
	if err != nil {
		slog.Warn("finding state change failed", "id", id, "state", target, "error", err)
		return nil, err
	}
	if !applied {
		metrics.StaleResponses.Inc()
		slog.Debug("discarded stale finding response", "id", id, "seq", gen)
	}
	return f, nil
}

// Delete removes finding id after the backend confirms. Until then the
// entry stays visible and Pending(id) is true. Repeated or concurrent deletes
// of the same id remove it once; late confirmations are no-ops.
func (s *Store) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	if _, gone := s.deleted[id]; gone {
		s.mu.Unlock()
		return nil
	}
	s.beginLocked(id)
	s.mu.Unlock()

	err := s.backend.DeleteFinding(ctx, id)

	s.mu.Lock()
	s.endLocked(id)
	_, alreadyGone := s.deleted[id]
	switch {
	case err == nil:
		s.removeLocked(id)
	case alreadyGone:
		// A concurrent delete for the same id was confirmed first.
		err = nil
	case errors.Is(err, api.ErrNotFound):
		s.removeLocked(id)
	}
	s.mu.Unlock()

	if alreadyGone {
		return nil
	}
	metrics.Mutations.WithLabelValues("delete", metrics.Outcome(err)).Inc()
	s.record(ctx, journal.Action{Kind: journal.KindDelete, FindingID: id}, err)
	if err != nil {
		slog.Warn("finding delete failed", "id", id, "error", err)
	}
	return err
}

func (s *Store) record(ctx context.Context, a journal.Action, err error) {
	if s.journal == nil {
		return
	}
	if err != nil {
		a.Outcome = journal.OutcomeError
		a.Error = api.UserMessage(err)
	} else {
		a.Outcome = journal.OutcomeOK
	}
	if jerr := s.journal.Record(context.WithoutCancel(ctx), a); jerr != nil {
		slog.Warn("journal write failed", "kind", a.Kind, "error", jerr)
	}
}

func (s *Store) beginLocked(id int64) uint64 {
	s.seq++
	s.pending[id]++
	return s.seq
}

func (s *Store) endLocked(id int64) {
	if s.pending[id] <= 1 {
		delete(s.pending, id)
		return
	}
	s.pending[id]--
}

// applyLocked stores f for id unless id is tombstoned or a newer response
// was already applied.
func (s *Store) applyLocked(id int64, gen uint64, f models.Finding) bool {
	if _, gone := s.deleted[id]; gone {
		return false
	}
	if gen <= s.applied[id] {
		return false
	}
	s.applied[id] = gen
	if i := s.indexLocked(id); i >= 0 {
		s.items[i] = f
	} else {
		s.items = append(s.items, f)
	}
	return true
}

func (s *Store) removeLocked(id int64) {
	s.deleted[id] = struct{}{}
	if i := s.indexLocked(id); i >= 0 {
		s.items = append(s.items[:i], s.items[i+1:]...)
	}
}

func (s *Store) getLocked(id int64) (models.Finding, bool) {
	if i := s.indexLocked(id); i >= 0 {
		return s.items[i], true
	}
	return models.Finding{}, false
}

func (s *Store) indexLocked(id int64) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}
