// Package schedule launches scans on cron expressions taken from the config
// file's "schedules" list.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/CosmoTheDev/scanboard/internal/config"
	"github.com/CosmoTheDev/scanboard/internal/journal"
	"github.com/CosmoTheDev/scanboard/internal/launcher"
	"github.com/CosmoTheDev/scanboard/models"
	"github.com/robfig/cron/v3"
)

// Entry describes a registered schedule.
type Entry struct {
	Name    string
	Expr    string
	Target  string
	NextRun time.Time
	LastRun time.Time
}

// Scheduler registers schedules with robfig/cron. When one fires it submits
// a scan through a fresh launcher.
type Scheduler struct {
	backend launcher.Backend
	journal journal.Recorder
	cron    *cron.Cron

	mu      sync.Mutex
	entries map[string]cron.EntryID
	specs   map[string]config.ScheduleConfig
}

// New creates a stopped Scheduler.
func New(backend launcher.Backend, j journal.Recorder) *Scheduler {
	return &Scheduler{
		backend: backend,
		journal: j,
		cron:    cron.New(),
		entries: make(map[string]cron.EntryID),
		specs:   make(map[string]config.ScheduleConfig),
	}
}

// Validate checks that expr is parseable by robfig/cron.
func Validate(expr string) error {
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("invalid schedule expression %q: %w", expr, err)
	}
	return nil
}

// Load registers every enabled schedule. Invalid entries are skipped with a
// warning. It returns the number registered.
func (s *Scheduler) Load(schedules []config.ScheduleConfig) int {
	n := 0
	for i, sc := range schedules {
		if !sc.Enabled {
			continue
		}
		if sc.Name == "" {
			sc.Name = fmt.Sprintf("schedule-%d", i+1)
		}
		if err := s.Add(sc); err != nil {
			slog.Warn("scheduler: skipping schedule", "name", sc.Name, "expr", sc.Expr, "error", err)
			continue
		}
		n++
	}
	return n
}

// Add validates and registers one schedule. Names must be unique.
func (s *Scheduler) Add(sc config.ScheduleConfig) error {
	if err := Validate(sc.Expr); err != nil {
		return err
	}
	if sc.Target == "" {
		return fmt.Errorf("schedule %q: %w", sc.Name, launcher.ErrTargetRequired)
	}
	if _, ok := models.ParseScanType(sc.Type); !ok {
		return fmt.Errorf("schedule %q: unknown scan type %q", sc.Name, sc.Type)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.entries[sc.Name]; dup {
		return fmt.Errorf("schedule %q already registered", sc.Name)
	}
	id, err := s.cron.AddFunc(sc.Expr, func() {
		if err := s.Fire(context.Background(), sc); err != nil {
			slog.Warn("scheduler: launching scheduled scan failed", "name", sc.Name, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule expression %q: %w", sc.Expr, err)
	}
	s.entries[sc.Name] = id
	s.specs[sc.Name] = sc
	return nil
}

// Fire launches the scan described by sc immediately.
func (s *Scheduler) Fire(ctx context.Context, sc config.ScheduleConfig) error {
	typ, _ := models.ParseScanType(sc.Type)
	l := launcher.New(s.backend)
	if s.journal != nil {
		l.WithJournal(s.journal)
	}
	l.Target = sc.Target
	l.Type = typ
	l.Templates = sc.Templates
	if err := l.Submit(ctx); err != nil {
		return err
	}
	slog.Info("scheduler: scan launched", "name", sc.Name, "target", sc.Target, "type", typ)
	return nil
}

// Entries lists registered schedules sorted by name.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.entries))
	for name, id := range s.entries {
		e := s.cron.Entry(id)
		sc := s.specs[name]
		out = append(out, Entry{Name: name, Expr: sc.Expr, Target: sc.Target, NextRun: e.Next, LastRun: e.Prev})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Start begins firing registered schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("scheduler started", "schedules", len(s.entries))
}

// Stop halts the cron runner and waits for running launches to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
