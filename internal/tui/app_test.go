package tui

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/CosmoTheDev/scanboard/internal/api"
	"github.com/CosmoTheDev/scanboard/internal/config"
	"github.com/CosmoTheDev/scanboard/models"
	"github.com/charmbracelet/bubbletea"
)

type countingSource struct{ polls atomic.Int32 }

func (c *countingSource) Stats(ctx context.Context) (*models.Stats, error) {
	c.polls.Add(1)
	return &models.Stats{RecentScans: []models.ScanJob{{ID: 1, Status: models.JobCompleted}}}, nil
}

func (c *countingSource) StopScan(ctx context.Context, id int64) error { return nil }

func TestDashboardUnmountStopsPolling(t *testing.T) {
	src := &countingSource{}
	d := NewDashboardModel(src, 5*time.Millisecond, nil)
	d, cmd := d.Mount()
	if cmd == nil {
		t.Fatal("Mount() returned no command")
	}
	msg := cmd()
	snap, ok := msg.(snapshotMsg)
	if !ok {
		t.Fatalf("first message = %T, want snapshotMsg", msg)
	}
	d, _ = d.Update(snap)
	if d.snap.Stats == nil {
		t.Fatal("snapshot not applied")
	}

	d = d.Unmount()
	time.Sleep(20 * time.Millisecond)
	before := src.polls.Load()
	time.Sleep(30 * time.Millisecond)
	if after := src.polls.Load(); after != before {
		t.Fatalf("polls after unmount: %d -> %d", before, after)
	}

	// A snapshot from the old mount is ignored.
	stale := snapshotMsg{gen: snap.gen, snap: snap.snap}
	d.snap.Stats = nil
	d, _ = d.Update(stale)
	if d.snap.Stats != nil {
		t.Fatal("stale snapshot applied after unmount")
	}
}

func TestDashboardStopRefusedForFinishedJob(t *testing.T) {
	d := NewDashboardModel(&countingSource{}, time.Hour, nil)
	d, _ = d.Mount()
	defer d.Unmount()
	d.snap.Stats = &models.Stats{RecentScans: []models.ScanJob{{ID: 1, Status: models.JobCompleted}}}

	d, cmd := d.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	if cmd != nil {
		t.Fatal("stop command issued for a completed job")
	}
	if !d.failed || d.message == "" {
		t.Fatalf("expected refusal message, got %q", d.message)
	}
}

func TestSearchFocusCapturesTabKeys(t *testing.T) {
	client := api.NewWithOptions(api.Options{URL: "http://127.0.0.1:1"})
	cfg := &config.Config{Monitor: config.MonitorConfig{PollInterval: time.Hour}}
	a := NewApp(cfg, client, nil)
	a.activeTab = TabFindings

	a.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("/")})
	if !a.capturing() {
		t.Fatal("search field should capture keys after /")
	}
	a.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("1")})
	if a.activeTab != TabFindings {
		t.Fatalf("typing a digit switched tab to %d", a.activeTab)
	}
	if got := a.findings.search.Value(); got != "1" {
		t.Fatalf("search value = %q, want %q", got, "1")
	}
	a.Update(tea.KeyMsg{Type: tea.KeyEsc})
	a.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("3")})
	if a.activeTab != TabLaunch {
		t.Fatalf("activeTab = %d, want launch", a.activeTab)
	}
}

func TestFailureTextOffersRetryOnlyWhenRetryable(t *testing.T) {
	transport := &api.TransportError{Op: "list_findings", Err: errors.New("connection refused")}
	if got := failureText(transport, "r"); !strings.HasSuffix(got, "(press r to retry)") {
		t.Fatalf("failureText(transport) = %q, want retry hint", got)
	}
	server := &api.APIError{Op: "stop_scan", StatusCode: 502}
	if got := failureText(server, "s"); !strings.Contains(got, "press s to retry") {
		t.Fatalf("failureText(5xx) = %q, want retry hint", got)
	}
	rejected := &api.APIError{Op: "stop_scan", StatusCode: 400, Message: "Scan is not running"}
	if got := failureText(rejected, "s"); got != "Scan is not running" {
		t.Fatalf("failureText(4xx) = %q", got)
	}
}

func TestTruncateCutsOnRuneBoundaries(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"scan.example.com", 8, "…ple.com"},
		{"bücher.例え.jp", 6, "…例え.jp"},
		{"日本語", 3, "日本語"},
		{"日本語", 1, "…"},
	}
	for _, tt := range tests {
		got := truncate(tt.in, tt.max)
		if got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("truncate(%q, %d) produced invalid UTF-8", tt.in, tt.max)
		}
	}
}
