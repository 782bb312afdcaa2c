// Package launcher holds the scan launch form state and submits scan requests.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/CosmoTheDev/scanboard/internal/api"
	"github.com/CosmoTheDev/scanboard/internal/journal"
	"github.com/CosmoTheDev/scanboard/internal/metrics"
	"github.com/CosmoTheDev/scanboard/models"
)

// ErrTargetRequired is returned when Submit is called with an empty target.
var ErrTargetRequired = errors.New("target is required")

// Backend launches scans.
type Backend interface {
	LaunchScan(ctx context.Context, req models.ScanRequest) (*api.LaunchResponse, error)
}

// Launcher is the editable launch form. Fields are kept on failure so the
// operator can retry, and cleared on success.
type Launcher struct {
	Target    string
	Type      models.ScanType
	Templates string

	// Confirmation is set after a successful submit.
	Confirmation string
	// Err is the operator-facing message of the last failed submit.
	Err string

	backend Backend
	journal journal.Recorder
}

// New returns an empty launcher with the fast profile selected.
func New(backend Backend) *Launcher {
	return &Launcher{Type: models.ScanFast, backend: backend}
}

// WithJournal records launches to j.
func (l *Launcher) WithJournal(j journal.Recorder) *Launcher {
	l.journal = j
	return l
}

// CanSubmit reports whether the submit control should be enabled.
func (l *Launcher) CanSubmit() bool {
	return strings.TrimSpace(l.Target) != ""
}

// Prefill selects template for a custom scan, as when launching from the
// template browser.
func (l *Launcher) Prefill(template string) {
	l.Templates = strings.TrimSpace(template)
	l.Type = models.ScanCustom
	l.Confirmation = ""
	l.Err = ""
}

// Request builds the request the form currently describes.
func (l *Launcher) Request() models.ScanRequest {
	typ := l.Type
	if typ == "" {
		typ = models.ScanFast
	}
	return models.ScanRequest{
		Target:    strings.TrimSpace(l.Target),
		Type:      typ,
		Templates: NormalizeTemplates(l.Templates),
	}
}

// Submit sends the current form. An empty target is rejected before any
// network call.
func (l *Launcher) Submit(ctx context.Context) error {
	l.Confirmation = ""
	l.Err = ""
	if !l.CanSubmit() {
		l.Err = "Target is required"
		return ErrTargetRequired
	}
	req := l.Request()

	_, err := l.backend.LaunchScan(ctx, req)
	metrics.Mutations.WithLabelValues("launch", metrics.Outcome(err)).Inc()
	l.record(ctx, req, err)
	if err != nil {
		l.Err = api.UserMessage(err)
		slog.Warn("scan launch failed", "target", req.Target, "type", req.Type, "error", err)
		return err
	}

	slog.Info("scan launched", "target", req.Target, "type", req.Type, "templates", req.Templates)
	l.Confirmation = fmt.Sprintf("Scan started for %s", req.Target)
	l.Target = ""
	l.Templates = ""
	return nil
}

func (l *Launcher) record(ctx context.Context, req models.ScanRequest, err error) {
	if l.journal == nil {
		return
	}
	a := journal.Action{Kind: journal.KindLaunch, Target: req.Target, State: string(req.Type), Outcome: journal.OutcomeOK}
	if err != nil {
		a.Outcome = journal.OutcomeError
		a.Error = api.UserMessage(err)
	}
	if jerr := l.journal.Record(context.WithoutCancel(ctx), a); jerr != nil {
		slog.Warn("journal write failed", "kind", a.Kind, "error", jerr)
	}
}

// NormalizeTemplates trims each comma-separated entry and drops empty ones.
func NormalizeTemplates(raw string) string {
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ",")
}
