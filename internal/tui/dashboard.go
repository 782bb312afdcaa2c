package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/CosmoTheDev/scanboard/internal/api"
	"github.com/CosmoTheDev/scanboard/internal/journal"
	"github.com/CosmoTheDev/scanboard/internal/monitor"
	"github.com/CosmoTheDev/scanboard/models"
	"github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// DashboardModel shows the live stats snapshot: counters, recent scans and
// critical findings. A monitor polls while the tab is mounted.
type DashboardModel struct {
	src      monitor.Source
	interval time.Duration
	journal  journal.Recorder

	mon    *monitor.Monitor
	cancel context.CancelFunc
	gen    int

	snap    monitor.Snapshot
	cursor  int
	message string
	failed  bool
	width   int
	height  int
}

type snapshotMsg struct {
	gen  int
	snap monitor.Snapshot
	ch   <-chan monitor.Snapshot
}

type monitorClosedMsg struct{ gen int }

type stopDoneMsg struct {
	gen   int
	jobID int64
	err   error
}

// NewDashboardModel creates an unmounted DashboardModel.
func NewDashboardModel(src monitor.Source, interval time.Duration, j journal.Recorder) DashboardModel {
	return DashboardModel{src: src, interval: interval, journal: j}
}

// Mount starts a fresh monitor for this view.
func (d DashboardModel) Mount() (DashboardModel, tea.Cmd) {
	d = d.Unmount()
	d.gen++
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.mon = monitor.New(d.src, d.interval)
	if d.journal != nil {
		d.mon.WithJournal(d.journal)
	}
	ch := d.mon.Subscribe()
	mon := d.mon
	go func() { _ = mon.Run(ctx) }()
	return d, waitSnapshot(d.gen, ch)
}

// Unmount cancels polling. Snapshots already in flight are ignored.
func (d DashboardModel) Unmount() DashboardModel {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.mon = nil
	return d
}

func waitSnapshot(gen int, ch <-chan monitor.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return monitorClosedMsg{gen: gen}
		}
		return snapshotMsg{gen: gen, snap: snap, ch: ch}
	}
}

func (d DashboardModel) stopCmd(jobID int64) tea.Cmd {
	mon, gen := d.mon, d.gen
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return stopDoneMsg{gen: gen, jobID: jobID, err: mon.Stop(ctx, jobID)}
	}
}

func (d DashboardModel) Update(msg tea.Msg) (DashboardModel, tea.Cmd) {
	switch msg := msg.(type) {
	case snapshotMsg:
		if msg.gen != d.gen || d.mon == nil {
			return d, nil
		}
		d.snap = msg.snap
		d.clampCursor()
		return d, waitSnapshot(msg.gen, msg.ch)

	case monitorClosedMsg:
		return d, nil

	case stopDoneMsg:
		if msg.gen != d.gen {
			return d, nil
		}
		if msg.err != nil {
			d.message, d.failed = failureText(msg.err, "s"), true
		} else {
			d.message, d.failed = fmt.Sprintf("Stop requested for scan #%d", msg.jobID), false
		}
		return d, nil

	case tea.KeyMsg:
		jobs := d.jobs()
		switch msg.String() {
		case "j", "down":
			if d.cursor < len(jobs)-1 {
				d.cursor++
			}
		case "k", "up":
			if d.cursor > 0 {
				d.cursor--
			}
		case "s":
			if d.mon == nil || d.cursor >= len(jobs) {
				return d, nil
			}
			job := jobs[d.cursor]
			if !job.Stoppable() {
				d.message, d.failed = fmt.Sprintf("Scan #%d is %s", job.ID, job.Status), true
				return d, nil
			}
			d.message, d.failed = fmt.Sprintf("Stopping scan #%d...", job.ID), false
			return d, d.stopCmd(job.ID)
		}
	}
	return d, nil
}

func (d DashboardModel) jobs() []models.ScanJob {
	if d.snap.Stats == nil {
		return nil
	}
	return d.snap.Stats.RecentScans
}

func (d *DashboardModel) clampCursor() {
	n := len(d.jobs())
	if d.cursor >= n {
		d.cursor = n - 1
	}
	if d.cursor < 0 {
		d.cursor = 0
	}
}

func (d *DashboardModel) SetSize(w, h int) {
	d.width = w
	d.height = h
}

func (d DashboardModel) View() string {
	stats := d.snap.Stats
	if stats == nil {
		if d.snap.Err != nil {
			return panelStyle.Width(max(20, d.width-2)).Render(errorLine(api.UserMessage(d.snap.Err)))
		}
		return panelStyle.Width(max(20, d.width-2)).Render("Loading stats...")
	}

	cardW := 22
	if d.width >= 110 {
		cardW = 26
	}
	total := fmt.Sprintf("%d", stats.TotalVulnerabilities)
	if stats.VulnerabilityChange != "" {
		total += " " + trendStyle(stats.VulnerabilityTrend).Render(trendArrow(stats.VulnerabilityTrend)+stats.VulnerabilityChange)
	}
	summary := lipgloss.JoinHorizontal(lipgloss.Top,
		renderCounter("Vulnerabilities", total, lipgloss.NewStyle().Foreground(ink), cardW),
		renderCounter("Active Scans", fmt.Sprintf("%d", stats.ActiveScans), lipgloss.NewStyle().Foreground(blue), cardW),
		renderCounter("Critical Issues", fmt.Sprintf("%d", stats.CriticalIssues), criticalStyle, cardW),
	)

	var rows strings.Builder
	for i, j := range stats.RecentScans {
		cursor := " "
		if i == d.cursor {
			cursor = "▌"
		}
		line := lipgloss.JoinHorizontal(lipgloss.Left,
			lipgloss.NewStyle().Width(2).Foreground(accent).Render(cursor),
			lipgloss.NewStyle().Width(7).Foreground(slate).Render(fmt.Sprintf("#%d", j.ID)),
			lipgloss.NewStyle().Width(36).Foreground(ink).Render(truncate(j.Target, 34)),
			lipgloss.NewStyle().Width(9).Foreground(slate).Render(j.Type),
			lipgloss.NewStyle().Width(14).Render(jobStatusBadge(j.Status)),
			dimStyle.Render(j.CreatedAt.Local().Format("Jan 02 15:04")),
		)
		rows.WriteString(line + "\n")
	}
	if len(stats.RecentScans) == 0 {
		rows.WriteString(dimStyle.Render("No scans yet. Launch one from tab 3.") + "\n")
	}

	var crit strings.Builder
	for i, f := range stats.CriticalFindings {
		if i >= 5 {
			break
		}
		crit.WriteString(lipgloss.JoinHorizontal(lipgloss.Left,
			lipgloss.NewStyle().Width(40).Foreground(ink).Render(truncate(f.Name, 38)),
			lipgloss.NewStyle().Width(30).Foreground(slate).Render(truncate(f.Host, 28)),
			stateBadge(f.State),
		) + "\n")
	}
	if len(stats.CriticalFindings) == 0 {
		crit.WriteString(dimStyle.Render("No critical findings.") + "\n")
	}

	updated := "never"
	if !d.snap.FetchedAt.IsZero() {
		updated = d.snap.FetchedAt.Format("15:04:05")
	}
	footer := []string{
		lipgloss.JoinHorizontal(lipgloss.Left,
			keycapStyle.Render("s"), " ", dimStyle.Render("stop running scan"), "   ",
			dimStyle.Render(fmt.Sprintf("every %s, updated %s", d.interval, updated)),
		),
	}
	if d.snap.Err != nil {
		footer = append(footer, errorLine(api.UserMessage(d.snap.Err)))
	}
	if d.message != "" {
		if d.failed {
			footer = append(footer, errorLine(d.message))
		} else {
			footer = append(footer, okLine(d.message))
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().Padding(0, 1).Render(summary),
		panelStyle.Width(max(20, d.width-2)).Render(
			lipgloss.JoinVertical(lipgloss.Left,
				panelHeaderStyle.Render("Recent Scans"),
				dimStyle.Render("  ID     Target                              Type     Status        Started"),
				rows.String(),
				panelHeaderStyle.Render("Critical Findings"),
				crit.String(),
				lipgloss.JoinVertical(lipgloss.Left, footer...),
			),
		),
	)
}

func trendArrow(trend string) string {
	switch trend {
	case "up":
		return "▲"
	case "down":
		return "▼"
	default:
		return ""
	}
}

func trendStyle(trend string) lipgloss.Style {
	switch trend {
	case "up":
		return lipgloss.NewStyle().Foreground(red)
	case "down":
		return okStyle
	default:
		return dimStyle
	}
}

func renderCounter(label, value string, style lipgloss.Style, width int) string {
	return boxStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Center,
			style.Bold(true).Render(value),
			dimStyle.Render(strings.ToUpper(label)),
		),
	) + "  "
}

// truncate keeps the last max runes of s, marking the cut with an ellipsis.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 1 {
		return "…"
	}
	return "…" + string(r[len(r)-max+1:])
}
