package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/CosmoTheDev/scanboard/internal/api"
	"github.com/CosmoTheDev/scanboard/internal/findings"
	"github.com/CosmoTheDev/scanboard/models"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// FindingsModel lists findings with search, severity toggles, triage and
// delete. All data lives in the shared store.
type FindingsModel struct {
	store   *findings.Store
	search  textinput.Model
	width   int
	height  int
	cursor  int
	loading bool
	loadErr string

	detail     int64 // id shown in the detail pane, 0 for the list
	notFound   bool
	confirmDel int64 // id awaiting y/n
	message    string
	failed     bool
}

type findingsLoadedMsg struct{ err error }

type mutationDoneMsg struct {
	id    int64
	kind  string
	state models.FindingState
	err   error
}

type refreshDoneMsg struct {
	id  int64
	err error
}

var severityKeys = map[string]models.SeverityLevel{
	"c": models.SeverityCritical,
	"h": models.SeverityHigh,
	"m": models.SeverityMedium,
	"l": models.SeverityLow,
	"i": models.SeverityInfo,
	"u": models.SeverityUnknown,
}

var triageKeys = map[string]models.FindingState{
	"f": models.StateFalsePositive,
	"a": models.StateAcceptedRisk,
	"x": models.StateFixed,
}

// NewFindingsModel creates a FindingsModel over store.
func NewFindingsModel(store *findings.Store) FindingsModel {
	ti := textinput.New()
	ti.Placeholder = "search name, template or host"
	ti.Prompt = "/ "
	ti.CharLimit = 128
	return FindingsModel{store: store, search: ti, loading: true}
}

func (f FindingsModel) Init() tea.Cmd {
	return f.loadCmd()
}

// Capturing reports whether keystrokes are going to the search field.
func (f FindingsModel) Capturing() bool {
	return f.search.Focused() || f.confirmDel != 0
}

func (f FindingsModel) loadCmd() tea.Cmd {
	store := f.store
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return findingsLoadedMsg{err: store.Load(ctx)}
	}
}

func (f FindingsModel) setStateCmd(id int64, state models.FindingState) tea.Cmd {
	store := f.store
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_, err := store.SetState(ctx, id, state)
		return mutationDoneMsg{id: id, kind: "triage", state: state, err: err}
	}
}

func (f FindingsModel) deleteCmd(id int64) tea.Cmd {
	store := f.store
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return mutationDoneMsg{id: id, kind: "delete", err: store.Delete(ctx, id)}
	}
}

func (f FindingsModel) refreshCmd(id int64) tea.Cmd {
	store := f.store
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_, err := store.Refresh(ctx, id)
		return refreshDoneMsg{id: id, err: err}
	}
}

func (f FindingsModel) Update(msg tea.Msg) (FindingsModel, tea.Cmd) {
	switch msg := msg.(type) {
	case findingsLoadedMsg:
		f.loading = false
		f.loadErr = ""
		if msg.err != nil {
			f.loadErr = failureText(msg.err, "r")
		}
		f.clampCursor()
		return f, nil

	case mutationDoneMsg:
		f.failed = msg.err != nil
		switch {
		case msg.err != nil:
			f.message = api.UserMessage(msg.err)
		case msg.kind == "delete":
			f.message = fmt.Sprintf("Finding #%d deleted", msg.id)
			if f.detail == msg.id {
				f.notFound = true
			}
		default:
			f.message = fmt.Sprintf("Finding #%d marked %s", msg.id, msg.state.Label())
		}
		f.clampCursor()
		return f, nil

	case refreshDoneMsg:
		if msg.id != f.detail {
			return f, nil
		}
		if errors.Is(msg.err, api.ErrNotFound) {
			f.notFound = true
		} else if msg.err != nil {
			f.message, f.failed = api.UserMessage(msg.err), true
		}
		return f, nil

	case tea.KeyMsg:
		if f.search.Focused() {
			return f.updateSearch(msg)
		}
		if f.confirmDel != 0 {
			id := f.confirmDel
			f.confirmDel = 0
			if msg.String() == "y" || msg.String() == "Y" {
				f.message, f.failed = fmt.Sprintf("Deleting finding #%d...", id), false
				return f, f.deleteCmd(id)
			}
			f.message, f.failed = "Delete cancelled", false
			return f, nil
		}
		if f.detail != 0 {
			return f.updateDetail(msg)
		}
		return f.updateList(msg)
	}
	return f, nil
}

func (f FindingsModel) updateSearch(msg tea.KeyMsg) (FindingsModel, tea.Cmd) {
	switch msg.String() {
	case "enter", "esc":
		f.search.Blur()
		return f, nil
	}
	var cmd tea.Cmd
	f.search, cmd = f.search.Update(msg)
	f.store.SetQuery(f.search.Value())
	f.cursor = 0
	return f, cmd
}

func (f FindingsModel) updateList(msg tea.KeyMsg) (FindingsModel, tea.Cmd) {
	visible := f.store.Visible()
	key := msg.String()
	switch key {
	case "j", "down":
		f.cursor++
	case "k", "up":
		if f.cursor > 0 {
			f.cursor--
		}
	case "/":
		f.search.Focus()
		return f, textinput.Blink
	case "r":
		f.loading = true
		return f, f.loadCmd()
	case "A":
		f.store.SetSeverities(findings.AllSeverities())
		f.cursor = 0
	case "enter":
		if f.cursor < len(visible) {
			f.detail = visible[f.cursor].ID
			f.notFound = false
			return f, f.refreshCmd(f.detail)
		}
	case "d":
		if f.cursor < len(visible) {
			f.confirmDel = visible[f.cursor].ID
		}
	default:
		if level, ok := severityKeys[key]; ok {
			f.store.ToggleSeverity(level)
			f.cursor = 0
		} else if state, ok := triageKeys[key]; ok && f.cursor < len(visible) {
			id := visible[f.cursor].ID
			return f, f.setStateCmd(id, state)
		}
	}
	f.clampCursor()
	return f, nil
}

func (f FindingsModel) updateDetail(msg tea.KeyMsg) (FindingsModel, tea.Cmd) {
	key := msg.String()
	switch key {
	case "esc", "backspace":
		f.detail = 0
		f.notFound = false
		f.clampCursor()
		return f, nil
	case "d":
		if !f.notFound {
			f.confirmDel = f.detail
		}
	default:
		if state, ok := triageKeys[key]; ok && !f.notFound {
			return f, f.setStateCmd(f.detail, state)
		}
	}
	return f, nil
}

func (f *FindingsModel) clampCursor() {
	n := len(f.store.Visible())
	if f.cursor >= n {
		f.cursor = n - 1
	}
	if f.cursor < 0 {
		f.cursor = 0
	}
}

func (f *FindingsModel) SetSize(w, h int) {
	f.width = w
	f.height = h
	f.search.Width = max(10, w-20)
}

func (f FindingsModel) View() string {
	if f.detail != 0 {
		return f.viewDetail()
	}
	if f.loading && !f.store.Loaded() {
		return panelStyle.Width(max(20, f.width-2)).Render("Loading findings...")
	}

	visible := f.store.Visible()
	lineLimit := f.height - 12
	if lineLimit < 5 {
		lineLimit = 5
	}
	offset := 0
	if f.cursor >= lineLimit {
		offset = f.cursor - lineLimit + 1
	}

	var rows strings.Builder
	for i := offset; i < len(visible) && i < offset+lineLimit; i++ {
		rows.WriteString(f.renderRow(i, visible[i]))
	}
	if len(visible) == 0 {
		rows.WriteString(dimStyle.Render("No findings match the current filters.") + "\n")
	}

	var footer []string
	if f.loadErr != "" {
		footer = append(footer, errorLine(f.loadErr))
	}
	switch {
	case f.confirmDel != 0:
		footer = append(footer, lipgloss.NewStyle().Foreground(yellow).Render(
			fmt.Sprintf("Delete finding #%d? This cannot be undone. [y/N]", f.confirmDel)))
	case f.message != "" && f.failed:
		footer = append(footer, errorLine(f.message))
	case f.message != "":
		footer = append(footer, okLine(f.message))
	}
	footer = append(footer, dimStyle.Render("j/k move  / search  c h m l i u severity  A all  f false-pos  a accept  x fixed  d delete  enter detail  r reload"))

	return panelStyle.Width(max(20, f.width-2)).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			panelHeaderStyle.Render(fmt.Sprintf("Findings (%d of %d)", len(visible), len(f.store.All()))),
			f.search.View(),
			f.severityBar(),
			"",
			dimStyle.Render("  Severity  Name                                Host                        Template               State"),
			rows.String(),
			lipgloss.JoinVertical(lipgloss.Left, footer...),
		),
	)
}

func (f FindingsModel) renderRow(idx int, fd models.Finding) string {
	cursor := " "
	if idx == f.cursor {
		cursor = "▌"
	}
	level := fd.SeverityLevel()
	name := lipgloss.NewStyle().Width(36).Foreground(ink)
	if f.store.Pending(fd.ID) {
		name = name.Foreground(slateDim).Italic(true)
	}
	line := lipgloss.JoinHorizontal(lipgloss.Left,
		lipgloss.NewStyle().Width(2).Foreground(accent).Render(cursor),
		lipgloss.NewStyle().Width(10).Render(severityStyle(level).Render(strings.ToUpper(string(level)))),
		name.Render(truncate(fd.Name, 34)),
		lipgloss.NewStyle().Width(28).Foreground(slate).Render(truncate(fd.Host, 26)),
		lipgloss.NewStyle().Width(23).Foreground(slate).Render(truncate(fd.TemplateID, 21)),
		stateBadge(fd.State),
	)
	if idx == f.cursor {
		return selectedRowStyle.Width(max(20, f.width-6)).Render(line) + "\n"
	}
	return line + "\n"
}

func (f FindingsModel) severityBar() string {
	active := f.store.Severities()
	counts := f.store.SeverityCounts()
	parts := make([]string, 0, len(models.Severities)*2)
	for _, level := range models.Severities {
		key := string(level)[:1]
		text := fmt.Sprintf("%s %d", level, counts[level])
		if active.Has(level) {
			parts = append(parts, activeTabStyle.Render(text))
		} else {
			parts = append(parts, tabStyle.Render(text+" ["+key+"]"))
		}
		parts = append(parts, " ")
	}
	return lipgloss.JoinHorizontal(lipgloss.Left, parts...)
}

func (f FindingsModel) viewDetail() string {
	w := max(20, f.width-2)
	fd, ok := f.store.Get(f.detail)
	if f.notFound || !ok {
		return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left,
			panelHeaderStyle.Render(fmt.Sprintf("Finding #%d", f.detail)),
			"",
			errorLine("Finding not found"),
			"",
			dimStyle.Render("esc back"),
		))
	}

	field := func(label, value string) string {
		return lipgloss.JoinHorizontal(lipgloss.Left,
			lipgloss.NewStyle().Width(14).Foreground(slateDim).Render(label),
			lipgloss.NewStyle().Foreground(ink).Render(value),
		)
	}
	level := fd.SeverityLevel()
	lines := []string{
		panelHeaderStyle.Render(fmt.Sprintf("#%d  %s", fd.ID, fd.Name)),
		"",
		lipgloss.JoinHorizontal(lipgloss.Left,
			severityStyle(level).Render(strings.ToUpper(string(level))), "  ", stateBadge(fd.State)),
		"",
		field("Host", fd.Host),
		field("Matched at", fd.MatchedAt),
		field("Template", fd.TemplateID),
		field("Fingerprint", fd.Fingerprint),
		field("First seen", fd.FirstSeen.Local().Format(time.RFC1123)),
		field("Last seen", fd.LastSeen.Local().Format(time.RFC1123)),
	}
	if fd.FixedAt != nil {
		lines = append(lines, field("Fixed at", fd.FixedAt.Local().Format(time.RFC1123)))
	}
	if fd.Description != "" {
		lines = append(lines, "", fd.Description)
	}
	lines = append(lines, "", panelHeaderStyle.Render("Template info"), dimStyle.Render(fd.PrettyInfo()), "")

	switch {
	case f.confirmDel != 0:
		lines = append(lines, lipgloss.NewStyle().Foreground(yellow).Render(
			fmt.Sprintf("Delete finding #%d? This cannot be undone. [y/N]", f.confirmDel)))
	case f.message != "" && f.failed:
		lines = append(lines, errorLine(f.message))
	case f.message != "":
		lines = append(lines, okLine(f.message))
	}
	if f.store.Pending(fd.ID) {
		lines = append(lines, dimStyle.Render("waiting for backend..."))
	}
	lines = append(lines, dimStyle.Render("f false-positive  a accept risk  x fixed  d delete  esc back"))

	return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
