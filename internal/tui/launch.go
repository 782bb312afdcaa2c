package tui

import (
	"context"
	"strings"
	"time"

	"github.com/CosmoTheDev/scanboard/internal/launcher"
	"github.com/CosmoTheDev/scanboard/models"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	fieldTarget = iota
	fieldType
	fieldTemplates
	fieldCount
)

// LaunchModel is the scan launch form.
type LaunchModel struct {
	l          *launcher.Launcher
	target     textinput.Model
	templates  textinput.Model
	typ        models.ScanType
	focus      int
	submitting bool
	confirm    string
	errMsg     string
	width      int
}

type launchDoneMsg struct {
	err          error
	confirmation string
	errMsg       string
	target       string
	templates    string
}

// NewLaunchModel creates a LaunchModel driving l.
func NewLaunchModel(l *launcher.Launcher) LaunchModel {
	target := textinput.New()
	target.Placeholder = "example.com or https://app.example.com"
	target.Prompt = ""
	target.CharLimit = 512

	templates := textinput.New()
	templates.Placeholder = "cves,exposures or http/cves/2021/CVE-2021-1234.yaml"
	templates.Prompt = ""
	templates.CharLimit = 1024

	m := LaunchModel{l: l, target: target, templates: templates, typ: l.Type}
	if m.typ == "" {
		m.typ = models.ScanFast
	}
	return m
}

// Capturing reports whether a text field has focus.
func (m LaunchModel) Capturing() bool {
	return m.target.Focused() || m.templates.Focused()
}

// Prefill selects template for a custom scan and focuses the target field.
func (m LaunchModel) Prefill(template string) (LaunchModel, tea.Cmd) {
	if m.submitting {
		return m, nil
	}
	m.l.Prefill(template)
	m.typ = m.l.Type
	m.templates.SetValue(m.l.Templates)
	m.confirm, m.errMsg = "", ""
	return m.setFocus(fieldTarget)
}

// Focus puts the cursor in the first field.
func (m LaunchModel) Focus() (LaunchModel, tea.Cmd) {
	return m.setFocus(m.focus)
}

// Blur releases keyboard focus so global keys work again.
func (m LaunchModel) Blur() LaunchModel {
	m.target.Blur()
	m.templates.Blur()
	return m
}

func (m LaunchModel) setFocus(field int) (LaunchModel, tea.Cmd) {
	m.focus = (field + fieldCount) % fieldCount
	m.target.Blur()
	m.templates.Blur()
	switch m.focus {
	case fieldTarget:
		return m, m.target.Focus()
	case fieldTemplates:
		return m, m.templates.Focus()
	}
	return m, nil
}

func (m LaunchModel) submitCmd() tea.Cmd {
	l := m.l
	l.Target = m.target.Value()
	l.Type = m.typ
	l.Templates = m.templates.Value()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err := l.Submit(ctx)
		return launchDoneMsg{
			err:          err,
			confirmation: l.Confirmation,
			errMsg:       l.Err,
			target:       l.Target,
			templates:    l.Templates,
		}
	}
}

func (m LaunchModel) Update(msg tea.Msg) (LaunchModel, tea.Cmd) {
	switch msg := msg.(type) {
	case launchDoneMsg:
		m.submitting = false
		m.confirm, m.errMsg = msg.confirmation, msg.errMsg
		m.target.SetValue(msg.target)
		m.templates.SetValue(msg.templates)
		return m, nil

	case tea.KeyMsg:
		if m.submitting {
			return m, nil
		}
		switch msg.String() {
		case "esc":
			return m.Blur(), nil
		case "down", "tab":
			if m.Capturing() || m.focus == fieldType {
				return m.setFocus(m.focus + 1)
			}
		case "up", "shift+tab":
			if m.Capturing() || m.focus == fieldType {
				return m.setFocus(m.focus - 1)
			}
		case "left", "right":
			if m.focus == fieldType && !m.Capturing() {
				m.typ = cycleScanType(m.typ, msg.String() == "right")
				return m, nil
			}
		case "enter":
			if strings.TrimSpace(m.target.Value()) == "" {
				// Submit is disabled until a target is entered.
				return m.setFocus(fieldTarget)
			}
			m.submitting = true
			m.confirm, m.errMsg = "", ""
			return m, m.submitCmd()
		case "i", "e":
			if !m.Capturing() {
				return m.setFocus(m.focus)
			}
		}
	}

	var cmd tea.Cmd
	switch {
	case m.target.Focused():
		m.target, cmd = m.target.Update(msg)
	case m.templates.Focused():
		m.templates, cmd = m.templates.Update(msg)
	}
	return m, cmd
}

func cycleScanType(cur models.ScanType, forward bool) models.ScanType {
	idx := 0
	for i, t := range models.ScanTypes {
		if t == cur {
			idx = i
		}
	}
	if forward {
		idx++
	} else {
		idx--
	}
	n := len(models.ScanTypes)
	return models.ScanTypes[(idx+n)%n]
}

func (m *LaunchModel) SetSize(w, h int) {
	m.width = w
	m.target.Width = max(10, w-24)
	m.templates.Width = max(10, w-24)
}

func (m LaunchModel) View() string {
	label := func(field int, text string) string {
		style := lipgloss.NewStyle().Width(12).Foreground(slateDim)
		if m.focus == field {
			style = style.Foreground(accent).Bold(true)
		}
		return style.Render(text)
	}

	types := make([]string, 0, len(models.ScanTypes))
	for _, t := range models.ScanTypes {
		if t == m.typ {
			types = append(types, activeTabStyle.Render(string(t)))
		} else {
			types = append(types, tabStyle.Render(string(t)))
		}
	}

	submit := keycapStyle.Render("enter") + " " + dimStyle.Render("start scan")
	if strings.TrimSpace(m.target.Value()) == "" {
		submit = dimStyle.Render("enter a target to start a scan")
	}
	if m.submitting {
		submit = dimStyle.Render("starting scan...")
	}

	lines := []string{
		panelHeaderStyle.Render("Launch Scan"),
		"",
		lipgloss.JoinHorizontal(lipgloss.Left, label(fieldTarget, "Target"), m.target.View()),
		"",
		lipgloss.JoinHorizontal(lipgloss.Center, append([]string{label(fieldType, "Profile")}, types...)...),
		"",
		lipgloss.JoinHorizontal(lipgloss.Left, label(fieldTemplates, "Templates"), m.templates.View()),
		"",
		submit,
	}
	if m.confirm != "" {
		lines = append(lines, okLine(m.confirm))
	}
	if m.errMsg != "" {
		lines = append(lines, errorLine(m.errMsg))
	}
	lines = append(lines, "", dimStyle.Render("i edit  tab/↑↓ field  ←/→ profile  esc leave field"))

	return panelStyle.Width(max(20, m.width-2)).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
