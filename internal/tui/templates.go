package tui

import (
	"context"
	"strings"
	"time"

	"github.com/CosmoTheDev/scanboard/internal/api"
	"github.com/CosmoTheDev/scanboard/models"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TemplateSource is the template catalog.
type TemplateSource interface {
	Templates(ctx context.Context) ([]models.Template, error)
	TemplateContent(ctx context.Context, path string) (string, error)
}

// TemplatesModel browses the backend's template catalog.
type TemplatesModel struct {
	src     TemplateSource
	all     []models.Template
	search  textinput.Model
	cursor  int
	loading bool
	errMsg  string

	viewing string // path shown in the content pane
	content string
	width   int
	height  int
}

type templatesLoadedMsg struct {
	list []models.Template
	err  error
}

type templateContentMsg struct {
	path    string
	content string
	err     error
}

// prefillMsg asks the app to open the launch form with a template selected.
type prefillMsg struct{ template string }

// NewTemplatesModel creates a TemplatesModel.
func NewTemplatesModel(src TemplateSource) TemplatesModel {
	ti := textinput.New()
	ti.Placeholder = "filter templates"
	ti.Prompt = "/ "
	return TemplatesModel{src: src, search: ti, loading: true}
}

func (t TemplatesModel) Init() tea.Cmd {
	src := t.src
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		list, err := src.Templates(ctx)
		return templatesLoadedMsg{list: list, err: err}
	}
}

// Capturing reports whether the filter field has focus.
func (t TemplatesModel) Capturing() bool { return t.search.Focused() }

func (t TemplatesModel) visible() []models.Template {
	q := strings.ToLower(strings.TrimSpace(t.search.Value()))
	if q == "" {
		return t.all
	}
	out := make([]models.Template, 0, len(t.all))
	for _, tpl := range t.all {
		if strings.Contains(strings.ToLower(tpl.Name), q) || strings.Contains(strings.ToLower(tpl.Path), q) {
			out = append(out, tpl)
		}
	}
	return out
}

func (t TemplatesModel) contentCmd(path string) tea.Cmd {
	src := t.src
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		body, err := src.TemplateContent(ctx, path)
		return templateContentMsg{path: path, content: body, err: err}
	}
}

func (t TemplatesModel) Update(msg tea.Msg) (TemplatesModel, tea.Cmd) {
	switch msg := msg.(type) {
	case templatesLoadedMsg:
		t.loading = false
		t.errMsg = ""
		if msg.err != nil {
			t.errMsg = api.UserMessage(msg.err)
			return t, nil
		}
		t.all = msg.list
		t.clampCursor()
		return t, nil

	case templateContentMsg:
		if msg.path != t.viewing {
			return t, nil
		}
		if msg.err != nil {
			t.content = errorLine(api.UserMessage(msg.err))
		} else {
			t.content = msg.content
		}
		return t, nil

	case tea.KeyMsg:
		if t.search.Focused() {
			switch msg.String() {
			case "enter", "esc":
				t.search.Blur()
				return t, nil
			}
			var cmd tea.Cmd
			t.search, cmd = t.search.Update(msg)
			t.cursor = 0
			return t, cmd
		}
		if t.viewing != "" {
			switch msg.String() {
			case "esc", "backspace":
				t.viewing, t.content = "", ""
			case "L":
				path := t.viewing
				return t, func() tea.Msg { return prefillMsg{template: path} }
			}
			return t, nil
		}

		visible := t.visible()
		switch msg.String() {
		case "j", "down":
			t.cursor++
		case "k", "up":
			if t.cursor > 0 {
				t.cursor--
			}
		case "/":
			t.search.Focus()
			return t, textinput.Blink
		case "r":
			t.loading = true
			return t, t.Init()
		case "enter":
			if t.cursor < len(visible) {
				t.viewing = visible[t.cursor].Path
				t.content = "Loading..."
				return t, t.contentCmd(t.viewing)
			}
		case "L":
			if t.cursor < len(visible) {
				path := visible[t.cursor].Path
				return t, func() tea.Msg { return prefillMsg{template: path} }
			}
		}
		t.clampCursor()
	}
	return t, nil
}

func (t *TemplatesModel) clampCursor() {
	n := len(t.visible())
	if t.cursor >= n {
		t.cursor = n - 1
	}
	if t.cursor < 0 {
		t.cursor = 0
	}
}

func (t *TemplatesModel) SetSize(w, h int) {
	t.width = w
	t.height = h
	t.search.Width = max(10, w-20)
}

func (t TemplatesModel) View() string {
	w := max(20, t.width-2)
	if t.viewing != "" {
		body := t.content
		limit := max(5, t.height-8)
		if lines := strings.Split(body, "\n"); len(lines) > limit {
			body = strings.Join(lines[:limit], "\n") + "\n" + dimStyle.Render("…")
		}
		return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left,
			panelHeaderStyle.Render(t.viewing),
			"",
			body,
			"",
			dimStyle.Render("L launch with this template  esc back"),
		))
	}
	if t.loading && len(t.all) == 0 {
		return panelStyle.Width(w).Render("Loading templates...")
	}

	visible := t.visible()
	limit := max(5, t.height-10)
	offset := 0
	if t.cursor >= limit {
		offset = t.cursor - limit + 1
	}
	var rows strings.Builder
	for i := offset; i < len(visible) && i < offset+limit; i++ {
		tpl := visible[i]
		cursor := " "
		if i == t.cursor {
			cursor = "▌"
		}
		line := lipgloss.JoinHorizontal(lipgloss.Left,
			lipgloss.NewStyle().Width(2).Foreground(accent).Render(cursor),
			lipgloss.NewStyle().Width(40).Foreground(ink).Render(truncate(tpl.Name, 38)),
			dimStyle.Render(truncate(tpl.Path, max(10, t.width-50))),
		)
		if i == t.cursor {
			line = selectedRowStyle.Width(max(20, t.width-6)).Render(line)
		}
		rows.WriteString(line + "\n")
	}
	if len(visible) == 0 {
		rows.WriteString(dimStyle.Render("No templates.") + "\n")
	}

	lines := []string{
		panelHeaderStyle.Render("Templates"),
		t.search.View(),
		"",
		rows.String(),
	}
	if t.errMsg != "" {
		lines = append(lines, errorLine(t.errMsg))
	}
	lines = append(lines, dimStyle.Render("j/k move  / filter  enter view  L launch with template  r reload"))
	return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
