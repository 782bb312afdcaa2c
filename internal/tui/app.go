package tui

import (
	"fmt"

	"github.com/CosmoTheDev/scanboard/internal/api"
	"github.com/CosmoTheDev/scanboard/internal/config"
	"github.com/CosmoTheDev/scanboard/internal/findings"
	"github.com/CosmoTheDev/scanboard/internal/journal"
	"github.com/CosmoTheDev/scanboard/internal/launcher"
	"github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Tab represents a TUI navigation tab.
type Tab int

const (
	TabDashboard Tab = iota
	TabFindings
	TabLaunch
	TabTemplates
)

var tabNames = []string{"Dashboard", "Findings", "Launch", "Templates"}
var tabCompactNames = []string{"Dash", "Findings", "Launch", "Tpl"}
var tabTinyNames = []string{"D", "F", "L", "T"}

// App is the root bubbletea model.
type App struct {
	cfg       *config.Config
	client    *api.Client
	width     int
	height    int
	activeTab Tab
	dashboard DashboardModel
	findings  FindingsModel
	launch    LaunchModel
	templates TemplatesModel
}

// NewApp creates the TUI application. j may be nil.
func NewApp(cfg *config.Config, client *api.Client, j journal.Recorder) *App {
	store := findings.NewStore(client)
	l := launcher.New(client)
	if j != nil {
		store.WithJournal(j)
		l.WithJournal(j)
	}
	return &App{
		cfg:       cfg,
		client:    client,
		dashboard: NewDashboardModel(client, cfg.Monitor.PollInterval, j),
		findings:  NewFindingsModel(store),
		launch:    NewLaunchModel(l),
		templates: NewTemplatesModel(client),
	}
}

// Run starts the bubbletea program.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err := p.Run()
	a.dashboard = a.dashboard.Unmount()
	return err
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	var mount tea.Cmd
	a.dashboard, mount = a.dashboard.Mount()
	return tea.Batch(
		mount,
		a.findings.Init(),
		a.templates.Init(),
	)
}

// capturing reports whether the active view owns the keyboard.
func (a *App) capturing() bool {
	switch a.activeTab {
	case TabFindings:
		return a.findings.Capturing()
	case TabLaunch:
		return a.launch.Capturing()
	case TabTemplates:
		return a.templates.Capturing()
	}
	return false
}

// setTab switches views. The dashboard monitor only runs while its tab is
// shown.
func (a *App) setTab(t Tab) tea.Cmd {
	if t == a.activeTab {
		return nil
	}
	var cmd tea.Cmd
	if a.activeTab == TabDashboard {
		a.dashboard = a.dashboard.Unmount()
	}
	if a.activeTab == TabLaunch {
		a.launch = a.launch.Blur()
	}
	a.activeTab = t
	switch t {
	case TabDashboard:
		a.dashboard, cmd = a.dashboard.Mount()
	case TabLaunch:
		a.launch, cmd = a.launch.Focus()
	}
	return cmd
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		contentW := msg.Width - 2
		if contentW < 20 {
			contentW = 20
		}
		contentH := msg.Height - 7
		if contentH < 8 {
			contentH = 8
		}
		a.dashboard.SetSize(contentW, contentH)
		a.findings.SetSize(contentW, contentH)
		a.launch.SetSize(contentW, contentH)
		a.templates.SetSize(contentW, contentH)
		return a, nil

	case prefillMsg:
		cmd := a.setTab(TabLaunch)
		var focus tea.Cmd
		a.launch, focus = a.launch.Prefill(msg.template)
		return a, tea.Batch(cmd, focus)

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return a, tea.Quit
		}
		if !a.capturing() {
			switch msg.String() {
			case "q":
				return a, tea.Quit
			case "1":
				return a, a.setTab(TabDashboard)
			case "2":
				return a, a.setTab(TabFindings)
			case "3":
				return a, a.setTab(TabLaunch)
			case "4":
				return a, a.setTab(TabTemplates)
			case "tab":
				return a, a.setTab((a.activeTab + 1) % Tab(len(tabNames)))
			case "shift+tab":
				prev := a.activeTab - 1
				if prev < 0 {
					prev = Tab(len(tabNames) - 1)
				}
				return a, a.setTab(prev)
			}
		}
		// Keys go to the active view only.
		var cmd tea.Cmd
		switch a.activeTab {
		case TabDashboard:
			a.dashboard, cmd = a.dashboard.Update(msg)
		case TabFindings:
			a.findings, cmd = a.findings.Update(msg)
		case TabLaunch:
			a.launch, cmd = a.launch.Update(msg)
		case TabTemplates:
			a.templates, cmd = a.templates.Update(msg)
		}
		return a, cmd
	}

	// Everything else is routed to every view; each ignores what it does
	// not own.
	var cmds [4]tea.Cmd
	a.dashboard, cmds[0] = a.dashboard.Update(msg)
	a.findings, cmds[1] = a.findings.Update(msg)
	a.launch, cmds[2] = a.launch.Update(msg)
	a.templates, cmds[3] = a.templates.Update(msg)
	return a, tea.Batch(cmds[:]...)
}

// View implements tea.Model.
func (a *App) View() string {
	if a.width == 0 {
		return "Loading..."
	}

	var content string
	switch a.activeTab {
	case TabDashboard:
		content = a.dashboard.View()
	case TabFindings:
		content = a.findings.View()
	case TabLaunch:
		content = a.launch.View()
	case TabTemplates:
		content = a.templates.View()
	}

	contentBox := lipgloss.NewStyle().
		Width(a.width).
		Padding(0, 1).
		MaxHeight(max(1, a.height-4)).
		Render(content)

	hint := "tab next  shift+tab prev  1-4 jump  q quit"
	if a.capturing() {
		hint = "typing  esc/enter done  ctrl+c quit"
	}
	status := statusBarStyle.Width(a.width).Render(hint)

	return lipgloss.JoinVertical(lipgloss.Left,
		a.renderHeader(),
		a.renderTabs(),
		contentBox,
		status,
	)
}

func (a *App) renderHeader() string {
	row := lipgloss.JoinHorizontal(lipgloss.Left,
		titleStyle.Render("scanboard"),
		"  ",
		dimStyle.Render(a.client.BaseURL()),
		"  ",
		mutedBadgeStyle.Render(" "+tabNames[a.activeTab]+" "),
	)
	return lipgloss.NewStyle().
		BorderBottom(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(line).
		Width(a.width).
		Padding(0, 1).
		Render(row)
}

func (a *App) renderTabs() string {
	labels := tabNames
	rendered := a.renderTabLabels(labels)
	maxWidth := a.width - 2
	if maxWidth < 10 {
		maxWidth = 10
	}
	if lipgloss.Width(rendered) > maxWidth {
		labels = tabCompactNames
		rendered = a.renderTabLabels(labels)
	}
	if lipgloss.Width(rendered) > maxWidth {
		rendered = a.renderTabLabels(tabTinyNames)
	}

	return lipgloss.NewStyle().
		Width(a.width).
		Padding(0, 1).
		Foreground(slate).
		Render(rendered)
}

func (a *App) renderTabLabels(labels []string) string {
	parts := make([]string, 0, len(labels))
	for i, name := range labels {
		label := fmt.Sprintf("%d:%s", i+1, name)
		if Tab(i) == a.activeTab {
			parts = append(parts, lipgloss.NewStyle().Bold(true).Foreground(accent).Render(label))
		} else {
			parts = append(parts, dimStyle.Render(label))
		}
		if i < len(labels)-1 {
			parts = append(parts, dimStyle.Render("  ·  "))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Left, parts...)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
