package tui

import (
	"github.com/CosmoTheDev/scanboard/internal/api"
	"github.com/CosmoTheDev/scanboard/models"
	"github.com/charmbracelet/lipgloss"
)

var (
	accent     = lipgloss.Color("#14B8A6") // teal
	accentSoft = lipgloss.Color("#0F766E")
	orange     = lipgloss.Color("#F97316")
	green      = lipgloss.Color("#22C55E")
	yellow     = lipgloss.Color("#F59E0B")
	red        = lipgloss.Color("#EF4444")
	blue       = lipgloss.Color("#38BDF8")
	slate      = lipgloss.Color("#94A3B8")
	slateDim   = lipgloss.Color("#64748B")
	panelBg    = lipgloss.Color("#111827")
	bgDark     = lipgloss.Color("#0B1220")
	line       = lipgloss.Color("#1F2937")
	ink        = lipgloss.Color("#E5E7EB")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ink).
			Background(bgDark).
			BorderStyle(lipgloss.ThickBorder()).
			BorderLeft(true).
			BorderTop(false).
			BorderRight(false).
			BorderBottom(false).
			BorderForeground(accent).
			Padding(0, 1)

	tabStyle = lipgloss.NewStyle().
			Foreground(slate).
			Background(bgDark).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(line).
			Padding(0, 1)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(bgDark).
			Background(accent).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(accentSoft).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(slate).
			Background(bgDark).
			BorderTop(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(line).
			Padding(0, 1)

	criticalStyle = lipgloss.NewStyle().Bold(true).Foreground(red)
	highStyle     = lipgloss.NewStyle().Bold(true).Foreground(yellow)
	mediumStyle   = lipgloss.NewStyle().Foreground(blue)
	lowStyle      = lipgloss.NewStyle().Foreground(slate)
	okStyle       = lipgloss.NewStyle().Foreground(green)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(line).
			Background(panelBg).
			Padding(1, 2)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(line).
			Background(panelBg).
			Padding(1, 1)

	panelHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(ink)

	mutedBadgeStyle = lipgloss.NewStyle().
			Foreground(slate).
			Background(bgDark).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(line).
			Padding(0, 1)

	keycapStyle = lipgloss.NewStyle().
			Foreground(ink).
			Background(lipgloss.Color("#1E293B")).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(line).
			Padding(0, 1)

	selectedRowStyle = lipgloss.NewStyle().
				Background(lipgloss.Color("#0F172A")).
				BorderStyle(lipgloss.NormalBorder()).
				BorderLeft(true).
				BorderForeground(accent)

	dimStyle = lipgloss.NewStyle().Foreground(slateDim)
)

func severityStyle(level models.SeverityLevel) lipgloss.Style {
	switch level {
	case models.SeverityCritical:
		return criticalStyle
	case models.SeverityHigh:
		return highStyle
	case models.SeverityMedium:
		return mediumStyle
	case models.SeverityLow:
		return lowStyle
	default:
		return dimStyle
	}
}

func badge(text string, bg lipgloss.Color) string {
	return lipgloss.NewStyle().Foreground(bgDark).Background(bg).Padding(0, 1).Render(text)
}

// stateBadge renders a finding state the way the web console labels it,
// e.g. "FALSE POSITIVE".
func stateBadge(state models.FindingState) string {
	switch state {
	case models.StateFixed:
		return badge(state.Label(), green)
	case models.StateFalsePositive, models.StateAcceptedRisk:
		return badge(state.Label(), slate)
	case models.StateRegressed:
		return badge(state.Label(), orange)
	case models.StateNew:
		return badge(state.Label(), blue)
	default:
		return mutedBadgeStyle.Render(state.Label())
	}
}

func jobStatusBadge(status models.JobStatus) string {
	switch status {
	case models.JobCompleted:
		return badge(string(status), green)
	case models.JobFailed:
		return badge(string(status), red)
	case models.JobRunning:
		return badge(string(status), blue)
	case models.JobStopped:
		return badge(string(status), yellow)
	default:
		return mutedBadgeStyle.Render(string(status))
	}
}

func errorLine(msg string) string {
	return lipgloss.NewStyle().Foreground(red).Render("✗ " + msg)
}

// failureText is the operator message for err, with a retry hint naming key
// when repeating the action could succeed.
func failureText(err error, key string) string {
	msg := api.UserMessage(err)
	if api.Retryable(err) {
		msg += " (press " + key + " to retry)"
	}
	return msg
}

func okLine(msg string) string {
	return okStyle.Render("✓ " + msg)
}
