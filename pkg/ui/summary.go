package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"skeeterdeleter/pkg/deleter"
)

var (
	blueskyBlue = lipgloss.Color("#1185FE")
	softGreen   = lipgloss.Color("#39D353")
	warnOrange  = lipgloss.Color("#FF6700")
	dangerRed   = lipgloss.Color("#FF3B30")
	dimWhite    = lipgloss.Color("#B0B0B0")

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(blueskyBlue).
			Padding(0, 2)

	warningPanelStyle = lipgloss.NewStyle().
				Border(lipgloss.ThickBorder()).
				BorderForeground(dangerRed).
				Padding(0, 2)

	titleStyle = lipgloss.NewStyle().
			Background(blueskyBlue).
			Foreground(lipgloss.Color("#FFFFFF")).
			Bold(true).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(blueskyBlue).
			Bold(true).
			Width(16)

	valueStyle = lipgloss.NewStyle().
			Foreground(dimWhite)

	successStyle = lipgloss.NewStyle().
			Foreground(softGreen).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(dangerRed).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(warnOrange).
			Bold(true)
)

func row(label string, value interface{}) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), valueStyle.Render(fmt.Sprint(value)))
}

func cursorOrTop(cursor string) string {
	if cursor == "" {
		return "(newest)"
	}
	return cursor
}

// RenderSummary renders the end-of-run box
func RenderSummary(s *deleter.Summary) string {
	status := successStyle.Render("✔ " + s.Reason)
	if s.Err != nil {
		status = errorStyle.Render("✘ " + s.Reason)
	}

	rows := []string{
		titleStyle.Render(" RUN SUMMARY "),
		"",
		row("Unliked", s.Unliked),
		row("Deleted", s.Deleted),
		row("Reposts undone", s.UndoneReposts),
		row("Kept", s.Kept),
		row("Declined", s.Skipped),
		row("Failed", s.Failed),
		"",
		row("Likes", fmt.Sprintf("%d page(s), %s", s.PagesLikes, s.LikesState)),
		row("Posts", fmt.Sprintf("%d page(s), %s", s.PagesPosts, s.PostsState)),
		row("Likes cursor", cursorOrTop(s.LikesCursor)),
		row("Posts cursor", cursorOrTop(s.PostsCursor)),
	}
	if s.Archive != nil {
		rows = append(rows, row("Archive", fmt.Sprintf("%d bytes repo, %d blob(s)", s.Archive.RepoBytes, len(s.Archive.Blobs))))
	}
	rows = append(rows, "", status)

	return panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// RenderCursorSuggestion renders the hint for reusing the last likes cursor
// as a floor on later runs
func RenderCursorSuggestion(cursor string) string {
	if cursor == "" {
		return ""
	}
	return fmt.Sprintf("%s reuse the oldest likes cursor reached as a floor:\n  --likes-floor %s\n",
		warningStyle.Render("Tip:"), cursor)
}

// RenderDestructiveWarning renders the banner shown before an unattended run
func RenderDestructiveWarning(handle string, autoConfirm bool) string {
	lines := []string{
		errorStyle.Render("⚠ DESTRUCTIVE OPERATION"),
		"",
		fmt.Sprintf("Records of %s will be permanently deleted.", handle),
		"Deleted likes, posts and reposts cannot be restored.",
	}
	if autoConfirm {
		lines = append(lines, warningStyle.Render("--yes is set: nothing will be asked before deleting."))
	}
	return warningPanelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
