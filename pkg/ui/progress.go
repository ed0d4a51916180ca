package ui

import (
	"fmt"
	"strings"
	"time"

	"skeeterdeleter/pkg/actions"
	"skeeterdeleter/pkg/models"
)

const (
	ProgressBar   = "█"
	ProgressEmpty = "░"
)

// PageTracker prints one status line per processed page and keeps running
// totals for the page budget
type PageTracker struct {
	Budget    int
	Pages     map[models.Feed]int
	Applied   int
	Kept      int
	StartTime time.Time
	now       func() time.Time
}

// NewPageTracker creates a tracker for a per-feed page budget
func NewPageTracker(budget int) *PageTracker {
	return &PageTracker{
		Budget:    budget,
		Pages:     make(map[models.Feed]int),
		StartTime: time.Now(),
		now:       time.Now,
	}
}

// PageProcessed records a page and prints its status line
func (pt *PageTracker) PageProcessed(page *models.Page, result actions.Result, kept int) {
	pt.Pages[page.Feed]++
	pt.Applied += result.Applied()
	pt.Kept += kept
	Print(pt.Line(page, result, kept) + "\n")
}

// Line renders the status line for a page
func (pt *PageTracker) Line(page *models.Page, result actions.Result, kept int) string {
	var parts []string
	if result.Unliked > 0 {
		parts = append(parts, fmt.Sprintf("unliked %d", result.Unliked))
	}
	if result.Deleted > 0 {
		parts = append(parts, fmt.Sprintf("deleted %d", result.Deleted))
	}
	if result.UndoneReposts > 0 {
		parts = append(parts, fmt.Sprintf("unreposted %d", result.UndoneReposts))
	}
	if result.Declined > 0 {
		parts = append(parts, fmt.Sprintf("declined %d", result.Declined))
	}
	if result.Failed > 0 {
		parts = append(parts, Red(fmt.Sprintf("failed %d", result.Failed)))
	}
	parts = append(parts, Dim(fmt.Sprintf("kept %d", kept)))

	return fmt.Sprintf("%s %s %s",
		Magenta(fmt.Sprintf("[%-5s]", page.Feed)),
		pt.BudgetBar(pt.Pages[page.Feed]),
		strings.Join(parts, ", "))
}

// BudgetBar renders pages used against the budget
func (pt *PageTracker) BudgetBar(used int) string {
	const width = 20
	if pt.Budget <= 0 {
		return fmt.Sprintf("[%d]", used)
	}
	filled := min(width, used*width/pt.Budget)
	bar := strings.Repeat(ProgressBar, filled) + strings.Repeat(ProgressEmpty, width-filled)
	return fmt.Sprintf("[%s] %d/%d", bar, used, pt.Budget)
}

// Elapsed returns the time since tracking started
func (pt *PageTracker) Elapsed() time.Duration {
	return pt.now().Sub(pt.StartTime)
}

// Rate returns applied actions per minute
func (pt *PageTracker) Rate() float64 {
	minutes := pt.Elapsed().Minutes()
	if minutes == 0 {
		return 0
	}
	return float64(pt.Applied) / minutes
}
