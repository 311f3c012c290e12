package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"

	"storyline/internal/domain"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	specStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
)

var statusColors = map[domain.Status]string{
	domain.StatusDraft:              "#888888",
	domain.StatusReadyForRefinement: "#F5A623",
	domain.StatusRefined:            "#5B8DEF",
	domain.StatusDevelopment:        "#9B59B6",
	domain.StatusReadyForTesting:    "#1ABC9C",
	domain.StatusReadyForProduction: "#2ECC71",
}

func statusBadge(s domain.Status) string {
	color, ok := statusColors[s]
	if !ok {
		color = "#FF6B6B"
	}
	return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(color)).Render(s.Label())
}

func newTable(header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)
	return tw
}

func printStories(items []domain.Story) {
	tw := newTable(table.Row{"ID", "Title", "Status", "Assignee", "Spec", "Updated"})
	for _, s := range items {
		spec := ""
		if s.HasSpecification() {
			spec = "yes"
		}
		tw.AppendRow(table.Row{s.ID, s.Title, statusBadge(s.Status), s.AssigneeID, spec, s.UpdatedAt})
	}
	tw.Render()
}

func printStory(s domain.Story) {
	fmt.Println(headingStyle.Render(s.Title) + "  " + statusBadge(s.Status))
	fmt.Println(mutedStyle.Render(fmt.Sprintf("id %s  creator %s  assignee %s  updated %s", s.ID, s.CreatorID, s.AssigneeID, s.UpdatedAt)))
	fmt.Println()
	fmt.Println(s.Description)
	if s.DesignReference != "" {
		fmt.Println()
		fmt.Println(mutedStyle.Render("design: ") + s.DesignReference)
	}
	if s.HasSpecification() {
		fmt.Println()
		fmt.Println(specStyle.Render(s.SpecificationText))
	}
}

func printTasks(items []domain.Task) {
	tw := newTable(table.Row{"ID", "Title", "Status", "Assignee"})
	for _, t := range items {
		assignee := ""
		if t.AssigneeID != nil {
			assignee = *t.AssigneeID
		}
		tw.AppendRow(table.Row{t.ID, t.Title, t.Status, assignee})
	}
	tw.Render()
}

func printEvents(items []domain.Event) {
	tw := newTable(table.Row{"ID", "TS", "Type", "Entity", "Actor", "Payload"})
	for _, e := range items {
		tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.EntityKind + ":" + e.EntityID, e.ActorID, e.Payload})
	}
	tw.Render()
}

func printDashboard(sum domain.DashboardSummary) {
	fmt.Println(headingStyle.Render("Stories by status"))
	tw := newTable(table.Row{"Status", "Count"})
	for _, s := range domain.Statuses() {
		tw.AppendRow(table.Row{statusBadge(s), sum.StatusCounts[s]})
	}
	tw.Render()

	c := sum.Coverage
	fmt.Println()
	fmt.Println(headingStyle.Render("Specification coverage"))
	fmt.Printf("%d of %d stories (%.1f%%)\n", c.WithSpecification, c.TotalStories, c.CoveragePercentage)

	if len(sum.RecentActivity) > 0 {
		fmt.Println()
		fmt.Println(headingStyle.Render("Recently updated"))
		rt := newTable(table.Row{"ID", "Title", "Status", "Updated"})
		for _, a := range sum.RecentActivity {
			rt.AppendRow(table.Row{a.ID, a.Title, statusBadge(a.Status), a.UpdatedAt})
		}
		rt.Render()
	}
}
