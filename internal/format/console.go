package format

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/repometrics/github-report/internal/domain"
)

// renderConsole produces the human-readable report: colored highlights
// followed by contributor and initiative tables.
func renderConsole(report *domain.RepositoryReport) string {
	var sb strings.Builder

	title := color.New(color.FgCyan, color.Bold)
	section := color.New(color.Bold)

	sb.WriteString(title.Sprintf("GitHub Repository Report: %s", report.RepoName))
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Period: %s to %s\n",
		report.PeriodStart.Format("2006-01-02"),
		report.PeriodEnd.Format("2006-01-02"))
	sb.WriteString(strings.Repeat("=", 80))
	sb.WriteString("\n\n")

	sb.WriteString(section.Sprint("Highlights:"))
	sb.WriteString("\n")
	for _, highlight := range report.Highlights {
		fmt.Fprintf(&sb, "- %s\n", highlight)
	}

	if len(report.Contributors) > 0 {
		sb.WriteString("\n")
		sb.WriteString(section.Sprint("Contributors:"))
		sb.WriteString("\n")
		writeContributorTable(&sb, report)
	}

	if len(report.Initiatives) > 0 {
		sb.WriteString("\n")
		sb.WriteString(section.Sprint("Initiatives:"))
		sb.WriteString("\n")
		writeInitiativeTable(&sb, report)
	}

	return sb.String()
}

func writeContributorTable(sb *strings.Builder, report *domain.RepositoryReport) {
	contributors := make([]*domain.ContributorStats, 0, len(report.Contributors))
	for _, cs := range report.Contributors {
		contributors = append(contributors, cs)
	}
	sort.Slice(contributors, func(i, j int) bool {
		if contributors[i].PRsAuthored != contributors[j].PRsAuthored {
			return contributors[i].PRsAuthored > contributors[j].PRsAuthored
		}
		return contributors[i].Login < contributors[j].Login
	})

	table := tablewriter.NewWriter(sb)
	defer func() { _ = table.Close() }()
	table.Header([]string{"Login", "PRs Authored", "Merged", "Reviews Given", "Commits"})

	data := make([][]string, 0, len(contributors))
	for _, cs := range contributors {
		data = append(data, []string{
			cs.Login,
			strconv.Itoa(cs.PRsAuthored),
			strconv.Itoa(cs.PRsMerged),
			strconv.Itoa(cs.ReviewsGiven),
			strconv.Itoa(cs.Commits),
		})
	}
	if err := table.Bulk(data); err != nil {
		return
	}
	_ = table.Render()
}

func writeInitiativeTable(sb *strings.Builder, report *domain.RepositoryReport) {
	initiatives := make([]*domain.InitiativeStats, 0, len(report.Initiatives))
	for _, is := range report.Initiatives {
		initiatives = append(initiatives, is)
	}
	sort.Slice(initiatives, func(i, j int) bool {
		if initiatives[i].PRCount != initiatives[j].PRCount {
			return initiatives[i].PRCount > initiatives[j].PRCount
		}
		return initiatives[i].Name < initiatives[j].Name
	})

	table := tablewriter.NewWriter(sb)
	defer func() { _ = table.Close() }()
	table.Header([]string{"Initiative", "PRs", "Contributors", "Avg Cycle (h)"})

	data := make([][]string, 0, len(initiatives))
	for _, is := range initiatives {
		cycle := "-"
		if is.AvgCycleTime != nil {
			cycle = fmt.Sprintf("%.1f", *is.AvgCycleTime)
		}
		data = append(data, []string{
			is.Name,
			strconv.Itoa(is.PRCount),
			strconv.Itoa(len(is.Contributors)),
			cycle,
		})
	}
	if err := table.Bulk(data); err != nil {
		return
	}
	_ = table.Render()
}
