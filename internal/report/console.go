package report

import (
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

// PrintSummary renders the run summary lines as a borderless table.
func PrintSummary(w io.Writer, lines []string) {
	if len(lines) == 0 {
		return
	}
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetColumnSeparator("")
	table.SetHeaderLine(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for _, line := range lines {
		table.Append([]string{colorLine(line)})
	}
	table.Render()
}

func colorLine(line string) string {
	switch {
	case strings.HasPrefix(line, "SCAN SUMMARY"):
		return color.New(color.Bold, color.FgGreen).Sprint(line)
	case strings.Contains(line, " scan at "):
		return color.CyanString(line)
	default:
		return line
	}
}
