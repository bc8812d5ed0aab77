package report

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/CZERTAINLY/massscan/internal/model"
)

var DetailHeaders = []string{
	"Scan URL",
	"Rule Name",
	"Rule Description",
	"URL",
	"Total Occurrences",
	"Category",
	"Axe Impact",
}

const (
	CategoryMustFix     = "mustFix"
	CategoryGoodToFix   = "goodToFix"
	CategoryNeedsReview = "needsReview"

	noRuleName    = "No rule name"
	noDescription = "No description provided"
)

// Detail is one violated rule on one affected page.
type Detail struct {
	ScanURL          string
	RuleName         string
	RuleDescription  string
	URL              string
	TotalOccurrences int
	Category         string
	AxeImpact        string
}

func (d Detail) cells() []string {
	return []string{
		d.ScanURL,
		d.RuleName,
		d.RuleDescription,
		d.URL,
		strconv.Itoa(d.TotalOccurrences),
		d.Category,
		d.AxeImpact,
	}
}

// Details flattens the rules of all results into one row per affected page.
func Details(results []model.ScanResultRecord) []Detail {
	var ret []Detail
	for _, r := range results {
		for _, c := range []struct {
			name  string
			rules []model.Rule
		}{
			{CategoryMustFix, r.MustFix.Rules},
			{CategoryGoodToFix, r.GoodToFix.Rules},
			{CategoryNeedsReview, r.NeedsReview.Rules},
		} {
			for _, rule := range c.rules {
				name := rule.Rule
				if name == "" {
					name = noRuleName
				}
				desc := rule.Description
				if desc == "" {
					desc = noDescription
				}
				for _, page := range rule.PagesAffected {
					ret = append(ret, Detail{
						ScanURL:          r.URL,
						RuleName:         name,
						RuleDescription:  desc,
						URL:              page.URL,
						TotalOccurrences: len(page.Items),
						Category:         c.name,
						AxeImpact:        rule.AxeImpact,
					})
				}
			}
		}
	}
	return ret
}

// WriteDetails writes rows with every field quoted, optionally preceded by
// the header line.
func WriteDetails(w io.Writer, rows []Detail, header bool) error {
	bw := bufio.NewWriter(w)
	if header {
		if _, err := bw.WriteString(strings.Join(DetailHeaders, ",") + "\n"); err != nil {
			return err
		}
	}
	for _, row := range rows {
		cells := row.cells()
		for i, c := range cells {
			cells[i] = quote(c)
		}
		if _, err := bw.WriteString(strings.Join(cells, ",") + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
