package report_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/CZERTAINLY/massscan/internal/aggregate"
	"github.com/CZERTAINLY/massscan/internal/input"
	"github.com/CZERTAINLY/massscan/internal/model"
	"github.com/CZERTAINLY/massscan/internal/report"
	"github.com/stretchr/testify/require"
)

const freshInput = "Url,Max Pages,Max Concurrency,Scan Type,Crawl Concurrency\n" +
	"https://example.com,10,1,website,2\n" +
	"https://b.example,5,1,website,2\n" +
	"https://c.example,5,1,website,2\n"

func items(n int) []json.RawMessage {
	ret := make([]json.RawMessage, n)
	for i := range ret {
		ret[i] = json.RawMessage(`{}`)
	}
	return ret
}

func exampleResult(id int, url string) model.ScanResultRecord {
	return model.ScanResultRecord{
		ID:                 id,
		URL:                url,
		StartTime:          "2024-01-01 10:00:00",
		EndTime:            "2024-01-01 10:05:00",
		PagesScanned:       "3",
		WcagPassPercentage: "87.5",
		WcagViolations:     []string{"1.1.1", "4.1.2"},
		MustFix: model.Category{
			Issues:     "1",
			Occurrence: "3",
			Rules: []model.Rule{{
				Rule:        "image-alt",
				Description: "Images must have alternate text",
				AxeImpact:   "critical",
				PagesAffected: []model.PageAffected{
					{URL: "https://example.com/a", Items: items(2)},
					{URL: "https://example.com/b", Items: items(1)},
				},
			}},
		},
		GoodToFix: model.Category{
			Issues:     "0",
			Occurrence: "0",
			Rules: []model.Rule{{
				AxeImpact:     "minor",
				PagesAffected: []model.PageAffected{{URL: "https://example.com/c"}},
			}},
		},
		NeedsReview: model.Category{
			Issues:     "1",
			Occurrence: "3",
			Rules: []model.Rule{{
				Rule:          "color-contrast",
				Description:   `Text "must" contrast, enough`,
				AxeImpact:     "serious",
				PagesAffected: []model.PageAffected{{URL: "https://example.com/", Items: items(3)}},
			}},
		},
		Passed:   model.Passed{Occurrence: "40"},
		Critical: "1",
		Serious:  "1",
		Moderate: "0",
		Minor:    "0",
	}
}

func freshState(t *testing.T) (input.Input, *aggregate.Aggregator) {
	t.Helper()
	in, err := input.Load(strings.NewReader(freshInput), 0)
	require.NoError(t, err)

	agg := aggregate.New(in.RetryMode)
	agg.AddResult(exampleResult(1, "https://example.com"))
	agg.AddError(model.ScanErrorRecord{ID: 2, URL: "https://b.example", Error: "Error: boom, bad\nstack"})
	agg.AddError(model.ScanErrorRecord{ID: 2, URL: "https://b.example", Error: "second"})
	agg.Flatten()
	return in, agg
}

func dashes(n int) string {
	return strings.TrimSuffix(strings.Repeat("-,", n), ",")
}

func TestWriteSummary_Fresh(t *testing.T) {
	t.Parallel()
	in, agg := freshState(t)

	var buf bytes.Buffer
	require.NoError(t, report.WriteSummary(&buf, in, agg, model.PrecedenceResult))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, len(in.Rows)+1)
	require.Equal(t, strings.TrimSpace(strings.Split(freshInput, "\n")[0])+","+strings.Join(report.SummaryHeaders, ","), lines[0])
	require.Equal(t,
		"https://example.com,10,1,website,2,0,nil,2024-01-01 10:00:00,2024-01-01 10:05:00,3,87.5,1.1.1 :: 4.1.2,1,3,0,0,1,3,40,1,1,0,0",
		lines[1])
	require.Equal(t,
		"https://b.example,5,1,website,2,0,Error: boom:: bad::stack::second,"+dashes(16),
		lines[2])
	require.Equal(t,
		"https://c.example,5,1,website,2,0,"+report.NoResult+","+dashes(16),
		lines[3])
}

func TestWriteSummary_Precedence(t *testing.T) {
	t.Parallel()

	in, err := input.Load(strings.NewReader(freshInput), 0)
	require.NoError(t, err)
	agg := aggregate.New(false)
	agg.AddResult(exampleResult(1, "https://example.com"))
	agg.AddError(model.ScanErrorRecord{ID: 1, URL: "https://example.com", Error: "late failure"})

	var testCases = []struct {
		precedence string
		then       string
	}{
		{model.PrecedenceResult, "https://example.com,10,1,website,2,0,nil,"},
		{model.PrecedenceError, "https://example.com,10,1,website,2,0,late failure," + dashes(16)},
	}

	for _, tt := range testCases {
		t.Run(tt.precedence, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			require.NoError(t, report.WriteSummary(&buf, in, agg, tt.precedence))
			lines := strings.Split(buf.String(), "\n")
			require.True(t, strings.HasPrefix(lines[1], tt.then), lines[1])
		})
	}
}

func TestWriteSummary_FailedWithResult(t *testing.T) {
	t.Parallel()

	in, err := input.Load(strings.NewReader(freshInput), 0)
	require.NoError(t, err)
	agg := aggregate.New(false)
	// the engine sent a result, but the job did not finish properly
	agg.AddResult(exampleResult(1, "https://example.com"))
	agg.AddError(model.ScanErrorRecord{ID: 1, URL: "https://example.com", Error: model.ErrNoTerminal.Error()})
	agg.MarkFailed(1)
	// failed without any error record
	agg.AddResult(exampleResult(2, "https://b.example"))
	agg.MarkFailed(2)
	agg.Flatten()

	for _, precedence := range []string{model.PrecedenceResult, model.PrecedenceError} {
		t.Run(precedence, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			require.NoError(t, report.WriteSummary(&buf, in, agg, precedence))
			lines := strings.Split(buf.String(), "\n")
			require.Equal(t,
				"https://example.com,10,1,website,2,0,"+model.ErrNoTerminal.Error()+","+dashes(16),
				lines[1])
			require.Equal(t,
				"https://b.example,5,1,website,2,0,"+report.NoResult+","+dashes(16),
				lines[2])
		})
	}
}

func TestWriteSummary_RetryCRLF(t *testing.T) {
	t.Parallel()

	header := "Url,Max Pages,Max Concurrency,Scan Type,Crawl Concurrency," + strings.Join(report.SummaryHeaders, ",")
	ok := "https://a.example,1,1,website,2,0,nil,t1,t2,3,90,nil,0,0,0,0,0,0,10,0,0,0,0"
	failed := "https://b.example,1,1,website,2,1,boom," + dashes(16)
	retryInput := header + "\r\n" + ok + "\r\n" + failed + "\r\n"

	in, err := input.Load(strings.NewReader(retryInput), 0)
	require.NoError(t, err)
	require.Equal(t, "\r\n", in.Newline)

	// nothing was rescanned, so the output is the input
	var buf bytes.Buffer
	require.NoError(t, report.WriteSummary(&buf, in, aggregate.New(true), model.PrecedenceResult))
	require.Equal(t, retryInput, buf.String())

	agg := aggregate.New(true)
	agg.AddError(model.ScanErrorRecord{ID: 2, URL: "https://b.example", Error: "again"})
	buf.Reset()
	require.NoError(t, report.WriteSummary(&buf, in, agg, model.PrecedenceResult))
	require.Equal(t,
		header+"\r\n"+ok+"\r\n"+"https://b.example,1,1,website,2,2,again,"+dashes(16)+"\r\n",
		buf.String())
}

func TestWriteSummary_Retry(t *testing.T) {
	t.Parallel()

	header := "Url,Max Pages,Max Concurrency,Scan Type,Crawl Concurrency," + strings.Join(report.SummaryHeaders, ",")
	ok := "https://a.example,1,1,website,2,0,nil,t1,t2,3,90,nil,0,0,0,0,0,0,10,0,0,0,0"
	failed := "https://b.example,1,1,website,2,1,boom," + dashes(16)
	stillFailing := `"https://c.example/?q=1,2",1,1,website,2,2,timeout,` + dashes(16)
	retryInput := header + "\n" + ok + "\n" + failed + "\n" + stillFailing + "\n"

	in, err := input.Load(strings.NewReader(retryInput), 0)
	require.NoError(t, err)
	require.True(t, in.RetryMode)

	agg := aggregate.New(true)
	agg.AddResult(exampleResult(2, "https://b.example"))
	agg.Flatten()

	var buf bytes.Buffer
	require.NoError(t, report.WriteSummary(&buf, in, agg, model.PrecedenceResult))
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Equal(t, []string{
		header,
		ok,
		"https://b.example,1,1,website,2,2,nil,2024-01-01 10:00:00,2024-01-01 10:05:00,3,87.5,1.1.1 :: 4.1.2,1,3,0,0,1,3,40,1,1,0,0",
		stillFailing,
	}, lines)
}

func TestDetails(t *testing.T) {
	t.Parallel()
	results := []model.ScanResultRecord{
		exampleResult(1, "https://example.com"),
		exampleResult(2, "https://b.example"),
		{ID: 3, URL: "https://empty.example"},
	}

	rows := report.Details(results)
	// 4 (rule, page) pairs per example result
	require.Len(t, rows, 8)
	require.Equal(t, report.Detail{
		ScanURL:          "https://example.com",
		RuleName:         "image-alt",
		RuleDescription:  "Images must have alternate text",
		URL:              "https://example.com/a",
		TotalOccurrences: 2,
		Category:         report.CategoryMustFix,
		AxeImpact:        "critical",
	}, rows[0])
	require.Equal(t, 1, rows[1].TotalOccurrences)
	require.Equal(t, report.Detail{
		ScanURL:          "https://example.com",
		RuleName:         "No rule name",
		RuleDescription:  "No description provided",
		URL:              "https://example.com/c",
		TotalOccurrences: 0,
		Category:         report.CategoryGoodToFix,
		AxeImpact:        "minor",
	}, rows[2])
	require.Equal(t, 3, rows[3].TotalOccurrences)
	require.Equal(t, report.CategoryNeedsReview, rows[3].Category)

	var buf bytes.Buffer
	require.NoError(t, report.WriteDetails(&buf, rows[3:4], true))
	require.Equal(t,
		"Scan URL,Rule Name,Rule Description,URL,Total Occurrences,Category,Axe Impact\n"+
			`"https://example.com","color-contrast","Text ""must"" contrast, enough","https://example.com/","3","needsReview","serious"`+"\n",
		buf.String())
}

func TestCleanError(t *testing.T) {
	t.Parallel()
	require.Equal(t, "a:: b::c::d", report.CleanError("a, b\nc\r\nd\n"))
}

func TestGenerate(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	in, agg := freshState(t)
	g := report.Generator{Dir: dir}

	require.NoError(t, g.Generate(t.Context(), in, agg))

	summary, err := os.ReadFile(filepath.Join(dir, report.SummaryFile))
	require.NoError(t, err)
	require.Len(t, strings.Split(strings.TrimSuffix(string(summary), "\n"), "\n"), 4)

	details, err := os.ReadFile(filepath.Join(dir, report.DetailsFile))
	require.NoError(t, err)
	require.Len(t, strings.Split(strings.TrimSuffix(string(details), "\n"), "\n"), 1+4)

	// a retry run appends details
	retryIn, err := input.Load(bytes.NewReader(summary), 0)
	require.NoError(t, err)
	require.True(t, retryIn.RetryMode)
	retryAgg := aggregate.New(true)
	retryAgg.AddResult(exampleResult(2, "https://b.example"))
	require.NoError(t, g.Generate(t.Context(), retryIn, retryAgg))

	details, err = os.ReadFile(filepath.Join(dir, report.DetailsFile))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(details), "\n"), "\n")
	require.Len(t, lines, 1+4+4)
	require.Equal(t, 1, strings.Count(string(details), "Scan URL,Rule Name"))

	summary2, err := os.ReadFile(filepath.Join(dir, report.SummaryFile))
	require.NoError(t, err)
	lines = strings.Split(strings.TrimSuffix(string(summary2), "\n"), "\n")
	require.Len(t, lines, 4)
	require.Equal(t, strings.Split(string(summary), "\n")[1], lines[1])
	require.True(t, strings.HasPrefix(lines[2], "https://b.example,5,1,website,2,1,nil,"), lines[2])
	require.Equal(t, strings.Split(string(summary), "\n")[3], lines[3])
}

func TestGenerate_RetryWithoutDetails(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	header := "Url,Max Pages,Max Concurrency,Scan Type,Crawl Concurrency," + strings.Join(report.SummaryHeaders, ",")
	in, err := input.Load(strings.NewReader(header+"\nhttps://b.example,1,1,website,2,0,boom,"+dashes(16)+"\n"), 0)
	require.NoError(t, err)
	agg := aggregate.New(true)
	agg.AddResult(exampleResult(1, "https://b.example"))

	require.NoError(t, report.Generator{Dir: dir}.Generate(t.Context(), in, agg))
	details, err := os.ReadFile(filepath.Join(dir, report.DetailsFile))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(details), "Scan URL,"))

	// details written without a final newline
	path := filepath.Join(dir, report.DetailsFile)
	require.NoError(t, os.WriteFile(path, []byte("Scan URL,Rule Name,Rule Description,URL,Total Occurrences,Category,Axe Impact"), 0o644))
	require.NoError(t, report.Generator{Dir: dir}.Generate(t.Context(), in, agg))
	details, err = os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, strings.Split(strings.TrimSuffix(string(details), "\n"), "\n"), 1+4)
}

func TestGenerate_Independent(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	// summary.csv can not replace a directory
	require.NoError(t, os.MkdirAll(filepath.Join(dir, report.SummaryFile, "x"), 0o755))

	in, agg := freshState(t)
	err := report.Generator{Dir: dir}.Generate(t.Context(), in, agg)
	require.Error(t, err)
	require.ErrorContains(t, err, report.SummaryFile)
	require.NotContains(t, err.Error(), report.DetailsFile)

	_, err = os.Stat(filepath.Join(dir, report.DetailsFile))
	require.NoError(t, err)
}

func TestPrintSummary(t *testing.T) {
	t.Parallel()
	agg := aggregate.New(false)
	agg.AddSummary("website", "https://example.com", []string{"Must fix: 1 issue"})
	agg.SetZipFileName("a11y-scan-results.zip")

	var buf bytes.Buffer
	report.PrintSummary(&buf, agg.SummaryLines())
	out := buf.String()
	require.Contains(t, out, "SCAN SUMMARY")
	require.Contains(t, out, "(Reports of the runs are at a11y-scan-results.zip.)")
	require.Contains(t, out, "website scan at https://example.com")
	require.Contains(t, out, "Must fix: 1 issue")

	buf.Reset()
	report.PrintSummary(&buf, nil)
	require.Empty(t, buf.String())
}
