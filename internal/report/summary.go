package report

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/CZERTAINLY/massscan/internal/aggregate"
	"github.com/CZERTAINLY/massscan/internal/input"
	"github.com/CZERTAINLY/massscan/internal/model"
)

// SummaryHeaders are appended to the input header in a fresh run.
var SummaryHeaders = []string{
	"Retry Count",
	"Error",
	"Start Time",
	"End Time",
	"Pages Scanned",
	"Wcag Pass Percentage",
	"Wcag Violations",
	"Must Fix Issues",
	"Must Fix Occurrences",
	"Good to Fix Issues",
	"Good to Fix Occurrences",
	"Needs Review Issues",
	"Needs Review Occurrences",
	"Passed Occurrences",
	"Critical Occurrences",
	"Serious Occurrences",
	"Moderate Occurrences",
	"Minor Occurrences",
}

const (
	// NoResult is reported for a scanned row nothing was received for.
	NoResult = "no result received from scan engine"

	noError      = "nil"
	notAvailable = "-"
	errorJoiner  = "::"
)

var errorCleaner = strings.NewReplacer(
	",", errorJoiner,
	"\r\n", errorJoiner,
	"\n", errorJoiner,
	"\r", errorJoiner,
)

// Source is the read side of the aggregated run state.
type Source interface {
	Results() []model.ScanResultRecord
	ResultFor(id int) (model.ScanResultRecord, bool)
	ErrorsFor(id int) []model.ScanErrorRecord
	Failed(id int) bool
}

// WriteSummary writes one line per input row in the input order. A fresh
// run appends the status block to every row. A retry run replaces the
// block starting at the Retry Count column of rows with a record and keeps
// the other rows untouched.
func WriteSummary(w io.Writer, in input.Input, src Source, precedence string) error {
	bw := bufio.NewWriter(w)
	newline := in.Newline
	if newline == "" {
		newline = "\n"
	}

	header := in.Header
	if !in.RetryMode {
		header = strings.TrimSpace(header) + "," + strings.Join(SummaryHeaders, ",")
	}
	if _, err := bw.WriteString(header + newline); err != nil {
		return err
	}

	retryCol := in.Column(input.ColRetryCount)
	for _, row := range in.Rows {
		line, err := summaryLine(in, row, src, precedence, retryCol)
		if err != nil {
			return err
		}
		if _, err := bw.WriteString(line + newline); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func summaryLine(in input.Input, row input.Row, src Source, precedence string, retryCol int) (string, error) {
	retry := 0
	if in.RetryMode {
		retry = in.RetryCount(row) + 1
	}

	block, ok := statusBlock(row.ID, src, precedence, retry)
	if !ok {
		if in.RetryMode {
			return row.Line, nil
		}
		block = errorBlock(retry, NoResult)
	}

	cells, err := joinCells(block)
	if err != nil {
		return "", err
	}
	if in.RetryMode {
		return in.Prefix(row, retryCol) + cells, nil
	}
	return row.Line + "," + cells, nil
}

// statusBlock picks the record shaping the row. A failed job is always an
// error row. When a successful job has both a result and errors the
// precedence decides, result wins by default.
func statusBlock(id int, src Source, precedence string, retry int) ([]string, bool) {
	res, hasResult := src.ResultFor(id)
	errs := src.ErrorsFor(id)
	failed := src.Failed(id)

	useError := failed || (len(errs) > 0 && (!hasResult || precedence == model.PrecedenceError))
	switch {
	case useError:
		msgs := make([]string, 0, len(errs))
		for _, e := range errs {
			if strings.TrimSpace(e.Error) != "" {
				msgs = append(msgs, e.Error)
			}
		}
		if len(msgs) == 0 {
			return errorBlock(retry, NoResult), true
		}
		return errorBlock(retry, strings.Join(msgs, "\n")), true
	case hasResult:
		return resultBlock(retry, res), true
	default:
		return nil, false
	}
}

func resultBlock(retry int, r model.ScanResultRecord) []string {
	flat := r.WcagViolationsFlat
	if flat == "" {
		flat = aggregate.FlattenViolations(r.WcagViolations)
	}
	return []string{
		strconv.Itoa(retry),
		noError,
		r.StartTime.String(),
		r.EndTime.String(),
		r.PagesScanned.String(),
		r.WcagPassPercentage.String(),
		flat,
		r.MustFix.Issues.String(),
		r.MustFix.Occurrence.String(),
		r.GoodToFix.Issues.String(),
		r.GoodToFix.Occurrence.String(),
		r.NeedsReview.Issues.String(),
		r.NeedsReview.Occurrence.String(),
		r.Passed.Occurrence.String(),
		r.Critical.String(),
		r.Serious.String(),
		r.Moderate.String(),
		r.Minor.String(),
	}
}

func errorBlock(retry int, msg string) []string {
	ret := make([]string, len(SummaryHeaders))
	ret[0] = strconv.Itoa(retry)
	ret[1] = CleanError(msg)
	for i := 2; i < len(ret); i++ {
		ret[i] = notAvailable
	}
	return ret
}

// CleanError makes msg fit into a single CSV cell.
func CleanError(msg string) string {
	return errorCleaner.Replace(strings.TrimRight(msg, "\r\n"))
}

func joinCells(cells []string) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(cells); err != nil {
		return "", err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
