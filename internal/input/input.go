// Package input reads the batch input file. Every non blank data line
// becomes a Row whose ID is its 1-based line index after the header, the
// same index the reports use to find the row again.
package input

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"iter"
	"os"
	"strconv"
	"strings"

	"github.com/CZERTAINLY/massscan/internal/model"
)

const (
	ColURL              = "Url"
	ColMaxPages         = "Max Pages"
	ColMaxConcurrency   = "Max Concurrency"
	ColScanType         = "Scan Type"
	ColCrawlConcurrency = "Crawl Concurrency"
	ColError            = "Error"
	ColRetryCount       = "Retry Count"

	// NilError marks a row which was scanned successfully by a previous run.
	NilError = "nil"
)

var required = []string{
	ColURL,
	ColMaxPages,
	ColMaxConcurrency,
	ColScanType,
	ColCrawlConcurrency,
}

type Row struct {
	ID     int
	Line   string // raw line without the line terminator
	Fields []string
}

type Input struct {
	Header      string
	Newline     string // line terminator of the file, "\n" or "\r\n"
	Columns     []string
	Rows        []Row
	RetryMode   bool
	Concurrency int

	index map[string]int
}

// Open reads the input file at path. A positive concurrency overrides the
// Crawl Concurrency column.
func Open(path string, concurrency int) (Input, error) {
	f, err := os.Open(path)
	if err != nil {
		return Input{}, fmt.Errorf("opening input: %w", err)
	}
	defer f.Close()
	in, err := Load(f, concurrency)
	if err != nil {
		return Input{}, fmt.Errorf("loading %s: %w", path, err)
	}
	return in, nil
}

func Load(r io.Reader, concurrency int) (Input, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Input{}, fmt.Errorf("reading input: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	lines := strings.Split(string(data), "\n")
	newline := "\n"
	if strings.HasSuffix(lines[0], "\r") {
		newline = "\r\n"
	}
	header := strings.TrimRight(lines[0], "\r")
	if strings.TrimSpace(header) == "" {
		return Input{}, model.ErrEmptyInput
	}

	columns, err := splitLine(header)
	if err != nil {
		return Input{}, fmt.Errorf("parsing header: %w", err)
	}
	in := Input{
		Header:  header,
		Newline: newline,
		Columns: columns,
		index:   make(map[string]int, len(columns)),
	}
	for i, c := range columns {
		c = strings.TrimSpace(c)
		in.Columns[i] = c
		if _, ok := in.index[c]; !ok {
			in.index[c] = i
		}
	}

	for _, c := range required {
		if in.Column(c) < 0 {
			return Input{}, fmt.Errorf("%w: %q", model.ErrMissingColumn, c)
		}
	}
	in.RetryMode = in.Column(ColError) >= 0
	if in.RetryMode && in.Column(ColRetryCount) < 0 {
		return Input{}, fmt.Errorf("%w: %q is needed in retry mode", model.ErrMissingColumn, ColRetryCount)
	}

	for i, line := range lines[1:] {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields, err := splitLine(line)
		if err != nil {
			return Input{}, fmt.Errorf("parsing line %d: %w", i+2, err)
		}
		in.Rows = append(in.Rows, Row{ID: i + 1, Line: line, Fields: fields})
	}

	in.Concurrency = concurrency
	if in.Concurrency <= 0 {
		in.Concurrency, err = in.crawlConcurrency()
		if err != nil {
			return Input{}, err
		}
	}
	return in, nil
}

// Column returns the index of the named column or -1.
func (in Input) Column(name string) int {
	if i, ok := in.index[name]; ok {
		return i
	}
	return -1
}

// Value returns the trimmed cell of row in the named column, empty when
// the column or the cell does not exist.
func (in Input) Value(row Row, name string) string {
	i := in.Column(name)
	if i < 0 || i >= len(row.Fields) {
		return ""
	}
	return strings.TrimSpace(row.Fields[i])
}

// Pending reports whether row needs to be scanned. Everything is pending in
// a fresh run, a retry run picks only the rows which failed before.
func (in Input) Pending(row Row) bool {
	if !in.RetryMode {
		return true
	}
	return in.Value(row, ColError) != NilError
}

// Jobs yields a job for every pending row, in input order.
func (in Input) Jobs(identity model.Identity, opts model.ScanOptions) iter.Seq2[model.ScanJob, error] {
	return func(yield func(model.ScanJob, error) bool) {
		for _, row := range in.Rows {
			if !in.Pending(row) {
				continue
			}
			job := model.ScanJob{
				ID:             row.ID,
				URL:            in.Value(row, ColURL),
				ScanType:       in.Value(row, ColScanType),
				MaxPages:       in.Value(row, ColMaxPages),
				MaxConcurrency: in.Value(row, ColMaxConcurrency),
				Name:           identity.Name,
				Email:          identity.Email,
				Options:        opts,
			}
			if !yield(job, nil) {
				return
			}
		}
	}
}

// Count returns the number of pending rows.
func (in Input) Count() int {
	var n int
	for _, row := range in.Rows {
		if in.Pending(row) {
			n++
		}
	}
	return n
}

// RetryCount returns the Retry Count cell of a row, 0 when it does not parse.
func (in Input) RetryCount(row Row) int {
	n, err := strconv.Atoi(in.Value(row, ColRetryCount))
	if err != nil {
		return 0
	}
	return n
}

// Prefix returns the raw bytes of row preceding the given column, including
// the trailing separator. Quoting is kept as is. When the row is shorter,
// the whole line followed by a separator is returned.
func (in Input) Prefix(row Row, column int) string {
	if column <= 0 {
		return ""
	}
	n := 0
	quoted := false
	for i := 0; i < len(row.Line); i++ {
		switch c := row.Line[i]; {
		case c == '"':
			quoted = !quoted
		case c == ',' && !quoted:
			n++
			if n == column {
				return row.Line[:i+1]
			}
		}
	}
	return row.Line + ","
}

func (in Input) crawlConcurrency() (int, error) {
	for _, row := range in.Rows {
		v := in.Value(row, ColCrawlConcurrency)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return 0, fmt.Errorf("%w: %q", model.ErrNoConcurrency, v)
		}
		return n, nil
	}
	return 0, model.ErrNoConcurrency
}

func splitLine(line string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	fields, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	return fields, err
}
