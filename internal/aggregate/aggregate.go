// Package aggregate collects what the engine processes report during a run.
// Records are only ever appended, lookups go by job ID.
package aggregate

import (
	"fmt"
	"strings"
	"sync"

	"github.com/CZERTAINLY/massscan/internal/model"
)

const (
	// ViolationJoiner separates flattened violations, the field ends up in
	// a CSV cell, so it must not be a comma.
	ViolationJoiner = " :: "
	// NoViolations is the flattened form of an empty violation list.
	NoViolations = "nil"

	headline      = "SCAN SUMMARY"
	headlineRetry = "SCAN SUMMARY  [RETRY MODE]"
)

// Aggregator is the run state shared by all jobs. It is safe for concurrent
// use.
type Aggregator struct {
	retryMode bool

	mx      sync.Mutex
	results []model.ScanResultRecord
	errors  []model.ScanErrorRecord
	summary []string
	zipName string
	zipSet  bool
	failed  map[int]struct{}
}

func New(retryMode bool) *Aggregator {
	return &Aggregator{retryMode: retryMode}
}

func (a *Aggregator) RetryMode() bool {
	return a.retryMode
}

func (a *Aggregator) AddResult(rec model.ScanResultRecord) {
	a.mx.Lock()
	defer a.mx.Unlock()
	a.results = append(a.results, rec)
}

func (a *Aggregator) AddError(rec model.ScanErrorRecord) {
	a.mx.Lock()
	defer a.mx.Unlock()
	a.errors = append(a.errors, rec)
}

// MarkFailed records that the job of id did not succeed. Such a job is
// reported as failed even when the engine sent a result for it.
func (a *Aggregator) MarkFailed(id int) {
	a.mx.Lock()
	defer a.mx.Unlock()
	if a.failed == nil {
		a.failed = make(map[int]struct{})
	}
	a.failed[id] = struct{}{}
}

func (a *Aggregator) Failed(id int) bool {
	a.mx.Lock()
	defer a.mx.Unlock()
	_, ok := a.failed[id]
	return ok
}

// AddSummary appends the summary lines of one scan under a title naming it.
func (a *Aggregator) AddSummary(scanType, url string, lines []string) {
	a.mx.Lock()
	defer a.mx.Unlock()
	a.summary = append(a.summary, "", "", fmt.Sprintf("%s scan at %s", scanType, url))
	a.summary = append(a.summary, lines...)
}

// SetZipFileName keeps the first name of the run, later ones are ignored.
func (a *Aggregator) SetZipFileName(name string) {
	a.mx.Lock()
	defer a.mx.Unlock()
	if a.zipSet {
		return
	}
	a.zipName = name
	a.zipSet = true
}

func (a *Aggregator) ZipFileName() (string, bool) {
	a.mx.Lock()
	defer a.mx.Unlock()
	return a.zipName, a.zipSet
}

// Results returns a copy of all results in arrival order.
func (a *Aggregator) Results() []model.ScanResultRecord {
	a.mx.Lock()
	defer a.mx.Unlock()
	return append([]model.ScanResultRecord(nil), a.results...)
}

// Errors returns a copy of all errors in arrival order.
func (a *Aggregator) Errors() []model.ScanErrorRecord {
	a.mx.Lock()
	defer a.mx.Unlock()
	return append([]model.ScanErrorRecord(nil), a.errors...)
}

// ResultFor returns the first result of a job.
func (a *Aggregator) ResultFor(id int) (model.ScanResultRecord, bool) {
	a.mx.Lock()
	defer a.mx.Unlock()
	for _, r := range a.results {
		if r.ID == id {
			return r, true
		}
	}
	return model.ScanResultRecord{}, false
}

// ErrorsFor returns all errors of a job in arrival order.
func (a *Aggregator) ErrorsFor(id int) []model.ScanErrorRecord {
	a.mx.Lock()
	defer a.mx.Unlock()
	var ret []model.ScanErrorRecord
	for _, e := range a.errors {
		if e.ID == id {
			ret = append(ret, e)
		}
	}
	return ret
}

// SummaryLines returns the printable run summary. The headline is present
// only once the engine reported where the reports are.
func (a *Aggregator) SummaryLines() []string {
	a.mx.Lock()
	defer a.mx.Unlock()
	var ret []string
	if a.zipSet {
		h := headline
		if a.retryMode {
			h = headlineRetry
		}
		ret = append(ret, h, fmt.Sprintf("(Reports of the runs are at %s.)", a.zipName))
	}
	return append(ret, a.summary...)
}

// Flatten joins the violation list of every result into a single string.
// It is meant to run once every job has finished.
func (a *Aggregator) Flatten() {
	a.mx.Lock()
	defer a.mx.Unlock()
	for i := range a.results {
		a.results[i].WcagViolationsFlat = FlattenViolations(a.results[i].WcagViolations)
	}
}

func FlattenViolations(v []string) string {
	if len(v) == 0 {
		return NoViolations
	}
	return strings.Join(v, ViolationJoiner)
}
