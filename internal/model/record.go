package model

import (
	"encoding/json"
)

// ScanResultRecord is the payload of a scanData message. ID and URL are
// stamped by the orchestrator, the engine does not know them.
type ScanResultRecord struct {
	ID                 int      `json:"id"`
	URL                string   `json:"url"`
	StartTime          Scalar   `json:"startTime"`
	EndTime            Scalar   `json:"endTime"`
	PagesScanned       Scalar   `json:"pagesScanned"`
	WcagPassPercentage Scalar   `json:"wcagPassPercentage"`
	WcagViolations     []string `json:"wcagViolations"`
	// WcagViolationsFlat is filled by the aggregator flatten pass.
	WcagViolationsFlat string   `json:"-"`
	MustFix            Category `json:"mustFix"`
	GoodToFix          Category `json:"goodToFix"`
	NeedsReview        Category `json:"needsReview"`
	Passed             Passed   `json:"passed"`
	Critical           Scalar   `json:"critical"`
	Serious            Scalar   `json:"serious"`
	Moderate           Scalar   `json:"moderate"`
	Minor              Scalar   `json:"minor"`
}

type Category struct {
	Issues     Scalar `json:"issues"`
	Occurrence Scalar `json:"occurrence"`
	Rules      []Rule `json:"rules"`
}

type Rule struct {
	Rule          string         `json:"rule"`
	Description   string         `json:"description"`
	AxeImpact     string         `json:"axeImpact"`
	PagesAffected []PageAffected `json:"pagesAffected"`
}

type PageAffected struct {
	URL   string            `json:"url"`
	Items []json.RawMessage `json:"items"`
}

type Passed struct {
	Occurrence Scalar `json:"occurrence"`
}

// ScanErrorRecord is a single error observed for a job. A job may have many.
type ScanErrorRecord struct {
	ID    int    `json:"id"`
	URL   string `json:"url"`
	Error string `json:"error"`
}

func NewErrorRecord(job ScanJob, msg string) ScanErrorRecord {
	return ScanErrorRecord{ID: job.ID, URL: job.URL, Error: msg}
}
