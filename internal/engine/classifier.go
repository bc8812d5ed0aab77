package engine

import (
	"encoding/json"
	"strconv"
	"strings"
)

type EventKind int

const (
	EventNoPages EventKind = iota + 1
	EventResultsDir
	EventProgress
	EventStarted
	EventCompleted
	EventEngineError
)

func (k EventKind) String() string {
	switch k {
	case EventNoPages:
		return "no-pages"
	case EventResultsDir:
		return "results-dir"
	case EventProgress:
		return "progress"
	case EventStarted:
		return "started"
	case EventCompleted:
		return "completed"
	case EventEngineError:
		return "engine-error"
	default:
		return "unknown"
	}
}

// Terminal events end the engine process.
func (k EventKind) Terminal() bool {
	return k == EventNoPages || k == EventResultsDir
}

type Event struct {
	Kind     EventKind
	Progress Progress // EventProgress
	Message  string   // EventEngineError
}

// Progress is a single crawled page reported by the engine.
type Progress struct {
	Count  int
	Status string
	URL    string
}

// Classifier turns a line of engine output into lifecycle events.
type Classifier interface {
	Classify(line string) []Event
}

const (
	SentinelNoPages    = "No pages were scanned"
	SentinelResultsDir = "Results directory is at"
	SentinelProgress   = "Electron crawling"
	SentinelStarted    = "Starting scan"
	SentinelCompleted  = "Electron scan completed"
	sentinelErrorLevel = `"level":"error"`
)

// SentinelClassifier matches the fixed substrings printed by the engine.
type SentinelClassifier struct{}

func (SentinelClassifier) Classify(line string) []Event {
	var events []Event
	if strings.Contains(line, SentinelNoPages) {
		events = append(events, Event{Kind: EventNoPages})
	}
	if strings.Contains(line, SentinelResultsDir) {
		events = append(events, Event{Kind: EventResultsDir})
	}
	if strings.Contains(line, SentinelProgress) {
		if p, ok := parseProgress(line); ok {
			events = append(events, Event{Kind: EventProgress, Progress: p})
		}
	}
	if strings.Contains(line, SentinelStarted) {
		events = append(events, Event{Kind: EventStarted})
	}
	if strings.Contains(line, SentinelCompleted) {
		events = append(events, Event{Kind: EventCompleted})
	}
	if strings.Contains(line, sentinelErrorLevel) {
		events = append(events, Event{Kind: EventEngineError, Message: errorMessage(line)})
	}
	return events
}

// parseProgress reads "Electron crawling::<count>::<status>::<url>".
func parseProgress(line string) (Progress, bool) {
	parts := strings.SplitN(line, "::", 4)
	if len(parts) < 4 {
		return Progress{}, false
	}
	count, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return Progress{}, false
	}
	return Progress{
		Count:  count,
		Status: strings.TrimSpace(parts[2]),
		URL:    strings.TrimSpace(parts[3]),
	}, true
}

// errorMessage extracts message from a JSON log line of the engine, a line
// which does not parse is returned as is.
func errorMessage(line string) string {
	var entry struct {
		Message *string `json:"message"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(line)), &entry); err != nil || entry.Message == nil {
		return line
	}
	return *entry.Message
}
