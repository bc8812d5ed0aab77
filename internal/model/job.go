package model

// Browser engines understood by the scan engine.
const (
	BrowserChrome   = "chrome"
	BrowserEdge     = "msedge"
	BrowserChromium = "chromium"

	ScanTypeWebsite = "website"
)

// ScanOptions are the per-run engine toggles shared by every job.
// Zero values are not the defaults, use DefaultScanOptions.
type ScanOptions struct {
	HeadlessMode       bool   // false => -h no
	Browser            string // non-empty => -b
	FileTypes          string // always passed as -i
	IncludeScreenshots bool   // false => -a none
	IncludeSubdomains  bool   // false on website scans => -s same-hostname
	FollowRobots       bool   // true => -r yes
	Metadata           string // non-empty => -q
	CustomDevice       string // non-empty => -d
	ViewportWidth      int    // positive => -w
	ExportDir          string // non-empty => -e
}

func DefaultScanOptions() ScanOptions {
	return ScanOptions{
		HeadlessMode:       true,
		Browser:            BrowserChromium,
		FileTypes:          "html-only",
		IncludeScreenshots: false,
		IncludeSubdomains:  true,
		FollowRobots:       false,
	}
}

// ScanJob is a single input row turned into an engine invocation.
// ID is the 1-based data row index of the input file and is the only
// correlation key used by the aggregator and the reports.
type ScanJob struct {
	ID             int
	URL            string
	ScanType       string
	MaxPages       string
	MaxConcurrency string
	Name           string
	Email          string
	Options        ScanOptions
}

// ScanOutcome is the terminal state of one engine process.
type ScanOutcome struct {
	Success bool
	// StatusCode is set only when the failure was inferred from a non-zero exit.
	StatusCode *int
	// Reason is a human readable explanation of a failure, empty on success.
	Reason string
}
