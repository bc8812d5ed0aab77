package model

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"

	_ "embed"
)

const (
	PrecedenceResult = "result"
	PrecedenceError  = "error"

	appDirName = "purple-a11y"
)

//go:embed config.cue
var cueSource []byte

var (
	cueCtx *cue.Context
	schema cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource)
	if compiled.Err() != nil {
		panic(compiled.Err())
	}

	if err := compiled.Validate(); err != nil {
		panic(err)
	}

	schema = compiled.LookupPath(cue.ParsePath("#Config"))
	if schema.Err() != nil {
		panic(schema.Err())
	}
	if err := schema.Validate(); err != nil {
		panic(err)
	}
}

type Config struct {
	Version  int       `json:"version" yaml:"version"` // fixed 0 for now
	Engine   Engine    `json:"engine" yaml:"engine"`
	Scan     *Scan     `json:"scan,omitempty" yaml:"scan,omitempty"`
	Report   *Report   `json:"report,omitempty" yaml:"report,omitempty"`
	Service  *Service  `json:"service,omitempty" yaml:"service,omitempty"`
	Profiles *Profiles `json:"profiles,omitempty" yaml:"profiles,omitempty"`
}

// Engine describes how the external scan engine is started.
type Engine struct {
	Path       string   `json:"path" yaml:"path"`
	Args       []string `json:"args,omitempty" yaml:"args,omitempty"` // prepended to the job arguments, e.g. cli.js
	Dir        *string  `json:"dir,omitempty" yaml:"dir,omitempty"`
	Timeout    *string  `json:"timeout,omitempty" yaml:"timeout,omitempty"`       // per job, unset => no timeout
	WaitDelay  *string  `json:"wait_delay,omitempty" yaml:"wait_delay,omitempty"` // grace period for pipes after kill
	ResultsDir *string  `json:"results_dir,omitempty" yaml:"results_dir,omitempty"`
}

// Scan holds engine toggles, nil fields fall back to DefaultScanOptions.
type Scan struct {
	Headless           *bool   `json:"headless,omitempty" yaml:"headless,omitempty"`
	Browser            *string `json:"browser,omitempty" yaml:"browser,omitempty"`
	FileTypes          *string `json:"file_types,omitempty" yaml:"file_types,omitempty"`
	IncludeScreenshots *bool   `json:"include_screenshots,omitempty" yaml:"include_screenshots,omitempty"`
	IncludeSubdomains  *bool   `json:"include_subdomains,omitempty" yaml:"include_subdomains,omitempty"`
	FollowRobots       *bool   `json:"follow_robots,omitempty" yaml:"follow_robots,omitempty"`
	Metadata           *string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Device             *string `json:"device,omitempty" yaml:"device,omitempty"`
	ViewportWidth      *int    `json:"viewport_width,omitempty" yaml:"viewport_width,omitempty"`
	ExportDir          *string `json:"export_dir,omitempty" yaml:"export_dir,omitempty"`
}

type Report struct {
	Dir        *string `json:"dir,omitempty" yaml:"dir,omitempty"`               // where summary.csv and details.csv go
	Precedence *string `json:"precedence,omitempty" yaml:"precedence,omitempty"` // "result" | "error"
}

type Service struct {
	Verbose     *bool   `json:"verbose,omitempty" yaml:"verbose,omitempty"`
	ErrorLog    *string `json:"error_log,omitempty" yaml:"error_log,omitempty"`       // append-only warn/error log
	MetricsFile *string `json:"metrics_file,omitempty" yaml:"metrics_file,omitempty"` // prometheus textfile
}

type Profiles struct {
	Cleanup *bool    `json:"cleanup,omitempty" yaml:"cleanup,omitempty"`
	Dirs    []string `json:"dirs,omitempty" yaml:"dirs,omitempty"` // nil => browser default
}

// LoadConfig validates YAML from r against CUE schema and decodes to Config.
func LoadConfig(r io.Reader) (Config, error) {
	yamlFile, err := yaml.Extract("config.yaml", r)
	if err != nil {
		return Config{}, err
	}
	yamlValue := cueCtx.BuildFile(yamlFile)

	unified := schema.Unify(yamlValue)
	if err := unified.Validate(
		cue.All(),          // all constraints
		cue.Concrete(true), // no incomplete values
	); err != nil {
		return Config{}, err
	}

	var out Config
	if err := unified.Decode(&out); err != nil {
		return Config{}, err
	}

	return out, nil
}

func DefaultConfig(_ context.Context) Config {
	return Config{
		Version: 0,
		Engine: Engine{
			Path: "node",
			Args: []string{"cli.js"},
			Dir:  ptr(DefaultEngineDir()),
		},
		Report: &Report{
			Dir:        ptr("."),
			Precedence: ptr(PrecedenceResult),
		},
		Service: &Service{
			Verbose:  ptr(false),
			ErrorLog: ptr("errors.txt"),
		},
		Profiles: &Profiles{
			Cleanup: ptr(true),
		},
	}
}

// DefaultEngineDir returns the install location of the scan engine.
func DefaultEngineDir() string {
	if IsDocker() {
		return filepath.Join("/app", appDirName)
	}
	var appPath string
	if runtime.GOOS == "windows" {
		appPath = filepath.Join(os.Getenv("PROGRAMFILES"), "Purple A11y Desktop")
	} else {
		home, _ := os.UserHomeDir()
		appPath = filepath.Join(home, "Library", "Application Support", "Purple A11y")
	}
	return filepath.Join(appPath, "Purple A11y Backend", appDirName)
}

func IsDocker() bool {
	_, err := os.Stat("/.dockerenv")
	return err == nil
}

func (c Config) ScanOptions() ScanOptions {
	opts := DefaultScanOptions()
	s := c.Scan
	if s == nil {
		return opts
	}
	opts.HeadlessMode = deref(s.Headless, opts.HeadlessMode)
	opts.Browser = deref(s.Browser, opts.Browser)
	opts.FileTypes = deref(s.FileTypes, opts.FileTypes)
	opts.IncludeScreenshots = deref(s.IncludeScreenshots, opts.IncludeScreenshots)
	opts.IncludeSubdomains = deref(s.IncludeSubdomains, opts.IncludeSubdomains)
	opts.FollowRobots = deref(s.FollowRobots, opts.FollowRobots)
	opts.Metadata = deref(s.Metadata, opts.Metadata)
	opts.CustomDevice = deref(s.Device, opts.CustomDevice)
	opts.ViewportWidth = deref(s.ViewportWidth, opts.ViewportWidth)
	opts.ExportDir = deref(s.ExportDir, opts.ExportDir)
	return opts
}

func (c Config) Verbose() bool {
	if c.Service == nil {
		return false
	}
	return deref(c.Service.Verbose, false)
}

func (c Config) ErrorLog() string {
	if c.Service == nil {
		return "errors.txt"
	}
	return deref(c.Service.ErrorLog, "errors.txt")
}

func (c Config) MetricsFile() string {
	if c.Service == nil {
		return ""
	}
	return deref(c.Service.MetricsFile, "")
}

func (c Config) ReportDir() string {
	if c.Report == nil {
		return "."
	}
	return deref(c.Report.Dir, ".")
}

func (c Config) Precedence() string {
	if c.Report == nil {
		return PrecedenceResult
	}
	return deref(c.Report.Precedence, PrecedenceResult)
}

func (c Config) ProfileCleanup() bool {
	if c.Profiles == nil {
		return true
	}
	return deref(c.Profiles.Cleanup, true)
}

func (c Config) ProfileDirs() []string {
	if c.Profiles == nil {
		return nil
	}
	return c.Profiles.Dirs
}

// Timeouts returns the per job timeout and the pipe wait delay, zero if unset.
func (e Engine) Timeouts() (timeout, waitDelay time.Duration, err error) {
	if e.Timeout != nil {
		timeout, err = time.ParseDuration(*e.Timeout)
		if err != nil {
			return 0, 0, fmt.Errorf("parsing engine.timeout: %w", err)
		}
	}
	if e.WaitDelay != nil {
		waitDelay, err = time.ParseDuration(*e.WaitDelay)
		if err != nil {
			return 0, 0, fmt.Errorf("parsing engine.wait_delay: %w", err)
		}
	}
	return timeout, waitDelay, nil
}

func ptr[T any](v T) *T {
	return &v
}

func deref[T any](pt *T, def T) T {
	if pt == nil {
		return def
	}
	return *pt
}
