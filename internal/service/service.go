package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/CZERTAINLY/massscan/internal/aggregate"
	"github.com/CZERTAINLY/massscan/internal/engine"
	"github.com/CZERTAINLY/massscan/internal/input"
	"github.com/CZERTAINLY/massscan/internal/log"
	"github.com/CZERTAINLY/massscan/internal/metrics"
	"github.com/CZERTAINLY/massscan/internal/model"
	"github.com/CZERTAINLY/massscan/internal/parallel"
	"github.com/CZERTAINLY/massscan/internal/profiles"
	"github.com/CZERTAINLY/massscan/internal/report"

	"github.com/google/uuid"
)

// Options are the per invocation inputs of a run.
type Options struct {
	InputPath   string
	Identity    model.Identity
	Concurrency int // > 0 overrides the input file
	Config      model.Config
	Stdout      io.Writer // run summary, os.Stdout when nil
}

// Scanner is a component, which encapsulates a single batch run.
type Scanner struct {
	opts    Options
	in      input.Input
	cmd     engine.Command
	agg     *aggregate.Aggregator
	sink    engine.Sink
	metrics *metrics.Metrics
}

// NewScanner validates everything needed before the first job starts.
func NewScanner(opts Options) (*Scanner, error) {
	cfg := opts.Config
	if cfg.Version != 0 {
		return nil, fmt.Errorf("config version %d is not supported, expected 0", cfg.Version)
	}

	in, err := input.Open(opts.InputPath, opts.Concurrency)
	if err != nil {
		return nil, err
	}

	cmd, err := command(cfg.Engine)
	if err != nil {
		return nil, err
	}

	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	agg := aggregate.New(in.RetryMode)
	m := metrics.New()
	return &Scanner{
		opts:    opts,
		in:      in,
		cmd:     cmd,
		agg:     agg,
		sink:    countingSink{Sink: agg, metrics: m},
		metrics: m,
	}, nil
}

// Run implements the CLI run command.
func Run(ctx context.Context, opts Options) error {
	s, err := NewScanner(opts)
	if err != nil {
		return err
	}
	return s.Do(ctx)
}

// Do scans every pending row and writes the reports.
func (s *Scanner) Do(ctx context.Context) error {
	ctx = log.ContextAttrs(ctx, slog.String("run_id", uuid.NewString()))
	cfg := s.opts.Config

	slog.InfoContext(ctx, "starting mass scan",
		"input", s.opts.InputPath,
		"jobs", s.in.Count(),
		"concurrency", s.in.Concurrency,
		"retry_mode", s.in.RetryMode,
	)

	s.cleanProfiles(ctx)
	s.scan(ctx)
	s.cleanProfiles(ctx)

	s.agg.Flatten()

	gen := report.Generator{
		Dir:        cfg.ReportDir(),
		Precedence: cfg.Precedence(),
	}
	if err := gen.Generate(ctx, s.in, s.agg); err != nil {
		slog.ErrorContext(ctx, "report generation failed", "error", err)
	}

	report.PrintSummary(s.opts.Stdout, s.agg.SummaryLines())

	if path := cfg.MetricsFile(); path != "" {
		if err := s.metrics.WriteFile(path); err != nil {
			slog.ErrorContext(ctx, "writing metrics", "path", path, "error", err)
		}
	}
	return nil
}

type jobResult struct {
	job      model.ScanJob
	outcome  model.ScanOutcome
	duration time.Duration
}

func (s *Scanner) scan(ctx context.Context) {
	mgr := engine.NewManager(s.cmd, s.sink)
	jobs := s.in.Jobs(s.opts.Identity, s.opts.Config.ScanOptions())

	pmap := parallel.NewMap(ctx, s.in.Concurrency, func(ctx context.Context, job model.ScanJob) (jobResult, error) {
		return s.runJob(ctx, mgr, job)
	})
	for res, err := range pmap.Iter(jobs) {
		if err != nil {
			slog.ErrorContext(ctx, "scan job failed", "error", err)
			continue
		}
		attrs := []any{
			"job_id", res.job.ID,
			"url", res.job.URL,
			"duration", res.duration.String(),
		}
		if res.outcome.Success {
			slog.InfoContext(ctx, "scan finished", attrs...)
			continue
		}
		if res.outcome.StatusCode != nil {
			attrs = append(attrs, "status_code", *res.outcome.StatusCode)
		}
		slog.WarnContext(ctx, "scan failed", append(attrs, "reason", res.outcome.Reason)...)
	}
}

func (s *Scanner) runJob(ctx context.Context, mgr *engine.Manager, job model.ScanJob) (jobResult, error) {
	s.metrics.JobStarted()
	start := time.Now()
	outcome, err := mgr.Scan(ctx, job)
	elapsed := time.Since(start)
	if err != nil {
		s.metrics.JobFinished(metrics.OutcomeError, elapsed)
		s.agg.MarkFailed(job.ID)
		s.sink.AddError(model.NewErrorRecord(job, err.Error()))
		return jobResult{}, fmt.Errorf("job %d (%s): %w", job.ID, job.URL, err)
	}

	if outcome.Success {
		s.metrics.JobFinished(metrics.OutcomeSuccess, elapsed)
	} else {
		s.metrics.JobFinished(metrics.OutcomeFailure, elapsed)
		// a failure always leaves a reason in the reports, even next to a result
		s.agg.MarkFailed(job.ID)
		if !hasMessage(s.agg.ErrorsFor(job.ID)) {
			s.sink.AddError(model.NewErrorRecord(job, outcome.Reason))
		}
	}
	return jobResult{job: job, outcome: outcome, duration: elapsed}, nil
}

func hasMessage(errs []model.ScanErrorRecord) bool {
	for _, e := range errs {
		if strings.TrimSpace(e.Error) != "" {
			return true
		}
	}
	return false
}

func (s *Scanner) cleanProfiles(ctx context.Context) {
	cfg := s.opts.Config
	if !cfg.ProfileCleanup() {
		return
	}
	dirs := cfg.ProfileDirs()
	if dirs == nil {
		dirs = profiles.DefaultDirs(cfg.ScanOptions().Browser)
	}
	if _, err := profiles.Clean(ctx, dirs); err != nil {
		slog.WarnContext(ctx, "cleaning cloned browser profiles", "error", err)
	}
}

func command(e model.Engine) (engine.Command, error) {
	timeout, waitDelay, err := e.Timeouts()
	if err != nil {
		return engine.Command{}, err
	}
	resultsDir := ""
	if e.ResultsDir != nil {
		resultsDir = *e.ResultsDir
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			return engine.Command{}, fmt.Errorf("getting working directory: %w", err)
		}
		resultsDir = filepath.Join(cwd, "results")
	}
	cmd := engine.Command{
		Path:       e.Path,
		Args:       e.Args,
		ResultsDir: resultsDir,
		Timeout:    timeout,
		WaitDelay:  waitDelay,
	}
	if e.Dir != nil {
		cmd.Dir = *e.Dir
	}
	return cmd, nil
}

// countingSink counts the records flowing into the aggregator.
type countingSink struct {
	engine.Sink
	metrics *metrics.Metrics
}

func (c countingSink) AddResult(rec model.ScanResultRecord) {
	c.metrics.IncRecords(metrics.KindResult)
	c.Sink.AddResult(rec)
}

func (c countingSink) AddError(rec model.ScanErrorRecord) {
	c.metrics.IncRecords(metrics.KindError)
	c.Sink.AddError(rec)
}
