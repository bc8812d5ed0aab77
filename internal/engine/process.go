package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/CZERTAINLY/massscan/internal/log"
	"github.com/CZERTAINLY/massscan/internal/model"
)

const maxMessageSize = 64 << 20

var ErrTimeout = errors.New("scan timed out")

// Manager starts one engine process per job.
type Manager struct {
	cmd        Command
	sink       Sink
	classifier Classifier
	notifier   Notifier
}

func NewManager(cmd Command, sink Sink) *Manager {
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = defaultWaitDelay
	}
	return &Manager{
		cmd:        cmd,
		sink:       sink,
		classifier: SentinelClassifier{},
		notifier:   LogNotifier{},
	}
}

func (m *Manager) WithClassifier(c Classifier) *Manager {
	m.classifier = c
	return m
}

func (m *Manager) WithNotifier(n Notifier) *Manager {
	m.notifier = n
	return m
}

// Scan runs the engine for a job and blocks until the outcome is known and
// all output of the process has been consumed. Cancelling ctx kills the
// process. The returned error is set only when the process could not be
// started.
func (m *Manager) Scan(ctx context.Context, job model.ScanJob) (model.ScanOutcome, error) {
	p := &Process{
		cmd:        m.cmd,
		job:        job,
		sink:       m.sink,
		classifier: m.classifier,
		notifier:   m.notifier,
	}
	return p.run(ctx)
}

// Process supervises a single engine process. It is owned by the goroutine
// running the job.
type Process struct {
	cmd        Command
	job        model.ScanJob
	sink       Sink
	classifier Classifier
	notifier   Notifier

	kill    context.CancelFunc
	once    sync.Once
	decided bool
	outcome model.ScanOutcome
}

func (p *Process) run(ctx context.Context) (model.ScanOutcome, error) {
	ctx = log.ContextAttrs(ctx,
		slog.Int("job_id", p.job.ID),
		slog.String("url", p.job.URL),
	)

	if p.cmd.Timeout == 0 {
		slog.WarnContext(ctx, "command has no timeout", "path", p.cmd.Path)
	} else {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, p.cmd.Timeout,
			fmt.Errorf("%w after %s", ErrTimeout, p.cmd.Timeout))
		defer cancel()
	}

	procCtx, kill := context.WithCancel(ctx)
	defer kill()
	p.kill = kill

	cmd := exec.CommandContext(procCtx, p.cmd.Path, p.cmd.argv(p.job)...)
	cmd.Dir = p.cmd.Dir
	cmd.Env = environ(os.Environ(), p.cmd.ResultsDir, p.cmd.Env)
	cmd.WaitDelay = p.cmd.WaitDelay
	setProcessGroup(cmd)

	ipcR, ipcW, err := os.Pipe()
	if err != nil {
		return failed(err.Error()), fmt.Errorf("creating message pipe: %w", err)
	}
	defer ipcR.Close()
	cmd.ExtraFiles = []*os.File{ipcW}

	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	started := time.Now().UTC()
	slog.DebugContext(ctx, "starting scan engine", "path", p.cmd.Path, "args", cmd.Args[1:])
	if err := cmd.Start(); err != nil {
		ipcW.Close()
		return failed(err.Error()), fmt.Errorf("starting scan engine: %w", err)
	}
	// the child holds its own copy
	ipcW.Close()

	var wg sync.WaitGroup
	wg.Go(func() {
		p.readLines(ctx, stdoutR, p.onStdout)
	})
	wg.Go(func() {
		p.readLines(ctx, stderrR, p.onStderr)
	})
	wg.Go(func() {
		p.readMessages(ctx, ipcR)
	})

	werr := cmd.Wait()
	stdoutW.Close()
	stderrW.Close()
	// a leftover grandchild may keep the message pipe open
	_ = ipcR.SetReadDeadline(time.Now().Add(p.cmd.WaitDelay))
	wg.Wait()

	outcome := p.resolve(ctx, werr)
	slog.DebugContext(ctx, "scan engine stopped",
		"success", outcome.Success,
		"duration", time.Since(started).String(),
		"wait", werr,
	)
	return outcome, nil
}

// resolve decides the outcome once the process is gone. A terminal event
// wins over the exit status.
func (p *Process) resolve(ctx context.Context, werr error) model.ScanOutcome {
	if p.decided {
		return p.outcome
	}

	if ctx.Err() != nil {
		cause := context.Cause(ctx)
		msg := cause.Error()
		if !errors.Is(cause, ErrTimeout) {
			msg = "scan canceled: " + msg
		}
		slog.WarnContext(ctx, "scan engine stopped before finishing", "reason", msg)
		p.sink.AddError(model.NewErrorRecord(p.job, msg))
		return failed(msg)
	}

	var exitErr *exec.ExitError
	switch {
	case errors.As(werr, &exitErr) && exitErr.ExitCode() > 0:
		code := exitErr.ExitCode()
		return model.ScanOutcome{
			Success:    false,
			StatusCode: &code,
			Reason:     fmt.Sprintf("scan engine exited with code %d", code),
		}
	case errors.As(werr, &exitErr):
		// killed by a signal, there is no exit code
		return failed(fmt.Sprintf("scan engine terminated: %v", exitErr))
	case werr != nil:
		return failed(fmt.Sprintf("scan engine failed: %v", werr))
	default:
		return failed(model.ErrNoTerminal.Error())
	}
}

func (p *Process) decide(ctx context.Context, outcome model.ScanOutcome) {
	p.once.Do(func() {
		p.outcome = outcome
		p.decided = true
		slog.DebugContext(ctx, "terminal signal received, stopping scan engine", "success", outcome.Success)
		p.kill()
	})
}

func (p *Process) onStdout(ctx context.Context, line string) {
	for _, ev := range p.classifier.Classify(line) {
		switch ev.Kind {
		case EventNoPages:
			p.decide(ctx, failed(SentinelNoPages))
		case EventResultsDir:
			p.decide(ctx, model.ScanOutcome{Success: true})
		case EventProgress:
			p.notifier.Progress(ctx, p.job, ev.Progress)
		case EventStarted:
			p.notifier.Started(ctx, p.job)
		case EventCompleted:
			p.notifier.Completed(ctx, p.job)
		case EventEngineError:
			slog.WarnContext(ctx, "scan engine reported an error", "message", ev.Message)
			p.sink.AddError(model.NewErrorRecord(p.job, ev.Message))
		}
	}
}

// onStderr records every line as is, blank lines included.
func (p *Process) onStderr(ctx context.Context, line string) {
	slog.DebugContext(ctx, "stderr", "line", line)
	p.sink.AddError(model.NewErrorRecord(p.job, line))
}

func (p *Process) readLines(ctx context.Context, r io.Reader, fn func(context.Context, string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageSize)
	for scanner.Scan() {
		fn(ctx, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		slog.ErrorContext(ctx, "reading scan engine output", "error", err)
	}
	// keep the writer unblocked
	_, _ = io.Copy(io.Discard, r)
}

func (p *Process) readMessages(ctx context.Context, r *os.File) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		p.handleMessage(ctx, line)
	}
	err := scanner.Err()
	switch {
	case err == nil:
	case errors.Is(err, os.ErrDeadlineExceeded):
		slog.WarnContext(ctx, "message channel still open after the scan engine exited")
		return
	default:
		slog.ErrorContext(ctx, "reading scan engine messages", "error", err)
	}
	_, _ = io.Copy(io.Discard, r)
}

func failed(reason string) model.ScanOutcome {
	return model.ScanOutcome{Success: false, Reason: reason}
}
