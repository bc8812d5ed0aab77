package engine

import (
	"context"
	"log/slog"

	"github.com/CZERTAINLY/massscan/internal/model"
)

// Notifier receives informational events of a running job.
type Notifier interface {
	Started(ctx context.Context, job model.ScanJob)
	Progress(ctx context.Context, job model.ScanJob, p Progress)
	Completed(ctx context.Context, job model.ScanJob)
}

// LogNotifier writes the events as info log lines.
type LogNotifier struct{}

func (LogNotifier) Started(ctx context.Context, job model.ScanJob) {
	slog.InfoContext(ctx, "starting scan", "scan_type", job.ScanType)
}

func (LogNotifier) Progress(ctx context.Context, _ model.ScanJob, p Progress) {
	slog.InfoContext(ctx, "crawling", "count", p.Count, "status", p.Status, "page", p.URL)
}

func (LogNotifier) Completed(ctx context.Context, job model.ScanJob) {
	slog.InfoContext(ctx, "scan completed", "scan_type", job.ScanType)
}
