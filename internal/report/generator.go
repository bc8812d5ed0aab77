// Package report writes the summary and details reports of a run.
package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/CZERTAINLY/massscan/internal/input"
	"github.com/CZERTAINLY/massscan/internal/model"
)

const (
	SummaryFile = "summary.csv"
	DetailsFile = "details.csv"
)

type Generator struct {
	Dir        string
	Precedence string
}

// Generate writes both reports. A failure of one report does not prevent
// the other, the errors are logged and returned joined.
func (g Generator) Generate(ctx context.Context, in input.Input, src Source) error {
	var errs []error
	if err := g.summary(in, src); err != nil {
		slog.ErrorContext(ctx, "creating summary report", "path", g.path(SummaryFile), "error", err)
		errs = append(errs, fmt.Errorf("creating %s: %w", SummaryFile, err))
	} else {
		slog.InfoContext(ctx, "report created", "path", g.path(SummaryFile))
	}
	if err := g.details(in.RetryMode, src); err != nil {
		slog.ErrorContext(ctx, "creating details report", "path", g.path(DetailsFile), "error", err)
		errs = append(errs, fmt.Errorf("creating %s: %w", DetailsFile, err))
	} else {
		slog.InfoContext(ctx, "report created", "path", g.path(DetailsFile))
	}
	return errors.Join(errs...)
}

func (g Generator) path(name string) string {
	dir := g.Dir
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, name)
}

func (g Generator) precedence() string {
	if g.Precedence == "" {
		return model.PrecedenceResult
	}
	return g.Precedence
}

// summary replaces the file at once, the input may be the summary of a
// previous run.
func (g Generator) summary(in input.Input, src Source) error {
	path := g.path(SummaryFile)
	return replaceFile(path, func(w io.Writer) error {
		return WriteSummary(w, in, src, g.precedence())
	})
}

func (g Generator) details(retryMode bool, src Source) error {
	path := g.path(DetailsFile)
	rows := Details(src.Results())
	if !retryMode {
		return replaceFile(path, func(w io.Writer) error {
			return WriteDetails(w, rows, true)
		})
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	header, err := needsHeader(f)
	if err != nil {
		_ = f.Close()
		return err
	}
	if !header {
		if err := ensureNewline(f); err != nil {
			_ = f.Close()
			return err
		}
	}
	if err := WriteDetails(f, rows, header); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func needsHeader(f *os.File) (bool, error) {
	info, err := f.Stat()
	if err != nil {
		return false, err
	}
	return info.Size() == 0, nil
}

// ensureNewline terminates the last line of a file written by an older
// version, which did not end with a newline.
func ensureNewline(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return err
	}
	if last[0] == '\n' {
		return nil
	}
	_, err = f.Write([]byte("\n"))
	return err
}

func replaceFile(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
