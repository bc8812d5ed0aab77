// Package profiles removes the browser profiles cloned by the scan engine.
package profiles

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/CZERTAINLY/massscan/internal/model"

	"github.com/bmatcuk/doublestar/v4"
)

// Pattern matches the profile directories cloned by the engine.
const Pattern = "**/Purple-A11y*"

const dockerChromiumDir = "/app/chromium_support_folder"

// DefaultDirs returns the data directory of browser, if it exists.
func DefaultDirs(browser string) []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	dir := dataDir(runtime.GOOS, home, model.IsDocker(), browser)
	if dir == "" {
		return nil
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil
	}
	return []string{dir}
}

func dataDir(goos, home string, docker bool, browser string) string {
	switch browser {
	case model.BrowserChrome:
		switch goos {
		case "windows":
			return filepath.Join(home, "AppData", "Local", "Google", "Chrome", "User Data")
		case "darwin":
			return filepath.Join(home, "Library", "Application Support", "Google", "Chrome")
		case "linux":
			return filepath.Join(home, ".config", "google-chrome")
		}
	case model.BrowserEdge:
		switch goos {
		case "windows":
			return filepath.Join(home, "AppData", "Local", "Microsoft", "Edge", "User Data")
		case "darwin":
			return filepath.Join(home, "Library", "Application Support", "Microsoft Edge")
		case "linux":
			return filepath.Join(home, ".config", "microsoft-edge")
		}
	case model.BrowserChromium:
		if docker {
			return dockerChromiumDir
		}
		switch goos {
		case "windows":
			return filepath.Join(home, "AppData", "Local", "Chromium", "User Data")
		case "darwin":
			return filepath.Join(home, "Library", "Application Support", "Chromium")
		case "linux":
			return filepath.Join(home, ".config", "chromium")
		}
	}
	return ""
}

// Clean removes everything matching Pattern under dirs and returns the
// removed paths. A failed removal is logged and the rest continues.
func Clean(ctx context.Context, dirs []string) ([]string, error) {
	var removed []string
	var errs []error
	for _, dir := range dirs {
		matches, err := doublestar.Glob(os.DirFS(dir), Pattern, doublestar.WithFailOnIOErrors())
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			errs = append(errs, fmt.Errorf("searching %s: %w", dir, err))
			continue
		}
		for _, m := range matches {
			path := filepath.Join(dir, filepath.FromSlash(m))
			if err := os.RemoveAll(path); err != nil {
				slog.WarnContext(ctx, "unable to delete cloned profile", "path", path, "error", err)
				errs = append(errs, err)
				continue
			}
			removed = append(removed, path)
		}
	}
	if len(removed) > 0 {
		slog.DebugContext(ctx, "cloned profiles deleted", "count", len(removed))
	}
	return removed, errors.Join(errs...)
}
