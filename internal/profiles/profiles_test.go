package profiles

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/CZERTAINLY/massscan/internal/model"
	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	for _, d := range []string{
		"Purple-A11y",
		"Default/Purple-A11y-123",
		"Default/Purple-A11y-123/Purple-A11y-nested",
		"Profile 1/Keep",
	} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, filepath.FromSlash(d)), 0o755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "Profile 1", "Purple-A11y.lock"), []byte("x"), 0o644))

	removed, err := Clean(t.Context(), []string{root, filepath.Join(root, "missing")})
	require.NoError(t, err)
	require.NotEmpty(t, removed)

	for _, gone := range []string{"Purple-A11y", "Default/Purple-A11y-123", "Profile 1/Purple-A11y.lock"} {
		_, err := os.Stat(filepath.Join(root, filepath.FromSlash(gone)))
		require.ErrorIs(t, err, os.ErrNotExist, gone)
	}
	for _, kept := range []string{"Default", "Profile 1/Keep"} {
		_, err := os.Stat(filepath.Join(root, filepath.FromSlash(kept)))
		require.NoError(t, err, kept)
	}
}

func TestDataDir(t *testing.T) {
	t.Parallel()

	var testCases = []struct {
		goos    string
		docker  bool
		browser string
		then    string
	}{
		{"darwin", false, model.BrowserChrome, filepath.Join("/h", "Library", "Application Support", "Google", "Chrome")},
		{"windows", false, model.BrowserEdge, filepath.Join("/h", "AppData", "Local", "Microsoft", "Edge", "User Data")},
		{"linux", false, model.BrowserChromium, filepath.Join("/h", ".config", "chromium")},
		{"linux", true, model.BrowserChromium, "/app/chromium_support_folder"},
		{"plan9", false, model.BrowserChrome, ""},
		{"linux", false, "firefox", ""},
	}
	for _, tt := range testCases {
		t.Run(tt.goos+"/"+tt.browser, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.then, dataDir(tt.goos, "/h", tt.docker, tt.browser))
		})
	}
}
