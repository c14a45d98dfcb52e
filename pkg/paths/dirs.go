package paths

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	EnvEventDir = "UISYNC_EVENT_DIR"

	defaultEventDirName = "uisync-events"
	configDirName       = ".uisync"
)

// EventDir returns the rendezvous directory for named events.
// UISYNC_EVENT_DIR wins over configured; both expand a leading ~.
// With neither set the directory lives under the system temp dir so that
// unrelated processes of any user agree on it.
func EventDir(configured string) string {
	if dir := strings.TrimSpace(os.Getenv(EnvEventDir)); dir != "" {
		return filepath.Clean(ExpandHome(dir))
	}
	if dir := strings.TrimSpace(configured); dir != "" {
		return filepath.Clean(ExpandHome(dir))
	}
	return filepath.Join(os.TempDir(), defaultEventDirName)
}

// UserConfigDir is ~/.uisync, or "" when the home directory is unknown.
func UserConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return ""
	}
	return filepath.Join(home, configDirName)
}

// ProjectConfigDir anchors .uisync at workdir.
func ProjectConfigDir(workdir string) string {
	if strings.TrimSpace(workdir) == "" {
		return configDirName
	}
	return filepath.Join(workdir, configDirName)
}

func ExpandHome(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil || strings.TrimSpace(home) == "" {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~/"))
	}
	return path
}
