package paths

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEventDirDefaultsToTempDir(t *testing.T) {
	t.Setenv(EnvEventDir, "")
	want := filepath.Join(os.TempDir(), "uisync-events")
	if got := EventDir(""); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestEventDirUsesConfigured(t *testing.T) {
	t.Setenv(EnvEventDir, "")
	dir := t.TempDir()
	if got := EventDir(dir + "/"); got != dir {
		t.Fatalf("expected %q, got %q", dir, got)
	}
}

func TestEventDirEnvOverridesConfigured(t *testing.T) {
	env := t.TempDir()
	t.Setenv(EnvEventDir, env)
	if got := EventDir("/somewhere/else"); got != env {
		t.Fatalf("expected %q, got %q", env, got)
	}
}

func TestEventDirExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(EnvEventDir, "~/run/events")
	want := filepath.Join(home, "run", "events")
	if got := EventDir(""); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestExpandHomeSupportsBareHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	if got := ExpandHome("~"); got != home {
		t.Fatalf("expected %q, got %q", home, got)
	}
	if got := ExpandHome("~other/x"); got != "~other/x" {
		t.Fatalf("expected ~user paths untouched, got %q", got)
	}
}

func TestUserConfigDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	if got := UserConfigDir(); got != filepath.Join(home, ".uisync") {
		t.Fatalf("unexpected user config dir: %q", got)
	}
}

func TestProjectConfigDirAnchorsWorkdir(t *testing.T) {
	workdir := t.TempDir()
	if got := ProjectConfigDir(workdir); got != filepath.Join(workdir, ".uisync") {
		t.Fatalf("unexpected project config dir: %q", got)
	}
	if got := ProjectConfigDir(""); got != ".uisync" {
		t.Fatalf("expected relative dir, got %q", got)
	}
}
