package compose

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

func TestTempDirName(t *testing.T) {
	d, err := NewTempDir("My Stack", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Release()

	re := regexp.MustCompile(`^berth_my_stack_[0-9a-z]{26}$`)
	if !re.MatchString(d.Name()) {
		t.Errorf("dir name %q does not match expected format", d.Name())
	}
	if filepath.Dir(d.Path()) != filepath.Clean(os.TempDir()) {
		t.Errorf("dir %q not under the system temp root", d.Path())
	}
}

func TestTempDirNamesNeverCollide(t *testing.T) {
	a, err := NewTempDir("x", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Release()
	b, err := NewTempDir("x", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Release()

	if a.Name() == b.Name() {
		t.Fatalf("two dirs share the name %q", a.Name())
	}
}

func TestTempDirWriteFile(t *testing.T) {
	d, err := NewTempDir("w", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Release()

	if err := d.WriteFile("compose.yaml", []byte("services: {}\n")); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(filepath.Join(d.Path(), "compose.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "services: {}\n" {
		t.Errorf("unexpected content %q", got)
	}

	// Overwrite goes through the same rename, replacing the old content.
	if err := d.WriteFile("compose.yaml", []byte("x")); err != nil {
		t.Fatal(err)
	}
	got, _ = os.ReadFile(filepath.Join(d.Path(), "compose.yaml"))
	if string(got) != "x" {
		t.Errorf("overwrite produced %q", got)
	}
}

func TestTempDirWriteFileRejectsPaths(t *testing.T) {
	d, err := NewTempDir("w", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Release()

	for _, name := range []string{"", "a/b.yaml", "../escape.yaml", "/abs.yaml"} {
		if err := d.WriteFile(name, []byte("x")); err == nil {
			t.Errorf("WriteFile(%q): expected error", name)
		}
	}
}

func TestTempDirReleaseRemovesDir(t *testing.T) {
	d, err := NewTempDir("r", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.WriteFile("f", []byte("x")); err != nil {
		t.Fatal(err)
	}

	if err := d.Release(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(d.Path()); !os.IsNotExist(err) {
		t.Errorf("dir %q still present after release", d.Path())
	}

	// Idempotent.
	if err := d.Release(); err != nil {
		t.Errorf("second release: %v", err)
	}
}

func TestTempDirReleaseAfterDetach(t *testing.T) {
	d, err := NewTempDir("keep", nil)
	if err != nil {
		t.Fatal(err)
	}
	d.Detach()

	// Detach only cancels automatic cleanup. An explicit release must
	// still remove the directory and confirm it gone.
	if err := d.Release(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(d.Path()); !os.IsNotExist(err) {
		t.Errorf("dir %q should be removed by an explicit release, stat err: %v", d.Path(), err)
	}
}

func TestSanitizeDirName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Web Stack", "web_stack"},
		{"a/b", "a_b"},
		{"", "project"},
		{"!!", "project"},
	}
	for _, tt := range tests {
		if got := sanitizeDirName(tt.in); got != tt.want {
			t.Errorf("sanitizeDirName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCleanupErrorMessage(t *testing.T) {
	err := &CleanupError{Path: "/tmp/x", Err: os.ErrPermission}
	if !strings.Contains(err.Error(), "/tmp/x") {
		t.Errorf("message %q should name the path", err.Error())
	}
}
