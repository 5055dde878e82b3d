package editor

import (
	"os"
	"runtime"
	"testing"
)

func TestNewResolvesCommand(t *testing.T) {
	t.Setenv("EDITOR", "")

	if got := New("nano").Command(); got != "nano" {
		t.Errorf("Command() = %s, want nano", got)
	}

	t.Setenv("EDITOR", "emacs")
	if got := New("").Command(); got != "emacs" {
		t.Errorf("Command() = %s, want emacs from $EDITOR", got)
	}

	t.Setenv("EDITOR", "")
	if got := New("").Command(); got != "vi" {
		t.Errorf("Command() = %s, want vi fallback", got)
	}
}

func TestEditAppliesChange(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell-based fake editor")
	}

	// A fake editor that overwrites its argument.
	script := writeScript(t, "#!/bin/sh\necho 'edited content' > \"$1\"\n")
	e := New(script)

	got, changed, err := e.Edit("original content\n")
	if err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if !changed {
		t.Error("changed = false, want true")
	}
	if got != "edited content\n" {
		t.Errorf("Edit() = %q", got)
	}
}

func TestEditNoChange(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell-based fake editor")
	}

	script := writeScript(t, "#!/bin/sh\nexit 0\n")
	e := New(script)

	got, changed, err := e.Edit("unchanged\n")
	if err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if changed {
		t.Error("changed = true, want false")
	}
	if got != "unchanged\n" {
		t.Errorf("Edit() = %q", got)
	}
}

func TestEditCancelPreservesOriginal(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell-based fake editor")
	}

	// Editor mangles the file, then exits non-zero: the mangled content
	// must be discarded.
	script := writeScript(t, "#!/bin/sh\necho 'partial garbage' > \"$1\"\nexit 1\n")
	e := New(script)

	got, changed, err := e.Edit("precious original\n")
	if err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if changed {
		t.Error("changed = true, want false on cancel")
	}
	if got != "precious original\n" {
		t.Errorf("Edit() = %q, want original preserved", got)
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := t.TempDir() + "/fake-editor.sh"
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}
