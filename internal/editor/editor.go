// Package editor opens approved content in an external editor for the
// approve-with-edit flow.
package editor

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Editor launches an external editor on a temp file and reads it back.
type Editor struct {
	command string
}

// New resolves the editor command: explicit config, then $EDITOR, then vi.
func New(command string) *Editor {
	if command == "" {
		command = os.Getenv("EDITOR")
	}
	if command == "" {
		command = "vi"
	}
	return &Editor{command: command}
}

// Command returns the resolved editor command line.
func (e *Editor) Command() string {
	return e.command
}

// Edit writes text to a temp file, opens the editor on it, and returns the
// saved content. If the editor exits non-zero the original text is returned
// unchanged; a cancelled edit never yields partial content.
func (e *Editor) Edit(text string) (string, bool, error) {
	tmp, err := os.CreateTemp("", "council-edit-*.md")
	if err != nil {
		return text, false, fmt.Errorf("create temp file: %w", err)
	}
	path := tmp.Name()
	defer os.Remove(path)

	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		return text, false, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return text, false, fmt.Errorf("close temp file: %w", err)
	}

	// The command may carry arguments ("code --wait").
	parts := strings.Fields(e.command)
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return text, false, nil
	}

	edited, err := os.ReadFile(path)
	if err != nil {
		return text, false, fmt.Errorf("read edited file: %w", err)
	}

	result := string(edited)
	return result, result != text, nil
}
