package main

import (
	"os"
	"os/exec"
	"strings"

	"github.com/google/shlex"
	"github.com/pkg/errors"
)

// editDocument opens content in the user's editor and returns the saved
// result.
func editDocument(content string) (string, error) {
	tempFile, err := os.CreateTemp("", "skillhub-SKILL-*.md")
	if err != nil {
		return "", errors.Wrap(err, "failed to create temporary file")
	}
	defer os.Remove(tempFile.Name())

	if _, err := tempFile.WriteString(content); err != nil {
		tempFile.Close()
		return "", errors.Wrap(err, "failed to write temporary file")
	}
	tempFile.Close()

	args, err := editorCommand(getEditor(), tempFile.Name())
	if err != nil {
		return "", err
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return "", errors.Wrap(err, "failed to run editor")
	}

	edited, err := os.ReadFile(tempFile.Name())
	if err != nil {
		return "", errors.Wrap(err, "failed to read edited document")
	}
	return string(edited), nil
}

// editorCommand splits an editor setting such as "code --wait" into argv
// and appends the file to edit.
func editorCommand(editor, path string) ([]string, error) {
	args, err := shlex.Split(editor)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid editor command %q", editor)
	}
	if len(args) == 0 {
		return nil, errors.New("editor command is empty")
	}
	return append(args, path), nil
}

func getEditor() string {
	if editor := os.Getenv("VISUAL"); editor != "" {
		return editor
	}
	if editor := os.Getenv("EDITOR"); editor != "" {
		return editor
	}

	gitEditor, err := exec.Command("git", "config", "--get", "core.editor").Output()
	if err == nil && len(gitEditor) > 0 {
		return strings.TrimSpace(string(gitEditor))
	}

	return "vim"
}
