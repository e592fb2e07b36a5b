// Package fsutil holds the small path helpers shared by the CLI and config.
package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExpandHome resolves "~" and "~/..." in --config, --model, --params and
// --inputs paths against the user's home directory.
func ExpandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}

// PathExists reports false only when path is known to be absent; a
// permission error still counts as present so the later open reports it.
func PathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !errors.Is(err, os.ErrNotExist)
}

// ReadFile reads path after home expansion. Model and params buffers are
// loaded whole; they travel inline in a single request.
func ReadFile(path string) ([]byte, error) {
	if path == "" {
		return nil, errors.New("empty path")
	}
	p, err := ExpandHome(path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}
