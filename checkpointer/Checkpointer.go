// Package checkpointer implements triggers which periodically save an
// object to disk, and helpers to name and find checkpoint files.
package checkpointer

import (
	"fmt"
	"os"
	"path/filepath"
)

// Saver is an object that can save itself to a file
type Saver interface {
	Save(path string) error
}

// Checkpointer checkpoints/saves objects based on the current step.
// Checkpoint returns whether the object was saved.
type Checkpointer interface {
	Checkpoint(step int) (bool, error)
}

// Latest returns the most recently modified file matching the glob
// pattern. If no file matches, ok is false.
func Latest(pattern string) (path string, ok bool, err error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", false, fmt.Errorf("latest: %v", err)
	}

	var latest os.FileInfo
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil {
			return "", false, fmt.Errorf("latest: %v", err)
		}
		if info.IsDir() {
			continue
		}
		if latest == nil || info.ModTime().After(latest.ModTime()) {
			latest = info
			path = match
		}
	}
	return path, latest != nil, nil
}
