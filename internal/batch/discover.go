package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// DefaultExtensions are the video containers picked up by a directory scan
var DefaultExtensions = []string{".mp4", ".mov", ".avi", ".mkv"}

// Discover lists the videos directly inside dir whose extension matches one of
// exts, case-insensitively. Subdirectories are not descended into and only
// regular files, or links to them, are returned, in directory-listing order.
func Discover(dir string, exts []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}

	allowed := make([]string, len(exts))
	for i, ext := range exts {
		allowed[i] = strings.ToLower(ext)
	}

	var videos []string
	for _, entry := range entries {
		if !slices.Contains(allowed, strings.ToLower(filepath.Ext(entry.Name()))) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		if !isRegular(entry, path) {
			continue
		}
		videos = append(videos, path)
	}

	return videos, nil
}

func isRegular(entry os.DirEntry, path string) bool {
	if entry.Type().IsRegular() {
		return true
	}
	if entry.Type()&os.ModeSymlink == 0 {
		return false
	}

	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
