// Package pathutil resolves the on-disk layout of exported ledger files.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Layout manages the directory tree exported ledger files live in:
// {root}/{YYYY}/{YYYY-MM}.beancount.
type Layout struct {
	root string
}

// NewLayout creates a Layout rooted at the given directory.
func NewLayout(root string) *Layout {
	return &Layout{root: root}
}

// Root returns the export root directory.
func (l *Layout) Root() string {
	return l.root
}

// YearDir returns the directory path for a year.
func (l *Layout) YearDir(year string) string {
	return filepath.Join(l.root, year)
}

// MonthFilePath returns the ledger file path for a YYYY-MM month key.
func (l *Layout) MonthFilePath(yearMonth string) (string, error) {
	parts := strings.Split(yearMonth, "-")
	if len(parts) != 2 || len(parts[0]) != 4 || len(parts[1]) != 2 {
		return "", fmt.Errorf("invalid year-month %q, expected YYYY-MM", yearMonth)
	}
	return filepath.Join(l.YearDir(parts[0]), yearMonth+".beancount"), nil
}

// MonthFilesInYear lists the YYYY-MM keys that already have a ledger file.
func (l *Layout) MonthFilesInYear(year string) ([]string, error) {
	yearDir := l.YearDir(year)
	if !FileExists(yearDir) {
		return nil, nil
	}

	entries, err := os.ReadDir(yearDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read year directory: %w", err)
	}

	var months []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if filepath.Ext(name) == ".beancount" {
			months = append(months, strings.TrimSuffix(name, ".beancount"))
		}
	}
	return months, nil
}

// EnsureParentDir creates a file's parent directory if needed.
func (l *Layout) EnsureParentDir(filePath string) error {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// FileExists reports whether a path exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
