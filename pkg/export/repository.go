package export

import (
	"fmt"
	"os"
	"time"

	"github.com/blueharbor-marine/reconcile/pkg/pathutil"
)

// Repository writes ledger entries to monthly files under the export layout.
type Repository struct {
	layout *pathutil.Layout
}

// NewRepository creates a Repository over a layout.
func NewRepository(layout *pathutil.Layout) *Repository {
	return &Repository{layout: layout}
}

// AppendEntry appends one formatted entry to its monthly file, creating the
// file with a header if needed.
func (r *Repository) AppendEntry(yearMonth string, entry Entry) error {
	filePath, err := r.layout.MonthFilePath(yearMonth)
	if err != nil {
		return fmt.Errorf("failed to resolve month file: %w", err)
	}

	if err := r.ensureMonthFile(yearMonth, filePath); err != nil {
		return err
	}

	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open ledger file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(Format(entry) + "\n"); err != nil {
		return fmt.Errorf("failed to write ledger file: %w", err)
	}

	return nil
}

// RemoveMonthFile deletes one monthly file so a re-export starts clean.
// Missing files are fine.
func (r *Repository) RemoveMonthFile(yearMonth string) error {
	filePath, err := r.layout.MonthFilePath(yearMonth)
	if err != nil {
		return err
	}
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove ledger file: %w", err)
	}
	return nil
}

// ReadMonthFile returns a monthly file's content, or empty if absent.
func (r *Repository) ReadMonthFile(yearMonth string) (string, error) {
	filePath, err := r.layout.MonthFilePath(yearMonth)
	if err != nil {
		return "", err
	}
	if !pathutil.FileExists(filePath) {
		return "", nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read ledger file: %w", err)
	}
	return string(data), nil
}

func (r *Repository) ensureMonthFile(yearMonth, filePath string) error {
	if pathutil.FileExists(filePath) {
		return nil
	}
	if err := r.layout.EnsureParentDir(filePath); err != nil {
		return err
	}

	header := fmt.Sprintf("; Ledger for %s\n; Generated at %s\n\n",
		yearMonth, time.Now().Format(time.RFC3339))
	if err := os.WriteFile(filePath, []byte(header), 0644); err != nil {
		return fmt.Errorf("failed to create ledger file: %w", err)
	}
	return nil
}
