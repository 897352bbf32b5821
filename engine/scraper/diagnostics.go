package scraper

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Diagnostics appends the raw body of results pages that could not be
// parsed, for offline inspection. The file is append-only and never read
// back. A nil *Diagnostics discards records.
type Diagnostics struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewDiagnostics appends to path, creating parent directories on first write.
func NewDiagnostics(path string) *Diagnostics {
	return &Diagnostics{path: path, now: time.Now}
}

// Path is the diagnostics file location.
func (d *Diagnostics) Path() string {
	if d == nil {
		return ""
	}
	return d.path
}

// Record appends one {timestamp, url, body} entry.
func (d *Diagnostics) Record(pageURL string, body []byte) error {
	if d == nil || d.path == "" {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if dir := filepath.Dir(d.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("diagnostics dir: %w", err)
		}
	}
	f, err := os.OpenFile(d.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open diagnostics: %w", err)
	}
	_, werr := fmt.Fprintf(f, "%s\n%s\n%s\n\n", d.now().Format(time.RFC3339), pageURL, body)
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return fmt.Errorf("write diagnostics: %w", werr)
	}
	return nil
}
