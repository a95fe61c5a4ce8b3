package gather

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// progressTracker manages the .tried-empty and .last-completed files so an
// interrupted run can resume and a finished day is not fetched twice.
type progressTracker struct {
	mu         sync.Mutex
	triedEmpty map[string]struct{}
	writer     *bufio.Writer
	file       *os.File
	dir        string
}

// newProgressTracker creates a tracker rooted at dir and loads any existing
// .tried-empty entries.
func newProgressTracker(dir string) (*progressTracker, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating progress dir: %w", err)
	}
	pt := &progressTracker{
		triedEmpty: make(map[string]struct{}),
		dir:        dir,
	}
	data, err := os.ReadFile(pt.path(".tried-empty"))
	if err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			if sym := strings.TrimSpace(line); sym != "" {
				pt.triedEmpty[sym] = struct{}{}
			}
		}
	}
	if err := pt.open(); err != nil {
		return nil, err
	}
	return pt, nil
}

func (p *progressTracker) path(name string) string {
	return filepath.Join(p.dir, name)
}

func (p *progressTracker) open() error {
	f, err := os.OpenFile(p.path(".tried-empty"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening .tried-empty: %w", err)
	}
	p.file = f
	p.writer = bufio.NewWriter(f)
	return nil
}

// IsTriedEmpty reports whether symbol already came back with no data.
func (p *progressTracker) IsTriedEmpty(symbol string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.triedEmpty[symbol]
	return ok
}

// MarkEmpty records symbol as tried-empty.
func (p *progressTracker) MarkEmpty(symbol string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.triedEmpty[symbol]; ok {
		return nil
	}
	p.triedEmpty[symbol] = struct{}{}
	if _, err := p.writer.WriteString(symbol + "\n"); err != nil {
		return fmt.Errorf("writing to .tried-empty: %w", err)
	}
	return p.writer.Flush()
}

// MarkCompleted writes date to .last-completed.
func (p *progressTracker) MarkCompleted(date string) error {
	return os.WriteFile(p.path(".last-completed"), []byte(date), 0o644)
}

// LastCompleted returns the date in .last-completed, or "".
func (p *progressTracker) LastCompleted() string {
	data, err := os.ReadFile(p.path(".last-completed"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Reset clears the tried-empty set.
func (p *progressTracker) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file != nil {
		p.file.Close()
	}
	p.triedEmpty = make(map[string]struct{})
	os.Remove(p.path(".tried-empty"))
	return p.open()
}

// Close flushes and closes the .tried-empty file.
func (p *progressTracker) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writer != nil {
		p.writer.Flush()
	}
	if p.file != nil {
		return p.file.Close()
	}
	return nil
}
