package diag

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/shaunagostinho/roadmap/internal/plugin"
)

// Recorder receives provider-missing diagnostics from the dispatcher. Every
// report is logged; when enabled, reports are also appended to CSV files
// with automatic rotation.
type Recorder struct {
	mu      sync.Mutex
	dir     string
	enabled bool
	now     func() time.Time

	file   *os.File
	writer *csv.Writer
	rows   int
	total  int
	last   Report
}

// Config holds recorder configuration.
type Config struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// Report is a single provider-missing diagnostic.
type Report struct {
	Time       time.Time `json:"time"`
	ProviderID int       `json:"providerId"`
	Query      string    `json:"query"`
}

const (
	maxRowsPerFile = 50_000
	defaultDir     = "/var/log/roadmap"
)

var csvHeader = []string{"timestamp", "provider_id", "query"}

// New creates a new Recorder.
func New(cfg Config) *Recorder {
	if cfg.Path == "" {
		cfg.Path = defaultDir
	}
	return &Recorder{
		dir:     cfg.Path,
		enabled: cfg.Enabled,
		now:     time.Now,
	}
}

// SetEnabled allows toggling file recording at runtime.
func (r *Recorder) SetEnabled(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = on
	if !on && r.file != nil {
		r.closeFile()
	}
}

// IsEnabled returns whether file recording is active.
func (r *Recorder) IsEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

// ProviderMissing implements plugin.Reporter.
func (r *Recorder) ProviderMissing(id int, query string) {
	plugin.LogReporter{}.ProviderMissing(id, query)

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.total++
	r.last = Report{Time: now, ProviderID: id, Query: query}

	if !r.enabled {
		return
	}

	if r.writer == nil || r.rows >= maxRowsPerFile {
		if err := r.rotateFile(now); err != nil {
			log.Printf("[diag] rotate failed: %v", err)
			return
		}
	}

	row := []string{now.Format(time.RFC3339Nano), strconv.Itoa(id), query}
	if err := r.writer.Write(row); err != nil {
		log.Printf("[diag] write failed: %v", err)
		return
	}
	r.writer.Flush()
	r.rows++
}

// Count returns the number of diagnostics received since start.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

// Last returns the most recent diagnostic, if any.
func (r *Recorder) Last() (Report, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, r.total > 0
}

// Close flushes and closes the current file.
func (r *Recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeFile()
}

func (r *Recorder) rotateFile(now time.Time) error {
	r.closeFile()

	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", r.dir, err)
	}

	filename := fmt.Sprintf("plugin_missing_%s.csv", now.Format("2006-01-02_150405.000"))
	path := filepath.Join(r.dir, filename)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	r.file = f
	r.writer = csv.NewWriter(f)
	r.rows = 0

	if err := r.writer.Write(csvHeader); err != nil {
		return err
	}
	r.writer.Flush()

	log.Printf("[diag] opened %s", path)
	return nil
}

func (r *Recorder) closeFile() {
	if r.writer != nil {
		r.writer.Flush()
		r.writer = nil
	}
	if r.file != nil {
		r.file.Close()
		r.file = nil
	}
}
