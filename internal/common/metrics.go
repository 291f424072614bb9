package common

import (
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"
)

// Metrics counts decode progress. All methods accept a nil receiver.
type Metrics struct {
	mu         sync.Mutex
	start      time.Time
	end        time.Time
	bytes      int64
	imageBytes int64
	totalBytes int64
	records    int64
	empty      int64
	dropped    int64
	untrusted  int64
	images     int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) Start() {
	if m == nil {
		return
	}
	m.mu.Lock()
	if m.start.IsZero() {
		m.start = time.Now()
		m.end = time.Time{}
	}
	m.mu.Unlock()
}

func (m *Metrics) Stop() {
	if m == nil {
		return
	}
	m.mu.Lock()
	if !m.start.IsZero() && m.end.IsZero() {
		m.end = time.Now()
	}
	m.mu.Unlock()
}

func (m *Metrics) AddRecord(size int64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.records++
	m.bytes += size
	m.mu.Unlock()
}

func (m *Metrics) AddEmpty() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.empty++
	m.mu.Unlock()
}

func (m *Metrics) AddDropped() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.dropped++
	m.mu.Unlock()
}

func (m *Metrics) AddUntrustedSections(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.mu.Lock()
	m.untrusted += int64(n)
	m.mu.Unlock()
}

// AddImage records one whole save image read from disk.
func (m *Metrics) AddImage(size int64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.images++
	m.bytes += size
	m.imageBytes += size
	m.mu.Unlock()
}

// SetTotalBytes sets the combined size of the images a run will read, the
// denominator of Completion.
func (m *Metrics) SetTotalBytes(total int64) {
	if m == nil {
		return
	}
	if total < 0 {
		total = 0
	}
	m.mu.Lock()
	m.totalBytes = total
	m.mu.Unlock()
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return MetricsSnapshot{
		Duration:          m.elapsedLocked(),
		Bytes:             m.bytes,
		ImageBytes:        m.imageBytes,
		TotalBytes:        m.totalBytes,
		Records:           m.records,
		Empty:             m.empty,
		Dropped:           m.dropped,
		UntrustedSections: m.untrusted,
		Images:            m.images,
	}
}

func (m *Metrics) elapsedLocked() time.Duration {
	if m.start.IsZero() {
		return 0
	}
	if !m.end.IsZero() {
		return m.end.Sub(m.start)
	}
	return time.Since(m.start)
}

type MetricsSnapshot struct {
	Duration          time.Duration
	Bytes             int64
	ImageBytes        int64
	TotalBytes        int64
	Records           int64
	Empty             int64
	Dropped           int64
	UntrustedSections int64
	Images            int64
}

// Completion is the share of image bytes read so far, clamped to 0..1.
func (s MetricsSnapshot) Completion() float64 {
	if s.TotalBytes <= 0 {
		return 0
	}
	ratio := float64(s.ImageBytes) / float64(s.TotalBytes)
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}

func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div := float64(unit)
	exp := 0
	for n := float64(b) / div; n >= unit && exp < 6; n /= unit {
		div *= unit
		exp++
	}
	prefixes := []string{"KiB", "MiB", "GiB", "TiB", "PiB", "EiB"}
	return fmt.Sprintf("%.2f %s", float64(b)/div, prefixes[exp])
}

func formatProgressLine(s MetricsSnapshot) string {
	if s.TotalBytes > 0 {
		pct := s.Completion() * 100
		if math.IsNaN(pct) || math.IsInf(pct, 0) {
			pct = 0
		}
		return fmt.Sprintf("Progress: %6.2f%% (%s / %s) %d images, %d records, %d dropped",
			pct, FormatBytes(s.ImageBytes), FormatBytes(s.TotalBytes), s.Images, s.Records, s.Dropped)
	}
	return fmt.Sprintf("Processed: %d images, %d records, %d dropped", s.Images, s.Records, s.Dropped)
}

// StartProgressPrinter redraws a progress line on w until the returned stop
// function is called.
func StartProgressPrinter(w io.Writer, m *Metrics, interval time.Duration) func() {
	if m == nil || w == nil {
		return func() {}
	}
	if interval <= 0 {
		interval = time.Second
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		lastLen := 0
		for {
			select {
			case <-ticker.C:
				line := formatProgressLine(m.Snapshot())
				pad := lastLen - len(line)
				if pad > 0 {
					line += strings.Repeat(" ", pad)
				}
				fmt.Fprintf(w, "\r%s", line)
				lastLen = len(line)
			case <-done:
				if lastLen > 0 {
					fmt.Fprintf(w, "\r%s\r\n", strings.Repeat(" ", lastLen))
				}
				return
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}
