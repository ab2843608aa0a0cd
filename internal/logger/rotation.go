package logger

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RotationConfig configures rotation of a file: output.
type RotationConfig struct {
	MaxSize    string `json:"max_size"`    // e.g. "10MB"; empty disables size rotation
	MaxAge     string `json:"max_age"`     // e.g. "7d", "24h"; empty disables age rotation
	MaxBackups int    `json:"max_backups"` // 0 keeps every backup
	Compress   bool   `json:"compress"`    // gzip rotated files
}

// Validate checks the size and age strings.
func (r *RotationConfig) Validate() error {
	if _, err := parseSize(r.MaxSize); err != nil {
		return fmt.Errorf("invalid max_size: %w", err)
	}
	if _, err := parseDuration(r.MaxAge); err != nil {
		return fmt.Errorf("invalid max_age: %w", err)
	}
	if r.MaxBackups < 0 {
		return fmt.Errorf("max_backups must be non-negative")
	}
	return nil
}

// RotatingWriter is a file writer that moves the file aside once it grows
// past maxSize or gets older than maxAge.
type RotatingWriter struct {
	filename   string
	maxSize    int64
	maxAge     time.Duration
	maxBackups int
	compress   bool

	mu         sync.Mutex
	file       *os.File
	size       int64
	lastRotate time.Time
	now        func() time.Time
}

// NewRotatingWriter opens filename for appending, creating its directory.
func NewRotatingWriter(filename string, maxSize int64, maxAge time.Duration, maxBackups int, compress bool) (*RotatingWriter, error) {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	rw := &RotatingWriter{
		filename:   filename,
		maxSize:    maxSize,
		maxAge:     maxAge,
		maxBackups: maxBackups,
		compress:   compress,
		now:        time.Now,
	}
	if err := rw.open(); err != nil {
		return nil, err
	}
	return rw, nil
}

// NewRotatingWriterFromConfig builds a writer for path from a RotationConfig.
func NewRotatingWriterFromConfig(path string, r *RotationConfig) (*RotatingWriter, error) {
	maxSize, err := parseSize(r.MaxSize)
	if err != nil {
		return nil, fmt.Errorf("parse max size: %w", err)
	}
	maxAge, err := parseDuration(r.MaxAge)
	if err != nil {
		return nil, fmt.Errorf("parse max age: %w", err)
	}
	return NewRotatingWriter(path, maxSize, maxAge, r.MaxBackups, r.Compress)
}

func (rw *RotatingWriter) open() error {
	f, err := os.OpenFile(rw.filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	rw.file = f
	rw.size = stat.Size()
	rw.lastRotate = rw.now()
	return nil
}

// Write implements io.Writer.
func (rw *RotatingWriter) Write(p []byte) (int, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.needsRotation() {
		if err := rw.rotate(); err != nil {
			return 0, fmt.Errorf("rotate log file: %w", err)
		}
	}
	n, err := rw.file.Write(p)
	rw.size += int64(n)
	return n, err
}

// Close closes the current file.
func (rw *RotatingWriter) Close() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.file == nil {
		return nil
	}
	err := rw.file.Close()
	rw.file = nil
	return err
}

func (rw *RotatingWriter) needsRotation() bool {
	if rw.size == 0 {
		return false
	}
	if rw.maxSize > 0 && rw.size >= rw.maxSize {
		return true
	}
	return rw.maxAge > 0 && rw.now().Sub(rw.lastRotate) >= rw.maxAge
}

func (rw *RotatingWriter) rotate() error {
	if err := rw.file.Close(); err != nil {
		return fmt.Errorf("close current file: %w", err)
	}

	rotated := rw.backupName()
	if err := os.Rename(rw.filename, rotated); err != nil {
		return fmt.Errorf("rename log file: %w", err)
	}
	if rw.compress {
		if err := compressFile(rotated); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to compress log file %s: %v\n", rotated, err)
		}
	}
	if err := rw.cleanupOldBackups(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to clean up old log backups: %v\n", err)
	}
	return rw.open()
}

// backupName returns a timestamped name that does not exist yet.
func (rw *RotatingWriter) backupName() string {
	base := rw.filename + "." + rw.now().Format("20060102-150405")
	name := base
	for i := 1; ; i++ {
		_, errPlain := os.Stat(name)
		_, errGz := os.Stat(name + ".gz")
		if os.IsNotExist(errPlain) && os.IsNotExist(errGz) {
			return name
		}
		name = base + "." + strconv.Itoa(i)
	}
}

func compressFile(filename string) error {
	src, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(filename + ".gz")
	if err != nil {
		return err
	}
	gz := gzip.NewWriter(dst)
	if _, err := io.Copy(gz, src); err != nil {
		_ = dst.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		_ = dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	return os.Remove(filename)
}

type backupFile struct {
	name    string
	modTime time.Time
}

func (rw *RotatingWriter) cleanupOldBackups() error {
	if rw.maxBackups <= 0 {
		return nil
	}
	dir, base := filepath.Dir(rw.filename), filepath.Base(rw.filename)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read log directory: %w", err)
	}

	var backups []backupFile
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), base+".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, backupFile{name: filepath.Join(dir, entry.Name()), modTime: info.ModTime()})
	}
	if len(backups) <= rw.maxBackups {
		return nil
	}

	// Oldest first; names break ties since they carry the rotation time.
	sort.Slice(backups, func(i, j int) bool {
		if backups[i].modTime.Equal(backups[j].modTime) {
			return backups[i].name < backups[j].name
		}
		return backups[i].modTime.Before(backups[j].modTime)
	})
	for _, b := range backups[:len(backups)-rw.maxBackups] {
		if err := os.Remove(b.name); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to remove old log backup %s: %v\n", b.name, err)
		}
	}
	return nil
}

// parseSize parses "512", "100KB", "10MB" or "1GB" into bytes.
func parseSize(s string) (int64, error) {
	num, unit, err := splitNumber(s)
	if err != nil || unit == "-" {
		return 0, err
	}
	switch strings.ToUpper(unit) {
	case "", "B":
		return num, nil
	case "KB":
		return num << 10, nil
	case "MB":
		return num << 20, nil
	case "GB":
		return num << 30, nil
	default:
		return 0, fmt.Errorf("unknown size unit: %s", unit)
	}
}

// parseDuration parses "30m", "24h" or "7d".
func parseDuration(s string) (time.Duration, error) {
	num, unit, err := splitNumber(s)
	if err != nil || unit == "-" {
		return 0, err
	}
	switch strings.ToLower(unit) {
	case "s":
		return time.Duration(num) * time.Second, nil
	case "m":
		return time.Duration(num) * time.Minute, nil
	case "h":
		return time.Duration(num) * time.Hour, nil
	case "d":
		return time.Duration(num) * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown duration unit: %q", unit)
	}
}

// splitNumber splits a leading integer from its unit. An empty string
// reports unit "-".
func splitNumber(s string) (int64, string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, "-", nil
	}
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, "", fmt.Errorf("no number in %q", s)
	}
	num, err := strconv.ParseInt(s[:i], 10, 64)
	if err != nil {
		return 0, "", err
	}
	return num, strings.TrimSpace(s[i:]), nil
}
