package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"codetrace/internal/logger"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// ErrTooLarge is returned when an upload exceeds the spool's size limit.
var ErrTooLarge = errors.New("upload exceeds size limit")

// SpoolService keeps uploaded files on disk while they are processed. Files
// are normally removed by their owner; a scheduled sweep deletes anything
// left behind for longer than the TTL.
type SpoolService struct {
	dir      string
	ttl      time.Duration
	maxBytes int64
	logger   *logger.Logger

	cron *cron.Cron
	mu   sync.Mutex
	now  func() time.Time
}

func NewSpoolService(dir string, ttl time.Duration, maxBytes int64, logger *logger.Logger) *SpoolService {
	return &SpoolService{
		dir:      dir,
		ttl:      ttl,
		maxBytes: maxBytes,
		logger:   logger,
		now:      time.Now,
	}
}

// Dir is the spool directory.
func (s *SpoolService) Dir() string {
	return s.dir
}

// Save copies r into a new spool file that keeps the extension of name.
func (s *SpoolService) Save(name string, r io.Reader) (string, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create spool directory: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(filepath.Base(name)))
	path := filepath.Join(s.dir, uuid.NewString()+ext)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to create spool file: %w", err)
	}

	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	n, err := io.Copy(f, src)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil && s.maxBytes > 0 && n > s.maxBytes {
		err = ErrTooLarge
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to save %s: %w", name, err)
	}
	return path, nil
}

// Remove deletes spool files, ignoring ones that are already gone.
func (s *SpoolService) Remove(paths ...string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			s.logger.Warning("Failed to remove spool file %s: %v", p, err)
		}
	}
}

// Sweep deletes spool files older than the TTL and returns how many were
// removed.
func (s *SpoolService) Sweep() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read spool directory: %w", err)
	}

	cutoff := s.now().Add(-s.ttl)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			s.logger.Warning("Failed to sweep %s: %v", entry.Name(), err)
			continue
		}
		removed++
	}
	return removed, nil
}

// Start schedules Sweep with a cron spec such as "@every 10m".
func (s *SpoolService) Start(schedule string) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		n, err := s.Sweep()
		if err != nil {
			s.logger.Error("Spool sweep failed: %v", err)
			return
		}
		if n > 0 {
			s.logger.Info("Swept %d stale upload(s)", n)
		}
	}); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	c.Start()
	s.cron = c
	return nil
}

// Stop halts the sweep schedule and waits for a running sweep to finish.
func (s *SpoolService) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}
