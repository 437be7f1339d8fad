package services

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"codetrace/internal/config"
	"codetrace/internal/logger"
	"codetrace/internal/models"
	"codetrace/internal/repository/sqlite"
	"codetrace/internal/services/extraction"
)

type fakeExtractor struct {
	mu      sync.Mutex
	results map[string][]string
	errs    map[string]error
	delay   map[string]time.Duration
	calls   int
}

func (f *fakeExtractor) ExtractFile(ctx context.Context, path string) ([]models.ExtractedCode, error) {
	f.mu.Lock()
	f.calls++
	delay := f.delay[path]
	err := f.errs[path]
	found := f.results[path]
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	out := make([]models.ExtractedCode, len(found))
	for i, c := range found {
		out[i] = models.ExtractedCode{Code: c, Annotated: strings.HasSuffix(c, "9"), DetectedAt: time.Now()}
	}
	return out, nil
}

func (f *fakeExtractor) Diagnose(context.Context, string) (*extraction.Diagnosis, error) {
	return &extraction.Diagnosis{Pass: "standard", Detections: []extraction.Detection{}}, nil
}

func newTestManager(t *testing.T, ext *fakeExtractor) (*Manager, *sqlite.CodeRepository) {
	t.Helper()
	db, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo := sqlite.NewCodeRepository(db)
	m := NewManager(ext, repo, nil, &config.Config{ProcessingWorkers: 3}, logger.NewDiscard())
	t.Cleanup(m.Stop)
	return m, repo
}

// ========================================
// Image import
// ========================================

func TestManager_ImportImages_InputOrder(t *testing.T) {
	ext := &fakeExtractor{
		results: map[string][]string{
			"a.png": {"CQ100001", "CQ100002"},
			"b.png": {"CQ100002", "TY200009"},
			"c.png": {"CQ300003"},
		},
		errs:  map[string]error{"bad.png": extraction.ErrUnreadableImage},
		delay: map[string]time.Duration{"a.png": 30 * time.Millisecond},
	}
	m, repo := newTestManager(t, ext)

	report, err := m.ImportImages(context.Background(), []ImageFile{
		{Name: "first", Path: "a.png"},
		{Name: "second", Path: "b.png"},
		{Name: "broken", Path: "bad.png"},
		{Name: "third", Path: "c.png"},
	})
	if err != nil {
		t.Fatalf("ImportImages failed: %v", err)
	}

	// a.png finishes last but is stored first, so CQ100002 from b.png is the duplicate.
	wantCodes := []string{"CQ100001", "CQ100002", "TY200009", "CQ300003"}
	if strings.Join(report.Codes, ",") != strings.Join(wantCodes, ",") {
		t.Errorf("Expected codes %v, got %v", wantCodes, report.Codes)
	}
	if report.Files != 4 || report.Found != 5 || report.Imported != 4 {
		t.Errorf("Unexpected counts %+v", report)
	}
	if len(report.Duplicates) != 1 || report.Duplicates[0] != "CQ100002" {
		t.Errorf("Expected CQ100002 as duplicate, got %v", report.Duplicates)
	}
	if len(report.Errors) != 1 || report.Errors[0].File != "broken" {
		t.Errorf("Expected one error for broken, got %+v", report.Errors)
	}
	if report.BatchID == "" {
		t.Error("Expected a batch id")
	}

	stats, _ := repo.Stats()
	if stats.Total != 4 || stats.Annotated != 1 || stats.Duplicates != 0 {
		t.Errorf("Unexpected stored stats %+v", stats)
	}
}

func TestManager_ImportImages_SkipsStoredCodes(t *testing.T) {
	ext := &fakeExtractor{results: map[string][]string{"a.png": {"CQ100001"}}}
	m, repo := newTestManager(t, ext)

	if _, err := repo.Insert(models.NewCode{Code: "CQ100001"}); err != nil {
		t.Fatal(err)
	}

	report, err := m.ImportImages(context.Background(), []ImageFile{{Name: "a", Path: "a.png"}})
	if err != nil {
		t.Fatalf("ImportImages failed: %v", err)
	}
	if report.Imported != 0 || len(report.Duplicates) != 1 {
		t.Errorf("Expected the stored code to be skipped, got %+v", report)
	}
}

func TestManager_ImportImages_Empty(t *testing.T) {
	ext := &fakeExtractor{}
	m, _ := newTestManager(t, ext)

	report, err := m.ImportImages(context.Background(), nil)
	if err != nil || report.Files != 0 || ext.calls != 0 {
		t.Errorf("Unexpected result %+v, %v", report, err)
	}
}

func TestManager_ImportImages_Cancelled(t *testing.T) {
	ext := &fakeExtractor{results: map[string][]string{"a.png": {"CQ100001"}}}
	m, _ := newTestManager(t, ext)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := m.ImportImages(ctx, []ImageFile{{Name: "a", Path: "a.png"}, {Name: "b", Path: "a.png"}})
	if err != nil {
		t.Fatalf("ImportImages failed: %v", err)
	}
	if report.Imported != 0 || len(report.Errors) != 2 {
		t.Errorf("Expected every file to report cancellation, got %+v", report)
	}
	for _, e := range report.Errors {
		if !strings.Contains(e.Error, context.Canceled.Error()) {
			t.Errorf("Unexpected error %q", e.Error)
		}
	}
}

func TestManager_StoppedRejectsWork(t *testing.T) {
	m, _ := newTestManager(t, &fakeExtractor{})
	m.Stop()

	_, err := m.ImportImages(context.Background(), []ImageFile{{Name: "a", Path: "a.png"}})
	if !errors.Is(err, ErrStopped) {
		t.Errorf("Expected ErrStopped, got %v", err)
	}
}

// ========================================
// File import
// ========================================

func TestManager_ImportFile(t *testing.T) {
	m, repo := newTestManager(t, &fakeExtractor{})
	repo.Insert(models.NewCode{Code: "TY200002"})

	report, err := m.ImportFile("codes.txt", strings.NewReader("CQ100001\nTY200002\nnope\n"))
	if err != nil {
		t.Fatalf("ImportFile failed: %v", err)
	}
	if report.Found != 2 || report.Imported != 1 || len(report.Duplicates) != 1 {
		t.Errorf("Unexpected report %+v", report)
	}

	report, err = m.ImportFile("codes.csv", strings.NewReader("Code;Status;Used\nCQ300003;Perdido;Yes\n"))
	if err != nil {
		t.Fatalf("ImportFile csv failed: %v", err)
	}
	if report.Imported != 1 {
		t.Fatalf("Expected 1 imported, got %+v", report)
	}
	list, _ := repo.List(&models.CodeFilter{Search: "CQ300003"})
	if len(list) != 1 || list[0].Status != models.StatusLost || !list[0].Annotated {
		t.Errorf("Unexpected stored row %+v", list)
	}
}
