package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"codetrace/internal/config"
	"codetrace/internal/logger"
	"codetrace/internal/models"
	"codetrace/internal/repository"
	"codetrace/internal/services/extraction"
	"codetrace/internal/services/importer"
	"codetrace/internal/services/websocket"

	"github.com/google/uuid"
)

// ErrStopped is returned for work submitted after Stop.
var ErrStopped = errors.New("manager stopped")

// Extractor reads codes out of image files.
type Extractor interface {
	ExtractFile(ctx context.Context, path string) ([]models.ExtractedCode, error)
	Diagnose(ctx context.Context, path string) (*extraction.Diagnosis, error)
}

// ImageFile is one image of a batch import. Name is what the user sees,
// Path where the bytes are.
type ImageFile struct {
	Name string
	Path string
}

// FileError reports a file that could not be processed.
type FileError struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// ImportReport summarises one import.
type ImportReport struct {
	BatchID    string      `json:"batch_id"`
	Files      int         `json:"files"`
	Found      int         `json:"found"`
	Imported   int         `json:"imported"`
	Codes      []string    `json:"codes"`
	Duplicates []string    `json:"duplicates"`
	Errors     []FileError `json:"errors"`
}

type Manager struct {
	extractor Extractor
	repo      repository.CodeRepository
	hub       *websocket.HubService
	logger    *logger.Logger

	processingQueue chan imageTask
	numWorkers      int
	now             func() time.Time

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

type imageTask struct {
	ctx     context.Context
	index   int
	file    ImageFile
	results chan<- imageResult
}

type imageResult struct {
	index int
	codes []models.ExtractedCode
	err   error
}

func NewManager(extractor Extractor, repo repository.CodeRepository, hub *websocket.HubService, config *config.Config, logger *logger.Logger) *Manager {
	workers := config.ProcessingWorkers
	if workers <= 0 {
		workers = 1
	}

	manager := &Manager{
		extractor:       extractor,
		repo:            repo,
		hub:             hub,
		logger:          logger,
		numWorkers:      workers,
		processingQueue: make(chan imageTask, 100),
		now:             time.Now,
	}

	for i := 0; i < manager.numWorkers; i++ {
		manager.wg.Add(1)
		go manager.processingWorker(i)
	}

	manager.logger.Info("Manager started with %d extraction worker(s)", manager.numWorkers)
	return manager
}

func (m *Manager) Repository() repository.CodeRepository {
	return m.repo
}

func (m *Manager) Hub() *websocket.HubService {
	return m.hub
}

// processingWorker extracts codes from queued images until the queue closes.
func (m *Manager) processingWorker(workerID int) {
	defer m.wg.Done()

	for task := range m.processingQueue {
		var res imageResult
		res.index = task.index
		if err := task.ctx.Err(); err != nil {
			res.err = err
		} else {
			res.codes, res.err = m.extractor.ExtractFile(task.ctx, task.file.Path)
		}
		m.logger.Debug("Worker %d finished %s: %d code(s)", workerID, task.file.Name, len(res.codes))
		task.results <- res
	}
}

// ImportImages extracts codes from every file in parallel, then stores them
// in input order. Codes already stored, including ones stored earlier in the
// same batch, are reported as duplicates and skipped.
func (m *Manager) ImportImages(ctx context.Context, files []ImageFile) (*ImportReport, error) {
	report := newReport(len(files))
	if len(files) == 0 {
		return report, nil
	}
	m.publish("import.started", report.BatchID, map[string]int{"files": len(files)})

	results, err := m.extractAll(ctx, report.BatchID, files)
	if err != nil {
		return nil, err
	}

	for i, res := range results {
		name := files[i].Name
		if res.err != nil {
			m.logger.Warning("Import %s: %s: %v", report.BatchID, name, res.err)
			report.Errors = append(report.Errors, FileError{File: name, Error: res.err.Error()})
			continue
		}
		report.Found += len(res.codes)

		batch := make([]models.NewCode, 0, len(res.codes))
		for _, c := range res.codes {
			batch = append(batch, models.NewCode{
				Code:      c.Code,
				Annotated: c.Annotated,
				Status:    models.DefaultStatus,
				CreatedAt: c.DetectedAt,
			})
		}
		if err := m.store(report, batch); err != nil {
			return report, err
		}
	}

	m.logger.Info("Import %s: %d file(s), %d imported, %d duplicate(s), %d error(s)",
		report.BatchID, report.Files, report.Imported, len(report.Duplicates), len(report.Errors))
	m.publish("import.finished", report.BatchID, report)
	return report, nil
}

func (m *Manager) extractAll(ctx context.Context, batchID string, files []ImageFile) ([]imageResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.stopped {
		return nil, ErrStopped
	}

	results := make(chan imageResult, len(files))
	go func() {
		for i, f := range files {
			select {
			case m.processingQueue <- imageTask{ctx: ctx, index: i, file: f, results: results}:
			case <-ctx.Done():
				for j := i; j < len(files); j++ {
					results <- imageResult{index: j, err: ctx.Err()}
				}
				return
			}
		}
	}()

	ordered := make([]imageResult, len(files))
	for done := 1; done <= len(files); done++ {
		res := <-results
		ordered[res.index] = res

		progress := map[string]interface{}{
			"file":  files[res.index].Name,
			"done":  done,
			"total": len(files),
			"found": len(res.codes),
		}
		if res.err != nil {
			progress["error"] = res.err.Error()
		}
		m.publish("import.progress", batchID, progress)
	}
	return ordered, nil
}

// ImportFile imports a TXT or CSV code list.
func (m *Manager) ImportFile(name string, r io.Reader) (*ImportReport, error) {
	items, err := importer.Parse(name, r, m.now().UTC())
	if err != nil {
		return nil, err
	}

	report := newReport(1)
	report.Found = len(items)
	if err := m.store(report, items); err != nil {
		return report, err
	}

	m.logger.Info("Imported %d code(s) from %s, %d duplicate(s)", report.Imported, name, len(report.Duplicates))
	m.publish("import.finished", report.BatchID, report)
	return report, nil
}

// store inserts the items whose codes are not stored yet.
func (m *Manager) store(report *ImportReport, items []models.NewCode) error {
	if len(items) == 0 {
		return nil
	}

	list := make([]string, len(items))
	for i, it := range items {
		list[i] = it.Code
	}
	existing, err := m.repo.Existing(list)
	if err != nil {
		return fmt.Errorf("failed to check existing codes: %w", err)
	}
	skip := make(map[string]bool, len(existing))
	for _, c := range existing {
		skip[c] = true
	}
	report.Duplicates = append(report.Duplicates, existing...)

	fresh := make([]models.NewCode, 0, len(items))
	for _, it := range items {
		if skip[it.Code] {
			continue
		}
		fresh = append(fresh, it)
		report.Codes = append(report.Codes, it.Code)
	}

	n, err := m.repo.InsertBatch(fresh)
	if err != nil {
		return fmt.Errorf("failed to store codes: %w", err)
	}
	report.Imported += n
	return nil
}

// Diagnose reports what the recognition engine reads in a single image.
func (m *Manager) Diagnose(ctx context.Context, path string) (*extraction.Diagnosis, error) {
	return m.extractor.Diagnose(ctx, path)
}

func (m *Manager) publish(kind, batchID string, payload interface{}) {
	if m.hub == nil {
		return
	}
	m.hub.Publish(websocket.Event{Type: kind, BatchID: batchID, Payload: payload})
}

func newReport(files int) *ImportReport {
	return &ImportReport{
		BatchID:    uuid.NewString(),
		Files:      files,
		Codes:      []string{},
		Duplicates: []string{},
		Errors:     []FileError{},
	}
}

// Stop drains the queue and stops all workers.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	close(m.processingQueue)
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("All processing workers stopped")
}
