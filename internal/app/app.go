package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"codetrace/internal/config"
	"codetrace/internal/logger"
	"codetrace/internal/middleware"
	"codetrace/internal/repository/sqlite"
	"codetrace/internal/routes"
	"codetrace/internal/services"
	"codetrace/internal/services/codes"
	"codetrace/internal/services/extraction"
	"codetrace/internal/services/ocr"
	"codetrace/internal/services/storage"
	"codetrace/internal/services/vision"
	"codetrace/internal/services/websocket"
)

const sessionTTL = 12 * time.Hour

type App struct {
	config       *config.Config
	logger       *logger.Logger
	db           *sqlite.DB
	engine       *ocr.Handle
	spoolService *storage.SpoolService
	hubService   *websocket.HubService
	manager      *services.Manager
	sessions     *middleware.Sessions
}

// NewExtractor wires the imaging backend, the lazily built recognition
// engine and the code validator into an extraction service. The caller owns
// the returned handle and must close it.
func NewExtractor(cfg *config.Config, log *logger.Logger) (*extraction.Service, *ocr.Handle, error) {
	backend, err := vision.New(cfg.ImagingBackend)
	if err != nil {
		log.Warning("Imaging backend %q unavailable, using identity: %v", cfg.ImagingBackend, err)
		backend = vision.Identity{}
	}

	handle := ocr.NewHandle(func() (ocr.Engine, error) {
		engine, err := ocr.New(cfg.OCREngine, ocr.Options{
			Language:       cfg.OCRLanguage,
			TessdataPrefix: cfg.TessdataPrefix,
			BinaryPath:     cfg.TesseractPath,
		})
		if err != nil {
			log.Error("Recognition engine %q failed to start: %v", cfg.OCREngine, err)
			return nil, err
		}
		log.Info("Recognition engine %s ready", engine.Name())
		return engine, nil
	}, cfg.RecognitionTimeout)

	passes, err := extraction.ScheduleFor(cfg.Schedule, extraction.SettingsFromConfig(cfg))
	if err != nil {
		handle.Close()
		return nil, nil, err
	}

	validator := codes.NewValidator(cfg.CodePrefixes)
	svc := extraction.NewService(backend, handle, validator, passes, cfg.EarlyStop, log)
	log.Info("Extraction: backend=%s engine=%s schedule=%s prefixes=%v",
		backend.Name(), cfg.OCREngine, cfg.Schedule, validator.Prefixes())
	return svc, handle, nil
}

func NewApp() (*App, error) {
	cfg := config.Load()
	log := logger.NewLogger(cfg)
	if cfg.UsesDefaultPassword() {
		log.Warning("AUTH_PASSWORD is not set; the built-in admin password is in use")
	}

	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	extractor, handle, err := NewExtractor(cfg, log)
	if err != nil {
		db.Close()
		return nil, err
	}

	hub := websocket.NewHubService(log)
	spool := storage.NewSpoolService(cfg.UploadDirectory, cfg.SpoolTTL, cfg.MaxUploadMB<<20, log)
	mng := services.NewManager(extractor, sqlite.NewCodeRepository(db), hub, cfg, log)

	return &App{
		config:       cfg,
		logger:       log,
		db:           db,
		engine:       handle,
		spoolService: spool,
		hubService:   hub,
		manager:      mng,
		sessions:     middleware.NewSessions(sessionTTL),
	}, nil
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	go a.hubService.Run()
	if err := a.spoolService.Start(a.config.SpoolSweepSchedule); err != nil {
		a.logger.Warning("Spool sweep disabled: %v", err)
	}
	defer a.close()

	router := routes.SetupRoutes(routes.Deps{
		Config:   a.config,
		Logger:   a.logger,
		Manager:  a.manager,
		Spool:    a.spoolService,
		Sessions: a.sessions,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.config.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.logger.Info("Code server listening on http://localhost:%d (db %s)", a.config.Port, a.config.DatabasePath)

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func (a *App) close() {
	a.manager.Stop()
	a.spoolService.Stop()
	a.hubService.Stop()
	if err := a.engine.Close(); err != nil {
		a.logger.Warning("Failed to close recognition engine: %v", err)
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("Failed to close database: %v", err)
	}
}
