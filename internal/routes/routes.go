package routes

import (
	"net/http"
	"os"
	"path/filepath"

	"codetrace/internal/config"
	"codetrace/internal/handlers"
	"codetrace/internal/logger"
	"codetrace/internal/middleware"
	"codetrace/internal/services"
	"codetrace/internal/services/storage"
)

// Deps bundles what the handlers need.
type Deps struct {
	Config    *config.Config
	Logger    *logger.Logger
	Manager   *services.Manager
	Spool     *storage.SpoolService
	Sessions  *middleware.Sessions
	StaticDir string
}

// dynamicHTMLHandler serves /path as <static>/path.html if the file exists; otherwise 404.
func dynamicHTMLHandler(staticDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if path == "/" {
			path = "/index"
		}

		filePath := filepath.Join(staticDir, filepath.Clean(path)+".html")
		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, filePath)
	}
}

// SetupRoutes registers static files, API endpoints and log endpoints, and
// wraps the mux with the authentication middleware.
func SetupRoutes(d Deps) http.Handler {
	mux := http.NewServeMux()
	repo := d.Manager.Repository()
	log := d.Logger

	staticDir := d.StaticDir
	if staticDir == "" {
		staticDir = "static"
	}
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))

	// Codes
	mux.HandleFunc("GET /api/codes", handlers.ListCodesHandler(repo, log))
	mux.HandleFunc("POST /api/codes", handlers.CreateCodeHandler(repo, log))
	mux.HandleFunc("PUT /api/codes/update", handlers.UpdateCodeHandler(repo, log))
	mux.HandleFunc("DELETE /api/codes/delete", handlers.DeleteCodeHandler(repo, log))
	mux.HandleFunc("POST /api/codes/status", handlers.UpdateStatusHandler(repo, log))
	mux.HandleFunc("POST /api/codes/annotated", handlers.UpdateAnnotatedHandler(repo, log))
	mux.HandleFunc("POST /api/codes/clear", handlers.ClearCodesHandler(repo, log))
	mux.HandleFunc("GET /api/codes/stats", handlers.StatsHandler(repo, log))
	mux.HandleFunc("GET /api/codes/autocomplete", handlers.AutocompleteHandler(repo, log))

	// Import / export
	mux.HandleFunc("POST /api/import/file", handlers.ImportFileHandler(d.Manager, log))
	mux.HandleFunc("POST /api/import/images", handlers.ImportImagesHandler(d.Manager, d.Spool, log))
	mux.HandleFunc("GET /api/export/csv", handlers.ExportCSVHandler(d.Manager, log))
	mux.HandleFunc("POST /api/ocr/diagnose", handlers.DiagnoseHandler(d.Manager, d.Spool, log))
	mux.HandleFunc("GET /api/events", handlers.EventsWebsocketHandler(d.Manager.Hub(), log))

	// Logs
	mux.HandleFunc("GET /logs/{level}", handlers.ShowLogsHandler(log))
	mux.HandleFunc("POST /logs/{level}/clear", handlers.ClearLogsHandler(log))

	// Auth
	mux.HandleFunc("POST /auth/login", handlers.LoginHandler(d.Config, d.Sessions, log))
	mux.HandleFunc("POST /auth/logout", handlers.LogoutHandler(d.Sessions))
	mux.HandleFunc("GET /auth/me", handlers.MeHandler(log))

	// /settings -> <static>/settings.html
	mux.HandleFunc("GET /", dynamicHTMLHandler(staticDir))

	return middleware.AuthMiddleware(d.Sessions)(mux)
}
