package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"codetrace/internal/logger"
	"codetrace/internal/models"
	"codetrace/internal/services"
	"codetrace/internal/services/extraction"
	"codetrace/internal/services/importer"
	"codetrace/internal/services/storage"
)

const multipartMemory = 32 << 20

// ImportFileHandler imports a TXT or CSV code list sent as the "file" field.
func ImportFileHandler(manager *services.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			writeError(w, logger, http.StatusBadRequest, "invalid multipart form")
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, logger, http.StatusBadRequest, "file is required")
			return
		}
		defer file.Close()

		if ext := strings.ToLower(filepath.Ext(header.Filename)); ext != ".txt" && ext != ".csv" {
			writeError(w, logger, http.StatusBadRequest, "only .txt and .csv files can be imported")
			return
		}

		report, err := manager.ImportFile(header.Filename, file)
		if err != nil {
			logger.Error("Failed to import %s: %v", header.Filename, err)
			writeError(w, logger, http.StatusInternalServerError, "import failed")
			return
		}
		writeJSON(w, logger, http.StatusOK, report)
	}
}

// ImportImagesHandler spools every "files" part and runs a batch extraction.
// Progress is published on the events websocket while the request is open.
func ImportImagesHandler(manager *services.Manager, spool *storage.SpoolService, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			writeError(w, logger, http.StatusBadRequest, "invalid multipart form")
			return
		}
		headers := r.MultipartForm.File["files"]
		if len(headers) == 0 {
			writeError(w, logger, http.StatusBadRequest, "no images uploaded")
			return
		}

		files := make([]services.ImageFile, 0, len(headers))
		defer func() {
			for _, f := range files {
				spool.Remove(f.Path)
			}
		}()

		for _, fh := range headers {
			src, err := fh.Open()
			if err != nil {
				writeError(w, logger, http.StatusBadRequest, fmt.Sprintf("cannot read %s", fh.Filename))
				return
			}
			path, err := spool.Save(fh.Filename, src)
			src.Close()
			if err != nil {
				if errors.Is(err, storage.ErrTooLarge) {
					writeError(w, logger, http.StatusRequestEntityTooLarge, fmt.Sprintf("%s is too large", fh.Filename))
					return
				}
				logger.Error("Failed to spool %s: %v", fh.Filename, err)
				writeError(w, logger, http.StatusInternalServerError, "failed to store upload")
				return
			}
			files = append(files, services.ImageFile{Name: fh.Filename, Path: path})
		}

		report, err := manager.ImportImages(r.Context(), files)
		if err != nil {
			if errors.Is(err, services.ErrStopped) {
				writeError(w, logger, http.StatusServiceUnavailable, "server is shutting down")
				return
			}
			logger.Error("Image import failed: %v", err)
			writeError(w, logger, http.StatusInternalServerError, "import failed")
			return
		}
		writeJSON(w, logger, http.StatusOK, report)
	}
}

// ExportCSVHandler streams every stored code as a semicolon separated file.
func ExportCSVHandler(manager *services.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := manager.Repository().List(&models.CodeFilter{OrderBy: "code"})
		if err != nil {
			logger.Error("Failed to list codes for export: %v", err)
			writeError(w, logger, http.StatusInternalServerError, "export failed")
			return
		}

		var buf bytes.Buffer
		if err := importer.WriteCSV(&buf, list); err != nil {
			logger.Error("Failed to write export: %v", err)
			writeError(w, logger, http.StatusInternalServerError, "export failed")
			return
		}

		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, importer.ExportFileName(time.Now())))
		w.Write(buf.Bytes())
		logger.Info("Exported %d code(s)", len(list))
	}
}

// DiagnoseHandler reports every detection in the uploaded "image".
func DiagnoseHandler(manager *services.Manager, spool *storage.SpoolService, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			writeError(w, logger, http.StatusBadRequest, "invalid multipart form")
			return
		}
		file, header, err := r.FormFile("image")
		if err != nil {
			writeError(w, logger, http.StatusBadRequest, "image is required")
			return
		}
		defer file.Close()

		path, err := spool.Save(header.Filename, file)
		if err != nil {
			if errors.Is(err, storage.ErrTooLarge) {
				writeError(w, logger, http.StatusRequestEntityTooLarge, "image is too large")
				return
			}
			logger.Error("Failed to spool %s: %v", header.Filename, err)
			writeError(w, logger, http.StatusInternalServerError, "failed to store upload")
			return
		}
		defer spool.Remove(path)

		diag, err := manager.Diagnose(r.Context(), path)
		if err != nil {
			if errors.Is(err, extraction.ErrUnreadableImage) {
				writeError(w, logger, http.StatusUnprocessableEntity, "not a readable image")
				return
			}
			logger.Error("Diagnosis of %s failed: %v", header.Filename, err)
			writeError(w, logger, http.StatusInternalServerError, "diagnosis failed")
			return
		}
		writeJSON(w, logger, http.StatusOK, diag)
	}
}
