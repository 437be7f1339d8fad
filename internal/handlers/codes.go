package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"codetrace/internal/logger"
	"codetrace/internal/models"
	"codetrace/internal/repository"
)

type CreateCodeRequest struct {
	Code        string `json:"code" validate:"required,code"`
	Description string `json:"description" validate:"max=500"`
	Annotated   bool   `json:"annotated"`
	Status      string `json:"status" validate:"omitempty,status"`
}

type UpdateCodeRequest struct {
	Code        *string `json:"code" validate:"omitempty,code"`
	Description *string `json:"description" validate:"omitempty,max=500"`
	Annotated   *bool   `json:"annotated"`
	Status      *string `json:"status" validate:"omitempty,status"`
}

type StatusRequest struct {
	Status string `json:"status" validate:"required,status"`
}

type AnnotatedRequest struct {
	Annotated *bool `json:"annotated" validate:"required"`
}

type CodesData struct {
	Codes       []models.Code `json:"codes"`
	Length      int           `json:"length"`
	TotalPages  int           `json:"totalPages"`
	CurrentPage int           `json:"currentPage"`
	Limit       int           `json:"pageSize"`
}

// ListCodesHandler lists codes. Query: annotated (true/false), duplicates,
// search, status, order, dir (asc/desc), page, limit.
func ListCodesHandler(repo repository.CodeRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		filter := &models.CodeFilter{
			Search:     q.Get("search"),
			Status:     models.Status(q.Get("status")),
			OrderBy:    q.Get("order"),
			Descending: !strings.EqualFold(q.Get("dir"), "asc"),
		}
		if v, err := strconv.ParseBool(q.Get("annotated")); err == nil {
			filter.Annotated = &v
		}
		if v, err := strconv.ParseBool(q.Get("duplicates")); err == nil {
			filter.DuplicatesOnly = v
		}
		if filter.Status != "" && !filter.Status.Valid() {
			writeError(w, logger, http.StatusBadRequest, "unknown status")
			return
		}

		page := atoiDefault(q.Get("page"), 1)
		limit := atoiDefault(q.Get("limit"), 50)
		filter.Limit = limit
		filter.Offset = (page - 1) * limit

		total, err := repo.Count(filter)
		if err != nil {
			logger.Error("Failed to count codes: %v", err)
			writeError(w, logger, http.StatusInternalServerError, "failed to list codes")
			return
		}
		list, err := repo.List(filter)
		if err != nil {
			logger.Error("Failed to list codes: %v", err)
			writeError(w, logger, http.StatusInternalServerError, "failed to list codes")
			return
		}

		writeJSON(w, logger, http.StatusOK, CodesData{
			Codes:       list,
			Length:      total,
			TotalPages:  (total + limit - 1) / limit,
			CurrentPage: page,
			Limit:       limit,
		})
	}
}

func CreateCodeHandler(repo repository.CodeRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := parseJSON[CreateCodeRequest](r)
		if err != nil {
			writeError(w, logger, http.StatusBadRequest, err.Error())
			return
		}

		status := models.Status(req.Status)
		if status == "" {
			status = models.DefaultStatus
		}
		id, err := repo.Insert(models.NewCode{
			Code:        req.Code,
			Description: req.Description,
			Annotated:   req.Annotated,
			Status:      status,
			CreatedAt:   time.Now().UTC(),
		})
		if err != nil {
			logger.Error("Failed to create code %s: %v", req.Code, err)
			writeError(w, logger, http.StatusInternalServerError, "failed to create code")
			return
		}

		code, err := repo.GetByID(id)
		if err != nil {
			logger.Error("Failed to read created code %d: %v", id, err)
			writeError(w, logger, http.StatusInternalServerError, "failed to create code")
			return
		}
		logger.Info("Code %s created", code.Code)
		writeJSON(w, logger, http.StatusCreated, code)
	}
}

func UpdateCodeHandler(repo repository.CodeRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(r)
		if !ok {
			writeError(w, logger, http.StatusBadRequest, "id is required")
			return
		}
		req, err := parseJSON[UpdateCodeRequest](r)
		if err != nil {
			writeError(w, logger, http.StatusBadRequest, err.Error())
			return
		}

		upd := models.CodeUpdate{Code: req.Code, Description: req.Description, Annotated: req.Annotated}
		if req.Status != nil {
			s := models.Status(*req.Status)
			upd.Status = &s
		}
		updateAndRespond(w, repo, logger, id, func() error { return repo.Update(id, upd) })
	}
}

func UpdateStatusHandler(repo repository.CodeRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(r)
		if !ok {
			writeError(w, logger, http.StatusBadRequest, "id is required")
			return
		}
		req, err := parseJSON[StatusRequest](r)
		if err != nil {
			writeError(w, logger, http.StatusBadRequest, err.Error())
			return
		}
		updateAndRespond(w, repo, logger, id, func() error {
			return repo.UpdateStatus(id, models.Status(req.Status))
		})
	}
}

func UpdateAnnotatedHandler(repo repository.CodeRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(r)
		if !ok {
			writeError(w, logger, http.StatusBadRequest, "id is required")
			return
		}
		req, err := parseJSON[AnnotatedRequest](r)
		if err != nil {
			writeError(w, logger, http.StatusBadRequest, err.Error())
			return
		}
		updateAndRespond(w, repo, logger, id, func() error {
			return repo.UpdateAnnotated(id, *req.Annotated)
		})
	}
}

// updateAndRespond runs apply and answers with the stored row.
func updateAndRespond(w http.ResponseWriter, repo repository.CodeRepository, logger *logger.Logger, id int64, apply func() error) {
	if err := apply(); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, logger, http.StatusNotFound, "code not found")
			return
		}
		logger.Error("Failed to update code %d: %v", id, err)
		writeError(w, logger, http.StatusInternalServerError, "failed to update code")
		return
	}

	code, err := repo.GetByID(id)
	if err != nil {
		logger.Error("Failed to read code %d: %v", id, err)
		writeError(w, logger, http.StatusInternalServerError, "failed to update code")
		return
	}
	writeJSON(w, logger, http.StatusOK, code)
}

func DeleteCodeHandler(repo repository.CodeRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(r)
		if !ok {
			writeError(w, logger, http.StatusBadRequest, "id is required")
			return
		}
		if err := repo.Delete(id); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				writeError(w, logger, http.StatusNotFound, "code not found")
				return
			}
			logger.Error("Failed to delete code %d: %v", id, err)
			writeError(w, logger, http.StatusInternalServerError, "failed to delete code")
			return
		}
		writeJSON(w, logger, http.StatusOK, map[string]interface{}{"status": "deleted", "id": id})
	}
}

func ClearCodesHandler(repo repository.CodeRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := repo.DeleteAll()
		if err != nil {
			logger.Error("Failed to clear codes: %v", err)
			writeError(w, logger, http.StatusInternalServerError, "failed to clear codes")
			return
		}
		logger.Warning("All codes removed (%d)", n)
		writeJSON(w, logger, http.StatusOK, map[string]int64{"deleted": n})
	}
}

func StatsHandler(repo repository.CodeRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := repo.Stats()
		if err != nil {
			logger.Error("Failed to get stats: %v", err)
			writeError(w, logger, http.StatusInternalServerError, "failed to retrieve stats")
			return
		}
		writeJSON(w, logger, http.StatusOK, stats)
	}
}

// AutocompleteHandler returns up to limit codes starting with prefix; without
// a prefix it returns every distinct code.
func AutocompleteHandler(repo repository.CodeRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		prefix := strings.TrimSpace(r.URL.Query().Get("prefix"))
		if prefix == "" {
			list, err := repo.DistinctCodes()
			if err != nil {
				logger.Error("Failed to list codes: %v", err)
				writeError(w, logger, http.StatusInternalServerError, "failed to list codes")
				return
			}
			writeJSON(w, logger, http.StatusOK, map[string][]string{"codes": list})
			return
		}

		suggestions, err := repo.SearchPrefix(prefix, atoiDefault(r.URL.Query().Get("limit"), 10))
		if err != nil {
			logger.Error("Failed to search codes: %v", err)
			writeError(w, logger, http.StatusInternalServerError, "failed to search codes")
			return
		}
		writeJSON(w, logger, http.StatusOK, map[string][]models.CodeSuggestion{"suggestions": suggestions})
	}
}
