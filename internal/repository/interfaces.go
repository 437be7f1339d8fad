package repository

import (
	"errors"

	"codetrace/internal/models"
)

// ErrNotFound is returned when a code id does not exist.
var ErrNotFound = errors.New("code not found")

// CodeRepository defines the interface for code data operations.
type CodeRepository interface {
	// Create operations
	Insert(code models.NewCode) (int64, error)
	InsertBatch(codes []models.NewCode) (int, error)

	// Read operations
	GetByID(id int64) (*models.Code, error)
	List(filter *models.CodeFilter) ([]models.Code, error)
	Count(filter *models.CodeFilter) (int, error)
	Stats() (*models.CodeStats, error)
	DistinctCodes() ([]string, error)
	SearchPrefix(prefix string, limit int) ([]models.CodeSuggestion, error)
	Existing(codes []string) ([]string, error)
	StatusOf(codes []string) (map[string]models.Status, error)

	// Update operations
	Update(id int64, upd models.CodeUpdate) error
	UpdateAnnotated(id int64, annotated bool) error
	UpdateStatus(id int64, status models.Status) error
	UpdateStatusIfDefault(code string, status models.Status) (bool, error)

	// Delete operations
	Delete(id int64) error
	DeleteAll() (int64, error)
}
