package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"codetrace/internal/models"
	"codetrace/internal/repository"
)

// sortable maps accepted CodeFilter.OrderBy values to columns.
var sortable = map[string]string{
	"created_at": "created_at",
	"code":       "code",
	"annotated":  "annotated",
	"duplicate":  "duplicate",
	"status":     "status",
}

const codeColumns = "id, code, description, created_at, annotated, duplicate, status"

type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// CodeRepository implements repository.CodeRepository for SQLite.
type CodeRepository struct {
	db  *DB
	now func() time.Time
}

// NewCodeRepository creates a new SQLite code repository.
func NewCodeRepository(db *DB) *CodeRepository {
	return &CodeRepository{db: db, now: time.Now}
}

var _ repository.CodeRepository = (*CodeRepository)(nil)

// Insert adds a single code and refreshes duplicate flags.
func (r *CodeRepository) Insert(code models.NewCode) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		INSERT INTO codes (code, description, created_at, annotated, duplicate, status)
		VALUES (?, ?, ?, ?, 0, ?)
	`, r.insertArgs(code)...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert code: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}

	if err := refreshDuplicates(tx); err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

// InsertBatch adds multiple codes in a single transaction and returns how
// many were written.
func (r *CodeRepository) InsertBatch(codes []models.NewCode) (int, error) {
	if len(codes) == 0 {
		return 0, nil
	}

	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO codes (code, description, created_at, annotated, duplicate, status)
		VALUES (?, ?, ?, ?, 0, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, code := range codes {
		if _, err := stmt.Exec(r.insertArgs(code)...); err != nil {
			return 0, fmt.Errorf("failed to insert code %s: %w", code.Code, err)
		}
	}

	if err := refreshDuplicates(tx); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit codes: %w", err)
	}
	return len(codes), nil
}

func (r *CodeRepository) insertArgs(code models.NewCode) []interface{} {
	created := code.CreatedAt
	if created.IsZero() {
		created = r.now()
	}
	status := code.Status
	if status == "" {
		status = models.DefaultStatus
	}
	return []interface{}{
		strings.ToUpper(strings.TrimSpace(code.Code)),
		strings.TrimSpace(code.Description),
		created.UTC(),
		code.Annotated,
		string(status),
	}
}

// GetByID retrieves a code by its ID.
func (r *CodeRepository) GetByID(id int64) (*models.Code, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	row := r.db.Conn().QueryRow("SELECT "+codeColumns+" FROM codes WHERE id = ?", id)
	code, err := scanCode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get code: %w", err)
	}
	return code, nil
}

// List retrieves codes based on filter criteria.
func (r *CodeRepository) List(filter *models.CodeFilter) ([]models.Code, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	if filter == nil {
		filter = &models.CodeFilter{Descending: true}
	}

	where, args := filterClause(filter)
	query := "SELECT " + codeColumns + " FROM codes" + where

	column, ok := sortable[filter.OrderBy]
	if !ok {
		column = "created_at"
	}
	dir := "ASC"
	if filter.Descending {
		dir = "DESC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s, id %s", column, dir, dir)

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query codes: %w", err)
	}
	defer rows.Close()

	codes := []models.Code{}
	for rows.Next() {
		code, err := scanCode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan code: %w", err)
		}
		codes = append(codes, *code)
	}
	return codes, rows.Err()
}

// Count returns the number of codes matching the filter.
func (r *CodeRepository) Count(filter *models.CodeFilter) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	if filter == nil {
		filter = &models.CodeFilter{}
	}
	where, args := filterClause(filter)

	var count int
	if err := r.db.Conn().QueryRow("SELECT COUNT(*) FROM codes"+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count codes: %w", err)
	}
	return count, nil
}

func filterClause(filter *models.CodeFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if filter.Annotated != nil {
		conditions = append(conditions, "annotated = ?")
		args = append(args, *filter.Annotated)
	}
	if filter.DuplicatesOnly {
		conditions = append(conditions, "duplicate = 1")
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		conditions = append(conditions, `code LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(strings.ToUpper(search))+"%")
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// Stats returns totals and per-status counts. Every known status is present
// in PerStatus, with zero when unused.
func (r *CodeRepository) Stats() (*models.CodeStats, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	stats := &models.CodeStats{PerStatus: make(map[models.Status]int, len(models.Statuses))}
	for _, s := range models.Statuses {
		stats.PerStatus[s] = 0
	}

	err := r.db.Conn().QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(annotated), 0), COALESCE(SUM(duplicate), 0) FROM codes
	`).Scan(&stats.Total, &stats.Annotated, &stats.Duplicates)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}

	rows, err := r.db.Conn().Query("SELECT status, COUNT(*) FROM codes GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to get status counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats.PerStatus[models.Status(status)] = count
	}
	return stats, rows.Err()
}

// DistinctCodes returns every stored code once, sorted.
func (r *CodeRepository) DistinctCodes() ([]string, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query("SELECT DISTINCT code FROM codes ORDER BY code")
	if err != nil {
		return nil, fmt.Errorf("failed to query codes: %w", err)
	}
	defer rows.Close()

	codes := []string{}
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// SearchPrefix returns codes starting with prefix together with their status.
func (r *CodeRepository) SearchPrefix(prefix string, limit int) ([]models.CodeSuggestion, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	if limit <= 0 {
		limit = 10
	}

	rows, err := r.db.Conn().Query(`
		SELECT DISTINCT code, status FROM codes
		WHERE code LIKE ? ESCAPE '\'
		ORDER BY code LIMIT ?
	`, escapeLike(strings.ToUpper(strings.TrimSpace(prefix)))+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search codes: %w", err)
	}
	defer rows.Close()

	suggestions := []models.CodeSuggestion{}
	for rows.Next() {
		var s models.CodeSuggestion
		var status string
		if err := rows.Scan(&s.Code, &status); err != nil {
			return nil, err
		}
		s.Status = models.Status(status)
		suggestions = append(suggestions, s)
	}
	return suggestions, rows.Err()
}

// Existing returns the subset of codes already stored.
func (r *CodeRepository) Existing(codes []string) ([]string, error) {
	statuses, err := r.StatusOf(codes)
	if err != nil {
		return nil, err
	}

	existing := []string{}
	seen := make(map[string]bool)
	for _, c := range codes {
		c = strings.ToUpper(strings.TrimSpace(c))
		if _, ok := statuses[c]; ok && !seen[c] {
			seen[c] = true
			existing = append(existing, c)
		}
	}
	return existing, nil
}

// StatusOf returns the stored status of each code that exists. When a code is
// stored more than once the most recent row wins.
func (r *CodeRepository) StatusOf(codes []string) (map[string]models.Status, error) {
	out := make(map[string]models.Status)
	if len(codes) == 0 {
		return out, nil
	}

	r.db.RLock()
	defer r.db.RUnlock()

	placeholders := make([]string, len(codes))
	args := make([]interface{}, len(codes))
	for i, c := range codes {
		placeholders[i] = "?"
		args[i] = strings.ToUpper(strings.TrimSpace(c))
	}

	rows, err := r.db.Conn().Query(
		"SELECT code, status FROM codes WHERE code IN ("+strings.Join(placeholders, ",")+") ORDER BY id",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query code status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var code, status string
		if err := rows.Scan(&code, &status); err != nil {
			return nil, err
		}
		out[code] = models.Status(status)
	}
	return out, rows.Err()
}

// Update applies the non-nil fields of upd. Changing the code refreshes
// duplicate flags.
func (r *CodeRepository) Update(id int64, upd models.CodeUpdate) error {
	var sets []string
	var args []interface{}

	if upd.Code != nil {
		code := strings.ToUpper(strings.TrimSpace(*upd.Code))
		if code == "" {
			return fmt.Errorf("code must not be empty")
		}
		sets = append(sets, "code = ?")
		args = append(args, code)
	}
	if upd.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, strings.TrimSpace(*upd.Description))
	}
	if upd.Annotated != nil {
		sets = append(sets, "annotated = ?")
		args = append(args, *upd.Annotated)
	}
	if upd.Status != nil {
		if !upd.Status.Valid() {
			return fmt.Errorf("invalid status %q", *upd.Status)
		}
		sets = append(sets, "status = ?")
		args = append(args, string(*upd.Status))
	}
	if len(sets) == 0 {
		_, err := r.GetByID(id)
		return err
	}

	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	args = append(args, id)
	result, err := tx.Exec("UPDATE codes SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("failed to update code: %w", err)
	}
	if err := affected(result); err != nil {
		return err
	}

	if upd.Code != nil {
		if err := refreshDuplicates(tx); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// UpdateAnnotated sets the annotated flag.
func (r *CodeRepository) UpdateAnnotated(id int64, annotated bool) error {
	return r.Update(id, models.CodeUpdate{Annotated: &annotated})
}

// UpdateStatus sets the status.
func (r *CodeRepository) UpdateStatus(id int64, status models.Status) error {
	return r.Update(id, models.CodeUpdate{Status: &status})
}

// UpdateStatusIfDefault changes the status of every row holding code, but
// only while the row still has the default status. It reports whether any
// row changed.
func (r *CodeRepository) UpdateStatusIfDefault(code string, status models.Status) (bool, error) {
	if !status.Valid() {
		return false, fmt.Errorf("invalid status %q", status)
	}

	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(
		"UPDATE codes SET status = ? WHERE code = ? AND status = ?",
		string(status), strings.ToUpper(strings.TrimSpace(code)), string(models.DefaultStatus),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Delete removes a code and refreshes duplicate flags.
func (r *CodeRepository) Delete(id int64) error {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec("DELETE FROM codes WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete code: %w", err)
	}
	if err := affected(result); err != nil {
		return err
	}
	if err := refreshDuplicates(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteAll removes every code and returns how many were deleted.
func (r *CodeRepository) DeleteAll() (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec("DELETE FROM codes")
	if err != nil {
		return 0, fmt.Errorf("failed to delete codes: %w", err)
	}
	return result.RowsAffected()
}

// refreshDuplicates flags every row whose code occurs more than once.
func refreshDuplicates(tx execer) error {
	if _, err := tx.Exec(`
		UPDATE codes SET duplicate = CASE
			WHEN code IN (SELECT code FROM codes GROUP BY code HAVING COUNT(*) > 1) THEN 1
			ELSE 0
		END
	`); err != nil {
		return fmt.Errorf("failed to refresh duplicates: %w", err)
	}
	return nil
}

func affected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanCode(s scanner) (*models.Code, error) {
	var c models.Code
	var status string
	if err := s.Scan(&c.ID, &c.Code, &c.Description, &c.CreatedAt, &c.Annotated, &c.Duplicate, &status); err != nil {
		return nil, err
	}
	c.Status = models.Status(status)
	return &c, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(s)
}
