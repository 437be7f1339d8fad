package sqlite

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codetrace/internal/models"
	"codetrace/internal/repository"
)

func newTestRepo(t *testing.T) (*DB, *CodeRepository) {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "nested", "test.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, NewCodeRepository(db)
}

func boolPtr(b bool) *bool { return &b }

func insertAll(t *testing.T, repo *CodeRepository, codes ...string) {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	batch := make([]models.NewCode, len(codes))
	for i, c := range codes {
		batch[i] = models.NewCode{Code: c, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
	}
	if _, err := repo.InsertBatch(batch); err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}
}

// ========================================
// Database
// ========================================

func TestDatabase_CreatesFile(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "data", "codes.db")
	db, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file should exist")
	}
}

func TestDatabase_MigratesOldSchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "old.db")
	db, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	// Recreate the table the way early versions did, without status or description.
	if _, err := db.Conn().Exec(`DROP TABLE codes; CREATE TABLE codes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		annotated INTEGER NOT NULL DEFAULT 0,
		duplicate INTEGER NOT NULL DEFAULT 0
	)`); err != nil {
		t.Fatalf("Failed to create old schema: %v", err)
	}
	db.Close()

	db, err = New(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen database: %v", err)
	}
	defer db.Close()

	repo := NewCodeRepository(db)
	id, err := repo.Insert(models.NewCode{Code: "CQ123456", Description: "shelf 3"})
	if err != nil {
		t.Fatalf("Insert after migration failed: %v", err)
	}
	code, err := repo.GetByID(id)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if code.Status != models.DefaultStatus || code.Description != "shelf 3" {
		t.Errorf("Unexpected code after migration: %+v", code)
	}
}

// ========================================
// Insert / Get
// ========================================

func TestCodeRepository_InsertAndGet(t *testing.T) {
	_, repo := newTestRepo(t)

	created := time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC)
	id, err := repo.Insert(models.NewCode{Code: " cq123456 ", Annotated: true, CreatedAt: created, Status: models.StatusOrdered})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	code, err := repo.GetByID(id)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if code.Code != "CQ123456" {
		t.Errorf("Expected normalised code, got %q", code.Code)
	}
	if !code.Annotated || code.Duplicate || code.Status != models.StatusOrdered {
		t.Errorf("Unexpected flags %+v", code)
	}
	if !code.CreatedAt.Equal(created) {
		t.Errorf("Expected created_at %v, got %v", created, code.CreatedAt)
	}
}

func TestCodeRepository_GetByID_NotFound(t *testing.T) {
	_, repo := newTestRepo(t)

	if _, err := repo.GetByID(999); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestCodeRepository_InsertBatch_Empty(t *testing.T) {
	_, repo := newTestRepo(t)

	n, err := repo.InsertBatch(nil)
	if err != nil || n != 0 {
		t.Errorf("InsertBatch(nil) = %d, %v", n, err)
	}
}

// ========================================
// Duplicates
// ========================================

func TestCodeRepository_DuplicateFlags(t *testing.T) {
	_, repo := newTestRepo(t)
	insertAll(t, repo, "CQ111111", "CQ222222", "CQ111111")

	dups, err := repo.List(&models.CodeFilter{DuplicatesOnly: true})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(dups) != 2 {
		t.Fatalf("Expected 2 duplicate rows, got %d", len(dups))
	}

	// Deleting one copy clears the flag on the other.
	if err := repo.Delete(dups[0].ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if n, _ := repo.Count(&models.CodeFilter{DuplicatesOnly: true}); n != 0 {
		t.Errorf("Expected no duplicates after delete, got %d", n)
	}

	// Renaming a code into an existing one flags both.
	all, _ := repo.List(&models.CodeFilter{OrderBy: "code"})
	target := all[0].Code
	if err := repo.Update(all[1].ID, models.CodeUpdate{Code: &target}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if n, _ := repo.Count(&models.CodeFilter{DuplicatesOnly: true}); n != 2 {
		t.Errorf("Expected 2 duplicates after rename, got %d", n)
	}
}

// ========================================
// List / Count
// ========================================

func TestCodeRepository_ListFilters(t *testing.T) {
	_, repo := newTestRepo(t)
	insertAll(t, repo, "CQ100001", "TY200002", "CQ300003")

	all, _ := repo.List(&models.CodeFilter{OrderBy: "code"})
	if err := repo.UpdateAnnotated(all[0].ID, true); err != nil {
		t.Fatalf("UpdateAnnotated failed: %v", err)
	}
	if err := repo.UpdateStatus(all[1].ID, models.StatusLost); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	tests := []struct {
		name   string
		filter models.CodeFilter
		want   []string
	}{
		{"all by code", models.CodeFilter{OrderBy: "code"}, []string{"CQ100001", "CQ300003", "TY200002"}},
		{"newest first", models.CodeFilter{Descending: true}, []string{"CQ300003", "TY200002", "CQ100001"}},
		{"annotated", models.CodeFilter{Annotated: boolPtr(true)}, []string{"CQ100001"}},
		{"not annotated", models.CodeFilter{Annotated: boolPtr(false), OrderBy: "code"}, []string{"CQ300003", "TY200002"}},
		{"search", models.CodeFilter{Search: "cq", OrderBy: "code"}, []string{"CQ100001", "CQ300003"}},
		{"search wildcard is literal", models.CodeFilter{Search: "%"}, nil},
		{"status", models.CodeFilter{Status: models.StatusLost}, []string{"CQ300003"}},
		{"unknown order falls back", models.CodeFilter{OrderBy: "id; DROP TABLE codes"}, []string{"CQ100001", "TY200002", "CQ300003"}},
		{"paged", models.CodeFilter{OrderBy: "code", Limit: 1, Offset: 1}, []string{"CQ300003"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filter := tt.filter
			got, err := repo.List(&filter)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Expected %v, got %+v", tt.want, got)
			}
			for i := range got {
				if got[i].Code != tt.want[i] {
					t.Errorf("Position %d: expected %s, got %s", i, tt.want[i], got[i].Code)
				}
			}

			if tt.filter.Limit == 0 {
				n, err := repo.Count(&filter)
				if err != nil || n != len(tt.want) {
					t.Errorf("Count = %d, %v; expected %d", n, err, len(tt.want))
				}
			}
		})
	}
}

// ========================================
// Update / Delete
// ========================================

func TestCodeRepository_Update(t *testing.T) {
	_, repo := newTestRepo(t)
	id, _ := repo.Insert(models.NewCode{Code: "CQ123456"})

	desc := "  back room "
	status := models.StatusLast
	if err := repo.Update(id, models.CodeUpdate{Description: &desc, Status: &status}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	code, _ := repo.GetByID(id)
	if code.Description != "back room" || code.Status != models.StatusLast {
		t.Errorf("Unexpected code after update: %+v", code)
	}

	bad := models.Status("broken")
	if err := repo.Update(id, models.CodeUpdate{Status: &bad}); err == nil {
		t.Error("Expected error for invalid status")
	}
	empty := "  "
	if err := repo.Update(id, models.CodeUpdate{Code: &empty}); err == nil {
		t.Error("Expected error for empty code")
	}
	if err := repo.Update(id, models.CodeUpdate{}); err != nil {
		t.Errorf("Empty update of existing code should succeed, got %v", err)
	}
	if err := repo.UpdateAnnotated(999, true); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := repo.Update(999, models.CodeUpdate{}); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for empty update, got %v", err)
	}
}

func TestCodeRepository_UpdateStatusIfDefault(t *testing.T) {
	_, repo := newTestRepo(t)
	insertAll(t, repo, "CQ111111")
	id, _ := repo.Insert(models.NewCode{Code: "CQ222222", Status: models.StatusOrdered})

	changed, err := repo.UpdateStatusIfDefault("cq111111", models.StatusPending)
	if err != nil || !changed {
		t.Errorf("Expected default status to change, got %v, %v", changed, err)
	}

	changed, err = repo.UpdateStatusIfDefault("CQ222222", models.StatusPending)
	if err != nil || changed {
		t.Errorf("Expected non-default status to stay, got %v, %v", changed, err)
	}
	code, _ := repo.GetByID(id)
	if code.Status != models.StatusOrdered {
		t.Errorf("Status should be untouched, got %s", code.Status)
	}

	if _, err := repo.UpdateStatusIfDefault("CQ111111", "nope"); err == nil {
		t.Error("Expected error for invalid status")
	}
}

func TestCodeRepository_Delete(t *testing.T) {
	_, repo := newTestRepo(t)
	insertAll(t, repo, "CQ111111", "CQ222222")

	if err := repo.Delete(999); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	n, err := repo.DeleteAll()
	if err != nil || n != 2 {
		t.Errorf("DeleteAll = %d, %v", n, err)
	}
	if count, _ := repo.Count(nil); count != 0 {
		t.Errorf("Expected empty table, got %d", count)
	}
}

// ========================================
// Stats / lookup
// ========================================

func TestCodeRepository_Stats(t *testing.T) {
	_, repo := newTestRepo(t)

	stats, err := repo.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Total != 0 || len(stats.PerStatus) != len(models.Statuses) {
		t.Errorf("Unexpected empty stats %+v", stats)
	}

	insertAll(t, repo, "CQ111111", "CQ111111", "TY222222")
	all, _ := repo.List(nil)
	repo.UpdateAnnotated(all[0].ID, true)
	repo.UpdateStatus(all[1].ID, models.StatusSoldOut)

	stats, err = repo.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Total != 3 || stats.Annotated != 1 || stats.Duplicates != 2 {
		t.Errorf("Unexpected stats %+v", stats)
	}
	if stats.PerStatus[models.StatusAvailable] != 2 || stats.PerStatus[models.StatusSoldOut] != 1 {
		t.Errorf("Unexpected per-status counts %+v", stats.PerStatus)
	}
}

func TestCodeRepository_Lookup(t *testing.T) {
	_, repo := newTestRepo(t)
	insertAll(t, repo, "CQ111111", "CQ112222", "TY333333", "CQ111111")

	distinct, err := repo.DistinctCodes()
	if err != nil {
		t.Fatalf("DistinctCodes failed: %v", err)
	}
	if len(distinct) != 3 || distinct[0] != "CQ111111" {
		t.Errorf("Unexpected distinct codes %v", distinct)
	}

	suggestions, err := repo.SearchPrefix("cq11", 0)
	if err != nil {
		t.Fatalf("SearchPrefix failed: %v", err)
	}
	if len(suggestions) != 2 || suggestions[0].Code != "CQ111111" || suggestions[0].Status != models.DefaultStatus {
		t.Errorf("Unexpected suggestions %+v", suggestions)
	}
	if limited, _ := repo.SearchPrefix("CQ", 1); len(limited) != 1 {
		t.Errorf("Expected limit to apply, got %+v", limited)
	}

	existing, err := repo.Existing([]string{"ty333333", "XX999999", "CQ111111", "CQ111111"})
	if err != nil {
		t.Fatalf("Existing failed: %v", err)
	}
	if len(existing) != 2 || existing[0] != "TY333333" || existing[1] != "CQ111111" {
		t.Errorf("Unexpected existing codes %v", existing)
	}

	statuses, err := repo.StatusOf(nil)
	if err != nil || len(statuses) != 0 {
		t.Errorf("StatusOf(nil) = %v, %v", statuses, err)
	}
}

func TestCodeRepository_ConcurrentInserts(t *testing.T) {
	_, repo := newTestRepo(t)

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func(idx int) {
			if _, err := repo.Insert(models.NewCode{Code: "CQ10000" + string(rune('0'+idx))}); err != nil {
				t.Errorf("Concurrent insert %d failed: %v", idx, err)
			}
			done <- true
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	if n, _ := repo.Count(nil); n != 10 {
		t.Errorf("Expected 10 codes, got %d", n)
	}
}
