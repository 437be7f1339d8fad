package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"codetrace/internal/app"
	"codetrace/internal/config"
	"codetrace/internal/logger"
	"codetrace/internal/models"
	"codetrace/internal/repository/sqlite"
	"codetrace/internal/services"
)

var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true}

func main() {
	cfg := config.Load()

	dir := flag.String("dir", ".", "Directory with images and TXT/CSV code lists")
	dbPath := flag.String("db", cfg.DatabasePath, "Database path")
	recursive := flag.Bool("r", false, "Walk subdirectories")
	flag.Parse()
	cfg.DatabasePath = *dbPath

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lg := logger.NewLogger(cfg)

	images, lists, err := collect(*dir, *recursive)
	if err != nil {
		log.Fatalf("Failed to read %s: %v", *dir, err)
	}
	if len(images) == 0 && len(lists) == 0 {
		fmt.Println("Nothing to ingest")
		return
	}

	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	extractor, handle, err := app.NewExtractor(cfg, lg)
	if err != nil {
		log.Fatalf("Failed to set up extraction: %v", err)
	}
	defer handle.Close()

	repo := sqlite.NewCodeRepository(db)
	manager := services.NewManager(extractor, repo, nil, cfg, lg)
	defer manager.Stop()

	for _, path := range lists {
		f, err := os.Open(path)
		if err != nil {
			log.Printf("Skipping %s: %v", path, err)
			continue
		}
		report, err := manager.ImportFile(filepath.Base(path), f)
		f.Close()
		if err != nil {
			log.Printf("Failed to import %s: %v", path, err)
			continue
		}
		fmt.Printf("%s: %d imported, %d duplicate(s)\n", filepath.Base(path), report.Imported, len(report.Duplicates))
	}

	if len(images) > 0 {
		fmt.Printf("Extracting codes from %d image(s)...\n", len(images))
		report, err := manager.ImportImages(ctx, images)
		if err != nil {
			log.Fatalf("Image import failed: %v", err)
		}
		for _, fe := range report.Errors {
			fmt.Printf("  %s: %s\n", fe.File, fe.Error)
		}
		fmt.Printf("Images: %d code(s) found, %d imported, %d duplicate(s)\n",
			report.Found, report.Imported, len(report.Duplicates))
	}

	stats, err := repo.Stats()
	if err != nil {
		log.Fatalf("Failed to read stats: %v", err)
	}
	fmt.Printf("Database: %d code(s), %d annotated, %d duplicate(s)\n", stats.Total, stats.Annotated, stats.Duplicates)
	for _, status := range models.Statuses {
		if n := stats.PerStatus[status]; n > 0 {
			fmt.Printf("  %-12s %d\n", status.Label(), n)
		}
	}
}

// collect splits the files under dir into images and code lists, sorted by
// path so runs are repeatable.
func collect(dir string, recursive bool) ([]services.ImageFile, []string, error) {
	var images []services.ImageFile
	var lists []string

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		switch ext := strings.ToLower(filepath.Ext(path)); {
		case imageExts[ext]:
			images = append(images, services.ImageFile{Name: filepath.Base(path), Path: path})
		case ext == ".txt" || ext == ".csv":
			lists = append(lists, path)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	sort.Slice(images, func(i, j int) bool { return images[i].Path < images[j].Path })
	sort.Strings(lists)
	return images, lists, nil
}
