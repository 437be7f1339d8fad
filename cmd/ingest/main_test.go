package main

import (
	"os"
	"path/filepath"
	"testing"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestCollect(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "b.PNG"))
	touch(t, filepath.Join(dir, "a.jpg"))
	touch(t, filepath.Join(dir, "codes.txt"))
	touch(t, filepath.Join(dir, "export.csv"))
	touch(t, filepath.Join(dir, "notes.md"))
	touch(t, filepath.Join(dir, "sub", "c.jpeg"))

	images, lists, err := collect(dir, false)
	if err != nil {
		t.Fatalf("collect failed: %v", err)
	}
	if len(images) != 2 || images[0].Name != "a.jpg" || images[1].Name != "b.PNG" {
		t.Errorf("Unexpected images %+v", images)
	}
	if len(lists) != 2 || filepath.Base(lists[0]) != "codes.txt" {
		t.Errorf("Unexpected lists %v", lists)
	}

	images, _, err = collect(dir, true)
	if err != nil {
		t.Fatalf("collect failed: %v", err)
	}
	if len(images) != 3 {
		t.Errorf("Expected subdirectory image with -r, got %+v", images)
	}
}

func TestCollect_MissingDir(t *testing.T) {
	if _, _, err := collect(filepath.Join(t.TempDir(), "nope"), false); err == nil {
		t.Error("Expected error for missing directory")
	}
}
