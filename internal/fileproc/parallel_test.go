package fileproc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/panbanda/reaper/pkg/parser"
)

func createTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

// parseBase parses path and returns its base name.
func parseBase(p *parser.Parser, path string) (string, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	res, err := p.Parse(context.Background(), src, parser.DetectLanguage(path), path)
	if err != nil {
		return "", err
	}
	defer res.Close()
	return filepath.Base(path), nil
}

func TestMapFiles(t *testing.T) {
	tmpDir := t.TempDir()

	files := make([]string, 50)
	for i := range files {
		files[i] = createTestFile(t, tmpDir, fmt.Sprintf("file%d.go", i), "package main\nfunc main() {}")
	}

	results, errs := MapFiles(context.Background(), files, func(p *parser.Parser, path string) (string, error) {
		return parseBase(p, path)
	})

	if errs != nil {
		t.Fatalf("Unexpected errors: %v", errs)
	}
	if len(results) != len(files) {
		t.Fatalf("Expected %d results, got %d", len(files), len(results))
	}
	for i, r := range results {
		if want := fmt.Sprintf("file%d.go", i); r != want {
			t.Errorf("Result[%d] = %q, want %q", i, r, want)
		}
	}
}

func TestMapFiles_EmptyFileList(t *testing.T) {
	results, errs := MapFiles(context.Background(), nil, func(p *parser.Parser, path string) (string, error) {
		return path, nil
	})
	if results != nil {
		t.Errorf("Expected nil for empty file list, got %v", results)
	}
	if errs != nil {
		t.Errorf("Expected nil errors for empty file list, got %v", errs)
	}
}

func TestMapFiles_CollectsErrors(t *testing.T) {
	tmpDir := t.TempDir()
	files := []string{
		createTestFile(t, tmpDir, "a.go", "package a"),
		filepath.Join(tmpDir, "missing.go"),
		createTestFile(t, tmpDir, "c.go", "package c"),
	}

	results, errs := MapFiles(context.Background(), files, func(p *parser.Parser, path string) (string, error) {
		return parseBase(p, path)
	})

	if len(results) != 2 || results[0] != "a.go" || results[1] != "c.go" {
		t.Errorf("Expected [a.go c.go], got %v", results)
	}
	if !errs.HasErrors() || len(errs.Errors) != 1 {
		t.Fatalf("Expected one error, got %v", errs)
	}
	if errs.Errors[0].Path != files[1] {
		t.Errorf("Error path = %q, want %q", errs.Errors[0].Path, files[1])
	}
}

func TestMapFilesN_Progress(t *testing.T) {
	files := []string{"a", "b", "c", "d"}
	var calls atomic.Int32

	_, errs := MapFilesN(context.Background(), files, 2, func(p *parser.Parser, path string) (int, error) {
		if path == "b" {
			return 0, errors.New("boom")
		}
		return 1, nil
	}, func() { calls.Add(1) })

	if got := calls.Load(); got != int32(len(files)) {
		t.Errorf("Progress called %d times, want %d", got, len(files))
	}
	if errs == nil || len(errs.Errors) != 1 {
		t.Errorf("Expected one error, got %v", errs)
	}
}

func TestForEachFile_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, errs := ForEachFile(ctx, []string{"a", "b"}, func(path string) (string, error) {
		return path, nil
	})
	if len(results) != 0 {
		t.Errorf("Expected no results after cancellation, got %v", results)
	}
	if errs == nil || len(errs.Errors) != 2 {
		t.Fatalf("Expected two cancellation errors, got %v", errs)
	}
	if !errors.Is(errs.Errors[0], context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", errs.Errors[0].Err)
	}
}

func TestProcessingErrors(t *testing.T) {
	var nilErrs *ProcessingErrors
	if nilErrs.HasErrors() {
		t.Error("nil collection must report no errors")
	}

	errs := &ProcessingErrors{}
	if errs.Error() != "no errors" {
		t.Errorf("Error() = %q", errs.Error())
	}
	errs.Add("a.go", errors.New("bad"))
	if errs.Error() != "a.go: bad" {
		t.Errorf("Error() = %q", errs.Error())
	}
	errs.Add("b.go", errors.New("worse"))
	if errs.Error() != "2 files failed to process (first: a.go: bad)" {
		t.Errorf("Error() = %q", errs.Error())
	}
}
