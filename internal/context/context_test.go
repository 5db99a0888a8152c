// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package context

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func writeDoc(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
}

// =============================================================================
// VALIDATE TESTS
// =============================================================================

func TestValidate_MissingDirectory(t *testing.T) {
	l := NewLoader(filepath.Join(t.TempDir(), "nope"))

	err := l.Validate()
	var dirErr *DirectoryError
	if !errors.As(err, &dirErr) {
		t.Fatalf("Validate() = %v, want *DirectoryError", err)
	}
}

func TestValidate_EmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "readme.md", "not a txt file")

	err := NewLoader(dir).Validate()
	if !errors.Is(err, ErrNoDocuments) {
		t.Fatalf("Validate() = %v, want ErrNoDocuments", err)
	}
}

func TestValidate_DisabledLoader(t *testing.T) {
	if err := NewLoader("").Validate(); err != nil {
		t.Errorf("disabled loader should validate, got %v", err)
	}
}

// =============================================================================
// BUILD TESTS
// =============================================================================

func TestBuild_WrapsFilesInWalkOrder(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "b.txt", "  second  \n")
	writeDoc(t, dir, "a.txt", "first")
	writeDoc(t, dir, "sub/c.txt", "\nthird\n")
	writeDoc(t, dir, "ignored.log", "nope")

	got, err := NewLoader(dir).Build()
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	want := "<a.txt>\nfirst\n</a.txt>\n\n" +
		"<b.txt>\nsecond\n</b.txt>\n\n" +
		"<c.txt>\nthird\n</c.txt>"
	if got != want {
		t.Errorf("Build() =\n%q\nwant\n%q", got, want)
	}
}

func TestInject(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "rules.txt", "rule: be terse")

	got, err := NewLoader(dir).Inject("hello")
	if err != nil {
		t.Fatalf("Inject() error: %v", err)
	}
	want := "hello\n<rules.txt>\nrule: be terse\n</rules.txt>"
	if got != want {
		t.Errorf("Inject() = %q, want %q", got, want)
	}
}

func TestInject_Disabled(t *testing.T) {
	got, err := NewLoader("").Inject("hello")
	if err != nil || got != "hello" {
		t.Errorf("Inject() = %q, %v; want unchanged text", got, err)
	}
}

func TestBuild_DirectoryRemovedAfterStartup(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ctx")
	writeDoc(t, dir, "a.txt", "x")
	l := NewLoader(dir)
	if err := l.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}

	os.RemoveAll(dir)

	var dirErr *DirectoryError
	if _, err := l.Build(); !errors.As(err, &dirErr) {
		t.Errorf("Build() = %v, want *DirectoryError", err)
	}
}

// =============================================================================
// CACHE TESTS
// =============================================================================

func TestFileCache_ReusesUnchangedFiles(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "a.txt", "one")
	l := NewLoader(dir)

	for i := 0; i < 3; i++ {
		if _, err := l.Build(); err != nil {
			t.Fatalf("Build() error: %v", err)
		}
	}

	stats := l.CacheStats()
	if stats.Entries != 1 || stats.Misses != 1 || stats.Hits != 2 {
		t.Errorf("stats = %+v, want 1 miss and 2 hits", stats)
	}
}

func TestFileCache_DetectsSizeChange(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "a.txt", "one")
	l := NewLoader(dir)

	if _, err := l.Build(); err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	writeDoc(t, dir, "a.txt", "one plus more")

	got, err := l.Build()
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if got != "<a.txt>\none plus more\n</a.txt>" {
		t.Errorf("stale cache content: %q", got)
	}
}
