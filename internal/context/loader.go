// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package context

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrNoDocuments is wrapped by DirectoryError when the directory holds no
// .txt files.
var ErrNoDocuments = errors.New("no .txt files found")

// DirectoryError reports a context directory that is missing, unreadable,
// or empty. It is an operator misconfiguration and is raised at startup.
type DirectoryError struct {
	Dir string
	Err error
}

func (e *DirectoryError) Error() string {
	return fmt.Sprintf("context directory %s: %v", e.Dir, e.Err)
}

func (e *DirectoryError) Unwrap() error {
	return e.Err
}

// =============================================================================
// LOADER
// =============================================================================

// Loader builds the context block from a directory of .txt documents.
// A Loader with an empty directory is disabled and builds nothing.
type Loader struct {
	dir   string
	cache *FileCache
}

// NewLoader creates a loader for dir. Pass "" to disable context injection.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir, cache: NewFileCache()}
}

// Dir returns the configured directory.
func (l *Loader) Dir() string {
	return l.dir
}

// CacheStats reports how often documents were served from cache.
func (l *Loader) CacheStats() FileCacheStats {
	return l.cache.Stats()
}

// Enabled reports whether a directory is configured.
func (l *Loader) Enabled() bool {
	return l != nil && l.dir != ""
}

// Validate checks that the directory exists and contains at least one
// .txt file. It returns a *DirectoryError otherwise.
func (l *Loader) Validate() error {
	if !l.Enabled() {
		return nil
	}
	info, err := os.Stat(l.dir)
	if err != nil {
		return &DirectoryError{Dir: l.dir, Err: err}
	}
	if !info.IsDir() {
		return &DirectoryError{Dir: l.dir, Err: errors.New("not a directory")}
	}

	files, err := FindTextFiles(l.dir)
	if err != nil {
		return &DirectoryError{Dir: l.dir, Err: err}
	}
	if len(files) == 0 {
		return &DirectoryError{Dir: l.dir, Err: ErrNoDocuments}
	}
	return nil
}

// Build returns the wrapped context block, or "" when the loader is
// disabled or the directory holds no documents.
func (l *Loader) Build() (string, error) {
	if !l.Enabled() {
		return "", nil
	}
	if _, err := os.Stat(l.dir); err != nil {
		return "", &DirectoryError{Dir: l.dir, Err: err}
	}

	files, err := FindTextFiles(l.dir)
	if err != nil {
		return "", &DirectoryError{Dir: l.dir, Err: err}
	}

	var sb strings.Builder
	for _, path := range files {
		content, err := l.cache.Read(path)
		if err != nil {
			return "", fmt.Errorf("read context document: %w", err)
		}
		name := filepath.Base(path)
		sb.WriteString("<" + name + ">\n")
		sb.WriteString(strings.TrimSpace(content))
		sb.WriteString("\n</" + name + ">\n\n")
	}
	return strings.TrimSpace(sb.String()), nil
}

// Inject appends the context block to text, separated by a newline. It
// returns text unchanged when there is no context.
func (l *Loader) Inject(text string) (string, error) {
	block, err := l.Build()
	if err != nil {
		return "", err
	}
	if block == "" {
		return text, nil
	}
	return text + "\n" + block, nil
}

// FindTextFiles returns every regular file under dir whose name ends in
// ".txt", in lexical walk order.
func FindTextFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && strings.HasSuffix(d.Name(), ".txt") {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
