// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/chatdesk/internal/util"
)

// =============================================================================
// FILE STORE
// =============================================================================

// FileStore keeps records as "<timestamp>,<cost>" lines in a text file.
//
// Each record is appended with one O_APPEND write, so other processes
// sharing the file never see a torn line. The mutex serializes writers
// within this process.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore opens the ledger at path, creating an empty file if absent.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create cost log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("create cost log %s: %w", path, err)
	}
	f.Close()
	return &FileStore{path: path}, nil
}

// Path returns the file the store writes to.
func (s *FileStore) Path() string {
	return s.path
}

// Append writes rec as a new line.
func (s *FileStore) Append(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return util.AppendLine(s.path, rec.String(), 0644)
}

// Since scans the file and returns the records at or after t. Lines that
// do not parse are skipped.
func (s *FileStore) Since(ctx context.Context, t time.Time) ([]Record, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	// Lines are read whole, whatever their length, so one corrupt line
	// cannot hide the rest of the ledger.
	var out []Record
	r := bufio.NewReader(f)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line, readErr := r.ReadString('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return nil, fmt.Errorf("read cost log: %w", readErr)
		}
		if line != "" {
			if rec, err := ParseRecord(strings.TrimRight(line, "\r\n")); err == nil && !rec.Timestamp.Before(t) {
				out = append(out, rec)
			}
		}
		if readErr != nil {
			return out, nil
		}
	}
}

// Close is a no-op; the file is opened per operation.
func (s *FileStore) Close() error {
	return nil
}
