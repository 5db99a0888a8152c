// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jeranaias/chatdesk/internal/model"
	"github.com/jeranaias/chatdesk/internal/util"
)

const (
	filePrefix = "conversation_"
	fileSuffix = ".txt"
	nameLayout = "20060102_150405"
)

// ErrInvalidName is returned for transcript names outside the store.
var ErrInvalidName = errors.New("invalid transcript name")

// =============================================================================
// TRANSCRIPT STORE
// =============================================================================

// TranscriptStore writes transcripts into one directory.
type TranscriptStore struct {
	dir string
}

// TranscriptMeta describes a saved transcript.
type TranscriptMeta struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Size      int64     `json:"size"`
}

// NewTranscriptStore creates the directory if needed.
func NewTranscriptStore(dir string) (*TranscriptStore, error) {
	if dir == "" {
		return nil, errors.New("transcript directory not set")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create transcript directory: %w", err)
	}
	return &TranscriptStore{dir: dir}, nil
}

// Dir returns the transcript directory.
func (s *TranscriptStore) Dir() string {
	return s.dir
}

// Path returns the full path of a transcript name.
func (s *TranscriptStore) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// NextName returns a fresh transcript name for a conversation started at
// now. When the plain name is taken on disk or equals avoid, a numeric
// suffix is added so two conversations never share a file.
func (s *TranscriptStore) NextName(now time.Time, avoid string) string {
	base := filePrefix + now.Format(nameLayout)
	name := base + fileSuffix
	for n := 2; name == avoid || s.exists(name); n++ {
		name = base + "_" + strconv.Itoa(n) + fileSuffix
	}
	return name
}

func (s *TranscriptStore) exists(name string) bool {
	_, err := os.Stat(s.Path(name))
	return err == nil
}

// Write replaces the transcript with the rendering of messages.
func (s *TranscriptStore) Write(name string, messages []model.Message) error {
	if err := validateName(name); err != nil {
		return err
	}
	data := []byte(model.RenderTranscriptFile(messages))
	if err := util.AtomicWriteFile(s.Path(name), data, 0644); err != nil {
		return fmt.Errorf("write transcript %s: %w", name, err)
	}
	return nil
}

// Read returns the raw content of a transcript.
func (s *TranscriptStore) Read(name string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// List returns saved transcripts, newest first.
func (s *TranscriptStore) List() ([]TranscriptMeta, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var out []TranscriptMeta
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		created, err := parseCreated(name)
		if err != nil {
			continue
		}
		out = append(out, TranscriptMeta{
			Name:      name,
			Path:      s.Path(name),
			CreatedAt: created,
			UpdatedAt: info.ModTime(),
			Size:      info.Size(),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Name > out[j].Name
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// parseCreated extracts the start time encoded in a transcript name.
func parseCreated(name string) (time.Time, error) {
	stem := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
	if len(stem) < len(nameLayout) {
		return time.Time{}, ErrInvalidName
	}
	return time.ParseInLocation(nameLayout, stem[:len(nameLayout)], time.Local)
}

func validateName(name string) error {
	if name == "" || name != filepath.Base(name) || !strings.HasSuffix(name, fileSuffix) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
