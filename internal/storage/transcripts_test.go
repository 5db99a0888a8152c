// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jeranaias/chatdesk/internal/model"
)

func newTestStore(t *testing.T) *TranscriptStore {
	t.Helper()
	s, err := NewTranscriptStore(filepath.Join(t.TempDir(), "conversations"))
	if err != nil {
		t.Fatalf("NewTranscriptStore failed: %v", err)
	}
	return s
}

// =============================================================================
// NAMING TESTS
// =============================================================================

func TestNextName_Format(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2026, 10, 16, 9, 5, 3, 0, time.Local)

	if got := s.NextName(now, ""); got != "conversation_20261016_090503.txt" {
		t.Errorf("NextName() = %q", got)
	}
}

func TestNextName_AvoidsCollisions(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2026, 10, 16, 9, 5, 3, 0, time.Local)

	first := s.NextName(now, "")
	second := s.NextName(now, first)
	if second == first {
		t.Fatalf("NextName returned the avoided name %q", first)
	}
	if second != "conversation_20261016_090503_2.txt" {
		t.Errorf("second name = %q", second)
	}

	if err := s.Write(second, nil); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if third := s.NextName(now, first); third != "conversation_20261016_090503_3.txt" {
		t.Errorf("third name = %q", third)
	}
}

// =============================================================================
// WRITE / READ TESTS
// =============================================================================

func TestWrite_RewritesWholeFile(t *testing.T) {
	s := newTestStore(t)
	name := s.NextName(time.Now(), "")

	user := model.NewMessage(model.RoleUser, model.NewText("hello"))
	user.Timestamp = 100
	placeholder := model.NewPlaceholder()
	placeholder.Timestamp = 101

	if err := s.Write(name, []model.Message{user, placeholder}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	reply := model.NewMessage(model.RoleAssistant, model.NewText("hi!"))
	reply.Timestamp = 102
	if err := s.Write(name, []model.Message{user, reply}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	got, err := s.Read(name)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	divider := strings.Repeat("#", 60)
	want := "User [100]:\nhello\n\n" + divider + "\n\n" +
		"Assistant [102]:\nhi!\n\n" + divider + "\n\n"
	if got != want {
		t.Errorf("transcript =\n%s\nwant\n%s", got, want)
	}
}

func TestWrite_RejectsPathTraversal(t *testing.T) {
	s := newTestStore(t)
	for _, name := range []string{"", "../escape.txt", "sub/dir.txt", "conversation.log"} {
		if err := s.Write(name, nil); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Write(%q) = %v, want ErrInvalidName", name, err)
		}
	}
}

// =============================================================================
// LIST TESTS
// =============================================================================

func TestList_NewestFirst(t *testing.T) {
	s := newTestStore(t)
	older := s.NextName(time.Date(2026, 1, 1, 0, 0, 0, 0, time.Local), "")
	newer := s.NextName(time.Date(2026, 2, 1, 0, 0, 0, 0, time.Local), "")
	for _, n := range []string{older, newer} {
		if err := s.Write(n, nil); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	os.WriteFile(filepath.Join(s.Dir(), "notes.txt"), []byte("x"), 0644)

	list, err := s.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List returned %d entries, want 2", len(list))
	}
	if list[0].Name != newer || list[1].Name != older {
		t.Errorf("order = %s, %s", list[0].Name, list[1].Name)
	}
}
