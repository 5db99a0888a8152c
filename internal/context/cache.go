// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package context

import (
	"os"
	"sync"
	"time"
)

// =============================================================================
// FILE CACHE
// =============================================================================

// FileCache keeps the content of context documents between conversations.
// An entry is reused only while the file's size and modification time are
// unchanged.
type FileCache struct {
	mu      sync.Mutex
	entries map[string]fileCacheEntry

	hits   int
	misses int
}

type fileCacheEntry struct {
	content string
	modTime time.Time
	size    int64
}

// FileCacheStats holds cache statistics.
type FileCacheStats struct {
	Hits    int
	Misses  int
	Entries int
}

// NewFileCache creates an empty cache.
func NewFileCache() *FileCache {
	return &FileCache{entries: make(map[string]fileCacheEntry)}
}

// Read returns the content of path, from cache when the file is unchanged.
func (fc *FileCache) Read(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		fc.mu.Lock()
		delete(fc.entries, path)
		fc.mu.Unlock()
		return "", err
	}

	fc.mu.Lock()
	entry, ok := fc.entries[path]
	if ok && entry.modTime.Equal(info.ModTime()) && entry.size == info.Size() {
		fc.hits++
		fc.mu.Unlock()
		return entry.content, nil
	}
	fc.misses++
	fc.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	fc.mu.Lock()
	fc.entries[path] = fileCacheEntry{
		content: string(data),
		modTime: info.ModTime(),
		size:    info.Size(),
	}
	fc.mu.Unlock()

	return string(data), nil
}

// Stats returns cache statistics.
func (fc *FileCache) Stats() FileCacheStats {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return FileCacheStats{Hits: fc.hits, Misses: fc.misses, Entries: len(fc.entries)}
}
