// © 2025 Termos47. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package seen tracks entry IDs that have already been published.
//
// The store keeps an ordered insertion log next to the membership set so
// that eviction is strictly oldest-first. It is bounded: once the number
// of remembered IDs exceeds the cap, the oldest ones are dropped until
// half the cap remains.
//
// The persisted snapshot is a newline-delimited flat file, rewritten
// wholesale on every save. A missing or unreadable file is not an error:
// the store starts empty.
package seen

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Store is a bounded, persisted set of published entry IDs.
//
// All mutation happens on the polling worker; the mutex exists so that
// the command surface can read Len and Contains concurrently.
type Store struct {
	mu    sync.RWMutex
	path  string
	cap   int
	order []string
	ids   map[string]struct{}
}

// New returns a Store persisting to path, holding at most cap IDs.
func New(path string, cap int) *Store {
	if cap < 2 {
		cap = 2
	}
	return &Store{
		path: path,
		cap:  cap,
		ids:  make(map[string]struct{}),
	}
}

// Contains reports whether id has been recorded.
func (s *Store) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of remembered IDs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// Record inserts id, evicting the oldest IDs if the cap is exceeded.
func (s *Store) Record(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return
	}
	s.ids[id] = struct{}{}
	s.order = append(s.order, id)
	if len(s.order) > s.cap {
		evict := (s.cap + 1) / 2
		for _, old := range s.order[:evict] {
			delete(s.ids, old)
		}
		s.order = append([]string(nil), s.order[evict:]...)
	}
}

// Load replaces the in-memory set with the persisted snapshot. A missing
// file is not an error; the store simply starts empty.
func (s *Store) Load() error {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("seen: loading %s: %w", s.path, err)
	}
	defer f.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = nil
	s.ids = make(map[string]struct{})

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		id := strings.TrimSpace(sc.Text())
		if id == "" {
			continue
		}
		if _, ok := s.ids[id]; ok {
			continue
		}
		s.ids[id] = struct{}{}
		s.order = append(s.order, id)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("seen: reading %s: %w", s.path, err)
	}
	return nil
}

// Save rewrites the snapshot file with the current set, oldest first.
func (s *Store) Save() error {
	s.mu.RLock()
	snapshot := strings.Join(s.order, "\n")
	s.mu.RUnlock()

	if snapshot != "" {
		snapshot += "\n"
	}
	if err := os.WriteFile(s.path, []byte(snapshot), 0o644); err != nil {
		return fmt.Errorf("seen: saving %s: %w", s.path, err)
	}
	return nil
}
