// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package shallowfile persists the set of shallow-boundary OIDs to a
// single newline-separated file, guarded by a create-exclusive lock
// file and an mtime-based optimistic concurrency check: a negotiation
// round that reads the file, computes an update, and only later
// writes it back must notice if another process touched the file in
// between.
package shallowfile

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hugeswarm/fetchpack/modules/oid"
)

// ErrChanged reports that the shallow file's mtime moved between Read
// and Write, meaning another process raced this one.
var ErrChanged = errors.New("shallowfile: file changed since read")

// ErrLocked reports that another process already holds the lock file.
var ErrLocked = errors.New("shallowfile: already locked")

// State is a shallow file's content plus the mtime it was read at, the
// handle Write needs to detect a concurrent writer.
type State struct {
	path    string
	OIDs    []oid.ID
	mtimeNS int64
	loaded  bool
}

// Read loads path's shallow OIDs. A missing file is not an error: it
// yields an empty, "loaded" State (mtimeNS left zero, so Write treats
// any existing file that appears before the write as a race).
func Read(path string) (*State, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &State{path: path, loaded: true}, nil
		}
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var ids []oid.ID
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		id, err := oid.Parse(line)
		if err != nil {
			return nil, fmt.Errorf("shallowfile: parse %s: %w", path, err)
		}
		ids = append(ids, id)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return &State{path: path, OIDs: ids, mtimeNS: info.ModTime().UnixNano(), loaded: true}, nil
}

// Write persists s.OIDs back to disk via a create-exclusive lock file
// renamed over the target, the same discipline as the teacher's
// special-reference update path. It first re-stats the target and
// fails with ErrChanged if the mtime observed at Read time has moved.
func (s *State) Write() error {
	if !s.loaded {
		return fmt.Errorf("shallowfile: Write called on a State not produced by Read")
	}
	if info, err := os.Stat(s.path); err == nil {
		if info.ModTime().UnixNano() != s.mtimeNS {
			return ErrChanged
		}
	} else if !os.IsNotExist(err) {
		return err
	} else if s.mtimeNS != 0 {
		return ErrChanged
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	lockPath := s.path + ".lock"
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return ErrLocked
		}
		return err
	}
	defer os.Remove(lockPath)

	var buf bytes.Buffer
	for _, id := range s.OIDs {
		buf.WriteString(id.String())
		buf.WriteByte('\n')
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(lockPath, s.path)
}

// Add appends id if not already present, keeping OIDs deduplicated.
func (s *State) Add(id oid.ID) {
	for _, existing := range s.OIDs {
		if existing == id {
			return
		}
	}
	s.OIDs = append(s.OIDs, id)
}

// Remove drops id if present.
func (s *State) Remove(id oid.ID) {
	out := s.OIDs[:0]
	for _, existing := range s.OIDs {
		if existing != id {
			out = append(out, existing)
		}
	}
	s.OIDs = out
}
