// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package object defines the minimal object model the negotiation core
// needs: commits and tags, and the Store boundary onto the local
// object database. Parsing commit bodies, tree walking, and loose or
// packed storage all live in the local object store, an external
// collaborator this package never implements — only consumes.
package object

import (
	"context"
	"errors"

	"github.com/hugeswarm/fetchpack/modules/oid"
)

// Kind tags the variant an Object carries. Only Commit and Tag matter
// to the negotiation core; Tree and Blob are named for completeness of
// the data model but never inspected here.
type Kind int8

const (
	KindUnknown Kind = iota
	KindCommit
	KindTag
	KindTree
	KindBlob
)

func (k Kind) String() string {
	switch k {
	case KindCommit:
		return "commit"
	case KindTag:
		return "tag"
	case KindTree:
		return "tree"
	case KindBlob:
		return "blob"
	default:
		return "unknown"
	}
}

// ErrNoSuchObject is returned by a Store when the requested object does
// not exist locally. The walker and the completeness oracle treat it as
// a signal to stop descending a branch, never as fatal.
var ErrNoSuchObject = errors.New("object: no such object")

// ErrNotACommit/ErrNotATag report that the OID resolved to an object of
// the wrong kind.
var (
	ErrNotACommit = errors.New("object: not a commit")
	ErrNotATag    = errors.New("object: not a tag")
)

// Commit is the subset of commit fields the negotiation core reads:
// when it was made, by whom it was authored chronologically (for
// the date-ordered walk), and its parents.
type Commit struct {
	OID           oid.ID
	CommitterDate int64 // seconds since epoch
	Parents       []oid.ID
}

// Tag carries a single tagged-object reference; tags may chain (a tag
// of a tag), which the completeness oracle follows to find the
// underlying commit.
type Tag struct {
	OID    oid.ID
	Target oid.ID
}

// Store is the external local object store collaborator. Implementations
// own commit parsing, tag dereferencing, and existence checks; this
// package only borrows the results for the span of one negotiation.
type Store interface {
	// Commit resolves id to a parsed commit. Returns ErrNoSuchObject if
	// id is not present locally, or ErrNotACommit if it resolves to a
	// different kind of object.
	Commit(ctx context.Context, id oid.ID) (*Commit, error)
	// Tag resolves id to a parsed tag object.
	Tag(ctx context.Context, id oid.ID) (*Tag, error)
	// Kind reports the kind of a locally-present object, or KindUnknown
	// with ErrNoSuchObject if it isn't present.
	Kind(ctx context.Context, id oid.ID) (Kind, error)
	// Has reports whether id is present locally, without resolving it.
	Has(id oid.ID) bool
}

// DerefTag follows a chain of tag objects (a tag of a tag of a tag...)
// down to the final non-tag object it points at, returning that
// object's OID and kind along with every OID visited along the way
// (start, each intermediate tag, and the terminal object itself) —
// mark_complete in the original walks this same chain marking each
// link complete, not just the two ends. It stops at the first object
// that isn't a tag.
func DerefTag(ctx context.Context, s Store, start oid.ID) (oid.ID, Kind, []oid.ID, error) {
	var chain []oid.ID
	current := start
	for {
		chain = append(chain, current)
		kind, err := s.Kind(ctx, current)
		if err != nil {
			return oid.Zero, KindUnknown, chain, err
		}
		if kind != KindTag {
			return current, kind, chain, nil
		}
		tag, err := s.Tag(ctx, current)
		if err != nil {
			return oid.Zero, KindUnknown, chain, err
		}
		current = tag.Target
	}
}
