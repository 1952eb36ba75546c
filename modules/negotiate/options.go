// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package negotiate

import "github.com/hugeswarm/fetchpack/modules/oid"

// Options carries the caller's request-shaping choices: which
// optional capabilities to ask for, and the local repo's shallow
// state.
type Options struct {
	ThinPack      bool
	NoProgress    bool
	IncludeTag    bool
	Depth         int     // deepen request; 0 means no depth limit requested
	RepoIsShallow bool    // forces the shallow capability to be required
	LocalShallow  []oid.ID // OIDs this session's shallow boundary currently sits at
}

// ShallowUpdate is what Phase 2 learned about the shallow boundary:
// OIDs to register as newly shallow, and OIDs to unregister (the
// client asked to deepen past them).
type ShallowUpdate struct {
	Shallow   []oid.ID
	Unshallow []oid.ID
}

// Result is what a negotiation round produced: the shallow-boundary
// delta (if depth was requested) and whether a pack is now expected on
// the stream.
type Result struct {
	Shallow      ShallowUpdate
	PackExpected bool
}
