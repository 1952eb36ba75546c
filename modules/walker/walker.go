// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package walker implements the commit-graph walker: a single
// priority queue over commits ordered by committer date, descending,
// with a side table of per-commit flags the session owns for the span
// of one negotiation. It never mutates objects owned by the local
// object store — flags live here, not on the object.
package walker

import (
	"context"

	"github.com/emirpasic/gods/trees/binaryheap"

	"github.com/hugeswarm/fetchpack/modules/object"
	"github.com/hugeswarm/fetchpack/modules/oid"
)

// Flag is a bitmask of the five flags tracked per commit. Flags are
// monotonic within a session: once set they are never cleared.
type Flag uint8

const (
	// Complete marks an object (and its transitive dependencies) as
	// already present locally.
	Complete Flag = 1 << iota
	// Common marks an object the server is known to have.
	Common
	// CommonRef marks a ref the server advertised that we also have
	// locally — the set of commits to announce at the start of the walk.
	CommonRef
	// Seen marks an object pushed into the walk queue at least once.
	Seen
	// Popped marks an object emitted from the walk queue.
	Popped
)

// Walker drives the date-descending commit walk described in the
// negotiation algorithm. Zero value is not usable; use New.
type Walker struct {
	store         object.Store
	flags         map[oid.ID]Flag
	heap          *binaryheap.Heap
	nonCommonRevs int
	seq           int64 // insertion sequence, breaks date ties stably
}

type heapEntry struct {
	commit *object.Commit
	seq    int64
}

// New returns a Walker borrowing store for the span of one negotiation.
func New(store object.Store) *Walker {
	return &Walker{
		store: store,
		flags: make(map[oid.ID]Flag),
		heap: binaryheap.NewWith(func(a, b any) int {
			ea, eb := a.(heapEntry), b.(heapEntry)
			switch {
			case ea.commit.CommitterDate > eb.commit.CommitterDate:
				return -1
			case ea.commit.CommitterDate < eb.commit.CommitterDate:
				return 1
			case ea.seq < eb.seq:
				return -1
			case ea.seq > eb.seq:
				return 1
			default:
				return 0
			}
		}),
	}
}

// NonCommonRevs returns the number of queue entries whose flags include
// Seen but not Common, and which have not yet been Popped.
func (w *Walker) NonCommonRevs() int {
	return w.nonCommonRevs
}

// Flags returns the current flag set for id. Absence means no flags set.
func (w *Walker) Flags(id oid.ID) Flag {
	return w.flags[id]
}

// SetFlag ORs f into id's flag set without touching the queue. Used by
// collaborators that learn flag state out of band — the completeness
// oracle's local-history sweep, in particular, which marks objects
// Complete from a source outside the commit graph the walker parses.
func (w *Walker) SetFlag(id oid.ID, f Flag) {
	w.flags[id] |= f
}

func (w *Walker) heapPush(c *object.Commit) {
	w.seq++
	w.heap.Push(heapEntry{commit: c, seq: w.seq})
}

func (w *Walker) heapPop() (*object.Commit, bool) {
	v, ok := w.heap.Pop()
	if !ok {
		return nil, false
	}
	return v.(heapEntry).commit, true
}

// Push inserts commit into the walk if it does not yet carry mark. It
// parses the commit via the store; a parse failure silently drops it —
// the walk is an optimization, never a correctness requirement. Returns
// the parsed commit (nil if already marked or unparseable).
func (w *Walker) Push(ctx context.Context, id oid.ID, mark Flag) *object.Commit {
	if w.flags[id]&mark != 0 {
		return nil
	}
	w.flags[id] |= mark
	c, err := w.store.Commit(ctx, id)
	if err != nil {
		return nil
	}
	w.heapPush(c)
	if w.flags[id]&Common == 0 {
		w.nonCommonRevs++
	}
	return c
}

// MarkCommon sets Common on start (unless ancestorsOnly), then
// iteratively on its parents using an explicit stack rather than
// recursion, since commit histories can run deep enough to overflow a
// call stack. skipParse stops descent past a parent whose commit body
// hasn't already been resolved by the caller — useful when a cheaper
// mechanism (e.g. the completeness oracle's own ancestor sweep) has
// already covered the rest of that subtree.
//
// Hitting an already-Common parent prunes that edge: MarkCommon is
// idempotent and safe to call repeatedly over overlapping history.
func (w *Walker) MarkCommon(ctx context.Context, start *object.Commit, ancestorsOnly, skipParse bool) {
	type frame struct {
		id     oid.ID
		commit *object.Commit
	}
	stack := []frame{{id: start.OID, commit: start}}
	top := true
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !top && w.flags[f.id]&Common != 0 {
			continue
		}

		if !(top && ancestorsOnly) {
			seenNotPopped := w.flags[f.id]&Seen != 0 && w.flags[f.id]&Popped == 0
			w.flags[f.id] |= Common
			if seenNotPopped && w.nonCommonRevs > 0 {
				w.nonCommonRevs--
			}
		}

		c := f.commit
		if c == nil {
			if skipParse {
				top = false
				continue
			}
			var err error
			c, err = w.store.Commit(ctx, f.id)
			if err != nil {
				top = false
				continue
			}
		}
		for _, p := range c.Parents {
			if w.flags[p]&Common == 0 {
				stack = append(stack, frame{id: p})
			}
		}
		top = false
	}
}

// MarkCommonByID behaves like MarkCommon but accepts a bare OID rather
// than an already-resolved commit — the shape a caller gets back from
// an ACK line on the wire. If the OID was never pushed into this walk
// (never Seen), its parents are unknown; skipParse then means mark it
// Common (unless ancestorsOnly) and stop, mirroring an unparsed commit
// object in the source. If it was Seen, its commit is already
// resolvable from the store, so descent proceeds as usual.
func (w *Walker) MarkCommonByID(ctx context.Context, id oid.ID, ancestorsOnly, skipParse bool) {
	if skipParse && w.flags[id]&Seen == 0 {
		if !ancestorsOnly {
			w.flags[id] |= Common
		}
		return
	}
	c, err := w.store.Commit(ctx, id)
	if err != nil {
		return
	}
	w.MarkCommon(ctx, c, ancestorsOnly, skipParse)
}

// NextRev pops the queue head repeatedly until a non-common commit is
// selected for emission or the queue is exhausted. It returns
// (nil, false) once the walk is over.
func (w *Walker) NextRev(ctx context.Context) (*object.Commit, bool) {
	for {
		c, ok := w.heapPop()
		if !ok {
			return nil, false
		}
		id := c.OID
		flags := w.flags[id]
		w.flags[id] |= Popped
		if flags&Common == 0 && w.nonCommonRevs > 0 {
			w.nonCommonRevs--
		}

		switch {
		case flags&Common != 0:
			for _, p := range c.Parents {
				w.Push(ctx, p, Common|Seen)
			}
			w.MarkCommon(ctx, c, false, false)
			continue
		case flags&CommonRef != 0:
			for _, p := range c.Parents {
				w.Push(ctx, p, Common|Seen)
			}
			w.MarkCommon(ctx, c, false, false)
			return c, true
		default:
			for _, p := range c.Parents {
				w.Push(ctx, p, Seen)
			}
			return c, true
		}
	}
}

// Done reports whether the walk should stop: the queue is empty, or
// every queued entry is already known common.
func (w *Walker) Done() bool {
	return w.heap.Empty() || w.nonCommonRevs == 0
}
