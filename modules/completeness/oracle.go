// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package completeness implements the completeness oracle: it decides,
// before opening a negotiation round, which advertised refs the local
// store already fully has and seeds the walker's Common/CommonRef
// flags from that knowledge so the have-loop never re-announces what
// the server is already certain to have.
package completeness

import (
	"context"

	"github.com/emirpasic/gods/trees/binaryheap"

	"github.com/hugeswarm/fetchpack/modules/object"
	"github.com/hugeswarm/fetchpack/modules/oid"
	"github.com/hugeswarm/fetchpack/modules/ref"
	"github.com/hugeswarm/fetchpack/modules/refsfilter"
	"github.com/hugeswarm/fetchpack/modules/walker"
)

// LocalRef is one entry of the local ref namespace, used only by the
// depth-zero completeness sweep (step 2 of the oracle).
type LocalRef struct {
	Name string
	OID  oid.ID
}

// Repository is the external local-store collaborator the oracle needs
// beyond plain object lookups: the ability to enumerate every local ref,
// and a store-provided bulk "this commit and its ancestors are already
// complete" sweep. Both are specified as local-store responsibilities
// (parsing, ref storage, pack indexing) which spec §1 places out of this
// core's scope — Repository is the seam, not an implementation.
type Repository interface {
	object.Store
	// Refs enumerates every local ref.
	Refs() ([]LocalRef, error)
	// PropagateComplete marks id and every locally-reachable ancestor of
	// id as complete in the store's own bookkeeping, and reports back
	// which OIDs it touched so the caller can mirror that into its own
	// per-session flag table.
	PropagateComplete(ctx context.Context, id oid.ID) ([]oid.ID, error)
}

// Result carries the oracle's output: the ref list after filtering
// (§4.C, step 5) and whether every surviving ref is already complete.
type Result struct {
	Refs     []*ref.Ref
	Complete bool
}

type dateHeap struct{ h *binaryheap.Heap }

func newDateHeap() *dateHeap {
	return &dateHeap{h: binaryheap.NewWith(func(a, b any) int {
		ca, cb := a.(*object.Commit), b.(*object.Commit)
		switch {
		case ca.CommitterDate > cb.CommitterDate:
			return -1
		case ca.CommitterDate < cb.CommitterDate:
			return 1
		default:
			return 0
		}
	})}
}

func (q *dateHeap) push(c *object.Commit) { q.h.Push(c) }
func (q *dateHeap) peek() (*object.Commit, bool) {
	v, ok := q.h.Peek()
	if !ok {
		return nil, false
	}
	return v.(*object.Commit), true
}
func (q *dateHeap) pop() (*object.Commit, bool) {
	v, ok := q.h.Pop()
	if !ok {
		return nil, false
	}
	return v.(*object.Commit), true
}

// Evaluate runs the four-step completeness oracle described in §4.D and
// returns the caller-visible ref list (after §4.C filtering) along with
// whether everything is already local.
func Evaluate(
	ctx context.Context,
	w *walker.Walker,
	repo Repository,
	refs []*ref.Ref,
	patterns []string,
	fetchAll bool,
	depth int,
) (*Result, error) {
	localKind := make(map[oid.ID]object.Kind, len(refs))
	var cutoff int64
	haveCutoff := false
	for _, r := range refs {
		if !repo.Has(r.OldOID) {
			continue
		}
		kind, err := repo.Kind(ctx, r.OldOID)
		if err != nil {
			continue
		}
		localKind[r.OldOID] = kind
		if kind != object.KindCommit {
			continue
		}
		c, err := repo.Commit(ctx, r.OldOID)
		if err != nil {
			continue
		}
		if !haveCutoff || c.CommitterDate > cutoff {
			cutoff, haveCutoff = c.CommitterDate, true
		}
	}

	if depth == 0 {
		if err := sweepLocalHistory(ctx, w, repo, cutoff, haveCutoff); err != nil {
			return nil, err
		}
	}

	for _, r := range refs {
		if localKind[r.OldOID] != object.KindCommit {
			continue
		}
		if w.Flags(r.OldOID)&walker.Complete == 0 {
			continue
		}
		if w.Flags(r.OldOID)&walker.Seen != 0 {
			continue
		}
		c := w.Push(ctx, r.OldOID, walker.CommonRef|walker.Seen)
		if c != nil {
			w.MarkCommon(ctx, c, true, true)
		}
	}

	surviving := refsfilter.Filter(refs, patterns, fetchAll, depth)

	complete := true
	for _, r := range surviving {
		if localKind[r.OldOID] != object.KindCommit || w.Flags(r.OldOID)&walker.Complete == 0 {
			complete = false
			break
		}
	}

	return &Result{Refs: surviving, Complete: complete}, nil
}

// sweepLocalHistory implements §4.D steps 2–3: dereference every local
// ref down to its commit, marking tags Complete along the way, then pop
// the resulting date-ordered queue while the head is recent enough to
// possibly be common (≥ cutoff), applying the store's own
// completeness-propagating pop to each.
func sweepLocalHistory(ctx context.Context, w *walker.Walker, repo Repository, cutoff int64, haveCutoff bool) error {
	localRefs, err := repo.Refs()
	if err != nil {
		return err
	}

	queue := newDateHeap()
	seen := make(map[oid.ID]bool)
	for _, lr := range localRefs {
		target, kind, chain, err := object.DerefTag(ctx, repo, lr.OID)
		if err != nil {
			continue
		}
		for _, id := range chain {
			w.SetFlag(id, walker.Complete)
		}
		if kind != object.KindCommit || seen[target] {
			continue
		}
		seen[target] = true
		c, err := repo.Commit(ctx, target)
		if err != nil {
			continue
		}
		w.SetFlag(target, walker.Complete)
		queue.push(c)
	}

	for {
		head, ok := queue.peek()
		if !ok || !haveCutoff || head.CommitterDate < cutoff {
			break
		}
		queue.pop()
		touched, err := repo.PropagateComplete(ctx, head.OID)
		if err != nil {
			continue
		}
		for _, id := range touched {
			w.SetFlag(id, walker.Complete)
		}
	}
	return nil
}
