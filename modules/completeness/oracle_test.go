package completeness

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugeswarm/fetchpack/modules/object"
	"github.com/hugeswarm/fetchpack/modules/oid"
	"github.com/hugeswarm/fetchpack/modules/ref"
	"github.com/hugeswarm/fetchpack/modules/walker"
)

// fakeRepo is a minimal Repository: commits plus tags plus a local ref
// namespace plus a hand-rolled ancestor-complete propagation, grounded
// on the same hand-built-fixture approach as the walker package's tests.
type fakeRepo struct {
	commits  map[oid.ID]*object.Commit
	tags     map[oid.ID]*object.Tag
	refs     []LocalRef
	complete map[oid.ID]bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		commits:  make(map[oid.ID]*object.Commit),
		tags:     make(map[oid.ID]*object.Tag),
		complete: make(map[oid.ID]bool),
	}
}

func (r *fakeRepo) addCommit(hex string, date int64, parents ...string) *object.Commit {
	id := oid.New(hex)
	c := &object.Commit{OID: id, CommitterDate: date}
	for _, p := range parents {
		c.Parents = append(c.Parents, oid.New(p))
	}
	r.commits[id] = c
	return c
}

func (r *fakeRepo) addTag(hex, targetHex string) *object.Tag {
	id := oid.New(hex)
	t := &object.Tag{OID: id, Target: oid.New(targetHex)}
	r.tags[id] = t
	return t
}

func (r *fakeRepo) Commit(_ context.Context, id oid.ID) (*object.Commit, error) {
	c, ok := r.commits[id]
	if !ok {
		return nil, object.ErrNoSuchObject
	}
	return c, nil
}

func (r *fakeRepo) Tag(_ context.Context, id oid.ID) (*object.Tag, error) {
	t, ok := r.tags[id]
	if !ok {
		return nil, object.ErrNoSuchObject
	}
	return t, nil
}

func (r *fakeRepo) Kind(_ context.Context, id oid.ID) (object.Kind, error) {
	if _, ok := r.commits[id]; ok {
		return object.KindCommit, nil
	}
	if _, ok := r.tags[id]; ok {
		return object.KindTag, nil
	}
	return object.KindUnknown, object.ErrNoSuchObject
}

func (r *fakeRepo) Has(id oid.ID) bool {
	_, c := r.commits[id]
	_, t := r.tags[id]
	return c || t
}

func (r *fakeRepo) Refs() ([]LocalRef, error) {
	return r.refs, nil
}

// PropagateComplete walks parents transitively from id, marking every
// reachable commit complete and reporting everything it touched.
func (r *fakeRepo) PropagateComplete(_ context.Context, id oid.ID) ([]oid.ID, error) {
	var touched []oid.ID
	stack := []oid.ID{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if r.complete[cur] {
			continue
		}
		r.complete[cur] = true
		touched = append(touched, cur)
		c, ok := r.commits[cur]
		if !ok {
			continue
		}
		stack = append(stack, c.Parents...)
	}
	return touched, nil
}

func hid(n int) string {
	return fmt.Sprintf("%039xa", n)
}

func TestEvaluateMarksAdvertisedLocalRefCommon(t *testing.T) {
	repo := newFakeRepo()
	base := repo.addCommit(hid(3), 100)
	tip := repo.addCommit(hid(2), 200, hid(3))
	repo.refs = []LocalRef{{Name: "refs/heads/main", OID: tip.OID}}

	w := walker.New(repo)
	refs := []*ref.Ref{{Name: "refs/heads/main", OldOID: tip.OID}}

	res, err := Evaluate(context.Background(), w, repo, refs, nil, true, 0)
	require.NoError(t, err)
	assert.True(t, res.Complete)
	assert.NotZero(t, w.Flags(base.OID)&walker.Complete)
	assert.NotZero(t, w.Flags(tip.OID)&walker.CommonRef)
}

func TestEvaluateIncompleteWhenRefNotLocal(t *testing.T) {
	repo := newFakeRepo()
	repo.addCommit(hid(1), 100)
	w := walker.New(repo)
	refs := []*ref.Ref{{Name: "refs/heads/missing", OldOID: oid.New(hid(99))}}

	res, err := Evaluate(context.Background(), w, repo, refs, nil, true, 0)
	require.NoError(t, err)
	assert.False(t, res.Complete)
	assert.Equal(t, []*ref.Ref{refs[0]}, res.Refs)
}

func TestEvaluateFollowsTagChainToMarkCompleteCommit(t *testing.T) {
	repo := newFakeRepo()
	commit := repo.addCommit(hid(1), 500)
	innerTag := repo.addTag(hid(2), hid(1))
	outerTag := repo.addTag(hid(3), hid(2))
	repo.refs = []LocalRef{{Name: "refs/tags/v1", OID: outerTag.OID}}

	w := walker.New(repo)
	refs := []*ref.Ref{{Name: "refs/tags/v1", OldOID: commit.OID}}

	res, err := Evaluate(context.Background(), w, repo, refs, nil, true, 0)
	require.NoError(t, err)
	assert.True(t, res.Complete)
	assert.NotZero(t, w.Flags(outerTag.OID)&walker.Complete)
	assert.NotZero(t, w.Flags(innerTag.OID)&walker.Complete, "an intermediate tag in a tag-of-tag chain must be marked complete too")
	assert.NotZero(t, w.Flags(commit.OID)&walker.Complete)
}

func TestEvaluateAppliesRefFilterPatterns(t *testing.T) {
	repo := newFakeRepo()
	tip := repo.addCommit(hid(1), 100)
	repo.refs = []LocalRef{{Name: "refs/heads/main", OID: tip.OID}}
	w := walker.New(repo)
	refs := []*ref.Ref{
		{Name: "refs/heads/main", OldOID: tip.OID},
		{Name: "refs/heads/dev", OldOID: oid.New(hid(2))},
	}

	res, err := Evaluate(context.Background(), w, repo, refs, []string{"main"}, false, 0)
	require.NoError(t, err)
	require.Len(t, res.Refs, 1)
	assert.Equal(t, "refs/heads/main", res.Refs[0].Name)
	assert.True(t, res.Complete)
}

func TestEvaluateSkipsLocalSweepWhenDepthSet(t *testing.T) {
	repo := newFakeRepo()
	tip := repo.addCommit(hid(1), 100)
	repo.refs = []LocalRef{{Name: "refs/heads/main", OID: tip.OID}}
	w := walker.New(repo)
	refs := []*ref.Ref{{Name: "refs/heads/main", OldOID: tip.OID}}

	res, err := Evaluate(context.Background(), w, repo, refs, nil, true, 1)
	require.NoError(t, err)
	assert.False(t, res.Complete)
	assert.Zero(t, w.Flags(tip.OID)&walker.Complete)
}
