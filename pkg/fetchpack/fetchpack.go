// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package fetchpack wires the negotiation core's components together:
// given an already-opened duplex stream and the server's advertised
// refs, it classifies what's already local, negotiates the rest, and
// hands the resulting pack to an ingester — mirroring the shape of
// pkg/zeta/fetch.go's DoFetch, generalized from zeta's REST metadata
// transfer to the git-style pkt-line fetch-pack protocol this core
// implements.
package fetchpack

import (
	"context"
	"fmt"
	"io"

	"github.com/hugeswarm/fetchpack/modules/completeness"
	"github.com/hugeswarm/fetchpack/modules/fetchconfig"
	"github.com/hugeswarm/fetchpack/modules/fetchlog"
	"github.com/hugeswarm/fetchpack/modules/negotiate"
	"github.com/hugeswarm/fetchpack/modules/oid"
	"github.com/hugeswarm/fetchpack/modules/packdispatch"
	"github.com/hugeswarm/fetchpack/modules/plumbing/format/pktline"
	"github.com/hugeswarm/fetchpack/modules/ref"
	"github.com/hugeswarm/fetchpack/modules/shallowfile"
	"github.com/hugeswarm/fetchpack/modules/walker"
)

// Options carries the caller's request shape: which refs to ask for,
// and the local paths the ambient pieces (config, shallow state)
// live at.
type Options struct {
	Patterns   []string
	FetchAll   bool
	Depth      int
	ThinPack   bool
	NoProgress bool
	IncludeTag bool
	KeepPack   bool
	FixThin    bool

	RepoPath        string
	ConfigPath      string
	ShallowFilePath string
	Progress        io.Writer
}

// Result is what one DoFetchPack call produced: the resolved ref list
// (with NewOID set on everything that ended up local), the
// shallow-boundary delta applied, and the ingester's report if a pack
// was actually received.
type Result struct {
	Refs    []*ref.Ref
	Shallow negotiate.ShallowUpdate
	Pack    *packdispatch.Result
}

// DoFetchPack runs one full negotiation round over conn (an opened
// duplex stream to an upload-pack-speaking peer), given the refs it
// advertised and the capability line from its greeting.
func DoFetchPack(ctx context.Context, conn io.ReadWriter, repo completeness.Repository, advertised []*ref.Ref, serverCapLine string, opts Options) (*Result, error) {
	cfg := &fetchconfig.Config{}
	if opts.ConfigPath != "" {
		loaded, err := fetchconfig.Load(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("fetchpack: load config: %w", err)
		}
		cfg = loaded
	}

	shallowState, err := shallowfile.Read(opts.ShallowFilePath)
	if err != nil {
		return nil, fmt.Errorf("fetchpack: read shallow file: %w", err)
	}

	w := walker.New(repo)
	evalResult, err := completeness.Evaluate(ctx, w, repo, advertised, opts.Patterns, opts.FetchAll, opts.Depth)
	if err != nil {
		return nil, fmt.Errorf("fetchpack: completeness oracle: %w", err)
	}

	if evalResult.Complete {
		fetchlog.Debugf("fetchpack: everything already local, skipping negotiation")
		if err := pktline.NewEncoder(conn).Flush(); err != nil {
			return nil, fmt.Errorf("fetchpack: flush: %w", err)
		}
		for _, r := range evalResult.Refs {
			r.NewOID = r.OldOID
		}
		return &Result{Refs: evalResult.Refs}, nil
	}

	offered := negotiate.ParseCapabilities(serverCapLine)
	caps, err := negotiate.ResolveCapabilities(offered, len(shallowState.OIDs) > 0)
	if err != nil {
		return nil, fmt.Errorf("fetchpack: %w", err)
	}
	if !offered.OfsDelta || !cfg.PreferOfsDelta() {
		caps.OfsDelta = offered.OfsDelta && cfg.PreferOfsDelta()
	}

	wants := wantedOIDs(evalResult.Refs, w)
	if len(wants) == 0 {
		fetchlog.Warnf("fetchpack: no refs need fetching after filtering")
		return &Result{Refs: evalResult.Refs}, nil
	}

	session := negotiate.NewSession(
		pktline.NewEncoder(conn),
		pktline.NewScanner(conn),
		w,
		caps,
		negotiate.Options{
			ThinPack:      opts.ThinPack,
			NoProgress:    opts.NoProgress,
			IncludeTag:    opts.IncludeTag,
			Depth:         opts.Depth,
			RepoIsShallow: len(shallowState.OIDs) > 0,
			LocalShallow:  shallowState.OIDs,
		},
	)

	negResult, err := session.Run(ctx, wants)
	if err != nil {
		return nil, fmt.Errorf("fetchpack: negotiation: %w", err)
	}

	result := &Result{Refs: evalResult.Refs, Shallow: negResult.Shallow}

	for _, id := range negResult.Shallow.Shallow {
		shallowState.Add(id)
	}
	for _, id := range negResult.Shallow.Unshallow {
		shallowState.Remove(id)
	}
	if len(negResult.Shallow.Shallow) > 0 || len(negResult.Shallow.Unshallow) > 0 {
		if err := shallowState.Write(); err != nil {
			return nil, fmt.Errorf("fetchpack: persist shallow state: %w", err)
		}
	}

	if negResult.PackExpected {
		sideband := caps.SideBand || caps.SideBand64k
		packRes, err := packdispatch.Dispatch(ctx, conn, sideband, packdispatch.Options{
			KeepPack:    opts.KeepPack,
			FixThin:     opts.FixThin,
			UnpackLimit: cfg.UnpackLimit(),
			RepoPath:    opts.RepoPath,
			Progress:    opts.Progress,
		})
		if err != nil {
			return nil, fmt.Errorf("fetchpack: pack reception: %w", err)
		}
		result.Pack = packRes
	}

	for _, r := range evalResult.Refs {
		r.NewOID = r.OldOID
	}
	return result, nil
}

// wantedOIDs collects the advertised OIDs that the completeness oracle
// did not mark Complete — the set Phase 1 announces as wants.
func wantedOIDs(refs []*ref.Ref, w *walker.Walker) []oid.ID {
	seen := make(map[oid.ID]bool, len(refs))
	var wants []oid.ID
	for _, r := range refs {
		if r.OldOID.IsZero() || seen[r.OldOID] {
			continue
		}
		seen[r.OldOID] = true
		if w.Flags(r.OldOID)&walker.Complete != 0 {
			continue
		}
		wants = append(wants, r.OldOID)
	}
	return wants
}
