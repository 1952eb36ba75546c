// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// fetchpack-probe is a thin demonstration binary: it dials an
// upload-pack-speaking peer, reads its ref advertisement, and runs one
// fetchpack.DoFetchPack round against an in-memory stand-in for the
// local object store. Argument parsing is deliberately minimal — a
// real CLI's flag surface, config layering, and output formatting are
// outside this core's scope; this binary exists only to exercise the
// wiring end to end.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/hugeswarm/fetchpack/modules/completeness"
	"github.com/hugeswarm/fetchpack/modules/fetchlog"
	"github.com/hugeswarm/fetchpack/modules/object"
	"github.com/hugeswarm/fetchpack/modules/oid"
	"github.com/hugeswarm/fetchpack/modules/plumbing/format/pktline"
	"github.com/hugeswarm/fetchpack/modules/ref"
	"github.com/hugeswarm/fetchpack/pkg/fetchpack"
)

// memStore is a minimal in-memory object.Store/completeness.Repository
// implementation: enough to let DoFetchPack run against a live peer
// without a real on-disk object database. It holds no commits at
// startup, so every advertised ref is treated as needing a fetch.
type memStore struct {
	commits map[oid.ID]*object.Commit
	tags    map[oid.ID]*object.Tag
}

func newMemStore() *memStore {
	return &memStore{commits: map[oid.ID]*object.Commit{}, tags: map[oid.ID]*object.Tag{}}
}

func (m *memStore) Commit(_ context.Context, id oid.ID) (*object.Commit, error) {
	if c, ok := m.commits[id]; ok {
		return c, nil
	}
	return nil, object.ErrNoSuchObject
}

func (m *memStore) Tag(_ context.Context, id oid.ID) (*object.Tag, error) {
	if t, ok := m.tags[id]; ok {
		return t, nil
	}
	return nil, object.ErrNoSuchObject
}

func (m *memStore) Kind(_ context.Context, id oid.ID) (object.Kind, error) {
	if _, ok := m.commits[id]; ok {
		return object.KindCommit, nil
	}
	if _, ok := m.tags[id]; ok {
		return object.KindTag, nil
	}
	return object.KindUnknown, object.ErrNoSuchObject
}

func (m *memStore) Has(id oid.ID) bool {
	_, c := m.commits[id]
	_, t := m.tags[id]
	return c || t
}

// Refs enumerates the local ref namespace; a freshly started probe has
// none.
func (m *memStore) Refs() ([]completeness.LocalRef, error) {
	return nil, nil
}

// PropagateComplete has nothing to propagate: a freshly started probe
// has no local history.
func (m *memStore) PropagateComplete(_ context.Context, _ oid.ID) ([]oid.ID, error) {
	return nil, nil
}

func main() {
	addr := flag.String("addr", "", "host:port of the upload-pack peer")
	repoPath := flag.String("repo", ".", "local repository path")
	shallowPath := flag.String("shallow", "", "path to the shallow boundary file")
	depth := flag.Int("depth", 0, "shallow clone depth (0 = full history)")
	fetchAll := flag.Bool("all", false, "fetch every advertised ref")
	flag.Parse()

	if *addr == "" {
		fmt.Fprintln(os.Stderr, "fetchpack-probe: -addr is required")
		os.Exit(2)
	}

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		fetchlog.Errorf("dial %s: %v", *addr, err)
		os.Exit(1)
	}
	defer conn.Close()

	advertised, capLine, err := readAdvertisement(conn)
	if err != nil {
		fetchlog.Errorf("read advertisement: %v", err)
		os.Exit(1)
	}

	repo := newMemStore()

	result, err := fetchpack.DoFetchPack(context.Background(), conn, repo, advertised, capLine, fetchpack.Options{
		FetchAll:        *fetchAll,
		RepoPath:        *repoPath,
		ShallowFilePath: *shallowPath,
		Depth:           *depth,
		ThinPack:        true,
		Progress:        os.Stderr,
	})
	if err != nil {
		fetchlog.Errorf("fetch: %v", err)
		os.Exit(1)
	}

	for _, r := range result.Refs {
		fmt.Printf("%s %s\n", r.NewOID, r.Name)
	}
	if result.Pack != nil {
		fmt.Fprintf(os.Stderr, "ingested via %s\n", result.Pack.Ingester)
	}
}

// readAdvertisement reads the server's ref advertisement: one pkt-line
// per ref ("<oid> <name>[\x00<capabilities>]"), terminated by a flush.
// The capability list, when present, rides on the first ref line.
func readAdvertisement(r net.Conn) ([]*ref.Ref, string, error) {
	sc := pktline.NewScanner(bufio.NewReader(r))
	var refs []*ref.Ref
	var capLine string
	first := true
	for sc.Scan() {
		if sc.IsFlush() {
			break
		}
		line := string(sc.Bytes())
		name, id, caps := splitAdvertisementLine(line)
		if first {
			capLine = caps
			first = false
		}
		refs = append(refs, &ref.Ref{Name: name, OldOID: oid.New(id)})
	}
	if err := sc.Err(); err != nil {
		return nil, "", err
	}
	return refs, capLine, nil
}

func splitAdvertisementLine(line string) (name, id, caps string) {
	if i := strings.IndexByte(line, 0); i >= 0 {
		caps = line[i+1:]
		line = line[:i]
	}
	if len(line) > 40 && line[40] == ' ' {
		return line[41:], line[:40], caps
	}
	return "", "", caps
}
