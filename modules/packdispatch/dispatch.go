// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package packdispatch hands the post-negotiation stream to an
// object-ingesting subprocess, demultiplexing side-band framing first
// when it was negotiated. The subprocess wrapper is a direct
// exec.CommandContext usage grounded on modules/command/shepherd.go's
// Start/Wait separation and Stdin/Stdout/Stderr wiring, trimmed to
// what a single per-round dispatch needs — the shepherd's
// environment-isolation and live-process-count bookkeeping serve a
// long-lived multi-command server process, which this single-shot
// dispatcher isn't.
package packdispatch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hugeswarm/fetchpack/modules/fetchlog"
	"github.com/hugeswarm/fetchpack/modules/plumbing/format/pktline"
)

const (
	packSignature = "PACK"
	headerSize    = 12
)

// ErrIngesterFailed reports a non-zero exit from the chosen ingester.
type ErrIngesterFailed struct {
	Ingester string
	ExitCode int
}

func (e *ErrIngesterFailed) Error() string {
	return fmt.Sprintf("packdispatch: %s exited %d", e.Ingester, e.ExitCode)
}

// ErrSideBandFatal reports a band-3 message from the server: a fatal
// error the server chose to report mid-transfer.
type ErrSideBandFatal struct{ Message string }

func (e *ErrSideBandFatal) Error() string { return "packdispatch: server reported: " + e.Message }

// ErrBadPackHeader reports a stream that didn't start with a
// recognizable pack signature.
var ErrBadPackHeader = errors.New("packdispatch: malformed pack header")

// ErrBadSideBandChannel reports a side-band frame whose first byte
// wasn't one of the three defined channels.
var ErrBadSideBandChannel = errors.New("packdispatch: unknown side-band channel")

// Options configures ingester selection and invocation.
type Options struct {
	KeepPack          bool
	KeepLabel         string
	FixThin           bool
	UnpackLimit       int
	RepoPath          string
	IndexPackBin      string // default "index-pack"
	UnpackObjectsBin  string // default "unpack-objects"
	Progress          io.Writer // band-2 destination; defaults to os.Stderr
}

// Result reports which ingester ran and, for index-pack, the lock
// file path it recorded.
type Result struct {
	Ingester string
	LockPath string
}

// Dispatch consumes stream (the bytes following Phase 4's "done",
// optionally side-band framed) and hands it to the chosen ingester.
func Dispatch(ctx context.Context, stream io.Reader, sideband bool, opts Options) (*Result, error) {
	progress := opts.Progress
	if progress == nil {
		progress = os.Stderr
	}

	var g *errgroup.Group
	var pr *io.PipeReader
	packStream := stream
	if sideband {
		var pw *io.PipeWriter
		pr, pw = io.Pipe()
		g, ctx = errgroup.WithContext(ctx)
		g.Go(func() error {
			return demux(stream, pw, progress)
		})
		packStream = pr
	}

	entryCount, peeked, err := peekHeader(packStream)
	if err != nil {
		if pr != nil {
			_ = pr.CloseWithError(err)
		}
		return nil, err
	}

	ingester := choose(entryCount, opts)
	fetchlog.Debugf("packdispatch: %d entries, chose %s", entryCount, ingester)

	tracked, stopProgress := wrapProgress(peeked, progress)
	res, runErr := run(ctx, ingester, tracked, opts)
	stopProgress()

	if g != nil {
		if waitErr := g.Wait(); waitErr != nil && runErr == nil {
			runErr = waitErr
		}
	}
	if runErr != nil {
		return nil, runErr
	}
	return res, nil
}

// peekHeader reads the 12-byte pack header (4-byte "PACK" signature,
// 4-byte version, 4-byte big-endian entry count) without consuming it
// from the stream the ingester subprocess will itself read.
func peekHeader(r io.Reader) (entryCount uint32, rest io.Reader, err error) {
	br := bufio.NewReaderSize(r, headerSize)
	header, err := br.Peek(headerSize)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrBadPackHeader, err)
	}
	if string(header[:4]) != packSignature {
		return 0, nil, ErrBadPackHeader
	}
	return binary.BigEndian.Uint32(header[8:12]), br, nil
}

// choose implements §4.F's ingester selection policy: index-pack when
// keep-pack was requested or the entry count meets the unpack limit,
// unpack-objects otherwise.
func choose(entryCount uint32, opts Options) string {
	if opts.KeepPack || (opts.UnpackLimit > 0 && int(entryCount) >= opts.UnpackLimit) {
		return "index-pack"
	}
	return "unpack-objects"
}

// demux reads pkt-line-framed side-band data from src: band 1 is pack
// bytes (forwarded to pw), band 2 is progress text (forwarded to
// progress), band 3 is a fatal server message. A flush-pkt ends the
// multiplexed stream.
func demux(src io.Reader, pw *io.PipeWriter, progress io.Writer) error {
	sc := pktline.NewScanner(src)
	for sc.Scan() {
		if sc.IsFlush() {
			return pw.Close()
		}
		b := sc.Bytes()
		if len(b) == 0 {
			continue
		}
		switch b[0] {
		case 1:
			if _, err := pw.Write(b[1:]); err != nil {
				return err
			}
		case 2:
			_, _ = progress.Write(b[1:])
		case 3:
			err := &ErrSideBandFatal{Message: string(b[1:])}
			_ = pw.CloseWithError(err)
			return err
		default:
			err := fmt.Errorf("%w: %d", ErrBadSideBandChannel, b[0])
			_ = pw.CloseWithError(err)
			return err
		}
	}
	if err := sc.Err(); err != nil {
		_ = pw.CloseWithError(err)
		return err
	}
	return pw.Close()
}

// run invokes the chosen ingester over stdin, returning its recorded
// lock file path (index-pack only, read back from its stdout).
func run(ctx context.Context, name string, stdin io.Reader, opts Options) (*Result, error) {
	var bin string
	var args []string
	switch name {
	case "index-pack":
		bin = opts.IndexPackBin
		if bin == "" {
			bin = "index-pack"
		}
		args = append(args, "--stdin")
		if opts.FixThin {
			args = append(args, "--fix-thin")
		}
		if opts.KeepPack {
			label := opts.KeepLabel
			if label == "" {
				label = "fetchpack"
			}
			args = append(args, "--keep="+label)
		}
	default:
		bin = opts.UnpackObjectsBin
		if bin == "" {
			bin = "unpack-objects"
		}
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = opts.RepoPath
	cmd.Stdin = stdin
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &ErrIngesterFailed{Ingester: bin, ExitCode: exitErr.ExitCode()}
		}
		return nil, fmt.Errorf("packdispatch: run %s: %w", bin, err)
	}

	res := &Result{Ingester: name}
	if name == "index-pack" {
		res.LockPath = strings.TrimSpace(stdout.String())
	}
	return res, nil
}
