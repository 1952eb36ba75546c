// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package negotiate implements the fetch-pack negotiation state
// machine: the capability handshake, the want/shallow/deepen
// announcement, the shallow-boundary response, and the batched
// have/ACK loop that converges on a minimal set of objects to
// transfer. All state lives on a Session value owned by its caller —
// nothing here is process-global, unlike the source this is grounded
// on.
package negotiate

import (
	"context"
	"fmt"
	"strings"

	"github.com/hugeswarm/fetchpack/modules/fetchlog"
	"github.com/hugeswarm/fetchpack/modules/oid"
	"github.com/hugeswarm/fetchpack/modules/plumbing/format/pktline"
	"github.com/hugeswarm/fetchpack/modules/walker"
)

// inVainCutoff is the number of fruitless haves after the first
// continuing ACK before the have loop gives up on finding more common
// history — MAX_IN_VAIN in the source.
const inVainCutoff = 256

// haveWindow is the number of haves sent per flush batch, and the
// "stay one window ahead" distance the loop maintains against ACKs.
const haveWindow = 32

// Session holds all per-negotiation-round state: the pkt-line codec
// over the caller's duplex stream, the commit walker it drives, the
// resolved capability set, and the have-loop counters. Construct one
// per fetch; do not reuse across rounds.
type Session struct {
	enc  *pktline.Encoder
	sc   *pktline.Scanner
	w    *walker.Walker
	caps Capabilities
	opts Options

	count       int
	flushes     int
	inVain      int
	gotContinue bool
	multiAck    bool
	retval      int
}

// NewSession returns a Session that reads ACK/shallow lines from sc
// and writes want/have/done lines via enc, driving w as its commit
// walker. caps must already be resolved (see ResolveCapabilities).
func NewSession(enc *pktline.Encoder, sc *pktline.Scanner, w *walker.Walker, caps Capabilities, opts Options) *Session {
	return &Session{enc: enc, sc: sc, w: w, caps: caps, opts: opts, multiAck: caps.MultiAck}
}

// Run drives the full negotiation: Phase 1 (wants), Phase 2 (shallow
// response, if depth was requested), Phase 3 (have loop), and Phase 4
// (done). wants is the set of OIDs not already known locally complete
// (the completeness oracle's job, upstream of this call).
func (s *Session) Run(ctx context.Context, wants []oid.ID) (*Result, error) {
	sent, err := s.phase1(ctx, wants)
	if err != nil {
		return nil, fmt.Errorf("negotiate: phase 1 (wants): %w", err)
	}
	if !sent {
		return &Result{PackExpected: false}, nil
	}

	var shallowUpd ShallowUpdate
	if s.opts.Depth > 0 {
		shallowUpd, err = s.phase2(ctx)
		if err != nil {
			return nil, fmt.Errorf("negotiate: phase 2 (shallow): %w", err)
		}
	}

	if err := s.phase3(ctx); err != nil {
		return nil, fmt.Errorf("negotiate: phase 3 (have loop): %w", err)
	}

	if _, err := s.phase4(ctx); err != nil {
		return nil, fmt.Errorf("negotiate: phase 4 (done): %w", err)
	}

	return &Result{Shallow: shallowUpd, PackExpected: true}, nil
}

// capLine builds the capability suffix for the first want line, in
// the fixed order §4.E specifies.
func (s *Session) capLine() string {
	var caps []string
	if s.caps.MultiAck {
		caps = append(caps, "multi_ack")
	}
	switch {
	case s.caps.SideBand64k:
		caps = append(caps, "side-band-64k")
	case s.caps.SideBand:
		caps = append(caps, "side-band")
	}
	if s.opts.ThinPack {
		caps = append(caps, "thin-pack")
	}
	if s.opts.NoProgress {
		caps = append(caps, "no-progress")
	}
	if s.opts.IncludeTag {
		caps = append(caps, "include-tag")
	}
	if s.caps.OfsDelta {
		caps = append(caps, "ofs-delta")
	}
	return strings.Join(caps, " ")
}

// phase1 emits the want/shallow/deepen announcement. It returns false
// (with no error and no bytes written) when wants is empty — the
// empty-source-repo case, where the caller should expect no pack.
func (s *Session) phase1(ctx context.Context, wants []oid.ID) (bool, error) {
	_ = ctx
	if len(wants) == 0 {
		return false, nil
	}
	for i, id := range wants {
		line := "want " + id.String()
		if i == 0 {
			if cl := s.capLine(); cl != "" {
				line += " " + cl
			}
		}
		if err := s.enc.Encode([]byte(line + "\n")); err != nil {
			return false, err
		}
	}
	for _, sh := range s.opts.LocalShallow {
		if err := s.enc.Encodef("shallow %s\n", sh); err != nil {
			return false, err
		}
	}
	if s.opts.Depth > 0 {
		if err := s.enc.Encodef("deepen %d\n", s.opts.Depth); err != nil {
			return false, err
		}
	}
	if err := s.enc.Flush(); err != nil {
		return false, err
	}
	return true, nil
}

// phase2 reads the shallow/unshallow response lines until a flush.
func (s *Session) phase2(ctx context.Context) (ShallowUpdate, error) {
	_ = ctx
	var upd ShallowUpdate
	for {
		if !s.sc.Scan() {
			if err := s.sc.Err(); err != nil {
				return upd, err
			}
			return upd, fmt.Errorf("%w: connection closed awaiting shallow response", ErrProtocolViolation)
		}
		if s.sc.IsFlush() {
			return upd, nil
		}
		line := strings.TrimRight(string(s.sc.Bytes()), "\n")
		if rest, ok := strings.CutPrefix(line, "shallow "); ok {
			id, err := oid.Parse(rest)
			if err != nil {
				return upd, fmt.Errorf("%w: malformed shallow line %q", ErrProtocolViolation, line)
			}
			upd.Shallow = append(upd.Shallow, id)
			continue
		}
		if rest, ok := strings.CutPrefix(line, "unshallow "); ok {
			id, err := oid.Parse(rest)
			if err != nil {
				return upd, fmt.Errorf("%w: malformed unshallow line %q", ErrProtocolViolation, line)
			}
			upd.Unshallow = append(upd.Unshallow, id)
			continue
		}
		return upd, fmt.Errorf("%w: expected shallow/unshallow, got %q", ErrProtocolViolation, line)
	}
}

// phase3 runs the have loop: emit haves in date-descending walk
// order, flush and poll for ACKs every haveWindow haves (staying
// exactly one window ahead), and give up once a continuing ACK has
// been seen and inVainCutoff haves have gone by without another one.
func (s *Session) phase3(ctx context.Context) error {
	s.retval = -1
	s.flushes = 0
	for {
		c, ok := s.w.NextRev(ctx)
		if !ok {
			return nil
		}
		if err := s.enc.Encodef("have %s\n", c.OID); err != nil {
			return err
		}
		fetchlog.Debugf("have %s", c.OID)
		s.count++
		s.inVain++

		if s.count%haveWindow != 0 {
			continue
		}
		if err := s.enc.Flush(); err != nil {
			return err
		}
		s.flushes++
		if s.count == haveWindow {
			// Stay one window ahead: don't poll for ACKs yet.
			continue
		}

		final, err := s.drainACKs(ctx)
		if err != nil {
			return err
		}
		if final {
			return nil
		}
		s.flushes--
		if s.gotContinue && s.inVain > inVainCutoff {
			fetchlog.Warnf("giving up on negotiation: %d haves in vain", s.inVain)
			return nil
		}
	}
}

// drainACKs reads ACK/NAK lines until a NAK (this poll round is over)
// or a final ACK (the whole have loop is over, proceed to Phase 4).
func (s *Session) drainACKs(ctx context.Context) (final bool, err error) {
	for {
		kind, id, err := s.readAck(ctx)
		if err != nil {
			return false, err
		}
		switch kind {
		case ackNone:
			return false, nil
		case ackFinal:
			s.flushes = 0
			s.multiAck = false
			s.retval = 0
			return true, nil
		case ackContinue, ackReady:
			s.gotContinue = true
			s.retval = 0
			s.inVain = 0
			s.w.MarkCommonByID(ctx, id, false, true)
		case ackCommon:
			// Reported but never used to reset in_vain or to
			// terminate — the source is silent on common/ready;
			// §9's design notes resolve it this way.
			s.gotContinue = true
			s.retval = 0
			s.w.MarkCommonByID(ctx, id, false, true)
		}
	}
}

// phase4 sends "done" and drains any trailing ACKs, returning the
// final retval (0 on agreement, -1 if the walk exhausted with no
// agreement reached — still not an error, per §4.E).
func (s *Session) phase4(ctx context.Context) (int, error) {
	if err := s.enc.Encode([]byte("done\n")); err != nil {
		return 0, err
	}
	if s.retval != 0 {
		s.multiAck = false
		s.flushes++
	}
	for s.flushes > 0 || s.multiAck {
		kind, _, err := s.readAck(ctx)
		if err != nil {
			return 0, err
		}
		switch kind {
		case ackFinal:
			return 0, nil
		case ackContinue, ackReady, ackCommon:
			s.multiAck = true
		case ackNone:
			s.flushes--
		}
	}
	if s.count == 0 {
		return 0, nil
	}
	return s.retval, nil
}
