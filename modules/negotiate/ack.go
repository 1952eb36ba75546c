// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package negotiate

import (
	"context"
	"fmt"
	"strings"

	"github.com/hugeswarm/fetchpack/modules/oid"
)

// ackKind is the parsed shape of one ACK/NAK line, per §4.E's grammar:
// "ACK <hex40>" optionally followed by a keyword in {continue, common,
// ready}, or the exact string "NAK".
type ackKind int

const (
	ackNone ackKind = iota // NAK
	ackFinal
	ackContinue
	ackCommon
	ackReady
)

// readAck reads one pkt-line and parses it as an ACK/NAK. A line that
// matches neither grammar is a protocol violation.
func (s *Session) readAck(ctx context.Context) (ackKind, oid.ID, error) {
	if !s.sc.Scan() {
		if err := s.sc.Err(); err != nil {
			return ackNone, oid.Zero, fmt.Errorf("negotiate: read ack: %w", err)
		}
		return ackNone, oid.Zero, fmt.Errorf("%w: connection closed awaiting ACK/NAK", ErrProtocolViolation)
	}
	line := strings.TrimRight(string(s.sc.Bytes()), "\n")
	if line == "NAK" {
		return ackNone, oid.Zero, nil
	}
	rest, ok := strings.CutPrefix(line, "ACK ")
	if !ok {
		return ackNone, oid.Zero, fmt.Errorf("%w: expected ACK/NAK, got %q", ErrProtocolViolation, line)
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return ackNone, oid.Zero, fmt.Errorf("%w: empty ACK line", ErrProtocolViolation)
	}
	id, err := oid.Parse(fields[0])
	if err != nil {
		return ackNone, oid.Zero, fmt.Errorf("%w: malformed ACK oid %q", ErrProtocolViolation, fields[0])
	}
	if len(fields) == 1 {
		return ackFinal, id, nil
	}
	switch fields[1] {
	case "continue":
		return ackContinue, id, nil
	case "common":
		return ackCommon, id, nil
	case "ready":
		return ackReady, id, nil
	default:
		return ackNone, oid.Zero, fmt.Errorf("%w: unknown ACK keyword %q", ErrProtocolViolation, fields[1])
	}
}
