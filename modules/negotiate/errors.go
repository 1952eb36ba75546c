// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package negotiate

import "errors"

// ErrProtocolViolation reports a pkt-line that doesn't parse as any
// grammar the current phase expects (a malformed shallow/unshallow
// line in Phase 2, an unparsable ACK/NAK in Phase 3/4).
var ErrProtocolViolation = errors.New("negotiate: protocol violation")

// ErrCapabilityMismatch reports that the server's offered capabilities
// can't satisfy a local requirement — today, only a shallow local repo
// talking to a server that doesn't offer "shallow".
var ErrCapabilityMismatch = errors.New("negotiate: capability mismatch")
