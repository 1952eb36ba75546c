// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package negotiate

import (
	"fmt"
	"strings"
)

// Capabilities is a set of protocol capability flags, used both for
// what the server offered (ParseCapabilities) and for what this
// session resolved to use (ResolveCapabilities).
type Capabilities struct {
	MultiAck    bool
	SideBand    bool
	SideBand64k bool
	OfsDelta    bool
	Shallow     bool
}

// ParseCapabilities extracts the capability set offered by the server,
// read by substring test against the reserved capability line the
// caller's ref-advertisement parsing already isolated.
func ParseCapabilities(line string) Capabilities {
	has64k := strings.Contains(line, "side-band-64k")
	return Capabilities{
		MultiAck:    strings.Contains(line, "multi_ack"),
		SideBand64k: has64k,
		SideBand:    !has64k && strings.Contains(line, "side-band"),
		OfsDelta:    strings.Contains(line, "ofs-delta"),
		Shallow:     strings.Contains(line, "shallow"),
	}
}

// ResolveCapabilities applies local policy to what the server offered,
// producing the set this session actually uses: multi_ack and
// ofs-delta are enabled only if offered; side-band-64k is preferred
// over plain side-band when both are offered; shallow is required
// (and the call fails) if the local repository is itself shallow and
// the server did not offer it.
func ResolveCapabilities(offered Capabilities, repoIsShallow bool) (Capabilities, error) {
	enabled := Capabilities{
		MultiAck: offered.MultiAck,
		OfsDelta: offered.OfsDelta,
	}
	switch {
	case offered.SideBand64k:
		enabled.SideBand64k = true
	case offered.SideBand:
		enabled.SideBand = true
	}
	if repoIsShallow {
		if !offered.Shallow {
			return Capabilities{}, fmt.Errorf("%w: local repository is shallow but server does not offer shallow", ErrCapabilityMismatch)
		}
		enabled.Shallow = true
	}
	return enabled, nil
}
