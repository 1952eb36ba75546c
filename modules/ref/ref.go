// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package ref defines the advertised-reference type the negotiation
// core passes between the ref filter, completeness oracle, and
// negotiation engine.
package ref

import "github.com/hugeswarm/fetchpack/modules/oid"

// Ref is a named pointer the server advertised. OldOID is the server's
// advertised value; NewOID is set by the core on success (the value the
// caller should update its own ref store to).
type Ref struct {
	Name    string
	OldOID  oid.ID
	NewOID  oid.ID
	Warning string // set when the ref could not be resolved, non-fatal
}

// Clone returns a shallow copy, since the negotiation engine mutates
// NewOID/Warning in place on its own working set.
func (r *Ref) Clone() *Ref {
	c := *r
	return &c
}
