// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package oid implements the 20-byte object identifier used by the
// negotiation protocol, with a canonical lowercase hex representation.
package oid

import (
	"bytes"
	"encoding/hex"
	"errors"
	"sort"
)

const (
	// Size is the number of bytes in an ID.
	Size = 20
	// HexSize is the length of the canonical hex representation.
	HexSize = Size * 2
)

var (
	// ErrInvalidHex is returned when a string is not a well-formed 40-hex OID.
	ErrInvalidHex = errors.New("oid: invalid hex representation")
)

// ID is an opaque 20-byte object identifier.
type ID [Size]byte

// Zero is the all-zero ID, used as a sentinel for "no object" (e.g. a
// ref being created or deleted).
var Zero ID

// New returns a new ID from a hexadecimal string, ignoring malformed
// input (returning the zero ID). Callers that need to reject malformed
// input should use Parse instead.
func New(s string) ID {
	id, _ := Parse(s)
	return id
}

// Parse decodes a canonical 40-hex string into an ID.
func Parse(s string) (ID, error) {
	var id ID
	if len(s) != HexSize {
		return id, ErrInvalidHex
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, ErrInvalidHex
	}
	copy(id[:], b)
	return id, nil
}

// IsZero reports whether id is the all-zero sentinel.
func (id ID) IsZero() bool {
	return id == Zero
}

// String returns the canonical lowercase hex representation.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Compare returns -1, 0, or 1 per bytes.Compare, for use in sorted
// containers keyed by ID.
func Compare(a, b ID) int {
	return bytes.Compare(a[:], b[:])
}

// Sort sorts ids in ascending byte order, in place.
func Sort(ids []ID) {
	sort.Slice(ids, func(i, j int) bool {
		return Compare(ids[i], ids[j]) < 0
	})
}
