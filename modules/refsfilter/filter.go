// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package refsfilter intersects the server's advertised refs with the
// caller's requested ref patterns, discarding malformed names.
package refsfilter

import (
	"strings"

	"github.com/hugeswarm/fetchpack/modules/ref"
)

// isMalformedComponent reports whether a single "/"-separated path
// component is not a well-formed ref path segment, loosely grounded on
// git's check-ref-format rules: no empty segments, no "." or "..", no
// segment ending in ".lock", and no ASCII control or glob-special bytes.
func isMalformedComponent(c string) bool {
	if c == "" || c == "." || c == ".." {
		return true
	}
	if strings.HasSuffix(c, ".lock") {
		return true
	}
	for _, r := range c {
		switch {
		case r < 0x20 || r == 0x7f:
			return true
		case strings.ContainsRune(" ~^:?*[\\", r):
			return true
		}
	}
	return false
}

// isMalformedRefName reports whether name, known to start with
// "refs/", has a malformed path component.
func isMalformedRefName(name string) bool {
	trimmed := strings.TrimPrefix(name, "refs/")
	if trimmed == "" {
		return true
	}
	for _, c := range strings.Split(trimmed, "/") {
		if isMalformedComponent(c) {
			return true
		}
	}
	return false
}

// matches reports whether name's path components end with pattern's,
// component-for-component (a path-suffix match).
func matches(name, pattern string) bool {
	nameParts := strings.Split(name, "/")
	patParts := strings.Split(pattern, "/")
	if len(patParts) > len(nameParts) {
		return false
	}
	offset := len(nameParts) - len(patParts)
	for i, p := range patParts {
		if nameParts[offset+i] != p {
			return false
		}
	}
	return true
}

// dedupPatterns drops repeated pattern strings, keeping the first
// occurrence's position — a caller-supplied ref-spec list like
// [main, main, dev] collapses to [main, dev] before matching, so a
// duplicate never produces two copies of the same ref in the result.
func dedupPatterns(patterns []string) []string {
	seen := make(map[string]bool, len(patterns))
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// Filter applies the ref-filtering rules of the negotiation protocol.
//
// fetchAll keeps every well-formed ref as-is (in advertised order),
// except that when depth is non-zero the refs/tags/ prefix rule that
// would otherwise exclude tags from a plain "fetch everything" is
// disabled (depth requests get tags too, since --deepen semantics don't
// distinguish branches from tags). patterns, when non-empty and
// fetchAll is false, reorder the result to pattern order: a pattern
// matches at most one ref, and if several advertised refs match the
// same pattern the last one (in advertised order) wins. Duplicate
// patterns are collapsed first, so a repeated ref-spec never yields a
// repeated ref in the output.
func Filter(refs []*ref.Ref, patterns []string, fetchAll bool, depth int) []*ref.Ref {
	patterns = dedupPatterns(patterns)
	byRule2 := make(map[*ref.Ref]bool)
	matched := make(map[int]*ref.Ref, len(patterns)) // pattern index -> winning ref
	var advertisedOrder []*ref.Ref

	for _, r := range refs {
		if strings.HasPrefix(r.Name, "refs/") && isMalformedRefName(r.Name) {
			continue
		}
		advertisedOrder = append(advertisedOrder, r)
		if fetchAll && (depth == 0 || !strings.HasPrefix(r.Name, "refs/tags/")) {
			byRule2[r] = true
			continue
		}
		for i, p := range patterns {
			if matches(r.Name, p) {
				matched[i] = r
			}
		}
	}

	if fetchAll {
		winners := make(map[*ref.Ref]bool, len(matched))
		for _, r := range matched {
			winners[r] = true
		}
		kept := make([]*ref.Ref, 0, len(advertisedOrder))
		for _, r := range advertisedOrder {
			if byRule2[r] || winners[r] {
				kept = append(kept, r)
			}
		}
		return kept
	}

	ordered := make([]*ref.Ref, 0, len(patterns))
	for i := range patterns {
		if r, ok := matched[i]; ok {
			ordered = append(ordered, r)
		}
	}
	return ordered
}
