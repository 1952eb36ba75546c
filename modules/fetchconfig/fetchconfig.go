// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package fetchconfig decodes the handful of TOML configuration
// options the negotiation core and pack dispatcher recognize.
package fetchconfig

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultUnpackLimit is the entry-count threshold below which the
// dispatcher explodes a pack into loose objects instead of indexing
// it, absent any configured override.
const DefaultUnpackLimit = 100

// Boolean is a tri-state bool (unset/true/false) that accepts the same
// TOML literal spellings git's own config parser does, so a user's
// existing config files work unmodified.
type Boolean struct {
	set bool
	val bool
}

// UnmarshalTOML accepts bool, int64 (nonzero is true), and the string
// spellings "true"/"yes"/"on"/"1" and "false"/"no"/"off"/"0".
func (b *Boolean) UnmarshalTOML(a any) error {
	switch v := a.(type) {
	case bool:
		*b = Boolean{set: true, val: v}
		return nil
	case int64:
		*b = Boolean{set: true, val: v != 0}
		return nil
	case string:
		switch strings.ToLower(v) {
		case "true", "yes", "on", "1":
			*b = Boolean{set: true, val: true}
			return nil
		case "false", "no", "off", "0":
			*b = Boolean{set: true, val: false}
			return nil
		}
		return fmt.Errorf("fetchconfig: invalid boolean literal %q", v)
	default:
		return fmt.Errorf("fetchconfig: unsupported boolean representation %T", a)
	}
}

// IsSet reports whether this option was present in the decoded file.
func (b Boolean) IsSet() bool { return b.set }

// Value returns the decoded value, or def if the option was unset.
func (b Boolean) Value(def bool) bool {
	if !b.set {
		return def
	}
	return b.val
}

// Config is the subset of a fetch configuration the core consults.
type Config struct {
	Fetch struct {
		UnpackLimit int `toml:"unpacklimit"`
	} `toml:"fetch"`
	Transfer struct {
		UnpackLimit int `toml:"unpacklimit"`
	} `toml:"transfer"`
	Repack struct {
		UseDeltaBaseOffset Boolean `toml:"usedeltabaseoffset"`
	} `toml:"repack"`
}

// UnpackLimit resolves fetch.unpacklimit vs. transfer.unpacklimit per
// §6: transfer wins if both are set; otherwise whichever is set; the
// package default if neither is.
func (c *Config) UnpackLimit() int {
	switch {
	case c.Transfer.UnpackLimit > 0:
		return c.Transfer.UnpackLimit
	case c.Fetch.UnpackLimit > 0:
		return c.Fetch.UnpackLimit
	default:
		return DefaultUnpackLimit
	}
}

// PreferOfsDelta reports whether repack.usedeltabaseoffset asks the
// negotiation engine to prefer the ofs-delta capability. Defaults to
// true, matching git's own default.
func (c *Config) PreferOfsDelta() bool {
	return c.Repack.UseDeltaBaseOffset.Value(true)
}

// Load decodes path into a Config. A missing file yields a zero
// Config (all the above defaults apply) rather than an error, since
// fetch configuration is always optional.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, err
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("fetchconfig: decode %s: %w", path, err)
	}
	return &cfg, nil
}
