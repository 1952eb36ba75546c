package fetchconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fetch.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultUnpackLimit, cfg.UnpackLimit())
	assert.True(t, cfg.PreferOfsDelta())
}

func TestTransferUnpackLimitWinsOverFetch(t *testing.T) {
	path := writeConfig(t, "[fetch]\nunpacklimit = 50\n[transfer]\nunpacklimit = 200\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.UnpackLimit())
}

func TestFetchUnpackLimitUsedWhenTransferUnset(t *testing.T) {
	path := writeConfig(t, "[fetch]\nunpacklimit = 50\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.UnpackLimit())
}

func TestBooleanAcceptsGitLiteralSpellings(t *testing.T) {
	path := writeConfig(t, "[repack]\nusedeltabaseoffset = \"no\"\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Repack.UseDeltaBaseOffset.IsSet())
	assert.False(t, cfg.PreferOfsDelta())
}

func TestBooleanDefaultsTrueWhenUnset(t *testing.T) {
	path := writeConfig(t, "[fetch]\nunpacklimit = 10\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Repack.UseDeltaBaseOffset.IsSet())
	assert.True(t, cfg.PreferOfsDelta())
}
