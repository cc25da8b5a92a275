package commands

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/blindbox/internal/config"
)

// writeConfig writes a sqlite-backed config into a temp dir and points
// BLINDBOX_CONFIG at it for the duration of the test.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "blindbox.yaml")
	body := fmt.Sprintf(`store_backend: sqlite
sqlite_path: %s
batch_workers: 2
batch_queue_size: 16
soulbound_links:
  "1": 1001
%s`, filepath.Join(dir, "blindbox.db"), extra)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv(config.FileEnv, path)
	return path
}

func writeFixture(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(args ...string) (string, error) {
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

// TestRootCommand_ShowsHelpWhenNoSubcommand checks that a bare invocation
// prints usage instead of silently succeeding
func TestRootCommand_ShowsHelpWhenNoSubcommand(t *testing.T) {
	out, err := execute()

	assert.NoError(t, err)
	assert.Contains(t, out, "Usage:")
	assert.Contains(t, out, "revealctl")
}

func TestRootCommand_RejectsUnknownFlags(t *testing.T) {
	_, err := execute("--unknown-flag", "value")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown flag")
}

func TestRevealCommand_RequiresRange(t *testing.T) {
	_, err := execute("reveal", "--from", "1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "to")
}

func TestRevealCommand_RejectsInvertedRange(t *testing.T) {
	writeConfig(t, "reveal_enabled: true\n")

	_, err := execute("reveal", "--from", "5", "--to", "1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "below")
}

// TestSeedRevealPools runs the full admin workflow against one sqlite file.
func TestSeedRevealPools(t *testing.T) {
	writeConfig(t, "reveal_enabled: true\n")
	fixture := writeFixture(t, `avatars: [1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20]
soulbounds:
  - {token_id: 1001, type: legendary}
reveal_mappings:
  - {slot: 0, metadata_id: 9000}
`)

	out, err := execute("seed", "--file", fixture)
	require.NoError(t, err)
	assert.Contains(t, out, "20 avatars")
	assert.Contains(t, out, "1 soulbounds")

	// The legendary avatar goes first; common reveals scan from the
	// legendary pool onwards.
	out, err = execute("reveal", "--from", "1", "--to", "1")
	require.NoError(t, err, out)
	assert.Contains(t, out, "1 revealed, 0 failed")

	// Wider than batch_queue_size so the command has to split the range.
	out, err = execute("reveal", "--from", "2", "--to", "20")
	require.NoError(t, err, out)
	assert.Contains(t, out, "19 revealed, 0 failed")
	assert.Equal(t, 19, strings.Count(out, "✓ avatar"))

	out, err = execute("pools")
	require.NoError(t, err)
	assert.Contains(t, out, "RARITY")
	assert.Contains(t, out, "legendary")
	assert.Contains(t, out, "common")

	// Already revealed avatars are reported per avatar.
	out, err = execute("reveal", "--from", "1", "--to", "2")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRevealsFailed)
	assert.Equal(t, 2, strings.Count(out, "✗ avatar"))
}

func TestRevealCommand_ClosedStage(t *testing.T) {
	writeConfig(t, "reveal_enabled: false\n")
	fixture := writeFixture(t, "avatars: [2]\n")
	_, err := execute("seed", "--file", fixture)
	require.NoError(t, err)

	out, err := execute("reveal", "--from", "2", "--to", "2")
	require.Error(t, err)
	assert.Contains(t, out, "not open")

	out, err = execute("reveal", "--from", "2", "--to", "2", "--force-open")
	require.NoError(t, err, out)
	assert.Contains(t, out, "1 revealed")
}

func TestReadFixture(t *testing.T) {
	t.Run("empty fixture", func(t *testing.T) {
		_, err := ReadFixture(writeFixture(t, "avatars: []\n"))
		assert.ErrorIs(t, err, ErrEmptyFixture)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := ReadFixture(writeFixture(t, "avatars: [1, 2\n"))
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := ReadFixture(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("all sections", func(t *testing.T) {
		f, err := ReadFixture(writeFixture(t, `avatars: [1]
revealed:
  - {token_id: 2, slot: 40}
soulbounds:
  - {token_id: 3, type: 1}
reveal_mappings:
  - {slot: 40, metadata_id: 7}
`))
		require.NoError(t, err)
		assert.Equal(t, []uint64{1}, f.Avatars)
		assert.Equal(t, RevealedFixture{TokenID: 2, Slot: 40}, f.Revealed[0])
		assert.Equal(t, 1, f.Soulbounds[0].Type)
		assert.Equal(t, MappingFixture{Slot: 40, MetadataID: 7}, f.Mappings[0])
	})
}
