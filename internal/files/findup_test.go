package files

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindUp(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	target := filepath.Join(root, "a", "findup-probe.json")
	require.NoError(t, os.WriteFile(target, []byte("{}"), 0o644))

	assert.Equal(t, target, FindUp(nested, "findup-probe.json"))
	assert.Equal(t, target, FindUp(filepath.Join(root, "a"), "findup-probe.json"))
	assert.Equal(t, "", FindUp(t.TempDir(), "findup-probe.json"))
	assert.Equal(t, "", FindUp(nested, "no-such-file-anywhere-xyz"))
}

func TestFindUpNearestLevelWins(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	far := filepath.Join(root, "findup-one.json")
	near := filepath.Join(nested, "findup-two.yaml")
	require.NoError(t, os.WriteFile(far, []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(near, []byte("{}"), 0o644))

	// The second name sits closer to the start, so it must beat the first
	// name further up.
	assert.Equal(t, near, FindUp(nested, "findup-one.json", "findup-two.yaml"))

	// Within one directory the listed order decides.
	tie := filepath.Join(nested, "findup-one.json")
	require.NoError(t, os.WriteFile(tie, []byte("{}"), 0o644))
	assert.Equal(t, tie, FindUp(nested, "findup-one.json", "findup-two.yaml"))
}
