package workdir

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDir_Lifecycle(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	d, err := New(base, "imgship")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(filepath.Base(d.Path()), "imgship-"))
	info, err := os.Stat(d.Path())
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	require.NoError(t, os.WriteFile(d.File("image.tar"), []byte("data"), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(d.Path(), "nested", "deeper"), 0o750))

	require.NoError(t, d.Close())
	_, err = os.Stat(d.Path())
	assert.True(t, os.IsNotExist(err))

	// Closing again is harmless.
	assert.NoError(t, d.Close())
}

func TestDir_UniquePerRun(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	a, err := New(base, "imgship")
	require.NoError(t, err)
	defer a.Close()
	b, err := New(base, "imgship")
	require.NoError(t, err)
	defer b.Close()

	assert.NotEqual(t, a.Path(), b.Path())
}

func TestDir_File(t *testing.T) {
	t.Parallel()

	d := &Dir{path: "/tmp/x"}
	assert.Equal(t, filepath.Join("/tmp/x", "registry.local_5000_app_v1.tar"),
		d.File("registry.local:5000/app:v1.tar"))
}

func TestNew_BadBase(t *testing.T) {
	t.Parallel()

	_, err := New(filepath.Join(t.TempDir(), "missing", "dir"), "imgship")
	assert.Error(t, err)
}
