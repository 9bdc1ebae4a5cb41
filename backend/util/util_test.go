package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.WriteFile(src, []byte("new contents"), 0644))
	require.NoError(t, os.WriteFile(dst, []byte("old contents that are longer"), 0644))

	require.NoError(t, CopyFile(src, dst))
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "new contents", string(got))
}

func TestCopyFile_Errors(t *testing.T) {
	dir := t.TempDir()
	assert.Error(t, CopyFile(filepath.Join(dir, "nope"), filepath.Join(dir, "dst")))
	assert.NoFileExists(t, filepath.Join(dir, "dst"))

	src := filepath.Join(dir, "src")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0644))
	assert.Error(t, CopyFile(src, filepath.Join(dir, "missing", "dst")))
}
