package filex

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnsureDir_CreatesNestedDirectory(t *testing.T) {
	tmp := t.TempDir()
	want := filepath.Join(tmp, "instances", "a")

	got, err := EnsureDir(want)
	require.NoError(t, err)
	require.Equal(t, want, got)

	fi, err := os.Stat(want)
	require.NoError(t, err)
	require.True(t, fi.IsDir(), "should create a directory")

	if runtime.GOOS != "windows" {
		perm := fi.Mode().Perm()
		require.Equal(t, os.FileMode(0o700), perm&0o700)
	}
}

func TestEnsureDir_FailsIfFileWithSameNameExists(t *testing.T) {
	tmp := t.TempDir()
	p := filepath.Join(tmp, "instances")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o660))

	_, err := EnsureDir(p)
	require.Error(t, err, "should fail when a file exists with the same name")
}

func TestWriteFileSync_ReplacesContentAndCreatesParents(t *testing.T) {
	tmp := t.TempDir()
	p := filepath.Join(tmp, "a", "b", "x.xml")

	require.NoError(t, WriteFileSync(p, []byte("<first/>")))
	require.NoError(t, WriteFileSync(p, []byte("<2/>")))

	got, err := os.ReadFile(p)
	require.NoError(t, err)
	require.Equal(t, "<2/>", string(got))
}

func TestCopyFile(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src")
	dst := filepath.Join(tmp, "dst")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o600))
	require.NoError(t, os.WriteFile(dst, []byte("old and longer"), 0o600))

	require.NoError(t, CopyFile(src, dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, "payload", string(got))
}

func TestDeleteIfExists(t *testing.T) {
	tmp := t.TempDir()
	p := filepath.Join(tmp, "x")
	require.NoError(t, os.WriteFile(p, nil, 0o600))

	require.NoError(t, DeleteIfExists(p))
	require.False(t, Exists(p))
	require.NoError(t, DeleteIfExists(p), "missing file is not an error")
}

func TestMD5Hex(t *testing.T) {
	tmp := t.TempDir()
	p := filepath.Join(tmp, "x")
	require.NoError(t, os.WriteFile(p, []byte("abc"), 0o600))

	got, err := MD5Hex(p)
	require.NoError(t, err)
	require.Equal(t, "900150983cd24fb0d6963f7d28e17f72", got)

	_, err = MD5Hex(filepath.Join(tmp, "missing"))
	require.Error(t, err)
}
