package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("Subject: x\r\n\r\nbody"), 0644))
}

func TestScan(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "b.eml"))
	writeFile(t, filepath.Join(root, "nested", "deep", "A.EML"))
	writeFile(t, filepath.Join(root, "notes.txt"))
	writeFile(t, filepath.Join(root, ".trash", "old.eml"))

	s := NewScanner(root)
	files, err := s.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"b.eml", "nested/deep/A.EML"}, files)
	assert.Equal(t, filepath.Join(root, "nested", "deep", "A.EML"), s.Abs(files[1]))
}

func TestScan_MissingRoot(t *testing.T) {
	s := NewScanner(filepath.Join(t.TempDir(), "missing"))
	_, err := s.Scan(context.Background())
	assert.Error(t, err)
}

func TestScan_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.eml"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewScanner(root).Scan(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
