package scan

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/djherbis/times"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetsync/internal/core"
)

func TestNativeListsRegularFilesOnly(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sales.XLSX"), []byte("data"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "deep.xlsx"), []byte("x"), 0o644))

	files, err := Native{}.ListDirectory(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, files, 2)

	byName := map[string]core.FileDescriptor{}
	for _, f := range files {
		byName[f.Name] = f
	}
	sales := byName["sales.XLSX"]
	assert.Equal(t, filepath.Join(dir, "sales.XLSX"), sales.Path)
	assert.Equal(t, "xlsx", sales.Extension)
	assert.True(t, sales.IsSpreadsheet)
	assert.EqualValues(t, 4, sales.Size)
	assert.False(t, sales.CreatedAt.IsZero())
	assert.False(t, byName["notes.txt"].IsSpreadsheet)
}

func TestNativeMissingDirectoryIsAnError(t *testing.T) {
	_, err := Native{}.ListDirectory(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNativeEmptyDirectory(t *testing.T) {
	files, err := Native{}.ListDirectory(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestUnsupported(t *testing.T) {
	_, err := Unsupported{}.ListDirectory(context.Background(), "/anything")
	assert.ErrorIs(t, err, core.ErrListingUnsupported)
}

func TestNew(t *testing.T) {
	l, err := New("")
	require.NoError(t, err)
	assert.IsType(t, Native{}, l)

	l, err = New("none")
	require.NoError(t, err)
	assert.IsType(t, Unsupported{}, l)

	_, err = New("ftp")
	assert.Error(t, err)
}

func TestIsSpreadsheet(t *testing.T) {
	assert.True(t, IsSpreadsheet("a.xls"))
	assert.True(t, IsSpreadsheet("a.CSV"))
	assert.False(t, IsSpreadsheet("a.docx"))
	assert.False(t, IsSpreadsheet("xlsx"))
}

func TestNativeCreatedAtIgnoresBackdatedModTime(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "copied.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))
	old := time.Now().Add(-72 * time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(path, old, old))

	files, err := Native{}.ListDirectory(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.True(t, files[0].ModifiedAt.Equal(old))

	ts, err := times.Stat(path)
	require.NoError(t, err)
	if !ts.HasBirthTime() {
		assert.True(t, files[0].CreatedAt.Equal(old), "falls back to modification time")
		t.Skip("filesystem does not record birth time")
	}
	assert.True(t, files[0].CreatedAt.Equal(ts.BirthTime()))
	assert.True(t, files[0].CreatedAt.After(old))
}
