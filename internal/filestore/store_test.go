package filestore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytarchive/storage"
)

func writeRaw(t *testing.T, s *Store, rel, content string) {
	t.Helper()
	p := s.Path(rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
}

func TestStoreSaveLoad(t *testing.T) {
	s := New(t.TempDir())

	rec := storage.Record{"id": "a", "n": 3, "list": []any{"x", "y"}}
	require.NoError(t, s.Save("deep/dir/a.json", rec))
	assert.True(t, s.Exists("deep/dir/a.json"))

	got, err := s.Load("deep/dir/a.json")
	require.NoError(t, err)
	assert.Equal(t, "a", got["id"])
	n, ok := got.Int("n")
	assert.True(t, ok)
	assert.Equal(t, int64(3), n)

	raw, err := os.ReadFile(s.Path("deep/dir/a.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\n  \"id\": \"a\"")
}

func TestStoreLoadMissing(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.Load("nope.json")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.False(t, s.Exists("nope.json"))
}

func TestStoreLoadCorrupt(t *testing.T) {
	s := New(t.TempDir())
	writeRaw(t, s, "bad.json", "NOT JSON{{{")

	_, err := s.Load("bad.json")
	assert.ErrorIs(t, err, storage.ErrStorageCorrupt)

	var v []string
	err = s.LoadJSON("bad.json", &v)
	assert.ErrorIs(t, err, storage.ErrStorageCorrupt)

	// The corrupt file is left for inspection.
	raw, err := os.ReadFile(s.Path("bad.json"))
	require.NoError(t, err)
	assert.Equal(t, "NOT JSON{{{", string(raw))
}

func TestStoreLoadRejectsNonObject(t *testing.T) {
	s := New(t.TempDir())
	writeRaw(t, s, "list.json", `[1, 2]`)
	_, err := s.Load("list.json")
	assert.ErrorIs(t, err, storage.ErrStorageCorrupt)
}

func TestStoreSaveIfAbsent(t *testing.T) {
	s := New(t.TempDir())

	written, err := s.SaveIfAbsent("a.json", storage.Record{"v": "first"})
	require.NoError(t, err)
	assert.True(t, written)

	written, err = s.SaveIfAbsent("a.json", storage.Record{"v": "second"})
	require.NoError(t, err)
	assert.False(t, written)

	got, err := s.Load("a.json")
	require.NoError(t, err)
	assert.Equal(t, "first", got["v"])
}

func TestStoreRemove(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.Save("a.json", storage.Record{}))
	require.NoError(t, s.Remove("a.json"))
	assert.False(t, s.Exists("a.json"))
	assert.NoError(t, s.Remove("a.json"))
}

func TestStoreList(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.Save("d/b.json", storage.Record{}))
	require.NoError(t, s.Save("d/a.json", storage.Record{}))
	require.NoError(t, s.SaveText("d/c.txt", "x"))
	require.NoError(t, os.MkdirAll(s.Path("d/sub.json"), 0755))

	names, err := s.List("d", "*.json")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.json", "b.json"}, names)

	names, err = s.List("missing", "*.json")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestStoreNoTempFilesLeft(t *testing.T) {
	s := New(t.TempDir())
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Save("x/a.json", storage.Record{"i": i}))
	}
	entries, err := os.ReadDir(s.Path("x"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLatestVersion(t *testing.T) {
	tests := []struct {
		name    string
		files   []string
		want    int
		wantErr bool
	}{
		{name: "no directory", want: 0},
		{name: "single", files: []string{"v1.json"}, want: 1},
		{name: "gap returns max", files: []string{"v1.json", "v3.json"}, want: 3},
		{name: "numeric not lexical", files: []string{"v2.json", "v10.json"}, want: 10},
		{name: "malformed name", files: []string{"v1a.json"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(t.TempDir())
			for _, f := range tt.files {
				writeRaw(t, s, "arch/"+f, "{}")
			}
			got, err := s.LatestVersion("arch")
			if tt.wantErr {
				assert.ErrorIs(t, err, storage.ErrStorageCorrupt)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpenHoldsRunLock(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	second := NewRunLock(filepath.Join(dir, lockFileName))
	assert.ErrorIs(t, second.Lock(50*time.Millisecond), ErrLockTimeout)

	require.NoError(t, s.Close())
	require.NoError(t, second.Lock(50*time.Millisecond))
	require.NoError(t, second.Unlock())
}
