package filestore

import (
	"context"
	"errors"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytarchive/storage"
)

var batchTime = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

const batchStamp = "2025-03-15T12:00:00+00:00"

func weeklyKind() Kind {
	return Kind{
		Name:     "thing",
		IDField:  "thing_id",
		Required: []string{"thing_id", "first_seen"},
		Diff:     DiffOptions{Exclude: []string{"view_count"}},
		Migrations: &MigrationChain{
			Target: 2,
			Steps: []Migration{
				{From: 0, Name: "v2", Apply: SetVersion(2)},
				{From: 1, Name: "v2", Apply: SetVersion(2)},
			},
		},
		ActivePath: func(id string) string { return path.Join("things/active", id+".json") },
		Archive: Weekly(func(id, slot string) string {
			return path.Join("things/archive", slot, id+".json")
		}),
	}
}

func versionedKind() Kind {
	return Kind{
		Name:       "item",
		IDField:    "item_id",
		Required:   []string{"item_id", "first_seen"},
		ActivePath: func(id string) string { return path.Join("items/active", id, "item.json") },
		Archive:    Versioned(func(id string) string { return path.Join("items/archive", id) }),
	}
}

func TestWeekSlot(t *testing.T) {
	assert.Equal(t, "2025/week-11", WeekSlot(batchTime))
	assert.Equal(t, "2025/week-01", WeekSlot(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestEngineUpdateCreates(t *testing.T) {
	s := New(t.TempDir())
	e := NewEngine(s, weeklyKind(), batchTime, nil)

	got, err := e.Update("t1", storage.Record{"thing_id": "t1", "title": "A"})
	require.NoError(t, err)
	assert.Equal(t, batchStamp, got["first_seen"])
	assert.Equal(t, batchStamp, got["last_updated"])
	assert.Equal(t, 2, got.SchemaVersion())

	stored, err := s.Load("things/active/t1.json")
	require.NoError(t, err)
	assert.Equal(t, "A", stored["title"])
	assert.False(t, s.IsDir("things/archive"))
}

func TestEngineUpdateIncompleteFreshWritesNothing(t *testing.T) {
	s := New(t.TempDir())
	old := storage.Record{"item_id": "i1", "title": "Old", "first_seen": batchStamp, "last_updated": batchStamp}
	require.NoError(t, s.Save("items/active/i1/item.json", old))
	kind := versionedKind()
	kind.Required = append(kind.Required, "title")
	e := NewEngine(s, kind, batchTime, nil)

	for range 2 {
		_, err := e.Update("i1", storage.Record{"item_id": "i1"})
		require.ErrorIs(t, err, storage.ErrIncompleteRecord)
	}

	assert.False(t, s.Exists("items/archive/i1/v1.json"))
	assert.False(t, s.IsDir("items/archive/i1"))
	active, err := s.Load("items/active/i1/item.json")
	require.NoError(t, err)
	assert.Equal(t, "Old", active["title"])
}

func TestEngineUpdateArchivesOnChange(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.Save("things/active/t1.json", storage.Record{
		"thing_id": "t1", "title": "Old", "schema_version": 2,
		"first_seen": "2024-01-01T00:00:00+00:00", "last_updated": "2024-01-01T00:00:00+00:00",
	}))
	e := NewEngine(s, weeklyKind(), batchTime, nil)

	got, err := e.Update("t1", storage.Record{"thing_id": "t1", "title": "New"})
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01T00:00:00+00:00", got["first_seen"])
	assert.Equal(t, batchStamp, got["last_updated"])

	archived, err := s.Load("things/archive/2025/week-11/t1.json")
	require.NoError(t, err)
	assert.Equal(t, "Old", archived["title"])
}

func TestEngineUpdateExcludedChangeOnly(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.Save("things/active/t1.json", storage.Record{
		"thing_id": "t1", "view_count": "1", "schema_version": 2,
		"first_seen": batchStamp, "last_updated": batchStamp,
	}))
	e := NewEngine(s, weeklyKind(), batchTime, nil)

	got, err := e.Update("t1", storage.Record{"thing_id": "t1", "view_count": "999"})
	require.NoError(t, err)
	assert.Equal(t, "999", got["view_count"])
	assert.False(t, s.IsDir("things/archive"))
}

func TestEngineArchiveIdempotent(t *testing.T) {
	s := New(t.TempDir())
	e := NewEngine(s, weeklyKind(), batchTime, nil)

	require.NoError(t, e.Archive(storage.Record{"thing_id": "t1", "title": "First"}))
	require.NoError(t, e.Archive(storage.Record{"thing_id": "t1", "title": "Second"}))

	archived, err := s.Load("things/archive/2025/week-11/t1.json")
	require.NoError(t, err)
	assert.Equal(t, "First", archived["title"])
}

func TestEngineArchiveMissingIdentity(t *testing.T) {
	e := NewEngine(New(t.TempDir()), weeklyKind(), batchTime, nil)
	err := e.Archive(storage.Record{"title": "new"})
	assert.ErrorIs(t, err, storage.ErrMissingIdentity)
}

func TestEngineArchiveMerge(t *testing.T) {
	s := New(t.TempDir())
	kind := weeklyKind()
	kind.MergeArchive = func(existing, rec storage.Record) (storage.Record, error) {
		out := existing.Clone()
		out["merged"] = rec["title"]
		return out, nil
	}
	e := NewEngine(s, kind, batchTime, nil)

	require.NoError(t, e.Archive(storage.Record{"thing_id": "t1", "title": "First"}))
	require.NoError(t, e.Archive(storage.Record{"thing_id": "t1", "title": "Second"}))

	archived, err := s.Load("things/archive/2025/week-11/t1.json")
	require.NoError(t, err)
	assert.Equal(t, "First", archived["title"])
	assert.Equal(t, "Second", archived["merged"])
}

func TestEngineVersionedArchive(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.Save("items/archive/i1/v1.json", storage.Record{"title": "v1"}))
	require.NoError(t, s.Save("items/archive/i1/v3.json", storage.Record{"title": "v3"}))
	require.NoError(t, s.Save("items/active/i1/item.json", storage.Record{
		"item_id": "i1", "title": "Old", "first_seen": batchStamp, "last_updated": batchStamp,
	}))
	e := NewEngine(s, versionedKind(), batchTime, nil)

	_, err := e.Update("i1", storage.Record{"item_id": "i1", "title": "New"})
	require.NoError(t, err)

	v4, err := s.Load("items/archive/i1/v4.json")
	require.NoError(t, err)
	assert.Equal(t, "Old", v4["title"])
	assert.False(t, s.Exists("items/archive/i1/v2.json"))
}

func TestEngineUpdateCorruptActive(t *testing.T) {
	s := New(t.TempDir())
	writeRaw(t, s, "things/active/t1.json", "NOT JSON{{{")
	e := NewEngine(s, weeklyKind(), batchTime, nil)

	_, err := e.Update("t1", storage.Record{"thing_id": "t1"})
	assert.ErrorIs(t, err, storage.ErrStorageCorrupt)
}

func TestEngineUpdateIncompleteActive(t *testing.T) {
	s := New(t.TempDir())
	writeRaw(t, s, "things/active/t1.json", "{}")
	e := NewEngine(s, weeklyKind(), batchTime, nil)

	_, err := e.Update("t1", storage.Record{"thing_id": "t1", "title": "x"})
	require.ErrorIs(t, err, storage.ErrIncompleteRecord)

	var missing *storage.MissingFieldsError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"first_seen", "thing_id"}, missing.Fields)
	assert.False(t, s.IsDir("things/archive"))
}

func TestEngineGet(t *testing.T) {
	fetched := 0
	fetch := func(_ context.Context, id string) (storage.Record, error) {
		fetched++
		return storage.Record{"thing_id": id, "title": "Remote"}, nil
	}

	t.Run("missing file fetches", func(t *testing.T) {
		fetched = 0
		e := NewEngine(New(t.TempDir()), weeklyKind(), batchTime, nil)
		got, err := e.Get(context.Background(), "t1", fetch)
		require.NoError(t, err)
		assert.Equal(t, 1, fetched)
		assert.Equal(t, "Remote", got["title"])
	})

	t.Run("current schema served locally", func(t *testing.T) {
		fetched = 0
		s := New(t.TempDir())
		require.NoError(t, s.Save("things/active/t1.json", storage.Record{
			"thing_id": "t1", "title": "Local", "schema_version": 2, "first_seen": batchStamp,
		}))
		got, err := NewEngine(s, weeklyKind(), batchTime, nil).Get(context.Background(), "t1", fetch)
		require.NoError(t, err)
		assert.Equal(t, 0, fetched)
		assert.Equal(t, "Local", got["title"])
	})

	t.Run("old schema refreshes", func(t *testing.T) {
		fetched = 0
		s := New(t.TempDir())
		require.NoError(t, s.Save("things/active/t1.json", storage.Record{
			"thing_id": "t1", "title": "Local", "schema_version": 1, "first_seen": batchStamp,
		}))
		got, err := NewEngine(s, weeklyKind(), batchTime, nil).Get(context.Background(), "t1", fetch)
		require.NoError(t, err)
		assert.Equal(t, 1, fetched)
		assert.Equal(t, 2, got.SchemaVersion())
		assert.Equal(t, batchStamp, got["first_seen"])
	})

	t.Run("future schema accepted", func(t *testing.T) {
		fetched = 0
		s := New(t.TempDir())
		require.NoError(t, s.Save("things/active/t1.json", storage.Record{
			"thing_id": "t1", "schema_version": 99, "first_seen": batchStamp,
		}))
		got, err := NewEngine(s, weeklyKind(), batchTime, nil).Get(context.Background(), "t1", fetch)
		require.NoError(t, err)
		assert.Equal(t, 0, fetched)
		assert.Equal(t, 99, got.SchemaVersion())
	})

	t.Run("fetch error propagates", func(t *testing.T) {
		boom := errors.New("boom")
		e := NewEngine(New(t.TempDir()), weeklyKind(), batchTime, nil)
		_, err := e.Get(context.Background(), "t1", func(context.Context, string) (storage.Record, error) {
			return nil, boom
		})
		assert.ErrorIs(t, err, boom)
	})
}

func TestEngineArchiveRemoved(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.Save("things/active/t1.json", storage.Record{"thing_id": "t1", "title": "Gone"}))
	e := NewEngine(s, weeklyKind(), batchTime, nil)

	require.NoError(t, e.ArchiveRemoved("t1", "removed_at"))
	assert.False(t, e.Exists("t1"))

	archived, err := s.Load("things/archive/2025/week-11/t1.json")
	require.NoError(t, err)
	assert.Equal(t, batchStamp, archived["removed_at"])
}
