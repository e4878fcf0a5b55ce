// Package filestore is the on-disk snapshot store: one pretty-printed JSON
// file per entity, written atomically, plus the change detector, schema
// migration chain and archive partitioners that the entity engine combines.
package filestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"ytarchive/storage"
)

const (
	lockFileName = ".ytarchive.lock"
	lockTimeout  = 5 * time.Second
)

// Store reads and writes JSON files below a data root. Paths passed to its
// methods are slash-separated and relative to the root.
type Store struct {
	root string
	lock *RunLock
}

// New returns a Store rooted at root without taking the run lock.
func New(root string) *Store {
	return &Store{root: root}
}

// Open returns a Store rooted at root and holds the root's run lock until
// Close is called.
func Open(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, &storage.StorageError{Op: "open", Entity: "root", ID: root, Err: err}
	}
	s := New(root)
	s.lock = NewRunLock(filepath.Join(root, lockFileName))
	if err := s.lock.Lock(lockTimeout); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases the run lock, if held.
func (s *Store) Close() error {
	if s.lock == nil {
		return nil
	}
	return s.lock.Unlock()
}

// Root returns the data root.
func (s *Store) Root() string { return s.root }

// Path resolves rel against the data root.
func (s *Store) Path(rel string) string {
	return filepath.Join(s.root, filepath.FromSlash(rel))
}

// ReadFile returns the raw content of rel. A missing file is ErrNotFound.
func (s *Store) ReadFile(rel string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(rel))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &storage.StorageError{Op: "read", Entity: "file", ID: rel, Err: storage.ErrNotFound}
		}
		return nil, &storage.StorageError{Op: "read", Entity: "file", ID: rel, Err: err}
	}
	return data, nil
}

// Load parses rel as a JSON object. Malformed content is reported as
// ErrStorageCorrupt and never replaced.
func (s *Store) Load(rel string) (storage.Record, error) {
	data, err := s.ReadFile(rel)
	if err != nil {
		return nil, err
	}
	rec, err := storage.ParseRecord(data)
	if err != nil {
		return nil, corrupt(rel, err)
	}
	return rec, nil
}

// LoadJSON decodes rel into v.
func (s *Store) LoadJSON(rel string, v any) error {
	data, err := s.ReadFile(rel)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return corrupt(rel, err)
	}
	return nil
}

// Save atomically writes v to rel as indented JSON, creating parent
// directories.
func (s *Store) Save(rel string, v any) error {
	w, err := NewAtomicWriter(s.Path(rel))
	if err != nil {
		return &storage.StorageError{Op: "write", Entity: "file", ID: rel, Err: err}
	}
	if err := w.WriteJSON(v); err != nil {
		w.Abort()
		return &storage.StorageError{Op: "write", Entity: "file", ID: rel, Err: err}
	}
	if err := w.Commit(); err != nil {
		return &storage.StorageError{Op: "write", Entity: "file", ID: rel, Err: err}
	}
	return nil
}

// SaveText atomically writes text to rel.
func (s *Store) SaveText(rel, text string) error {
	if err := WriteFile(s.Path(rel), []byte(text)); err != nil {
		return &storage.StorageError{Op: "write", Entity: "file", ID: rel, Err: err}
	}
	return nil
}

// AppendLine appends line and a newline to rel, creating it if needed.
func (s *Store) AppendLine(rel, line string) error {
	p := s.Path(rel)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return &storage.StorageError{Op: "write", Entity: "file", ID: rel, Err: err}
	}
	f, err := os.OpenFile(p, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return &storage.StorageError{Op: "write", Entity: "file", ID: rel, Err: err}
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		f.Close()
		return &storage.StorageError{Op: "write", Entity: "file", ID: rel, Err: err}
	}
	if err := f.Close(); err != nil {
		return &storage.StorageError{Op: "write", Entity: "file", ID: rel, Err: err}
	}
	return nil
}

// SaveIfAbsent writes v to rel only when rel does not exist yet. It
// reports whether the file was written.
func (s *Store) SaveIfAbsent(rel string, v any) (bool, error) {
	if s.Exists(rel) {
		return false, nil
	}
	if err := s.Save(rel, v); err != nil {
		return false, err
	}
	return true, nil
}

// Exists reports whether rel exists.
func (s *Store) Exists(rel string) bool {
	_, err := os.Stat(s.Path(rel))
	return err == nil
}

// Remove deletes rel. A missing file is not an error.
func (s *Store) Remove(rel string) error {
	err := os.Remove(s.Path(rel))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &storage.StorageError{Op: "remove", Entity: "file", ID: rel, Err: err}
	}
	return nil
}

// List returns the sorted names of the regular files in dir matching
// pattern. A missing directory yields no names.
func (s *Store) List(dir, pattern string) ([]string, error) {
	entries, err := os.ReadDir(s.Path(dir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &storage.StorageError{Op: "list", Entity: "dir", ID: dir, Err: err}
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ok, err := path.Match(pattern, e.Name())
		if err != nil {
			return nil, fmt.Errorf("%w: pattern %q: %v", storage.ErrInvalidInput, pattern, err)
		}
		if ok {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// IsDir reports whether rel is an existing directory.
func (s *Store) IsDir(rel string) bool {
	fi, err := os.Stat(s.Path(rel))
	return err == nil && fi.IsDir()
}

// LatestVersion returns the highest N among the v<N>.json files in dir, or
// 0 when there are none. Gaps are allowed; a name that does not parse is
// an error.
func (s *Store) LatestVersion(dir string) (int, error) {
	names, err := s.List(dir, "v*.json")
	if err != nil {
		return 0, err
	}
	latest := 0
	for _, name := range names {
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "v"), ".json"))
		if err != nil {
			return 0, corrupt(path.Join(dir, name), fmt.Errorf("malformed version file name"))
		}
		latest = max(latest, n)
	}
	return latest, nil
}

func corrupt(rel string, err error) error {
	return &storage.StorageError{
		Op:     "read",
		Entity: "file",
		ID:     rel,
		Err:    fmt.Errorf("%w: %v", storage.ErrStorageCorrupt, err),
	}
}
