package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"ytarchive/storage"
)

// Kind describes how one entity type is stored: where its active file
// lives, what must be present in it, which fields change detection
// ignores and how superseded snapshots are archived.
type Kind struct {
	// Name is used in errors and logs ("channel", "video").
	Name string
	// IDField holds the identity key inside the record.
	IDField string
	// Required lists fields that must be present after migration.
	Required []string
	// Diff configures change detection. first_seen and last_updated are
	// always excluded.
	Diff DiffOptions
	// Stamps are extra fields set to the batch time on every update.
	Stamps []string
	// Migrations is nil for schema-stable kinds.
	Migrations *MigrationChain
	// ActivePath returns the active file for an id.
	ActivePath func(id string) string
	// Archive chooses the archive file.
	Archive Partitioner
	// MergeArchive, when set, is called with the existing archive and the
	// record being archived if the partition is already taken. Without
	// it a taken partition is left untouched.
	MergeArchive func(existing, rec storage.Record) (storage.Record, error)
}

// FetchFunc retrieves the current remote state of an entity.
type FetchFunc func(ctx context.Context, id string) (storage.Record, error)

// Engine applies the snapshot-and-archive cycle for one Kind at a fixed
// batch time.
type Engine struct {
	store  *Store
	kind   Kind
	now    time.Time
	logger *zap.Logger
}

// NewEngine binds kind to store for the batch at batchTime.
func NewEngine(store *Store, kind Kind, batchTime time.Time, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:  store,
		kind:   kind,
		now:    batchTime,
		logger: logger.With(zap.String("kind", kind.Name)),
	}
}

// Kind returns the engine's entity description.
func (e *Engine) Kind() Kind { return e.kind }

// Exists reports whether an active record exists for id.
func (e *Engine) Exists(id string) bool {
	return e.store.Exists(e.kind.ActivePath(id))
}

// Load returns the active record for id, migrated in memory to the
// current schema and checked for required fields.
func (e *Engine) Load(id string) (storage.Record, error) {
	rec, err := e.store.Load(e.kind.ActivePath(id))
	if err != nil {
		return nil, e.wrap("read", id, err)
	}
	return e.normalize(id, rec)
}

// Get returns the active record for id. A missing record, or one below
// the current schema version, is refreshed through fetch and stored.
// Records at or above the current version are returned as stored.
func (e *Engine) Get(ctx context.Context, id string, fetch FetchFunc) (storage.Record, error) {
	rec, err := e.store.Load(e.kind.ActivePath(id))
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return nil, e.wrap("read", id, err)
	case !e.kind.Migrations.NeedsUpgrade(rec):
		if err := e.validate(id, rec); err != nil {
			return nil, err
		}
		return rec, nil
	}

	fresh, err := fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.Update(id, fresh)
}

// Update stores fresh as the active record for id. The previous record,
// if any, is migrated and validated first; when it differs from fresh in
// any included field it is archived before being replaced. first_seen is
// carried over and last_updated is set to the batch time.
func (e *Engine) Update(id string, fresh storage.Record) (storage.Record, error) {
	next, err := storage.ToRecord(fresh)
	if err != nil {
		return nil, e.wrap("write", id, err)
	}
	if _, ok := next[e.kind.IDField]; !ok {
		next[e.kind.IDField] = id
	}
	if c := e.kind.Migrations; c != nil {
		next["schema_version"] = json.Number(strconv.Itoa(c.Target))
	}

	active := e.kind.ActivePath(id)
	old, err := e.store.Load(active)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		old = nil
		next["first_seen"] = storage.FormatTime(e.now)
	case err != nil:
		return nil, e.wrap("read", id, err)
	default:
		if old, err = e.normalize(id, old); err != nil {
			return nil, err
		}
		next["first_seen"] = old["first_seen"]
	}

	// Nothing is written unless the new record can be saved.
	e.stamp(next)
	if err := e.validate(id, next); err != nil {
		return nil, err
	}

	if old == nil {
		e.logger.Info("created", zap.String("id", id))
	} else if changes := e.Diff(old, next); !changes.Empty() {
		if err := e.Archive(old); err != nil {
			return nil, err
		}
		e.logger.Debug("changed", zap.String("id", id), zap.Strings("paths", changes.Paths()))
	}

	if err := e.store.Save(active, next); err != nil {
		return nil, e.wrap("write", id, err)
	}
	return next, nil
}

// Diff compares two records of this kind.
func (e *Engine) Diff(old, new storage.Record) Changes {
	opts := e.kind.Diff
	opts.Exclude = append([]string{"first_seen", "last_updated"}, opts.Exclude...)
	opts.Exclude = append(opts.Exclude, e.kind.Stamps...)
	return Diff(old, new, opts)
}

// Archive files rec in its partition for the batch time. A taken
// partition is left as is unless the kind merges archives. rec must carry
// its identity key.
func (e *Engine) Archive(rec storage.Record) error {
	id, _ := rec.String(e.kind.IDField)
	if id == "" {
		return &storage.StorageError{Op: "archive", Entity: e.kind.Name, Err: storage.ErrMissingIdentity}
	}
	p, err := e.kind.Archive.ArchivePath(e.store, id, e.now)
	if err != nil {
		return e.wrap("archive", id, err)
	}

	if e.kind.MergeArchive != nil && e.store.Exists(p) {
		existing, err := e.store.Load(p)
		if err != nil {
			return e.wrap("archive", id, err)
		}
		merged, err := e.kind.MergeArchive(existing, rec)
		if err != nil {
			return e.wrap("archive", id, err)
		}
		if err := e.store.Save(p, merged); err != nil {
			return e.wrap("archive", id, err)
		}
		e.logger.Info("merged archive", zap.String("id", id), zap.String("path", p))
		return nil
	}

	written, err := e.store.SaveIfAbsent(p, rec)
	if err != nil {
		return e.wrap("archive", id, err)
	}
	if written {
		e.logger.Info("archived", zap.String("id", id), zap.String("path", p))
	}
	return nil
}

// ArchiveRemoved archives the active record for id with field set to the
// batch time and deletes the active file.
func (e *Engine) ArchiveRemoved(id, field string) error {
	rec, err := e.store.Load(e.kind.ActivePath(id))
	if err != nil {
		return e.wrap("archive", id, err)
	}
	rec[field] = storage.FormatTime(e.now)
	if err := e.Archive(rec); err != nil {
		return err
	}
	if err := e.store.Remove(e.kind.ActivePath(id)); err != nil {
		return e.wrap("archive", id, err)
	}
	e.logger.Info("removed", zap.String("id", id))
	return nil
}

func (e *Engine) normalize(id string, rec storage.Record) (storage.Record, error) {
	if e.kind.Migrations.NeedsUpgrade(rec) {
		migrated, err := e.kind.Migrations.Run(rec)
		if err != nil {
			return nil, e.wrap("migrate", id, err)
		}
		rec = migrated
	}
	if err := e.validate(id, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (e *Engine) validate(id string, rec storage.Record) error {
	if missing := rec.Missing(e.kind.Required); len(missing) > 0 {
		return e.wrap("validate", id, &storage.MissingFieldsError{Fields: missing})
	}
	return nil
}

func (e *Engine) stamp(rec storage.Record) {
	ts := storage.FormatTime(e.now)
	rec["last_updated"] = ts
	for _, f := range e.kind.Stamps {
		rec[f] = ts
	}
}

func (e *Engine) wrap(op, id string, err error) error {
	var se *storage.StorageError
	if errors.As(err, &se) && se.Entity == e.kind.Name {
		return err
	}
	return &storage.StorageError{Op: op, Entity: e.kind.Name, ID: id, Err: err}
}
