package catalog

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"ytarchive/internal/batch"
	"ytarchive/internal/filestore"
	"ytarchive/storage"
	"ytarchive/youtube"
)

// LogEntry is one line of a rating log: the batch time a rating was first
// seen and the rated video.
type LogEntry struct {
	Time    time.Time
	VideoID string
}

func (e LogEntry) String() string {
	return storage.FormatTime(e.Time) + " " + e.VideoID
}

// Ratings tracks the videos the user liked or disliked. New ratings are
// stored as active files and appended to a log; ratings that disappear
// from the listing are archived.
type Ratings struct {
	store    *filestore.Store
	provider youtube.Provider
	rating   string
	dir      string
	batch    batch.Context
	logger   *zap.Logger
}

// NewRatings creates the service for rating, youtube.RatingLike or
// youtube.RatingDislike.
func NewRatings(store *filestore.Store, provider youtube.Provider, rating string, b batch.Context, logger *zap.Logger) (*Ratings, error) {
	if rating != youtube.RatingLike && rating != youtube.RatingDislike {
		return nil, fmt.Errorf("%w: unknown rating %q", storage.ErrInvalidInput, rating)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	dir := rating + "s"
	return &Ratings{
		store:    store,
		provider: provider,
		rating:   rating,
		dir:      path.Join("youtube", dir),
		batch:    b,
		logger:   logger.With(zap.String("component", dir)),
	}, nil
}

func (r *Ratings) activePath(id string) string {
	return path.Join(r.dir, "active", id+".json")
}

func (r *Ratings) archivePath(id string) string {
	return path.Join(r.dir, "archive", strconv.Itoa(r.batch.Year()), id+".json")
}

// LogPath is the rating log, relative to the data root.
func (r *Ratings) LogPath() string {
	return path.Join(r.dir, path.Base(r.dir)+".log")
}

// Update lists the current ratings, then archives the logged ratings
// since the oldest listed one that are no longer listed.
func (r *Ratings) Update(ctx context.Context) error {
	ids, err := r.RetrieveList(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	oldest := ids[len(ids)-1]
	rec, err := r.store.Load(r.activePath(oldest))
	if err != nil {
		return err
	}
	firstSeen, _ := rec.String("first_seen")
	oldestTime, err := storage.ParseTime(firstSeen)
	if err != nil {
		return &storage.StorageError{Op: "read", Entity: r.rating, ID: oldest,
			Err: fmt.Errorf("%w: first_seen %q", storage.ErrStorageCorrupt, firstSeen)}
	}

	tail, err := r.FindLogTail(oldestTime, 0)
	if err != nil {
		return err
	}

	listed := make(map[string]bool, len(ids))
	for _, id := range ids {
		listed[id] = true
	}
	var undone []string
	seen := make(map[string]bool)
	for _, e := range tail {
		if listed[e.VideoID] || seen[e.VideoID] {
			continue
		}
		seen[e.VideoID] = true
		if r.store.Exists(r.activePath(e.VideoID)) {
			undone = append(undone, e.VideoID)
		}
	}
	return r.ArchiveUndone(undone)
}

// RetrieveList pages through the rated videos, newest first. Unknown
// videos get an active file and a log line. Paging stops after the first
// page that contained an already stored video. It returns every listed id.
func (r *Ratings) RetrieveList(ctx context.Context) ([]string, error) {
	var (
		ids   []string
		token string
	)
	for {
		page, err := r.provider.RatedVideos(ctx, r.rating, token)
		if err != nil {
			return ids, err
		}
		found := false
		for _, item := range page.Items {
			ids = append(ids, item.Id)
			if r.store.Exists(r.activePath(item.Id)) {
				r.logger.Debug("skipped", zap.String("video_id", item.Id))
				found = true
				continue
			}
			rec := storage.Record{
				"first_seen": storage.FormatTime(r.batch.Time),
				"video":      object(item),
			}
			if err := r.store.Save(r.activePath(item.Id), rec); err != nil {
				return ids, err
			}
			entry := LogEntry{Time: r.batch.Time, VideoID: item.Id}
			if err := r.store.AppendLine(r.LogPath(), entry.String()); err != nil {
				return ids, err
			}
			r.logger.Info("wrote rating", zap.String("video_id", item.Id))
		}
		if found || page.NextPageToken == "" {
			return ids, nil
		}
		token = page.NextPageToken
	}
}

// ReadLog parses the rating log. A missing log is empty; an empty or
// malformed line is ErrStorageCorrupt.
func (r *Ratings) ReadLog() ([]LogEntry, error) {
	data, err := r.store.ReadFile(r.LogPath())
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	text := strings.TrimSuffix(string(data), "\n")
	if text == "" {
		return nil, nil
	}
	lines := strings.Split(text, "\n")
	entries := make([]LogEntry, len(lines))
	for i, line := range lines {
		e, err := parseLogLine(line)
		if err != nil {
			return nil, &storage.StorageError{Op: "read", Entity: "rating log", ID: r.LogPath(),
				Err: fmt.Errorf("%w: line %d: %v", storage.ErrStorageCorrupt, i+1, err)}
		}
		entries[i] = e
	}
	return entries, nil
}

func parseLogLine(line string) (LogEntry, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return LogEntry{}, fmt.Errorf("want 2 fields, got %d", len(fields))
	}
	t, err := storage.ParseTime(fields[0])
	if err != nil {
		return LogEntry{}, err
	}
	return LogEntry{Time: t, VideoID: fields[1]}, nil
}

// FindLogTail scans the log backwards, skipping the last offset entries,
// for the first entry at or before oldest and returns the entries after
// it. Without a match, or with offset past the start of the log, the
// whole log is returned. A match on the last entry yields an empty tail.
func (r *Ratings) FindLogTail(oldest time.Time, offset int) ([]LogEntry, error) {
	entries, err := r.ReadLog()
	if err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	for i := len(entries) - 1 - offset; i >= 0; i-- {
		if !entries[i].Time.After(oldest) {
			return entries[i+1:], nil
		}
	}
	return entries, nil
}

// ArchiveUndone moves the active files of ids to this year's archive with
// unrated_at set, replacing an archive written earlier in the year. Ids
// without an active file are skipped.
func (r *Ratings) ArchiveUndone(ids []string) error {
	for _, id := range ids {
		rec, err := r.store.Load(r.activePath(id))
		if errors.Is(err, storage.ErrNotFound) {
			r.logger.Warn("no active file", zap.String("video_id", id))
			continue
		}
		if err != nil {
			return err
		}
		rec["unrated_at"] = storage.FormatTime(r.batch.Time)
		if err := r.store.Save(r.archivePath(id), rec); err != nil {
			return err
		}
		if err := r.store.Remove(r.activePath(id)); err != nil {
			return err
		}
		r.logger.Info("archived rating", zap.String("video_id", id))
	}
	return nil
}
