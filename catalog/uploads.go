package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	ytapi "google.golang.org/api/youtube/v3"

	"ytarchive/internal/filestore"
	"ytarchive/internal/reconcile"
	"ytarchive/storage"
	"ytarchive/youtube"
)

// Upload is one entry of a channel's uploads playlist. On disk it is the
// pair [video_id, published_at].
type Upload struct {
	VideoID     string
	PublishedAt time.Time
}

// MarshalJSON writes the [id, time] pair.
func (u Upload) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{u.VideoID, storage.FormatTime(u.PublishedAt)})
}

// UnmarshalJSON reads the [id, time] pair.
func (u *Upload) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("upload entry has %d elements, want 2", len(pair))
	}
	t, err := storage.ParseTime(pair[1])
	if err != nil {
		return fmt.Errorf("upload %s: %w", pair[0], err)
	}
	u.VideoID, u.PublishedAt = pair[0], t
	return nil
}

func uploadsDir(channelID string) string {
	return path.Join(ChannelDir(channelID), "uploads")
}

func uploadsYearPath(channelID string, year int) string {
	return path.Join(uploadsDir(channelID), strconv.Itoa(year)+".json")
}

func syncStatePath(channelID string) string {
	return path.Join(ChannelDir(channelID), "uploads.json")
}

// RetrieveUploads lists the channel's uploads page by page, newest first.
// A channel reporting zero uploads is not queried. When the uploads
// playlist answers 403 or 404 while the channel itself still resolves, the
// sequence ends with a *youtube.PlaylistInaccessibleError and the sync
// state is marked inaccessible.
func (c *Channels) RetrieveUploads(ctx context.Context, ch *Channel) iter.Seq2[Upload, error] {
	return func(yield func(Upload, error) bool) {
		if ch.UploadsCount != nil && *ch.UploadsCount == 0 {
			return
		}
		playlistID := ch.PlaylistsData.Uploads
		if playlistID == "" {
			yield(Upload{}, &storage.StorageError{
				Op: "mirror", Entity: "channel", ID: ch.ChannelID,
				Err: fmt.Errorf("%w: no uploads playlist", storage.ErrInvalidInput),
			})
			return
		}

		token := ""
		for {
			page, err := c.provider.PlaylistItems(ctx, playlistID, token)
			if err != nil {
				yield(Upload{}, c.playlistError(ctx, ch, playlistID, err))
				return
			}
			for _, item := range page.Items {
				up, ok := uploadFromItem(item)
				if !ok {
					c.logger.Debug("skipped upload without publish time", zap.String("channel_id", ch.ChannelID))
					continue
				}
				if !yield(up, nil) {
					return
				}
			}
			if page.NextPageToken == "" {
				return
			}
			token = page.NextPageToken
		}
	}
}

func (c *Channels) playlistError(ctx context.Context, ch *Channel, playlistID string, err error) error {
	code := youtube.StatusCode(err)
	if code != 403 && code != 404 {
		return err
	}
	if _, cerr := c.provider.Channel(ctx, ch.ChannelID); cerr != nil {
		return cerr
	}

	state, serr := c.SyncState(ch.ChannelID)
	if serr == nil {
		state.MarkInaccessible(c.batch.Time)
		serr = c.SaveSyncState(state)
	}
	perr := &youtube.PlaylistInaccessibleError{ChannelID: ch.ChannelID, PlaylistID: playlistID, Err: err}
	if serr != nil {
		return errors.Join(perr, serr)
	}
	return perr
}

func uploadFromItem(item *ytapi.PlaylistItem) (Upload, bool) {
	cd := item.ContentDetails
	if cd == nil || cd.VideoId == "" || cd.VideoPublishedAt == "" {
		return Upload{}, false
	}
	t, err := storage.ParseTime(cd.VideoPublishedAt)
	if err != nil {
		return Upload{}, false
	}
	return Upload{VideoID: cd.VideoId, PublishedAt: t}, true
}

// MirrorUploads walks the uploads playlist and stores it as one file per
// publication year. visit, when set, sees every upload and stops the walk
// by returning false. The buffered year is flushed on a year change, at
// the end of the playlist, and on early stop or error; a flush failure is
// joined into the returned error.
func (c *Channels) MirrorUploads(ctx context.Context, ch *Channel, visit func(Upload) bool) (err error) {
	var (
		buf  []Upload
		year int
	)
	flush := func(complete bool) error {
		if len(buf) == 0 {
			return nil
		}
		ferr := c.UpdateUploadsFromData(ch.ChannelID, buf, complete)
		buf = nil
		return ferr
	}
	defer func() {
		if len(buf) > 0 {
			err = errors.Join(err, flush(false))
		}
	}()

	for up, ferr := range c.RetrieveUploads(ctx, ch) {
		if ferr != nil {
			return ferr
		}
		if len(buf) > 0 && up.PublishedAt.Year() != year {
			if err := flush(true); err != nil {
				return err
			}
		}
		year = up.PublishedAt.Year()
		buf = append(buf, up)
		if visit != nil && !visit(up) {
			return nil
		}
	}
	return flush(true)
}

// UpdateUploadsFromData stores buf, a newest-first run of uploads from a
// single year. An incomplete buffer (the walk stopped early) is completed
// with the older stored entries before comparing. When the stored list
// lost or replaced entries it is archived for the week and the reconciled
// union is stored instead.
func (c *Channels) UpdateUploadsFromData(channelID string, buf []Upload, complete bool) error {
	if len(buf) == 0 {
		return &storage.StorageError{Op: "write", Entity: "uploads", ID: channelID,
			Err: fmt.Errorf("%w: empty upload buffer", storage.ErrInvalidInput)}
	}
	year := buf[0].PublishedAt.Year()
	rel := uploadsYearPath(channelID, year)

	var old []Upload
	if err := c.store.LoadJSON(rel, &old); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	next := append([]Upload(nil), buf...)
	if !complete {
		next = append(next, remainder(old, buf)...)
	}

	if len(old) > 0 {
		ops := reconcile.Opcodes(uploadIDs(old), uploadIDs(next))
		if reconcile.NeedsReconcile(ops) {
			if err := c.ArchiveUploads(channelID, old, next); err != nil {
				return err
			}
			next = mergeUploads(old, next)
		}
	}

	if err := c.store.Save(rel, next); err != nil {
		return err
	}
	c.logger.Info("wrote uploads",
		zap.String("channel_id", channelID),
		zap.Int("year", year),
		zap.Int("count", len(next)))
	return nil
}

// remainder returns the stored uploads older than the last buffered one.
func remainder(old, buf []Upload) []Upload {
	last := buf[len(buf)-1]
	for i, u := range old {
		if u.VideoID == last.VideoID {
			return old[i+1:]
		}
	}
	seen := make(map[string]bool, len(buf))
	for _, u := range buf {
		seen[u.VideoID] = true
	}
	var out []Upload
	for _, u := range old {
		if !seen[u.VideoID] && u.PublishedAt.Before(last.PublishedAt) {
			out = append(out, u)
		}
	}
	return out
}

func uploadIDs(ups []Upload) []string {
	ids := make([]string, len(ups))
	for i, u := range ups {
		ids[i] = u.VideoID
	}
	return ids
}

// mergeUploads keeps every id of both lists, newest first. Publish times
// from next win.
func mergeUploads(old, next []Upload) []Upload {
	byID := make(map[string]Upload, len(old)+len(next))
	for _, u := range old {
		byID[u.VideoID] = u
	}
	for _, u := range next {
		byID[u.VideoID] = u
	}
	ids := reconcile.Merge(uploadIDs(old), uploadIDs(next))
	out := make([]Upload, 0, len(ids))
	for _, id := range ids {
		out = append(out, byID[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PublishedAt.After(out[j].PublishedAt)
	})
	return out
}

// ArchiveUploads stores the superseded list old in this week's slot for
// the year of next. A slot written earlier in the week is merged so no id
// is lost.
func (c *Channels) ArchiveUploads(channelID string, old, next []Upload) error {
	if len(next) == 0 {
		return &storage.StorageError{Op: "archive", Entity: "uploads", ID: channelID,
			Err: fmt.Errorf("%w: empty replacement list", storage.ErrInvalidInput)}
	}
	year := next[0].PublishedAt.Year()
	rel := path.Join(channelsArchiveDir, channelID, "uploads",
		filestore.WeekSlot(c.batch.Time), strconv.Itoa(year)+".json")

	var existing []Upload
	switch err := c.store.LoadJSON(rel, &existing); {
	case errors.Is(err, storage.ErrNotFound):
		if err := c.store.Save(rel, old); err != nil {
			return err
		}
	case err != nil:
		return err
	default:
		if err := c.store.Save(rel, mergeUploads(existing, old)); err != nil {
			return err
		}
	}
	c.logger.Info("archived uploads", zap.String("channel_id", channelID), zap.String("path", rel))
	return nil
}

// Uploads returns every stored upload of a channel, newest year first.
func (c *Channels) Uploads(channelID string) ([]Upload, error) {
	names, err := c.store.List(uploadsDir(channelID), "*.json")
	if err != nil {
		return nil, err
	}
	var all []Upload
	for i := len(names) - 1; i >= 0; i-- {
		if _, err := strconv.Atoi(strings.TrimSuffix(names[i], ".json")); err != nil {
			continue
		}
		var ups []Upload
		if err := c.store.LoadJSON(path.Join(uploadsDir(channelID), names[i]), &ups); err != nil {
			return nil, err
		}
		all = append(all, ups...)
	}
	return all, nil
}

// SyncState returns the uploads sync state, or a fresh one stamped with the
// batch time when none is stored. A corrupt file is an error.
func (c *Channels) SyncState(channelID string) (*storage.SyncState, error) {
	var state storage.SyncState
	err := c.store.LoadJSON(syncStatePath(channelID), &state)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.NewSyncState(channelID, c.batch.Time), nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// SaveSyncState writes uploads.json.
func (c *Channels) SaveSyncState(state *storage.SyncState) error {
	return c.store.Save(syncStatePath(state.ChannelID), state)
}

// Mirror refreshes the channel record and mirrors its uploads. Once a
// full walk has completed, later runs in SyncIncremental mode stop at the
// first upload already stored.
func (c *Channels) Mirror(ctx context.Context, channelID string, mode storage.SyncMode) (*storage.SyncState, error) {
	ch, err := c.Get(ctx, channelID)
	if err != nil {
		return nil, err
	}
	state, err := c.SyncState(channelID)
	if err != nil {
		return nil, err
	}
	if mode == storage.SyncIncremental && state.NextMode() != storage.SyncIncremental {
		mode = storage.SyncFull
	}

	known := map[string]bool{}
	if mode == storage.SyncIncremental {
		ups, err := c.Uploads(channelID)
		if err != nil {
			return nil, err
		}
		for _, u := range ups {
			known[u.VideoID] = true
		}
	}

	state.StartSync(mode, ch.PlaylistsData.Uploads, c.batch.Time)
	stopped := false
	err = c.MirrorUploads(ctx, ch, func(u Upload) bool {
		state.IncrementProgress(u.VideoID)
		if known[u.VideoID] {
			stopped = true
			return false
		}
		return true
	})
	if err != nil {
		state.FailSync(err.Error(), c.batch.Time)
		if errors.Is(err, youtube.ErrPlaylistInaccessible) {
			state.MarkInaccessible(c.batch.Time)
		}
		return state, errors.Join(err, c.SaveSyncState(state))
	}

	state.PlaylistAccessible = true
	state.CompleteSync(!stopped, c.batch.Time)
	c.logger.Info("mirrored uploads",
		zap.String("channel_id", channelID),
		zap.String("mode", string(mode)),
		zap.Int("videos_seen", state.VideosSeen))
	return state, c.SaveSyncState(state)
}
