package catalog

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"
	ytapi "google.golang.org/api/youtube/v3"

	"ytarchive/internal/batch"
	"ytarchive/internal/filestore"
	"ytarchive/internal/reconcile"
	"ytarchive/storage"
	"ytarchive/youtube"
)

// Playlist is the typed view of a stored playlist.
type Playlist struct {
	PlaylistID       string         `json:"playlist_id"`
	ChannelID        string         `json:"channel_id"`
	Title            string         `json:"title"`
	Etag             string         `json:"etag"`
	PublishedAt      time.Time      `json:"published_at"`
	ItemCount        int64          `json:"item_count"`
	PrivacyStatus    string         `json:"privacy_status"`
	Description      string         `json:"description"`
	Thumbnails       map[string]any `json:"thumbnails"`
	ItemsEtag        string         `json:"items_etag"`
	Items            []string       `json:"items"`
	FirstSeen        time.Time      `json:"first_seen"`
	LastUpdated      time.Time      `json:"last_updated"`
	ItemsLastUpdated time.Time      `json:"items_last_updated"`
}

func playlistsDir(channelID string) string {
	return path.Join(ChannelDir(channelID), "playlists")
}

// PlaylistKind describes the playlists of one channel. Item order is
// significant; archives are weekly and merge item lists.
func PlaylistKind(channelID string) filestore.Kind {
	return filestore.Kind{
		Name:     "playlist",
		IDField:  "playlist_id",
		Required: []string{"playlist_id", "channel_id", "first_seen"},
		Diff:     filestore.DiffOptions{OrderedLists: true},
		Stamps:   []string{"items_last_updated"},
		ActivePath: func(id string) string {
			return path.Join(playlistsDir(channelID), id+".json")
		},
		Archive: filestore.Weekly(func(id, slot string) string {
			return path.Join(channelsArchiveDir, channelID, "playlists", slot, id+".json")
		}),
		MergeArchive: mergePlaylistArchive,
	}
}

// mergePlaylistArchive folds the items of a second archival into the
// archive already written this week.
func mergePlaylistArchive(existing, rec storage.Record) (storage.Record, error) {
	oldItems, err := stringList(existing["items"])
	if err != nil {
		return nil, fmt.Errorf("archived items: %w", err)
	}
	newItems, err := stringList(rec["items"])
	if err != nil {
		return nil, fmt.Errorf("items: %w", err)
	}
	out := existing.Clone()
	out["items"] = reconcile.Merge(oldItems, newItems)
	delete(out, "items_etag")
	return out, nil
}

func stringList(v any) ([]string, error) {
	if v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected a list, got %T", storage.ErrStorageCorrupt, v)
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%w: expected a string, got %T", storage.ErrStorageCorrupt, item)
		}
		out = append(out, s)
	}
	return out, nil
}

// Playlists syncs the playlists of channels.
type Playlists struct {
	store    *filestore.Store
	provider youtube.Provider
	batch    batch.Context
	logger   *zap.Logger
}

// NewPlaylists creates the playlist service for batch b.
func NewPlaylists(store *filestore.Store, provider youtube.Provider, b batch.Context, logger *zap.Logger) *Playlists {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Playlists{
		store:    store,
		provider: provider,
		batch:    b,
		logger:   logger.With(zap.String("component", "playlists")),
	}
}

func (p *Playlists) engine(channelID string) *filestore.Engine {
	return filestore.NewEngine(p.store, PlaylistKind(channelID), p.batch.Time, p.logger)
}

// ForChannel returns the playlists of a channel. Once a channel has a
// playlists directory the stored files are used; otherwise the channel is
// synced first.
func (p *Playlists) ForChannel(ctx context.Context, channelID string) ([]*Playlist, error) {
	if p.store.IsDir(playlistsDir(channelID)) {
		return p.Local(channelID)
	}
	return p.SyncChannel(ctx, channelID)
}

// Local reads the stored playlists of a channel, sorted by id.
func (p *Playlists) Local(channelID string) ([]*Playlist, error) {
	names, err := p.store.List(playlistsDir(channelID), "*.json")
	if err != nil {
		return nil, err
	}
	out := make([]*Playlist, 0, len(names))
	for _, name := range names {
		rec, err := p.store.Load(path.Join(playlistsDir(channelID), name))
		if err != nil {
			return nil, err
		}
		pl, err := decodePlaylist(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, pl)
	}
	return out, nil
}

// SyncChannel lists the channel's playlists, stores each one and archives
// the stored playlists the channel no longer lists.
func (p *Playlists) SyncChannel(ctx context.Context, channelID string) ([]*Playlist, error) {
	var (
		out   []*Playlist
		seen  = map[string]bool{}
		token string
	)
	for {
		page, err := p.provider.Playlists(ctx, channelID, token)
		if err != nil {
			return out, err
		}
		for _, item := range page.Items {
			pl, err := p.UpdateFromData(ctx, item)
			if err != nil {
				return out, err
			}
			seen[item.Id] = true
			out = append(out, pl)
		}
		if page.NextPageToken == "" {
			break
		}
		token = page.NextPageToken
	}

	names, err := p.store.List(playlistsDir(channelID), "*.json")
	if err != nil {
		return out, err
	}
	for _, name := range names {
		id := strings.TrimSuffix(name, ".json")
		if seen[id] {
			continue
		}
		if err := p.ArchiveRemoved(channelID, id); err != nil {
			return out, err
		}
	}
	return out, nil
}

// UpdateFromData stores one listed playlist. Its items are re-fetched
// unless both the playlist etag and the items etag are unchanged, in
// which case the stored record is returned untouched.
func (p *Playlists) UpdateFromData(ctx context.Context, item *ytapi.Playlist) (*Playlist, error) {
	channelID := ""
	if item.Snippet != nil {
		channelID = item.Snippet.ChannelId
	}
	if item.Id == "" || channelID == "" {
		return nil, &storage.StorageError{Op: "write", Entity: "playlist", ID: item.Id, Err: storage.ErrMissingIdentity}
	}
	eng := p.engine(channelID)
	next := playlistRecord(item)

	var old storage.Record
	if eng.Exists(item.Id) {
		var err error
		if old, err = eng.Load(item.Id); err != nil {
			return nil, err
		}
	}

	oldItemsEtag, _ := old.String("items_etag")
	itemsEtag, ids, err := p.RetrieveItems(ctx, item.Id, oldItemsEtag)
	if err != nil {
		return nil, err
	}

	if old != nil {
		oldEtag, _ := old.String("etag")
		if oldEtag == item.Etag && oldItemsEtag == itemsEtag {
			p.logger.Debug("playlist unchanged", zap.String("playlist_id", item.Id))
			return decodePlaylist(old)
		}
	}

	next["items_etag"] = itemsEtag
	if ids != nil {
		next["items"] = ids
	} else {
		next["items"] = old["items"]
	}

	rec, err := eng.Update(item.Id, next)
	if err != nil {
		return nil, err
	}
	p.logger.Info("wrote playlist", zap.String("playlist_id", item.Id), zap.String("channel_id", channelID))
	return decodePlaylist(rec)
}

// RetrieveItems lists the video ids of a playlist. When the first page
// carries etag the ids are not fetched and nil is returned with the etag.
func (p *Playlists) RetrieveItems(ctx context.Context, playlistID, etag string) (string, []string, error) {
	first, err := p.provider.PlaylistItems(ctx, playlistID, "")
	if err != nil {
		return "", nil, err
	}
	if etag != "" && etag == first.Etag {
		return first.Etag, nil, nil
	}

	ids := []string{}
	page := first
	for {
		for _, it := range page.Items {
			if it.ContentDetails != nil {
				ids = append(ids, it.ContentDetails.VideoId)
			}
		}
		if page.NextPageToken == "" {
			return first.Etag, ids, nil
		}
		if page, err = p.provider.PlaylistItems(ctx, playlistID, page.NextPageToken); err != nil {
			return "", nil, err
		}
	}
}

// ArchiveRemoved archives a stored playlist with removed_at and deletes
// its active file.
func (p *Playlists) ArchiveRemoved(channelID, playlistID string) error {
	if err := p.engine(channelID).ArchiveRemoved(playlistID, "removed_at"); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}
	p.logger.Info("archived playlist", zap.String("playlist_id", playlistID))
	return nil
}

func decodePlaylist(rec storage.Record) (*Playlist, error) {
	var pl Playlist
	if err := rec.Decode(&pl, false); err != nil {
		id, _ := rec.String("playlist_id")
		return nil, &storage.StorageError{Op: "decode", Entity: "playlist", ID: id, Err: err}
	}
	return &pl, nil
}

func playlistRecord(item *ytapi.Playlist) storage.Record {
	rec := storage.Record{
		"playlist_id": item.Id,
		"etag":        item.Etag,
	}
	if s := item.Snippet; s != nil {
		rec["channel_id"] = s.ChannelId
		rec["title"] = s.Title
		rec["published_at"] = isoTime(s.PublishedAt)
		rec["description"] = s.Description
		rec["thumbnails"] = object(s.Thumbnails)
	}
	if cd := item.ContentDetails; cd != nil {
		rec["item_count"] = cd.ItemCount
	}
	if st := item.Status; st != nil {
		rec["privacy_status"] = st.PrivacyStatus
	}
	return rec
}
