package catalog

import (
	"context"
	"encoding/json"
	"path"
	"strconv"
	"time"

	"go.uber.org/zap"
	ytapi "google.golang.org/api/youtube/v3"

	"ytarchive/internal/batch"
	"ytarchive/internal/filestore"
	"ytarchive/storage"
	"ytarchive/youtube"
)

// ChannelSchemaVersion is the current layout of channel.json.
const ChannelSchemaVersion = 2

// Channel is the typed view of an active channel record.
type Channel struct {
	ChannelID         string         `json:"channel_id"`
	Title             string         `json:"title"`
	CustomURL         *string        `json:"custom_url"`
	BannerExternalURL *string        `json:"banner_external_url"`
	Description       string         `json:"description"`
	PublishedAt       time.Time      `json:"published_at"`
	PlaylistsData     RelatedLists   `json:"playlists_data"`
	Thumbnails        map[string]any `json:"thumbnails"`
	ViewCount         *storage.Count `json:"view_count"`
	SubscriberCount   *storage.Count `json:"subscriber_count"`
	UploadsCount      *storage.Count `json:"uploads_count"`
	Status            map[string]any `json:"status"`
	TopicDetails      map[string]any `json:"topic_details"`
	SchemaVersion     int            `json:"schema_version"`
	FirstSeen         time.Time      `json:"first_seen"`
	LastUpdated       time.Time      `json:"last_updated"`
}

// RelatedLists are the system playlists of a channel.
type RelatedLists struct {
	Uploads string `json:"uploads,omitempty"`
	Likes   string `json:"likes,omitempty"`
}

// ChannelKind describes channel.json: weekly archives, volatile
// statistics excluded from change detection, schema version 2.
func ChannelKind() filestore.Kind {
	return filestore.Kind{
		Name:     "channel",
		IDField:  "channel_id",
		Required: []string{"channel_id", "title", "first_seen"},
		Diff: filestore.DiffOptions{
			Exclude: []string{"view_count", "subscriber_count"},
		},
		Migrations: &filestore.MigrationChain{
			Target: ChannelSchemaVersion,
			Steps: []filestore.Migration{
				{From: 0, Name: "channel-v2", Apply: migrateChannelV1},
				{From: 1, Name: "channel-v2", Apply: migrateChannelV1},
			},
		},
		ActivePath: func(id string) string {
			return path.Join(ChannelDir(id), "channel.json")
		},
		Archive: filestore.Weekly(func(id, slot string) string {
			return path.Join(channelsArchiveDir, slot, id, "channel.json")
		}),
	}
}

// migrateChannelV1 drops the fields the uploads mirror used to keep in the
// channel record and renames video_count to uploads_count.
func migrateChannelV1(rec storage.Record) (storage.Record, error) {
	out := rec.Clone()
	delete(out, "last_uploads_mirror")
	delete(out, "statistics")
	out["uploads_count"] = out["video_count"]
	delete(out, "video_count")
	out["schema_version"] = json.Number(strconv.Itoa(ChannelSchemaVersion))
	return out, nil
}

// Channels syncs channel records and their upload lists.
type Channels struct {
	store    *filestore.Store
	provider youtube.Provider
	engine   *filestore.Engine
	batch    batch.Context
	logger   *zap.Logger
}

// NewChannels creates the channel service for batch b.
func NewChannels(store *filestore.Store, provider youtube.Provider, b batch.Context, logger *zap.Logger) *Channels {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channels{
		store:    store,
		provider: provider,
		engine:   filestore.NewEngine(store, ChannelKind(), b.Time, logger),
		batch:    b,
		logger:   logger.With(zap.String("component", "channels")),
	}
}

// Get returns the stored channel, fetching it when absent or stored in an
// older schema.
func (c *Channels) Get(ctx context.Context, id string) (*Channel, error) {
	rec, err := c.engine.Get(ctx, id, c.Retrieve)
	if err != nil {
		return nil, err
	}
	return decodeChannel(rec)
}

// Update fetches the channel and stores it, archiving the previous
// record when it changed.
func (c *Channels) Update(ctx context.Context, id string) (*Channel, error) {
	fresh, err := c.Retrieve(ctx, id)
	if err != nil {
		return nil, err
	}
	rec, err := c.engine.Update(id, fresh)
	if err != nil {
		return nil, err
	}
	c.logger.Info("wrote channel", zap.String("channel_id", id))
	return decodeChannel(rec)
}

// Retrieve fetches a channel and flattens it into a record.
func (c *Channels) Retrieve(ctx context.Context, id string) (storage.Record, error) {
	ch, err := c.provider.Channel(ctx, id)
	if err != nil {
		return nil, err
	}
	return channelRecord(ch), nil
}

// Archive files rec in this week's slot. An existing slot is kept.
func (c *Channels) Archive(rec storage.Record) error {
	return c.engine.Archive(rec)
}

// Load returns the stored channel without contacting the provider.
func (c *Channels) Load(id string) (*Channel, error) {
	rec, err := c.engine.Load(id)
	if err != nil {
		return nil, err
	}
	return decodeChannel(rec)
}

func decodeChannel(rec storage.Record) (*Channel, error) {
	var ch Channel
	if err := rec.Decode(&ch, false); err != nil {
		id, _ := rec.String("channel_id")
		return nil, &storage.StorageError{Op: "decode", Entity: "channel", ID: id, Err: err}
	}
	return &ch, nil
}

func channelRecord(ch *ytapi.Channel) storage.Record {
	rec := storage.Record{
		"channel_id":     ch.Id,
		"schema_version": json.Number(strconv.Itoa(ChannelSchemaVersion)),
	}
	if s := ch.Snippet; s != nil {
		rec["title"] = s.Title
		rec["custom_url"] = optional(s.CustomUrl)
		rec["description"] = s.Description
		rec["published_at"] = isoTime(s.PublishedAt)
		rec["thumbnails"] = object(s.Thumbnails)
	}
	var banner string
	if b := ch.BrandingSettings; b != nil && b.Image != nil {
		banner = b.Image.BannerExternalUrl
	}
	rec["banner_external_url"] = optional(banner)

	lists := map[string]any{}
	if cd := ch.ContentDetails; cd != nil && cd.RelatedPlaylists != nil {
		if cd.RelatedPlaylists.Uploads != "" {
			lists["uploads"] = cd.RelatedPlaylists.Uploads
		}
		if cd.RelatedPlaylists.Likes != "" {
			lists["likes"] = cd.RelatedPlaylists.Likes
		}
	}
	rec["playlists_data"] = lists

	if st := ch.Statistics; st != nil {
		rec["view_count"] = strconv.FormatUint(st.ViewCount, 10)
		rec["subscriber_count"] = strconv.FormatUint(st.SubscriberCount, 10)
		rec["uploads_count"] = strconv.FormatUint(st.VideoCount, 10)
	} else {
		rec["uploads_count"] = nil
	}
	rec["status"] = object(ch.Status)
	rec["topic_details"] = object(ch.TopicDetails)
	return rec
}
