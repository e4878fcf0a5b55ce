// Package catalog holds the archived entities (channels, videos,
// playlists, subscriptions and ratings) and the routines that sync them
// from a youtube.Provider into the file store.
//
// Every service is bound to one batch.Context: all timestamps written
// during a run use the batch time, and weekly or yearly archive slots are
// derived from it.
package catalog

import (
	"encoding/json"
	"path"

	"go.uber.org/zap"

	"ytarchive/internal/batch"
	"ytarchive/internal/filestore"
	"ytarchive/storage"
	"ytarchive/youtube"
)

const (
	channelsActiveDir  = "youtube/channels/active"
	channelsArchiveDir = "youtube/channels/archive"
	videosActiveDir    = "youtube/videos/active"
	videosArchiveDir   = "youtube/videos/archive"
	subsActiveDir      = "youtube/subscriptions/active"
	subsArchiveDir     = "youtube/subscriptions/archive"
)

// Catalog groups the entity services of one batch.
type Catalog struct {
	Channels      *Channels
	Videos        *Videos
	Playlists     *Playlists
	Subscriptions *Subscriptions

	store    *filestore.Store
	provider youtube.Provider
	batch    batch.Context
	logger   *zap.Logger
}

// Option configures a Catalog.
type Option func(*options)

type options struct {
	transcripts youtube.TranscriptSource
}

// WithTranscripts sets the captions source used by Videos.Transcript.
func WithTranscripts(src youtube.TranscriptSource) Option {
	return func(o *options) { o.transcripts = src }
}

// New binds the entity services to store and provider for the batch b.
func New(store *filestore.Store, provider youtube.Provider, b batch.Context, logger *zap.Logger, opts ...Option) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger = logger.With(zap.String("batch_id", b.ID.String()))

	return &Catalog{
		Channels:      NewChannels(store, provider, b, logger),
		Videos:        NewVideos(store, provider, o.transcripts, b, logger),
		Playlists:     NewPlaylists(store, provider, b, logger),
		Subscriptions: NewSubscriptions(store, provider, b, logger),
		store:         store,
		provider:      provider,
		batch:         b,
		logger:        logger,
	}
}

// Ratings returns the rating service for kind, youtube.RatingLike or
// youtube.RatingDislike.
func (c *Catalog) Ratings(kind string) (*Ratings, error) {
	return NewRatings(c.store, c.provider, kind, c.batch, c.logger)
}

// Store returns the underlying file store.
func (c *Catalog) Store() *filestore.Store { return c.store }

// Batch returns the batch the catalog is bound to.
func (c *Catalog) Batch() batch.Context { return c.batch }

// ChannelDir is the active directory of a channel.
func ChannelDir(channelID string) string {
	return path.Join(channelsActiveDir, channelID)
}

// BlockIndexPath is the description block index of a channel.
func BlockIndexPath(channelID string) string {
	return path.Join(ChannelDir(channelID), "text-blocks.db")
}

func shard(id string) string {
	if len(id) < 2 {
		return id
	}
	return id[:2]
}

// VideoDir is the active directory of a video.
func VideoDir(videoID string) string {
	return path.Join(videosActiveDir, shard(videoID), videoID)
}

// VideoArchiveDir holds the v<N>.json versions of a video.
func VideoArchiveDir(videoID string) string {
	return path.Join(videosArchiveDir, shard(videoID), videoID)
}

// ProcessedDir holds the derived artifacts of a video.
func ProcessedDir(videoID string) string {
	return path.Join(VideoDir(videoID), "processed")
}

// object converts an API struct into a generic JSON value. Nil pointers
// and values that do not serialize become nil.
func object(v any) any {
	data, err := json.Marshal(v)
	if err != nil || string(data) == "null" {
		return nil
	}
	rec, err := storage.ParseRecord(data)
	if err != nil {
		return nil
	}
	return map[string]any(rec)
}

// isoTime normalizes an API timestamp to the on-disk layout. An empty
// value becomes nil; values that do not parse are kept as given.
func isoTime(s string) any {
	if s == "" {
		return nil
	}
	t, err := storage.ParseTime(s)
	if err != nil {
		return s
	}
	return storage.FormatTime(t)
}

// optional returns nil for an empty string so absence survives as null.
func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}
