package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"time"

	"go.uber.org/zap"
	ytapi "google.golang.org/api/youtube/v3"

	"ytarchive/internal/batch"
	"ytarchive/internal/filestore"
	"ytarchive/storage"
	"ytarchive/youtube"
)

// VideoSchemaVersion is the current layout of video.json.
const VideoSchemaVersion = 1

// Video is the typed view of an active video record.
type Video struct {
	VideoID                 string         `json:"video_id"`
	Title                   string         `json:"title"`
	ChannelID               string         `json:"channel_id"`
	PublishedAt             time.Time      `json:"published_at"`
	FirstSeen               time.Time      `json:"first_seen"`
	LastUpdated             time.Time      `json:"last_updated"`
	Description             string         `json:"description"`
	ThumbnailsData          map[string]any `json:"thumbnails_data"`
	Tags                    []string       `json:"tags"`
	CategoryID              json.Number    `json:"category_id,omitempty"`
	LiveStatus              string         `json:"live_status"`
	DurationData            string         `json:"duration_data"`
	SpatialDimensionType    string         `json:"spatial_dimension_type"`
	ResolutionTier          string         `json:"resolution_tier"`
	Captioned               Flag           `json:"captioned"`
	LicensedContent         bool           `json:"licensed_content"`
	ContentRatingData       map[string]any `json:"content_rating_data"`
	ViewingProjection       string         `json:"viewing_projection"`
	PrivacyStatus           string         `json:"privacy_status"`
	License                 string         `json:"license"`
	Embeddable              bool           `json:"embeddable"`
	PublicStatsViewable     bool           `json:"public_stats_viewable"`
	MadeForKids             bool           `json:"made_for_kids"`
	ViewCount               *storage.Count `json:"view_count"`
	LikeCount               *storage.Count `json:"like_count"`
	CommentCount            *storage.Count `json:"comment_count"`
	TopicDetails            map[string]any `json:"topic_details"`
	HasPaidProductPlacement bool           `json:"has_paid_product_placement"`
	LiveStart               *time.Time     `json:"live_start"`
	LiveChatID              *string        `json:"live_chat_id"`
	RecordingDate           *time.Time     `json:"recording_date"`
	SchemaVersion           int            `json:"schema_version"`
}

// Flag is a boolean the Data API reports as the string "true" or "false".
type Flag bool

// UnmarshalJSON accepts a JSON boolean or its string form.
func (f *Flag) UnmarshalJSON(data []byte) error {
	s := string(bytes.Trim(data, `"`))
	switch s {
	case "true":
		*f = true
	case "false", "", "null":
		*f = false
	default:
		return fmt.Errorf("flag %q: not a boolean", s)
	}
	return nil
}

var isoDuration = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// Duration parses the ISO 8601 duration_data. Unparseable values are zero.
func (v *Video) Duration() time.Duration {
	m := isoDuration.FindStringSubmatch(v.DurationData)
	if m == nil {
		return 0
	}
	unit := []time.Duration{24 * time.Hour, time.Hour, time.Minute, time.Second}
	var d time.Duration
	for i, s := range m[1:] {
		if s == "" {
			continue
		}
		n, _ := strconv.Atoi(s)
		d += time.Duration(n) * unit[i]
	}
	return d
}

// DurationFormatted renders the duration as m:ss or h:mm:ss.
func (v *Video) DurationFormatted() string {
	total := int(v.Duration() / time.Second)
	h, m, s := total/3600, total/60%60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// VideoKind describes video.json: versioned archives, engagement counters
// excluded from change detection.
func VideoKind() filestore.Kind {
	return filestore.Kind{
		Name:     "video",
		IDField:  "video_id",
		Required: []string{"video_id", "channel_id", "title", "published_at", "first_seen"},
		Diff: filestore.DiffOptions{
			Exclude: []string{"view_count", "like_count", "comment_count"},
		},
		Migrations: &filestore.MigrationChain{
			Target: VideoSchemaVersion,
			Steps: []filestore.Migration{
				{From: 0, Name: "video-v1", Apply: filestore.SetVersion(VideoSchemaVersion)},
			},
		},
		ActivePath: func(id string) string { return path.Join(VideoDir(id), "video.json") },
		Archive:    filestore.Versioned(VideoArchiveDir),
	}
}

// Videos syncs video records and caches their transcripts.
type Videos struct {
	store       *filestore.Store
	provider    youtube.Provider
	transcripts youtube.TranscriptSource
	engine      *filestore.Engine
	batch       batch.Context
	logger      *zap.Logger
}

// NewVideos creates the video service. transcripts may be nil when
// transcripts are only read from the cache.
func NewVideos(store *filestore.Store, provider youtube.Provider, transcripts youtube.TranscriptSource, b batch.Context, logger *zap.Logger) *Videos {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Videos{
		store:       store,
		provider:    provider,
		transcripts: transcripts,
		engine:      filestore.NewEngine(store, VideoKind(), b.Time, logger),
		batch:       b,
		logger:      logger.With(zap.String("component", "videos")),
	}
}

// Get returns the stored video, fetching it when absent or outdated.
func (vs *Videos) Get(ctx context.Context, id string) (*Video, error) {
	rec, err := vs.engine.Get(ctx, id, vs.Retrieve)
	if err != nil {
		return nil, err
	}
	return decodeVideo(rec)
}

// Load returns the stored video without contacting the provider.
func (vs *Videos) Load(id string) (*Video, error) {
	rec, err := vs.engine.Load(id)
	if err != nil {
		return nil, err
	}
	return decodeVideo(rec)
}

// Update fetches the video and stores it. A changed record is archived
// as the next v<N>.json.
func (vs *Videos) Update(ctx context.Context, id string) (*Video, error) {
	fresh, err := vs.Retrieve(ctx, id)
	if err != nil {
		return nil, err
	}
	rec, err := vs.engine.Update(id, fresh)
	if err != nil {
		return nil, err
	}
	vs.logger.Info("wrote video", zap.String("video_id", id))
	return decodeVideo(rec)
}

// Retrieve fetches a video and flattens it into a record.
func (vs *Videos) Retrieve(ctx context.Context, id string) (storage.Record, error) {
	v, err := vs.provider.Video(ctx, id)
	if err != nil {
		return nil, err
	}
	rec := videoRecord(v)
	rec["video_id"] = id
	return rec, nil
}

// LatestVersion returns the highest archived version of a video, 0 when
// none exists.
func (vs *Videos) LatestVersion(id string) (int, error) {
	return vs.store.LatestVersion(VideoArchiveDir(id))
}

// Transcript returns the cached transcript of a video, downloading it on
// first use. A video without captions is cached as null and yields nil.
func (vs *Videos) Transcript(ctx context.Context, id string) (*youtube.Transcript, error) {
	rel := path.Join(VideoDir(id), "transcript.json")

	var cached *youtube.Transcript
	err := vs.store.LoadJSON(rel, &cached)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	if vs.transcripts == nil {
		return nil, fmt.Errorf("transcript %s: no captions source configured", id)
	}
	t, err := youtube.DownloadTranscript(ctx, vs.transcripts, id, vs.batch.Time)
	if err != nil {
		return nil, fmt.Errorf("transcript %s: %w", id, err)
	}
	if err := vs.store.Save(rel, t); err != nil {
		return nil, err
	}
	if t == nil {
		vs.logger.Info("no transcript", zap.String("video_id", id))
	} else {
		vs.logger.Info("wrote transcript", zap.String("video_id", id), zap.Int("segments", len(t.Segments)))
	}
	return t, nil
}

func decodeVideo(rec storage.Record) (*Video, error) {
	var v Video
	if err := rec.Decode(&v, false); err != nil {
		id, _ := rec.String("video_id")
		return nil, &storage.StorageError{Op: "decode", Entity: "video", ID: id, Err: err}
	}
	return &v, nil
}

func videoRecord(v *ytapi.Video) storage.Record {
	rec := storage.Record{
		"video_id":       v.Id,
		"schema_version": json.Number(strconv.Itoa(VideoSchemaVersion)),
	}

	if s := v.Snippet; s != nil {
		rec["title"] = s.Title
		rec["channel_id"] = s.ChannelId
		rec["published_at"] = isoTime(s.PublishedAt)
		rec["description"] = s.Description
		rec["thumbnails_data"] = object(s.Thumbnails)
		rec["tags"] = s.Tags
		if s.CategoryId != "" {
			rec["category_id"] = s.CategoryId
		}
		rec["live_status"] = s.LiveBroadcastContent
	}

	var recording, liveStart, liveChat string
	if rd := v.RecordingDetails; rd != nil {
		recording = rd.RecordingDate
	}
	if ls := v.LiveStreamingDetails; ls != nil {
		liveStart = ls.ScheduledStartTime
		liveChat = ls.ActiveLiveChatId
	}
	rec["recording_date"] = isoTime(recording)
	rec["live_start"] = isoTime(liveStart)
	rec["live_chat_id"] = optional(liveChat)

	if cd := v.ContentDetails; cd != nil {
		rec["duration_data"] = cd.Duration
		rec["spatial_dimension_type"] = cd.Dimension
		rec["resolution_tier"] = cd.Definition
		rec["captioned"] = cd.Caption
		rec["licensed_content"] = cd.LicensedContent
		rec["content_rating_data"] = object(cd.ContentRating)
		rec["viewing_projection"] = cd.Projection
	}

	if st := v.Status; st != nil {
		rec["privacy_status"] = st.PrivacyStatus
		rec["license"] = st.License
		rec["embeddable"] = st.Embeddable
		rec["public_stats_viewable"] = st.PublicStatsViewable
		rec["made_for_kids"] = st.MadeForKids
	}

	if st := v.Statistics; st != nil {
		rec["view_count"] = strconv.FormatUint(st.ViewCount, 10)
		rec["like_count"] = strconv.FormatUint(st.LikeCount, 10)
		rec["comment_count"] = strconv.FormatUint(st.CommentCount, 10)
	}

	rec["topic_details"] = object(v.TopicDetails)

	var paid bool
	if pp := v.PaidProductPlacementDetails; pp != nil {
		paid = pp.HasPaidProductPlacement
	}
	rec["has_paid_product_placement"] = paid
	return rec
}
