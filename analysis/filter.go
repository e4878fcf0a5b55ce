package analysis

import (
	"context"
	"errors"
	"path"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"ytarchive/catalog"
	"ytarchive/internal/blockindex"
	"ytarchive/internal/filestore"
	"ytarchive/storage"
)

// IndexVersion is the block index schema written by this package.
const IndexVersion = blockindex.Version

// commitEvery is how many videos IndexChannel indexes per transaction.
const commitEvery = 1000

// VideoSource returns stored videos, fetching them when needed.
type VideoSource interface {
	Get(ctx context.Context, id string) (*catalog.Video, error)
}

// UploadSource lists the stored uploads of a channel.
type UploadSource interface {
	Uploads(channelID string) ([]catalog.Upload, error)
}

// DescriptionInfo is written next to a stripped description.
type DescriptionInfo struct {
	DBVersion    int    `json:"db_version"`
	LastUpdated  string `json:"last_updated"`
	UniqueLength *int   `json:"unique_length,omitempty"`
}

// ChannelStats summarizes a channel's block index and processed
// descriptions.
type ChannelStats struct {
	blockindex.Stats
	Processed       int
	AvgUniqueLength float64
}

// BoilerplateRatio is the share of block rows that are repeated, in
// percent.
func (s ChannelStats) BoilerplateRatio() float64 {
	if s.Blocks == 0 {
		return 0
	}
	return float64(s.Repeated) / float64(s.Blocks) * 100
}

// Filter strips channel boilerplate from video descriptions using the
// per-channel block index.
type Filter struct {
	store   *filestore.Store
	videos  VideoSource
	uploads UploadSource
	logger  *zap.Logger
}

// NewFilter creates a Filter.
func NewFilter(store *filestore.Store, videos VideoSource, uploads UploadSource, logger *zap.Logger) *Filter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Filter{
		store:   store,
		videos:  videos,
		uploads: uploads,
		logger:  logger.With(zap.String("component", "descriptions")),
	}
}

func (f *Filter) open(ctx context.Context, channelID string) (*blockindex.Index, error) {
	return blockindex.Open(ctx, f.store.Path(catalog.BlockIndexPath(channelID)))
}

func (f *Filter) hasIndex(channelID string) bool {
	return f.store.Exists(catalog.BlockIndexPath(channelID))
}

func (f *Filter) indexVideo(ctx context.Context, ix *blockindex.Index, v *catalog.Video) (bool, error) {
	return ix.IndexVideo(ctx, v.VideoID, storage.FormatTime(v.LastUpdated), checksums(SplitBlocks(v.Description)))
}

// IndexChannel adds the channel's uploads that are not indexed yet to its
// block index and returns how many it indexed. A video that cannot be
// loaded or indexed is logged and skipped.
func (f *Filter) IndexChannel(ctx context.Context, channelID string) (n int, err error) {
	logger := f.logger.With(zap.String("channel_id", channelID))

	ix, err := f.open(ctx, channelID)
	if err != nil {
		return 0, err
	}
	defer func() { err = errors.Join(err, ix.Close()) }()

	indexed, err := ix.IndexedIDs(ctx)
	if err != nil {
		return 0, err
	}
	uploads, err := f.uploads.Uploads(channelID)
	if err != nil {
		return 0, err
	}
	if len(uploads) == 0 {
		logger.Info("no uploads")
		return 0, nil
	}

	var fresh []string
	for _, u := range uploads {
		if !indexed[u.VideoID] {
			fresh = append(fresh, u.VideoID)
		}
	}
	if len(fresh) == 0 {
		logger.Info("all videos indexed", zap.Int("videos", len(uploads)))
		return 0, nil
	}

	logger.Info("indexing", zap.Int("new", len(fresh)), zap.Int("videos", len(uploads)))
	if err := ix.Begin(ctx); err != nil {
		return 0, err
	}
	for i, id := range fresh {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		v, err := f.videos.Get(ctx, id)
		if err == nil {
			_, err = f.indexVideo(ctx, ix, v)
		}
		if err != nil {
			logger.Warn("index video failed", zap.String("video_id", id), zap.Error(err))
		} else {
			n++
		}
		if (i+1)%commitEvery == 0 {
			logger.Info("progress", zap.Int("done", i+1), zap.Int("new", len(fresh)))
			if err := ix.Commit(); err != nil {
				return n, err
			}
			if err := ix.Begin(ctx); err != nil {
				return n, err
			}
		}
	}
	return n, ix.Commit()
}

// Strip returns the video's description without boilerplate. Only blocks
// with links or hashtags are candidates, and blocks with timestamps are
// always kept. Without a block index the description is returned as is.
// The video itself is indexed first when its entry is stale.
func (f *Filter) Strip(ctx context.Context, v *catalog.Video) (string, error) {
	if !f.hasIndex(v.ChannelID) {
		return v.Description, nil
	}
	ix, err := f.open(ctx, v.ChannelID)
	if err != nil {
		return "", err
	}
	defer ix.Close()

	if _, err := f.indexVideo(ctx, ix, v); err != nil {
		return "", err
	}

	var kept []string
	for _, b := range SplitBlocks(v.Description) {
		if !(HasLinks(b) || IsHashtagBlock(b)) || HasTimestamps(b) {
			kept = append(kept, b)
			continue
		}
		boiler, err := isBoilerplate(ctx, ix, b)
		if err != nil {
			return "", err
		}
		if !boiler {
			kept = append(kept, b)
		}
	}

	var cleaned []string
	for _, b := range kept {
		if IsSeparator(b) && len(cleaned) > 0 && IsSeparator(cleaned[len(cleaned)-1]) {
			continue
		}
		cleaned = append(cleaned, b)
	}
	for len(cleaned) > 0 && IsSeparator(cleaned[0]) {
		cleaned = cleaned[1:]
	}
	for len(cleaned) > 0 && IsSeparator(cleaned[len(cleaned)-1]) {
		cleaned = cleaned[:len(cleaned)-1]
	}
	return strings.Join(cleaned, "\n\n"), nil
}

func isBoilerplate(ctx context.Context, ix *blockindex.Index, block string) (bool, error) {
	n, err := ix.Count(ctx, Checksum(block), Threshold)
	if err != nil {
		return false, err
	}
	return n >= Threshold, nil
}

// UniqueLength is the length in characters of description once separator
// and boilerplate blocks are dropped and newline runs collapsed. Without
// a block index it is the full length.
func (f *Filter) UniqueLength(ctx context.Context, description, channelID string) (int, error) {
	if !f.hasIndex(channelID) {
		return utf8.RuneCountInString(description), nil
	}
	ix, err := f.open(ctx, channelID)
	if err != nil {
		return 0, err
	}
	defer ix.Close()

	var kept []string
	for _, b := range SplitBlocks(description) {
		if IsSeparator(b) {
			continue
		}
		boiler, err := isBoilerplate(ctx, ix, b)
		if err != nil {
			return 0, err
		}
		if !boiler {
			kept = append(kept, b)
		}
	}
	text := newlineRunRE.ReplaceAllString(strings.Join(kept, "\n"), "\n")
	return utf8.RuneCountInString(text), nil
}

// Get strips the description of v and writes description.txt and
// description.json to its processed directory. The channel is indexed
// first unless v is already indexed at its current version.
func (f *Filter) Get(ctx context.Context, v *catalog.Video) (string, error) {
	stale, err := f.stale(ctx, v)
	if err != nil {
		return "", err
	}
	if stale {
		if _, err := f.IndexChannel(ctx, v.ChannelID); err != nil {
			return "", err
		}
	}
	return f.Process(ctx, v)
}

// Process strips the description of v and writes the processed files
// without touching the rest of the channel's index.
func (f *Filter) Process(ctx context.Context, v *catalog.Video) (string, error) {
	description, err := f.Strip(ctx, v)
	if err != nil {
		return "", err
	}
	ulen, err := f.UniqueLength(ctx, v.Description, v.ChannelID)
	if err != nil {
		return "", err
	}

	dir := catalog.ProcessedDir(v.VideoID)
	if err := f.store.SaveText(path.Join(dir, "description.txt"), description+"\n"); err != nil {
		return "", err
	}
	info := DescriptionInfo{
		DBVersion:    IndexVersion,
		LastUpdated:  storage.FormatTime(v.LastUpdated),
		UniqueLength: &ulen,
	}
	if err := f.store.Save(path.Join(dir, "description.json"), info); err != nil {
		return "", err
	}
	return description, nil
}

// stale reports whether v's blocks are missing from the index or older
// than v.
func (f *Filter) stale(ctx context.Context, v *catalog.Video) (bool, error) {
	ix, err := f.open(ctx, v.ChannelID)
	if err != nil {
		return false, err
	}
	defer ix.Close()

	stamp, ok, err := ix.LastUpdated(ctx, v.VideoID)
	if err != nil || !ok {
		return true, err
	}
	t, err := storage.ParseTime(stamp)
	if err != nil {
		return true, nil
	}
	return t.Before(v.LastUpdated), nil
}

// ProcessChannel indexes a channel and writes the processed description
// of every upload. Per-video failures are logged and skipped; it returns
// how many videos were processed.
func (f *Filter) ProcessChannel(ctx context.Context, channelID string) (int, error) {
	logger := f.logger.With(zap.String("channel_id", channelID))
	if _, err := f.IndexChannel(ctx, channelID); err != nil {
		return 0, err
	}
	uploads, err := f.uploads.Uploads(channelID)
	if err != nil {
		return 0, err
	}

	n := 0
	for i, u := range uploads {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		v, err := f.videos.Get(ctx, u.VideoID)
		if err == nil {
			_, err = f.Process(ctx, v)
		}
		if err != nil {
			logger.Warn("filter description failed", zap.String("video_id", u.VideoID), zap.Error(err))
			continue
		}
		n++
		if (i+1)%commitEvery == 0 {
			logger.Info("progress", zap.Int("done", i+1), zap.Int("videos", len(uploads)))
		}
	}
	return n, nil
}

// Stats summarizes the channel's block index and the unique lengths
// recorded for its processed uploads. It returns nil when the channel has
// no index.
func (f *Filter) Stats(ctx context.Context, channelID string) (*ChannelStats, error) {
	if !f.hasIndex(channelID) {
		return nil, nil
	}
	ix, err := f.open(ctx, channelID)
	if err != nil {
		return nil, err
	}
	s, err := ix.Stats(ctx, Threshold)
	if cerr := ix.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}

	uploads, err := f.uploads.Uploads(channelID)
	if err != nil {
		return nil, err
	}
	out := &ChannelStats{Stats: s}
	total := 0
	for _, u := range uploads {
		var info DescriptionInfo
		err := f.store.LoadJSON(path.Join(catalog.ProcessedDir(u.VideoID), "description.json"), &info)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if info.UniqueLength == nil {
			continue
		}
		out.Processed++
		total += *info.UniqueLength
	}
	if out.Processed > 0 {
		out.AvgUniqueLength = float64(total) / float64(out.Processed)
	}
	return out, nil
}
