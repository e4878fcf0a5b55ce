package analysis

import (
	"context"
	"fmt"
	"path"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytarchive/catalog"
	"ytarchive/internal/blockindex"
	"ytarchive/internal/filestore"
	"ytarchive/storage"
)

const filterChannel = "UC_filter"

const (
	subscribeBlock = "Subscribe https://example.com/sub"
	merchBlock     = "Merch https://shop.example"
	chapterBlock   = "0:00 Intro https://x.example\n1:00 End"
)

var indexedAt = time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)

type fakeVideos struct {
	videos map[string]*catalog.Video
	calls  int
}

func (f *fakeVideos) Get(_ context.Context, id string) (*catalog.Video, error) {
	f.calls++
	v, ok := f.videos[id]
	if !ok {
		return nil, &storage.StorageError{Op: "read", Entity: "video", ID: id, Err: storage.ErrNotFound}
	}
	return v, nil
}

type fakeUploads map[string][]catalog.Upload

func (f fakeUploads) Uploads(channelID string) ([]catalog.Upload, error) {
	return f[channelID], nil
}

func filterVideo(id string, blocks ...string) *catalog.Video {
	desc := "Unique text for " + id
	for _, b := range blocks {
		desc += "\n\n" + b
	}
	return &catalog.Video{
		VideoID:     id,
		ChannelID:   filterChannel,
		Description: desc,
		LastUpdated: indexedAt,
	}
}

type filterEnv struct {
	store   *filestore.Store
	videos  *fakeVideos
	uploads fakeUploads
	filter  *Filter
}

// newFilterEnv sets up three uploads: the subscribe and chapter blocks
// appear in all of them, the merch block in two.
func newFilterEnv(t *testing.T) *filterEnv {
	t.Helper()
	env := &filterEnv{
		store: filestore.New(t.TempDir()),
		videos: &fakeVideos{videos: map[string]*catalog.Video{
			"v1": filterVideo("v1", subscribeBlock, merchBlock, chapterBlock),
			"v2": filterVideo("v2", subscribeBlock, merchBlock, chapterBlock),
			"v3": filterVideo("v3", subscribeBlock, chapterBlock),
		}},
		uploads: fakeUploads{filterChannel: {
			{VideoID: "v3", PublishedAt: indexedAt},
			{VideoID: "v2", PublishedAt: indexedAt.Add(-time.Hour)},
			{VideoID: "v1", PublishedAt: indexedAt.Add(-2 * time.Hour)},
		}},
	}
	env.filter = NewFilter(env.store, env.videos, env.uploads, nil)
	return env
}

func TestFilterIndexChannel(t *testing.T) {
	ctx := context.Background()
	env := newFilterEnv(t)
	env.uploads[filterChannel] = append(env.uploads[filterChannel], catalog.Upload{VideoID: "v_missing"})

	n, err := env.filter.IndexChannel(ctx, filterChannel)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.True(t, env.store.Exists(catalog.BlockIndexPath(filterChannel)))

	calls := env.videos.calls
	n, err = env.filter.IndexChannel(ctx, filterChannel)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, calls+1, env.videos.calls, "only the missing video is retried")
}

func TestFilterIndexChannelNoUploads(t *testing.T) {
	env := newFilterEnv(t)
	n, err := env.filter.IndexChannel(context.Background(), "UC_empty")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFilterIndexChannelCanceled(t *testing.T) {
	env := newFilterEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.filter.IndexChannel(ctx, filterChannel)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFilterStrip(t *testing.T) {
	ctx := context.Background()
	env := newFilterEnv(t)

	v1 := env.videos.videos["v1"]
	got, err := env.filter.Strip(ctx, v1)
	require.NoError(t, err)
	assert.Equal(t, v1.Description, got, "no index yet")

	_, err = env.filter.IndexChannel(ctx, filterChannel)
	require.NoError(t, err)

	got, err = env.filter.Strip(ctx, v1)
	require.NoError(t, err)
	assert.Equal(t, "Unique text for v1\n\n"+merchBlock+"\n\n"+chapterBlock, got)
}

func TestFilterStripKeepsPlainProse(t *testing.T) {
	ctx := context.Background()
	env := newFilterEnv(t)
	const prose = "Thanks for watching"
	for _, id := range []string{"v1", "v2", "v3"} {
		v := env.videos.videos[id]
		v.Description += "\n\n" + prose
	}
	_, err := env.filter.IndexChannel(ctx, filterChannel)
	require.NoError(t, err)

	got, err := env.filter.Strip(ctx, env.videos.videos["v3"])
	require.NoError(t, err)
	assert.Equal(t, "Unique text for v3\n\n"+chapterBlock+"\n\n"+prose, got)
}

func TestFilterStripSeparators(t *testing.T) {
	ctx := context.Background()
	env := newFilterEnv(t)
	for _, id := range []string{"v1", "v2", "v3"} {
		v := env.videos.videos[id]
		v.Description = "-----\n\nBody " + id + "\n\n=====\n\n" + subscribeBlock + "\n\n*****\n\nEnd " + id + "\n\n~~~~~"
	}
	_, err := env.filter.IndexChannel(ctx, filterChannel)
	require.NoError(t, err)

	got, err := env.filter.Strip(ctx, env.videos.videos["v2"])
	require.NoError(t, err)
	assert.Equal(t, "Body v2\n\n=====\n\nEnd v2", got)
}

func TestFilterStripIndexesNewVideo(t *testing.T) {
	ctx := context.Background()
	env := newFilterEnv(t)
	delete(env.videos.videos, "v3")
	_, err := env.filter.IndexChannel(ctx, filterChannel)
	require.NoError(t, err)

	v4 := filterVideo("v4", subscribeBlock)
	got, err := env.filter.Strip(ctx, v4)
	require.NoError(t, err)
	assert.Equal(t, "Unique text for v4", got, "v4 itself makes the third occurrence")

	ix, err := blockindex.Open(ctx, env.store.Path(catalog.BlockIndexPath(filterChannel)))
	require.NoError(t, err)
	defer ix.Close()
	_, ok, err := ix.LastUpdated(ctx, "v4")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFilterUniqueLength(t *testing.T) {
	ctx := context.Background()
	env := newFilterEnv(t)
	v1 := env.videos.videos["v1"]

	n, err := env.filter.UniqueLength(ctx, v1.Description, filterChannel)
	require.NoError(t, err)
	assert.Equal(t, utf8.RuneCountInString(v1.Description), n)

	_, err = env.filter.IndexChannel(ctx, filterChannel)
	require.NoError(t, err)

	n, err = env.filter.UniqueLength(ctx, v1.Description, filterChannel)
	require.NoError(t, err)
	assert.Equal(t, utf8.RuneCountInString("Unique text for v1\n"+merchBlock), n)
}

func TestFilterGet(t *testing.T) {
	ctx := context.Background()
	env := newFilterEnv(t)
	v1 := env.videos.videos["v1"]

	got, err := env.filter.Get(ctx, v1)
	require.NoError(t, err)
	want := "Unique text for v1\n\n" + merchBlock + "\n\n" + chapterBlock
	assert.Equal(t, want, got)

	dir := catalog.ProcessedDir("v1")
	text, err := env.store.ReadFile(path.Join(dir, "description.txt"))
	require.NoError(t, err)
	assert.Equal(t, want+"\n", string(text))

	var info DescriptionInfo
	require.NoError(t, env.store.LoadJSON(path.Join(dir, "description.json"), &info))
	assert.Equal(t, IndexVersion, info.DBVersion)
	assert.Equal(t, storage.FormatTime(indexedAt), info.LastUpdated)
	require.NotNil(t, info.UniqueLength)
	assert.Equal(t, utf8.RuneCountInString("Unique text for v1\n"+merchBlock), *info.UniqueLength)
}

func TestFilterGetReindexesUpdatedVideo(t *testing.T) {
	ctx := context.Background()
	env := newFilterEnv(t)
	_, err := env.filter.Get(ctx, env.videos.videos["v1"])
	require.NoError(t, err)

	updated := *env.videos.videos["v1"]
	updated.Description = "Rewritten\n\n" + subscribeBlock
	updated.LastUpdated = indexedAt.Add(24 * time.Hour)

	stale, err := env.filter.stale(ctx, &updated)
	require.NoError(t, err)
	assert.True(t, stale)

	got, err := env.filter.Get(ctx, &updated)
	require.NoError(t, err)
	assert.Equal(t, "Rewritten", got)

	stale, err = env.filter.stale(ctx, &updated)
	require.NoError(t, err)
	assert.False(t, stale)
}

func TestFilterProcessChannelAndStats(t *testing.T) {
	ctx := context.Background()
	env := newFilterEnv(t)

	stats, err := env.filter.Stats(ctx, filterChannel)
	require.NoError(t, err)
	assert.Nil(t, stats)

	env.uploads[filterChannel] = append(env.uploads[filterChannel], catalog.Upload{VideoID: "v_missing"})
	n, err := env.filter.ProcessChannel(ctx, filterChannel)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	stats, err = env.filter.Stats(ctx, filterChannel)
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, blockindex.Stats{Videos: 3, Blocks: 11, Unique: 6, Repeated: 6}, stats.Stats)
	assert.Equal(t, 3, stats.Processed)
	assert.InDelta(t, 100*6.0/11.0, stats.BoilerplateRatio(), 1e-9)

	var total int
	for _, id := range []string{"v1", "v2", "v3"} {
		v := env.videos.videos[id]
		ulen, err := env.filter.UniqueLength(ctx, v.Description, filterChannel)
		require.NoError(t, err)
		total += ulen
	}
	assert.InDelta(t, float64(total)/3, stats.AvgUniqueLength, 1e-9)
}

func TestChannelStatsEmpty(t *testing.T) {
	assert.Zero(t, ChannelStats{}.BoilerplateRatio())
	assert.Equal(t, "50.0", fmt.Sprintf("%.1f", ChannelStats{Stats: blockindex.Stats{Blocks: 4, Repeated: 2}}.BoilerplateRatio()))
}
