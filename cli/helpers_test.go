package cli

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	ytapi "google.golang.org/api/youtube/v3"

	"ytarchive/catalog"
	"ytarchive/config"
	"ytarchive/internal/batch"
	"ytarchive/internal/filestore"
	"ytarchive/internal/llm"
	"ytarchive/internal/metrics"
	"ytarchive/youtube"
)

var testBatchTime = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

// fakeProvider serves single-page listings from maps.
type fakeProvider struct {
	channels  map[string]*ytapi.Channel
	videos    map[string]*ytapi.Video
	playlists map[string][]*ytapi.Playlist
	items     map[string][]*ytapi.PlaylistItem
	itemsErr  map[string]error
	subs      []*ytapi.Subscription
	rated     map[string][]*ytapi.Video
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		channels:  map[string]*ytapi.Channel{},
		videos:    map[string]*ytapi.Video{},
		playlists: map[string][]*ytapi.Playlist{},
		items:     map[string][]*ytapi.PlaylistItem{},
		itemsErr:  map[string]error{},
		rated:     map[string][]*ytapi.Video{},
	}
}

func notFound(op string) error {
	return &youtube.APIError{Op: op, Code: http.StatusNotFound, Err: fmt.Errorf("no items")}
}

func (f *fakeProvider) Channel(_ context.Context, id string) (*ytapi.Channel, error) {
	if ch, ok := f.channels[id]; ok {
		return ch, nil
	}
	return nil, notFound("channels.list")
}

func (f *fakeProvider) Video(_ context.Context, id string) (*ytapi.Video, error) {
	if v, ok := f.videos[id]; ok {
		return v, nil
	}
	return nil, notFound("videos.list")
}

func (f *fakeProvider) Playlists(_ context.Context, channelID, _ string) (*ytapi.PlaylistListResponse, error) {
	return &ytapi.PlaylistListResponse{Items: f.playlists[channelID]}, nil
}

func (f *fakeProvider) PlaylistItems(_ context.Context, playlistID, _ string) (*ytapi.PlaylistItemListResponse, error) {
	if err := f.itemsErr[playlistID]; err != nil {
		return nil, err
	}
	return &ytapi.PlaylistItemListResponse{Etag: "items-" + playlistID, Items: f.items[playlistID]}, nil
}

func (f *fakeProvider) Subscriptions(context.Context, string) (*ytapi.SubscriptionListResponse, error) {
	return &ytapi.SubscriptionListResponse{Items: f.subs}, nil
}

func (f *fakeProvider) RatedVideos(_ context.Context, rating, _ string) (*ytapi.VideoListResponse, error) {
	return &ytapi.VideoListResponse{Items: f.rated[rating]}, nil
}

func (f *fakeProvider) addChannel(id, title string, uploads ...string) {
	f.channels[id] = &ytapi.Channel{
		Id:      id,
		Snippet: &ytapi.ChannelSnippet{Title: title, PublishedAt: "2020-01-15T00:00:00Z"},
		ContentDetails: &ytapi.ChannelContentDetails{
			RelatedPlaylists: &ytapi.ChannelContentDetailsRelatedPlaylists{Uploads: "UU" + id[2:]},
		},
		Statistics: &ytapi.ChannelStatistics{VideoCount: uint64(len(uploads))},
	}
	items := make([]*ytapi.PlaylistItem, len(uploads))
	for i, vid := range uploads {
		items[i] = &ytapi.PlaylistItem{ContentDetails: &ytapi.PlaylistItemContentDetails{
			VideoId:          vid,
			VideoPublishedAt: time.Date(2024, 6, 10-i, 0, 0, 0, 0, time.UTC).Format(time.RFC3339),
		}}
	}
	f.items["UU"+id[2:]] = items
}

func (f *fakeProvider) addVideo(id, channelID, description string) {
	f.videos[id] = &ytapi.Video{
		Id: id,
		Snippet: &ytapi.VideoSnippet{
			Title:       "Video " + id,
			ChannelId:   channelID,
			PublishedAt: "2024-06-01T12:00:00Z",
			Description: description,
			Tags:        []string{"go"},
		},
		ContentDetails: &ytapi.VideoContentDetails{Duration: "PT4M", Caption: "false"},
		Status:         &ytapi.VideoStatus{PrivacyStatus: "public"},
	}
}

// fakeCompleter answers every request with reply.
type fakeCompleter struct {
	reply    func(req llm.Request) string
	requests []llm.Request
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.Request) (string, error) {
	f.requests = append(f.requests, req)
	return f.reply(req), nil
}

// newTestApp builds an app over a temporary data root without reading
// any configuration.
func newTestApp(t *testing.T, p youtube.Provider) (*app, *bytes.Buffer) {
	t.Helper()
	store := filestore.New(t.TempDir())
	b := batch.At(testBatchTime)
	out := &bytes.Buffer{}
	a := &app{
		cfg:      &config.Config{LLM: config.LLMConfig{ExtractModel: "extract-model", FormatModel: "format-model"}},
		logger:   zap.NewNop(),
		store:    store,
		batch:    b,
		run:      metrics.NewRun("test", b.ID.String(), b.Time),
		provider: p,
		out:      out,
	}
	a.catalog = catalog.New(store, p, b, a.logger)
	return a, out
}

// itemCount reads the items_total counter for kind and outcome.
func itemCount(t *testing.T, a *app, kind, outcome string) float64 {
	t.Helper()
	families, err := a.run.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "ytarchive_items_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["kind"] == kind && labels["outcome"] == outcome {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}
