package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ytapi "google.golang.org/api/youtube/v3"

	"ytarchive/storage"
)

const (
	plChannel = "UC_pl"
	plFile    = "youtube/channels/active/UC_pl/playlists/PL1.json"
	plArchive = "youtube/channels/archive/UC_pl/playlists/2025/week-11/PL1.json"
)

func listedPlaylist(id, etag, title string) *ytapi.Playlist {
	return &ytapi.Playlist{
		Id:   id,
		Etag: etag,
		Snippet: &ytapi.PlaylistSnippet{
			ChannelId:   plChannel,
			Title:       title,
			PublishedAt: "2023-01-01T00:00:00Z",
		},
		ContentDetails: &ytapi.PlaylistContentDetails{ItemCount: 2},
		Status:         &ytapi.PlaylistStatus{PrivacyStatus: "public"},
	}
}

func videoItems(ids ...string) []*ytapi.PlaylistItem {
	out := make([]*ytapi.PlaylistItem, len(ids))
	for i, id := range ids {
		out[i] = &ytapi.PlaylistItem{ContentDetails: &ytapi.PlaylistItemContentDetails{VideoId: id}}
	}
	return out
}

func storedPlaylist(id, etag, title, itemsEtag string, items ...string) map[string]any {
	return map[string]any{
		"playlist_id":        id,
		"channel_id":         plChannel,
		"etag":               etag,
		"title":              title,
		"published_at":       "2023-01-01T00:00:00+00:00",
		"item_count":         2,
		"privacy_status":     "public",
		"description":        "",
		"thumbnails":         nil,
		"items_etag":         itemsEtag,
		"items":              items,
		"first_seen":         "2024-01-01T00:00:00+00:00",
		"last_updated":       "2024-01-01T00:00:00+00:00",
		"items_last_updated": "2024-01-01T00:00:00+00:00",
	}
}

func itemList(t *testing.T, rec storage.Record) []string {
	t.Helper()
	items, err := stringList(rec["items"])
	require.NoError(t, err)
	return items
}

func TestPlaylistsSyncCreates(t *testing.T) {
	env := newTestEnv(t)
	env.provider.playlists[plChannel] = [][]*ytapi.Playlist{{listedPlaylist("PL1", "P1", "Mix")}}
	env.provider.items["PL1"] = [][]*ytapi.PlaylistItem{videoItems("a", "b"), videoItems("c")}
	env.provider.itemsEtag["PL1"] = "E1"

	got, err := env.cat.Playlists.SyncChannel(context.Background(), plChannel)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"a", "b", "c"}, got[0].Items)
	assert.EqualValues(t, 2, got[0].ItemCount)

	rec := env.readJSON(t, plFile)
	assert.Equal(t, "E1", rec["items_etag"])
	assert.Equal(t, []string{"a", "b", "c"}, itemList(t, rec))
	assert.Equal(t, batchStamp, rec["first_seen"])
	assert.Equal(t, batchStamp, rec["items_last_updated"])
	assert.Equal(t, 2, env.provider.Calls("playlistItems"))
}

func TestPlaylistsUnchangedEtags(t *testing.T) {
	env := newTestEnv(t)
	env.writeJSON(t, plFile, storedPlaylist("PL1", "P1", "Mix", "E1", "a", "b"))
	before, err := env.store.ReadFile(plFile)
	require.NoError(t, err)

	env.provider.playlists[plChannel] = [][]*ytapi.Playlist{{listedPlaylist("PL1", "P1", "Mix")}}
	env.provider.items["PL1"] = [][]*ytapi.PlaylistItem{videoItems("a", "b"), videoItems("c")}
	env.provider.itemsEtag["PL1"] = "E1"

	got, err := env.cat.Playlists.SyncChannel(context.Background(), plChannel)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"a", "b"}, got[0].Items)

	after, err := env.store.ReadFile(plFile)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
	assert.Equal(t, 1, env.provider.Calls("playlistItems"))
	assert.False(t, env.exists(plArchive))
}

func TestPlaylistsMetadataChangeKeepsItems(t *testing.T) {
	env := newTestEnv(t)
	env.writeJSON(t, plFile, storedPlaylist("PL1", "P1", "Old", "E1", "a", "b"))
	env.provider.playlists[plChannel] = [][]*ytapi.Playlist{{listedPlaylist("PL1", "P2", "New")}}
	env.provider.items["PL1"] = [][]*ytapi.PlaylistItem{videoItems("x")}
	env.provider.itemsEtag["PL1"] = "E1"

	_, err := env.cat.Playlists.SyncChannel(context.Background(), plChannel)
	require.NoError(t, err)

	rec := env.readJSON(t, plFile)
	assert.Equal(t, "New", rec["title"])
	assert.Equal(t, []string{"a", "b"}, itemList(t, rec))
	assert.Equal(t, "2024-01-01T00:00:00+00:00", rec["first_seen"])

	archived := env.readJSON(t, plArchive)
	assert.Equal(t, "Old", archived["title"])
}

func TestPlaylistsReorderArchives(t *testing.T) {
	env := newTestEnv(t)
	env.writeJSON(t, plFile, storedPlaylist("PL1", "P1", "Mix", "E1", "a", "b"))
	env.provider.playlists[plChannel] = [][]*ytapi.Playlist{{listedPlaylist("PL1", "P1", "Mix")}}
	env.provider.items["PL1"] = [][]*ytapi.PlaylistItem{videoItems("b", "a")}
	env.provider.itemsEtag["PL1"] = "E2"

	_, err := env.cat.Playlists.SyncChannel(context.Background(), plChannel)
	require.NoError(t, err)

	assert.Equal(t, []string{"b", "a"}, itemList(t, env.readJSON(t, plFile)))
	archived := env.readJSON(t, plArchive)
	assert.Equal(t, []string{"a", "b"}, itemList(t, archived))
	assert.Equal(t, "E1", archived["items_etag"])
}

func TestPlaylistsWeeklyArchiveMerges(t *testing.T) {
	env := newTestEnv(t)
	first := storedPlaylist("PL1", "P0", "First", "E0", "a", "b")
	env.writeJSON(t, plArchive, first)
	env.writeJSON(t, plFile, storedPlaylist("PL1", "P1", "Mix", "E1", "b", "c"))

	env.provider.playlists[plChannel] = [][]*ytapi.Playlist{{listedPlaylist("PL1", "P1", "Mix")}}
	env.provider.items["PL1"] = [][]*ytapi.PlaylistItem{videoItems("c")}
	env.provider.itemsEtag["PL1"] = "E2"

	_, err := env.cat.Playlists.SyncChannel(context.Background(), plChannel)
	require.NoError(t, err)

	archived := env.readJSON(t, plArchive)
	assert.Equal(t, []string{"a", "b", "c"}, itemList(t, archived))
	assert.Equal(t, "First", archived["title"])
	assert.NotContains(t, archived, "items_etag")
	assert.Equal(t, []string{"c"}, itemList(t, env.readJSON(t, plFile)))
}

func TestPlaylistsSyncArchivesRemoved(t *testing.T) {
	env := newTestEnv(t)
	env.writeJSON(t, "youtube/channels/active/UC_pl/playlists/PL_old.json",
		storedPlaylist("PL_old", "P9", "Gone", "E9", "z"))
	env.provider.playlists[plChannel] = [][]*ytapi.Playlist{{listedPlaylist("PL1", "P1", "Mix")}}
	env.provider.items["PL1"] = [][]*ytapi.PlaylistItem{videoItems("a")}

	_, err := env.cat.Playlists.SyncChannel(context.Background(), plChannel)
	require.NoError(t, err)

	assert.False(t, env.exists("youtube/channels/active/UC_pl/playlists/PL_old.json"))
	archived := env.readJSON(t, "youtube/channels/archive/UC_pl/playlists/2025/week-11/PL_old.json")
	assert.Equal(t, batchStamp, archived["removed_at"])
	assert.Equal(t, "Gone", archived["title"])
	assert.True(t, env.exists(plFile))
}

func TestPlaylistsArchiveRemovedMissing(t *testing.T) {
	env := newTestEnv(t)
	assert.NoError(t, env.cat.Playlists.ArchiveRemoved(plChannel, "PL_none"))
}

func TestPlaylistsForChannel(t *testing.T) {
	ctx := context.Background()

	t.Run("reads stored playlists", func(t *testing.T) {
		env := newTestEnv(t)
		env.writeJSON(t, plFile, storedPlaylist("PL1", "P1", "Mix", "E1", "a"))
		env.writeJSON(t, "youtube/channels/active/UC_pl/playlists/PL0.json", storedPlaylist("PL0", "P0", "Zero", "E0"))

		got, err := env.cat.Playlists.ForChannel(ctx, plChannel)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "PL0", got[0].PlaylistID)
		assert.Equal(t, "PL1", got[1].PlaylistID)
		assert.Zero(t, env.provider.Calls("playlists"))
	})

	t.Run("syncs an unknown channel", func(t *testing.T) {
		env := newTestEnv(t)
		env.provider.playlists[plChannel] = [][]*ytapi.Playlist{{listedPlaylist("PL1", "P1", "Mix")}}
		env.provider.items["PL1"] = [][]*ytapi.PlaylistItem{videoItems("a")}

		got, err := env.cat.Playlists.ForChannel(ctx, plChannel)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, 1, env.provider.Calls("playlists"))
	})
}

func TestPlaylistsMissingIdentity(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.cat.Playlists.UpdateFromData(context.Background(), &ytapi.Playlist{Id: "PL1"})
	assert.ErrorIs(t, err, storage.ErrMissingIdentity)
}

func TestRetrieveItems(t *testing.T) {
	env := newTestEnv(t)
	env.provider.items["PL1"] = [][]*ytapi.PlaylistItem{videoItems("a"), videoItems("b")}
	env.provider.itemsEtag["PL1"] = "E1"

	etag, ids, err := env.cat.Playlists.RetrieveItems(context.Background(), "PL1", "")
	require.NoError(t, err)
	assert.Equal(t, "E1", etag)
	assert.Equal(t, []string{"a", "b"}, ids)

	etag, ids, err = env.cat.Playlists.RetrieveItems(context.Background(), "PL1", "E1")
	require.NoError(t, err)
	assert.Equal(t, "E1", etag)
	assert.Nil(t, ids)

	env.provider.items["PL_empty"] = nil
	_, ids, err = env.cat.Playlists.RetrieveItems(context.Background(), "PL_empty", "")
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.NotNil(t, ids)
}

func TestMergePlaylistArchive(t *testing.T) {
	existing := storage.Record{"title": "First", "items": []any{"a", "b"}, "items_etag": "E0"}
	rec := storage.Record{"title": "Second", "items": []any{"b", "c"}, "items_etag": "E1"}

	got, err := mergePlaylistArchive(existing, rec)
	require.NoError(t, err)
	assert.Equal(t, "First", got["title"])
	assert.Equal(t, []string{"a", "b", "c"}, got["items"])
	assert.NotContains(t, got, "items_etag")
	assert.Contains(t, existing, "items_etag")

	_, err = mergePlaylistArchive(storage.Record{"items": "nope"}, rec)
	assert.ErrorIs(t, err, storage.ErrStorageCorrupt)
}
