// Package youtube is the remote side of the archive: the Data API v3
// provider the catalog syncs from, its error classification, and the
// captions source used for transcripts.
package youtube

import (
	"context"

	ytapi "google.golang.org/api/youtube/v3"
)

// Provider lists the resources the catalog mirrors. Listing methods take a
// page token ("" for the first page) and return the raw API page so callers
// can stop early between pages.
type Provider interface {
	// Channel returns one channel; an unknown id matches ErrNotFound.
	Channel(ctx context.Context, id string) (*ytapi.Channel, error)
	// Video returns one video; an unknown id matches ErrNotFound.
	Video(ctx context.Context, id string) (*ytapi.Video, error)
	Playlists(ctx context.Context, channelID, pageToken string) (*ytapi.PlaylistListResponse, error)
	PlaylistItems(ctx context.Context, playlistID, pageToken string) (*ytapi.PlaylistItemListResponse, error)
	// Subscriptions lists the authorized user's subscriptions.
	Subscriptions(ctx context.Context, pageToken string) (*ytapi.SubscriptionListResponse, error)
	// RatedVideos lists the authorized user's videos rated "like" or
	// "dislike", newest first.
	RatedVideos(ctx context.Context, rating, pageToken string) (*ytapi.VideoListResponse, error)
}

// Rating values accepted by RatedVideos.
const (
	RatingLike    = "like"
	RatingDislike = "dislike"
)
