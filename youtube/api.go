package youtube

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
	ytapi "google.golang.org/api/youtube/v3"

	"ytarchive/internal/retry"
)

const pageSize = 50

var (
	channelParts = []string{"snippet", "brandingSettings", "contentDetails", "statistics", "status", "topicDetails"}
	videoParts   = []string{
		"snippet", "contentDetails", "liveStreamingDetails", "paidProductPlacementDetails",
		"recordingDetails", "statistics", "status", "topicDetails",
	}
)

// Options configures an APIProvider.
type Options struct {
	// APIKey authenticates public requests.
	APIKey string
	// HTTPClient carries user credentials (see UserClient). It takes
	// precedence over APIKey.
	HTTPClient *http.Client
	// Endpoint overrides the API base URL.
	Endpoint string
	// RequestsPerSecond paces calls (0 = unlimited).
	RequestsPerSecond float64
	// DailyQuota is the unit budget; crossing it is logged, not enforced.
	DailyQuota int
	Retry      retry.Config
}

// APIProvider implements Provider on the YouTube Data API v3.
type APIProvider struct {
	service *ytapi.Service
	limiter *rate.Limiter
	retry   retry.Config
	logger  *zap.Logger

	mu         sync.Mutex
	quotaUsed  int
	dailyQuota int
	warned     bool
}

// NewAPIProvider creates a Data API provider.
func NewAPIProvider(ctx context.Context, opts Options, logger *zap.Logger) (*APIProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var clientOpts []option.ClientOption
	switch {
	case opts.HTTPClient != nil:
		clientOpts = append(clientOpts, option.WithHTTPClient(opts.HTTPClient))
	case opts.APIKey != "":
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	default:
		return nil, fmt.Errorf("youtube: api key or user credentials required")
	}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}

	service, err := ytapi.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	return &APIProvider{
		service:    service,
		limiter:    rate.NewLimiter(limit, 1),
		retry:      opts.Retry,
		logger:     logger.With(zap.String("component", "youtube-api")),
		dailyQuota: opts.DailyQuota,
	}, nil
}

// Channel implements Provider.
func (p *APIProvider) Channel(ctx context.Context, id string) (*ytapi.Channel, error) {
	const op = "channels.list"
	var ch *ytapi.Channel
	err := p.call(ctx, op, func(ctx context.Context) error {
		resp, err := p.service.Channels.List(channelParts).Id(id).Context(ctx).Do()
		if err != nil {
			return err
		}
		if len(resp.Items) == 0 {
			return &APIError{Op: op, Code: http.StatusNotFound, Err: fmt.Errorf("channel %s has no items", id)}
		}
		ch = resp.Items[0]
		return nil
	})
	return ch, err
}

// Video implements Provider.
func (p *APIProvider) Video(ctx context.Context, id string) (*ytapi.Video, error) {
	const op = "videos.list"
	var v *ytapi.Video
	err := p.call(ctx, op, func(ctx context.Context) error {
		resp, err := p.service.Videos.List(videoParts).Id(id).Context(ctx).Do()
		if err != nil {
			return err
		}
		if len(resp.Items) == 0 {
			return &APIError{Op: op, Code: http.StatusNotFound, Err: fmt.Errorf("video %s has no items", id)}
		}
		v = resp.Items[0]
		return nil
	})
	return v, err
}

// Playlists implements Provider.
func (p *APIProvider) Playlists(ctx context.Context, channelID, pageToken string) (*ytapi.PlaylistListResponse, error) {
	var resp *ytapi.PlaylistListResponse
	err := p.call(ctx, "playlists.list", func(ctx context.Context) error {
		var err error
		resp, err = p.service.Playlists.List([]string{"id", "contentDetails", "status", "snippet"}).
			ChannelId(channelID).
			MaxResults(pageSize).
			PageToken(pageToken).
			Context(ctx).
			Do()
		return err
	})
	return resp, err
}

// PlaylistItems implements Provider.
func (p *APIProvider) PlaylistItems(ctx context.Context, playlistID, pageToken string) (*ytapi.PlaylistItemListResponse, error) {
	var resp *ytapi.PlaylistItemListResponse
	err := p.call(ctx, "playlistItems.list", func(ctx context.Context) error {
		var err error
		resp, err = p.service.PlaylistItems.List([]string{"contentDetails"}).
			PlaylistId(playlistID).
			MaxResults(pageSize).
			PageToken(pageToken).
			Context(ctx).
			Do()
		return err
	})
	return resp, err
}

// Subscriptions implements Provider.
func (p *APIProvider) Subscriptions(ctx context.Context, pageToken string) (*ytapi.SubscriptionListResponse, error) {
	var resp *ytapi.SubscriptionListResponse
	err := p.call(ctx, "subscriptions.list", func(ctx context.Context) error {
		var err error
		resp, err = p.service.Subscriptions.List([]string{"snippet", "contentDetails"}).
			Mine(true).
			MaxResults(pageSize).
			PageToken(pageToken).
			Context(ctx).
			Do()
		return err
	})
	return resp, err
}

// RatedVideos implements Provider.
func (p *APIProvider) RatedVideos(ctx context.Context, rating, pageToken string) (*ytapi.VideoListResponse, error) {
	if rating != RatingLike && rating != RatingDislike {
		return nil, fmt.Errorf("youtube: unknown rating %q", rating)
	}
	var resp *ytapi.VideoListResponse
	err := p.call(ctx, "videos.list", func(ctx context.Context) error {
		var err error
		resp, err = p.service.Videos.List([]string{"id"}).
			MyRating(rating).
			MaxResults(pageSize).
			PageToken(pageToken).
			Context(ctx).
			Do()
		return err
	})
	return resp, err
}

// call paces, retries and classifies one API request. Every list method
// costs one quota unit per attempt.
func (p *APIProvider) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	classifier := func(err error) bool {
		return retry.IsRetryable(err) && isRetryableAPIError(err)
	}
	return retry.Do(ctx, p.retry, classifier, func(ctx context.Context) error {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
		p.trackQuotaUsage(op, 1)
		return classify(op, fn(ctx))
	})
}

func (p *APIProvider) trackQuotaUsage(op string, units int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.quotaUsed += units
	p.logger.Debug("api call", zap.String("op", op), zap.Int("quota_used", p.quotaUsed))

	if p.dailyQuota > 0 && p.quotaUsed >= p.dailyQuota && !p.warned {
		p.warned = true
		p.logger.Warn("estimated daily quota reached",
			zap.Int("quota_used", p.quotaUsed),
			zap.Int("daily_quota", p.dailyQuota))
	}
}

// QuotaUsed returns the quota units spent by this provider.
func (p *APIProvider) QuotaUsed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.quotaUsed
}
