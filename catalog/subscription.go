package catalog

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	ytapi "google.golang.org/api/youtube/v3"

	"ytarchive/internal/batch"
	"ytarchive/internal/filestore"
	"ytarchive/storage"
	"ytarchive/youtube"
)

// Subscription is one channel the user is subscribed to.
type Subscription struct {
	ChannelID      string    `json:"channel_id"`
	SubscriptionID string    `json:"subscription_id"`
	FirstSeen      time.Time `json:"first_seen"`
	LastUpdated    time.Time `json:"last_updated"`
	ActivityType   string    `json:"activity_type"`
	NewItemCount   int64     `json:"new_item_count"`
	TotalItemCount int64     `json:"total_item_count"`
	Title          string    `json:"title"`
}

var subscriptionFields = []string{
	"channel_id", "subscription_id", "first_seen", "last_updated",
	"activity_type", "new_item_count", "total_item_count", "title",
}

func subscriptionPath(channelID string) string {
	return path.Join(subsActiveDir, channelID+".json")
}

// Subscriptions mirrors the user's subscription list.
type Subscriptions struct {
	store    *filestore.Store
	provider youtube.Provider
	batch    batch.Context
	logger   *zap.Logger
}

// NewSubscriptions creates the subscription service for batch b.
func NewSubscriptions(store *filestore.Store, provider youtube.Provider, b batch.Context, logger *zap.Logger) *Subscriptions {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Subscriptions{
		store:    store,
		provider: provider,
		batch:    b,
		logger:   logger.With(zap.String("component", "subscriptions")),
	}
}

// Sync stores every current subscription and archives the stored ones
// that are no longer listed.
func (s *Subscriptions) Sync(ctx context.Context) ([]*Subscription, error) {
	var (
		out   []*Subscription
		seen  = map[string]bool{}
		token string
	)
	for {
		page, err := s.provider.Subscriptions(ctx, token)
		if err != nil {
			return out, err
		}
		for _, item := range page.Items {
			sub, err := s.UpdateFromData(item)
			if err != nil {
				return out, err
			}
			seen[sub.ChannelID] = true
			out = append(out, sub)
		}
		if page.NextPageToken == "" {
			break
		}
		token = page.NextPageToken
	}

	names, err := s.store.List(subsActiveDir, "*.json")
	if err != nil {
		return out, err
	}
	for _, name := range names {
		id := strings.TrimSuffix(name, ".json")
		if seen[id] {
			continue
		}
		if err := s.ArchiveUnsubscribed(id); err != nil {
			return out, err
		}
	}
	return out, nil
}

// UpdateFromData writes one listed subscription. Fields of an existing
// file are overwritten except first_seen.
func (s *Subscriptions) UpdateFromData(item *ytapi.Subscription) (*Subscription, error) {
	if item.Snippet == nil || item.Snippet.ResourceId == nil || item.Snippet.ResourceId.ChannelId == "" {
		return nil, &storage.StorageError{Op: "write", Entity: "subscription", ID: item.Id, Err: storage.ErrMissingIdentity}
	}
	channelID := item.Snippet.ResourceId.ChannelId
	rel := subscriptionPath(channelID)

	rec, err := s.store.Load(rel)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		rec = storage.Record{"first_seen": storage.FormatTime(s.batch.Time)}
	case err != nil:
		return nil, err
	}

	rec["channel_id"] = channelID
	rec["title"] = item.Snippet.Title
	rec["subscription_id"] = item.Id
	rec["last_updated"] = storage.FormatTime(s.batch.Time)
	if cd := item.ContentDetails; cd != nil {
		rec["activity_type"] = cd.ActivityType
		rec["new_item_count"] = cd.NewItemCount
		rec["total_item_count"] = cd.TotalItemCount
	}

	if err := s.store.Save(rel, rec); err != nil {
		return nil, err
	}
	s.logger.Info("wrote subscription", zap.String("channel_id", channelID))

	var sub Subscription
	if err := rec.Decode(&sub, false); err != nil {
		return nil, &storage.StorageError{Op: "decode", Entity: "subscription", ID: channelID, Err: err}
	}
	return &sub, nil
}

// ArchiveUnsubscribed moves a subscription to this year's archive with
// unsubscribed_at set. An archive already written this year is replaced.
// A channel without an active file is skipped.
func (s *Subscriptions) ArchiveUnsubscribed(channelID string) error {
	rel := subscriptionPath(channelID)
	rec, err := s.store.Load(rel)
	if errors.Is(err, storage.ErrNotFound) {
		s.logger.Warn("no active subscription file", zap.String("channel_id", channelID))
		return nil
	}
	if err != nil {
		return err
	}

	rec["unsubscribed_at"] = storage.FormatTime(s.batch.Time)
	dest := path.Join(subsArchiveDir, strconv.Itoa(s.batch.Year()), channelID+".json")
	if err := s.store.Save(dest, rec); err != nil {
		return err
	}
	if err := s.store.Remove(rel); err != nil {
		return err
	}
	s.logger.Info("archived subscription", zap.String("channel_id", channelID))
	return nil
}

// All reads every active subscription, sorted by channel id. A file with
// missing or unknown fields is ErrIncompleteRecord.
func (s *Subscriptions) All() ([]*Subscription, error) {
	names, err := s.store.List(subsActiveDir, "*.json")
	if err != nil {
		return nil, err
	}
	out := make([]*Subscription, 0, len(names))
	for _, name := range names {
		id := strings.TrimSuffix(name, ".json")
		rec, err := s.store.Load(path.Join(subsActiveDir, name))
		if err != nil {
			return nil, err
		}
		if missing := rec.Missing(subscriptionFields); len(missing) > 0 {
			return nil, &storage.StorageError{Op: "read", Entity: "subscription", ID: id,
				Err: &storage.MissingFieldsError{Fields: missing}}
		}
		var sub Subscription
		if err := rec.Decode(&sub, true); err != nil {
			return nil, &storage.StorageError{Op: "read", Entity: "subscription", ID: id,
				Err: fmt.Errorf("%w: %v", storage.ErrIncompleteRecord, err)}
		}
		out = append(out, &sub)
	}
	return out, nil
}
