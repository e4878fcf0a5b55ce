package cli

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"ytarchive/storage"
	"ytarchive/youtube"
)

// Execute implements the go-flags Commander interface.
func (c *SubscriptionsCommand) Execute([]string) error {
	return execute(c.globals, "subscriptions", accessUser, c.run)
}

func (c *SubscriptionsCommand) run(ctx context.Context, a *app) error {
	subs, err := a.catalog.Subscriptions.Sync(ctx)
	for range subs {
		a.run.Item("subscription", nil)
	}
	if err != nil {
		a.run.Item("subscription", err)
		return err
	}
	a.logger.Info("synced subscriptions", zap.Int("count", len(subs)))
	if !c.Channels {
		return nil
	}

	ids := make([]string, len(subs))
	for i, s := range subs {
		ids[i] = s.ChannelID
	}
	return a.each(ctx, "channel", ids, func(id string) error {
		_, err := a.catalog.Channels.Update(ctx, id)
		return err
	})
}

// Execute implements the go-flags Commander interface.
func (c *ChannelCommand) Execute([]string) error {
	return execute(c.globals, "channel", accessPublic, c.run)
}

func (c *ChannelCommand) run(ctx context.Context, a *app) error {
	return a.each(ctx, "channel", c.Args.IDs, func(id string) error {
		ch, err := a.catalog.Channels.Update(ctx, id)
		if err != nil {
			return err
		}
		a.logger.Info("wrote channel", zap.String("channel_id", id), zap.String("title", ch.Title))
		return nil
	})
}

// Execute implements the go-flags Commander interface.
func (c *MirrorCommand) Execute([]string) error {
	return execute(c.globals, "mirror", accessPublic, c.run)
}

func (c *MirrorCommand) run(ctx context.Context, a *app) error {
	mode := storage.SyncIncremental
	if c.Full {
		mode = storage.SyncFull
	}
	return a.each(ctx, "channel", c.Args.IDs, func(id string) error {
		state, err := a.catalog.Channels.Mirror(ctx, id, mode)
		if errors.Is(err, youtube.ErrPlaylistInaccessible) {
			a.logger.Warn("uploads playlist inaccessible", zap.String("channel_id", id))
			return nil
		}
		if err != nil {
			return err
		}
		a.logger.Info("mirrored channel", zap.String("channel_id", id),
			zap.String("mode", string(state.Mode)), zap.Int("videos_seen", state.VideosSeen))
		if !c.Videos {
			return nil
		}
		return c.fetchVideos(ctx, a, id)
	})
}

// fetchVideos stores every upload of a channel that is not stored yet.
func (c *MirrorCommand) fetchVideos(ctx context.Context, a *app, channelID string) error {
	uploads, err := a.catalog.Channels.Uploads(channelID)
	if err != nil {
		return err
	}
	ids := make([]string, len(uploads))
	for i, u := range uploads {
		ids[i] = u.VideoID
	}
	return a.each(ctx, "video", ids, func(id string) error {
		_, err := a.catalog.Videos.Get(ctx, id)
		return err
	})
}

// Execute implements the go-flags Commander interface.
func (c *VideoCommand) Execute([]string) error {
	return execute(c.globals, "video", accessPublic, c.run)
}

func (c *VideoCommand) run(ctx context.Context, a *app) error {
	return a.each(ctx, "video", c.Args.IDs, func(id string) error {
		v, err := a.catalog.Videos.Update(ctx, id)
		if err != nil {
			return err
		}
		if c.Transcript && bool(v.Captioned) {
			if _, err := a.catalog.Videos.Transcript(ctx, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// Execute implements the go-flags Commander interface.
func (c *PlaylistsCommand) Execute([]string) error {
	return execute(c.globals, "playlists", accessPublic, c.run)
}

func (c *PlaylistsCommand) run(ctx context.Context, a *app) error {
	return a.each(ctx, "playlists", c.Args.IDs, func(id string) error {
		pls, err := a.catalog.Playlists.SyncChannel(ctx, id)
		if err != nil {
			return err
		}
		a.logger.Info("synced playlists", zap.String("channel_id", id), zap.Int("count", len(pls)))
		return nil
	})
}

// Execute implements the go-flags Commander interface.
func (c *RatingsCommand) Execute([]string) error {
	return execute(c.globals, "ratings", accessUser, c.run)
}

func (c *RatingsCommand) run(ctx context.Context, a *app) error {
	r, err := a.catalog.Ratings(c.Type)
	if err != nil {
		return err
	}
	err = r.Update(ctx)
	a.run.Item(c.Type, err)
	return err
}
