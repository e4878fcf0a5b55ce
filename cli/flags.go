package cli

// GlobalFlags holds flags available to all subcommands.
type GlobalFlags struct {
	Config  string `long:"config" short:"c" description:"Path to config file"`
	DataDir string `long:"data-dir" description:"Override data_dir"`
	Verbose bool   `long:"verbose" short:"v" description:"Enable debug logging"`
}

// SubscriptionsCommand syncs the user's subscriptions.
type SubscriptionsCommand struct {
	Channels bool `long:"channels" description:"Also refresh the channel record of every subscription"`

	globals *GlobalFlags
}

// ChannelCommand refreshes channel records.
type ChannelCommand struct {
	Args struct {
		IDs []string `positional-arg-name:"channel-id" required:"1"`
	} `positional-args:"yes" required:"yes"`

	globals *GlobalFlags
}

// MirrorCommand mirrors the uploads of channels.
type MirrorCommand struct {
	Full   bool `long:"full" description:"Walk the whole uploads playlist even when a full walk has completed before"`
	Videos bool `long:"videos" description:"Also fetch every mirrored video"`
	Args   struct {
		IDs []string `positional-arg-name:"channel-id" required:"1"`
	} `positional-args:"yes" required:"yes"`

	globals *GlobalFlags
}

// VideoCommand refreshes video records.
type VideoCommand struct {
	Transcript bool `long:"transcript" description:"Also download the transcript"`
	Args       struct {
		IDs []string `positional-arg-name:"video-id" required:"1"`
	} `positional-args:"yes" required:"yes"`

	globals *GlobalFlags
}

// PlaylistsCommand syncs the playlists of channels.
type PlaylistsCommand struct {
	Args struct {
		IDs []string `positional-arg-name:"channel-id" required:"1"`
	} `positional-args:"yes" required:"yes"`

	globals *GlobalFlags
}

// RatingsCommand syncs liked or disliked videos.
type RatingsCommand struct {
	Type string `long:"type" short:"t" description:"Rating to sync" choice:"like" choice:"dislike" default:"like"`

	globals *GlobalFlags
}

// DescriptionsCommand writes boilerplate-free descriptions.
type DescriptionsCommand struct {
	Video []string `long:"video" description:"Process only this video (repeatable)"`
	Args  struct {
		IDs []string `positional-arg-name:"channel-id"`
	} `positional-args:"yes"`

	globals *GlobalFlags
}

// BlocksCommand groups block index subcommands.
type BlocksCommand struct{}

// BlocksStatsCommand prints block index statistics.
type BlocksStatsCommand struct {
	Args struct {
		IDs []string `positional-arg-name:"channel-id" required:"1"`
	} `positional-args:"yes" required:"yes"`

	globals *GlobalFlags
}

// AnalyzeCommand runs the LLM passes over videos.
type AnalyzeCommand struct {
	Extract bool `long:"extract" description:"Run the metadata extraction"`
	Format  bool `long:"format" description:"Format the transcript"`
	Args    struct {
		IDs []string `positional-arg-name:"video-id" required:"1"`
	} `positional-args:"yes" required:"yes"`

	globals *GlobalFlags
}

// AuthCommand authorizes access to the user's account.
type AuthCommand struct {
	Code string `long:"code" description:"Authorization code returned by the consent page"`

	globals *GlobalFlags
}
