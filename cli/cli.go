// Package cli implements the ytarchive command.
package cli

import (
	"errors"
	"os"

	goflags "github.com/jessevdk/go-flags"
)

// commands holds references to all subcommand structs for inspection and
// testing.
type commands struct {
	Subscriptions *SubscriptionsCommand
	Channel       *ChannelCommand
	Mirror        *MirrorCommand
	Video         *VideoCommand
	Playlists     *PlaylistsCommand
	Ratings       *RatingsCommand
	Descriptions  *DescriptionsCommand
	BlocksStats   *BlocksStatsCommand
	Analyze       *AnalyzeCommand
	Auth          *AuthCommand
}

func buildParser() (*goflags.Parser, *GlobalFlags, *commands, error) {
	var globals GlobalFlags

	parser := goflags.NewParser(&globals, goflags.Default)
	parser.Name = "ytarchive"
	parser.LongDescription = "Archive YouTube subscriptions, channels, videos, playlists and ratings into a versioned local JSON store."

	cmds := &commands{
		Subscriptions: &SubscriptionsCommand{globals: &globals},
		Channel:       &ChannelCommand{globals: &globals},
		Mirror:        &MirrorCommand{globals: &globals},
		Video:         &VideoCommand{globals: &globals},
		Playlists:     &PlaylistsCommand{globals: &globals},
		Ratings:       &RatingsCommand{globals: &globals},
		Descriptions:  &DescriptionsCommand{globals: &globals},
		BlocksStats:   &BlocksStatsCommand{globals: &globals},
		Analyze:       &AnalyzeCommand{globals: &globals},
		Auth:          &AuthCommand{globals: &globals},
	}

	add := []struct {
		name, short, long string
		data              any
	}{
		{"subscriptions", "Sync subscriptions", "Sync the subscriptions of the authorized user and archive the ones that were removed.", cmds.Subscriptions},
		{"channel", "Refresh channels", "Fetch channel records and archive the previous version when they changed.", cmds.Channel},
		{"mirror", "Mirror channel uploads", "Mirror the uploads playlist of channels into yearly upload lists.", cmds.Mirror},
		{"video", "Refresh videos", "Fetch video records and archive the previous version when they changed.", cmds.Video},
		{"playlists", "Sync channel playlists", "Sync the playlists of channels and their items.", cmds.Playlists},
		{"ratings", "Sync liked or disliked videos", "Sync the videos the authorized user liked or disliked and archive undone ratings.", cmds.Ratings},
		{"descriptions", "Strip description boilerplate", "Index description blocks and write boilerplate-free descriptions.", cmds.Descriptions},
		{"analyze", "Run LLM analysis", "Extract structured metadata and format transcripts with a language model.", cmds.Analyze},
		{"auth", "Authorize the user account", "Print the consent URL, or exchange an authorization code for a token.", cmds.Auth},
	}
	for _, c := range add {
		if _, err := parser.AddCommand(c.name, c.short, c.long, c.data); err != nil {
			return nil, nil, nil, err
		}
	}

	blocks, err := parser.AddCommand("blocks", "Inspect block indexes", "Inspect the per-channel description block indexes.", &BlocksCommand{})
	if err != nil {
		return nil, nil, nil, err
	}
	if _, err := blocks.AddCommand("stats", "Print block index statistics", "Print block and boilerplate counts of channel block indexes.", cmds.BlocksStats); err != nil {
		return nil, nil, nil, err
	}

	return parser, &globals, cmds, nil
}

// Run parses os.Args and executes the matched subcommand.
func Run() error {
	return RunWithArgs(os.Args[1:])
}

// RunWithArgs parses args and executes the matched subcommand.
func RunWithArgs(args []string) error {
	parser, _, _, err := buildParser()
	if err != nil {
		return err
	}
	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *goflags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == goflags.ErrHelp {
			return nil
		}
		return err
	}
	return nil
}
