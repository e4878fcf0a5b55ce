// Package ytarchive archives a YouTube account and the channels it follows
// into a local, versioned JSON store.
//
// Overview
//
// The archive is a directory tree of JSON records rooted at data_dir:
//
//	youtube/channels/active/<channel_id>/channel.json
//	youtube/channels/active/<channel_id>/uploads/<year>.json
//	youtube/videos/active/<shard>/<video_id>/video.json
//	youtube/subscriptions/active/<channel_id>.json
//	youtube/likes/active/<video_id>.json
//
// Every record is refreshed in place. A record whose identifying fields
// changed is first copied into the matching archive tree, so earlier
// versions stay on disk. Removed subscriptions, playlists and undone
// ratings move to archive as well.
//
// Commands
//
// The ytarchive command (cmd/ytarchive) drives one batch per invocation:
//
//	ytarchive subscriptions --channels
//	ytarchive mirror --videos UC...
//	ytarchive video --transcript <video_id>
//	ytarchive ratings --type like
//	ytarchive descriptions UC...
//	ytarchive blocks stats UC...
//	ytarchive analyze <video_id>
//
// Commands that read the user's account need an OAuth token; run
// `ytarchive auth` once to create it.
//
// Configuration
//
// Settings come from a YAML file (ytarchive.yaml in the working directory
// or ~/.config/ytarchive, or the path given with -c) and YTARCHIVE_*
// environment variables, which take precedence:
//
//   - YTARCHIVE_DATA_DIR: root of the archive
//   - YTARCHIVE_YOUTUBE_API_KEY: Data API key for public reads
//   - YTARCHIVE_YOUTUBE_OAUTH_CLIENT_FILE: OAuth client secrets
//   - YTARCHIVE_LLM_BASE_URL: chat completion endpoint
//   - YTARCHIVE_LLM_API_KEY: completion API key
//
// Packages
//
//   - catalog: channels, uploads, videos, playlists, subscriptions, ratings
//   - analysis: description boilerplate filter, LLM extraction, transcript formatting
//   - youtube: Data API provider, OAuth and captions
//   - storage: records, sync state and storage errors
//   - config: configuration loading
//   - cli: the command line front end
package ytarchive
