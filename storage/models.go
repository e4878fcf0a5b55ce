package storage

import "time"

// SyncMode indicates how much of an uploads playlist a mirror run walks.
type SyncMode string

const (
	// SyncFull walks the whole uploads playlist.
	SyncFull SyncMode = "full"
	// SyncIncremental stops at the first upload already stored locally.
	SyncIncremental SyncMode = "incremental"
)

// Sync status constants for the SyncState.Status field.
const (
	// SyncStatusIdle indicates the channel is not currently being synced.
	SyncStatusIdle = "idle"
	// SyncStatusSyncing indicates a sync operation is in progress.
	SyncStatusSyncing = "syncing"
	// SyncStatusError indicates the last sync operation failed.
	SyncStatusError = "error"
)

// SyncState tracks upload mirroring progress for a channel. It is stored
// next to the channel record as uploads.json.
type SyncState struct {
	// ChannelID is a reference to the channel being mirrored.
	ChannelID string `json:"channel_id"`
	// FirstUpdated is the batch time the state was first created.
	FirstUpdated time.Time `json:"first_updated"`
	// LastUpdated is the batch time of the last state change.
	LastUpdated time.Time `json:"last_updated"`
	// LastSynced is the batch time of the last completed mirror run.
	LastSynced *time.Time `json:"last_synced,omitempty"`
	// Mode is the mode of the last mirror run.
	Mode SyncMode `json:"mode,omitempty"`
	// FullSyncCompleted is set once a full walk reached the end of the playlist.
	FullSyncCompleted bool `json:"full_sync_completed"`
	// PlaylistAccessible is false once the uploads playlist answered 403 or 404.
	PlaylistAccessible bool `json:"playlist_accessible"`
	// UploadsPlaylistID is the playlist walked by the last run.
	UploadsPlaylistID string `json:"uploads_playlist_id,omitempty"`
	// NewestVideoID is the first upload seen by the last run.
	NewestVideoID string `json:"newest_video_id,omitempty"`
	// VideosSeen counts uploads yielded during the last run.
	VideosSeen int `json:"videos_seen"`
	// Status indicates the current sync state ("idle", "syncing", "error").
	Status string `json:"status"`
	// LastError contains the error message if the last run failed.
	LastError string `json:"last_error,omitempty"`
}

// NewSyncState creates the default state for a channel that has never
// been mirrored.
func NewSyncState(channelID string, batchTime time.Time) *SyncState {
	return &SyncState{
		ChannelID:          channelID,
		FirstUpdated:       batchTime,
		LastUpdated:        batchTime,
		PlaylistAccessible: true,
		Status:             SyncStatusIdle,
	}
}

// NextMode returns the mode the next run should use.
func (s *SyncState) NextMode() SyncMode {
	if s == nil || !s.FullSyncCompleted {
		return SyncFull
	}
	return SyncIncremental
}

// StartSync resets per-run counters for a new mirror run.
func (s *SyncState) StartSync(mode SyncMode, playlistID string, now time.Time) {
	if s == nil {
		return
	}
	s.Mode = mode
	s.Status = SyncStatusSyncing
	s.UploadsPlaylistID = playlistID
	s.VideosSeen = 0
	s.NewestVideoID = ""
	s.LastError = ""
	s.LastUpdated = now
}

// IncrementProgress records one more upload seen by the current run.
func (s *SyncState) IncrementProgress(videoID string) {
	if s == nil {
		return
	}
	if s.VideosSeen == 0 {
		s.NewestVideoID = videoID
	}
	s.VideosSeen++
}

// CompleteSync marks the run as finished. exhausted reports whether the
// walk reached the end of the playlist.
func (s *SyncState) CompleteSync(exhausted bool, now time.Time) {
	if s == nil {
		return
	}
	s.Status = SyncStatusIdle
	s.LastSynced = &now
	s.LastUpdated = now
	if exhausted && s.Mode == SyncFull {
		s.FullSyncCompleted = true
	}
}

// FailSync marks the run as failed with an error message.
func (s *SyncState) FailSync(errMsg string, now time.Time) {
	if s == nil {
		return
	}
	s.Status = SyncStatusError
	s.LastError = errMsg
	s.LastUpdated = now
}

// MarkInaccessible records that the uploads playlist cannot be listed.
func (s *SyncState) MarkInaccessible(now time.Time) {
	if s == nil {
		return
	}
	s.PlaylistAccessible = false
	s.LastUpdated = now
}
