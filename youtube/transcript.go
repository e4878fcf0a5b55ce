package youtube

import (
	"context"
	"errors"
	"strings"
	"time"
)

// TranscriptSource lists and fetches caption tracks.
type TranscriptSource interface {
	// Tracks lists the caption tracks of a video. A video without captions
	// yields an empty list or ErrNoTranscript.
	Tracks(ctx context.Context, videoID string) ([]Track, error)
	// Fetch downloads one track.
	Fetch(ctx context.Context, track Track) ([]Segment, error)
}

// Track is one caption track of a video.
type Track struct {
	VideoID      string
	LanguageCode string
	Language     string
	Name         string
	// Generated marks automatic speech recognition tracks.
	Generated bool
}

// Segment is one timed line of a transcript.
type Segment struct {
	Text     string  `json:"text"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// Transcript is the cached form of a video's captions.
type Transcript struct {
	Metadata TranscriptMetadata `json:"metadata"`
	Segments []Segment          `json:"segments"`
}

// TranscriptMetadata describes where a transcript came from.
type TranscriptMetadata struct {
	Language     string    `json:"language"`
	LanguageCode string    `json:"language_code"`
	IsGenerated  bool      `json:"is_generated"`
	SegmentCount int       `json:"segment_count"`
	VideoID      string    `json:"video_id"`
	DownloadedAt time.Time `json:"downloaded_at"`
}

// SelectBest picks the preferred track: a manual English track, then any
// English track, then the first one listed.
func SelectBest(tracks []Track) (Track, bool) {
	if len(tracks) == 0 {
		return Track{}, false
	}
	var english []Track
	for _, t := range tracks {
		if strings.HasPrefix(t.LanguageCode, "en") {
			english = append(english, t)
		}
	}
	for _, t := range english {
		if !t.Generated {
			return t, true
		}
	}
	if len(english) > 0 {
		return english[0], true
	}
	return tracks[0], true
}

// DownloadTranscript fetches the best track of a video. A video without
// captions returns nil and no error.
func DownloadTranscript(ctx context.Context, src TranscriptSource, videoID string, now time.Time) (*Transcript, error) {
	tracks, err := src.Tracks(ctx, videoID)
	if errors.Is(err, ErrNoTranscript) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	track, ok := SelectBest(tracks)
	if !ok {
		return nil, nil
	}

	segments, err := src.Fetch(ctx, track)
	if errors.Is(err, ErrNoTranscript) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &Transcript{
		Metadata: TranscriptMetadata{
			Language:     track.Language,
			LanguageCode: track.LanguageCode,
			IsGenerated:  track.Generated,
			SegmentCount: len(segments),
			VideoID:      videoID,
			DownloadedAt: now,
		},
		Segments: segments,
	}, nil
}
