package youtube

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	httpclient "ytarchive/http"
)

// DefaultTimedtextURL is the public captions endpoint.
const DefaultTimedtextURL = "https://www.youtube.com/api/timedtext"

// Timedtext implements TranscriptSource on YouTube's timedtext endpoint.
type Timedtext struct {
	httpClient *httpclient.Client
	baseURL    string
}

// NewTimedtext creates a captions source. An empty baseURL selects
// DefaultTimedtextURL.
func NewTimedtext(baseURL string, client *httpclient.Client) *Timedtext {
	if baseURL == "" {
		baseURL = DefaultTimedtextURL
	}
	if client == nil {
		cfg := httpclient.DefaultConfig()
		cfg.Timeout = 30 * time.Second
		cfg.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
		cfg.ForbiddenIsRateLimit = true
		client = httpclient.New(cfg)
	}
	return &Timedtext{httpClient: client, baseURL: baseURL}
}

type trackList struct {
	Tracks []struct {
		LangCode     string `xml:"lang_code,attr"`
		LangOriginal string `xml:"lang_original,attr"`
		Name         string `xml:"name,attr"`
		Kind         string `xml:"kind,attr"`
	} `xml:"track"`
}

// timedtextResponse is the json3 caption format.
type timedtextResponse struct {
	Events []struct {
		TStartMs    int64 `json:"tStartMs"`
		DDurationMs int64 `json:"dDurationMs"`
		Segs        []struct {
			UTF8 string `json:"utf8"`
		} `json:"segs"`
	} `json:"events"`
}

// Tracks implements TranscriptSource.
func (tc *Timedtext) Tracks(ctx context.Context, videoID string) ([]Track, error) {
	if videoID == "" {
		return nil, fmt.Errorf("video ID is required")
	}
	params := url.Values{}
	params.Set("type", "list")
	params.Set("v", videoID)

	resp, err := tc.httpClient.Get(ctx, tc.baseURL+"?"+params.Encode())
	if err != nil {
		if httpclient.StatusCode(err) == http.StatusNotFound {
			return nil, ErrNoTranscript
		}
		return nil, fmt.Errorf("list caption tracks: %w", err)
	}
	if len(strings.TrimSpace(string(resp.Body))) == 0 {
		return nil, nil
	}

	var list trackList
	if err := xml.Unmarshal(resp.Body, &list); err != nil {
		return nil, fmt.Errorf("parse caption track list: %w", err)
	}

	tracks := make([]Track, 0, len(list.Tracks))
	for _, t := range list.Tracks {
		tracks = append(tracks, Track{
			VideoID:      videoID,
			LanguageCode: t.LangCode,
			Language:     t.LangOriginal,
			Name:         t.Name,
			Generated:    t.Kind == "asr",
		})
	}
	return tracks, nil
}

// Fetch implements TranscriptSource.
func (tc *Timedtext) Fetch(ctx context.Context, track Track) ([]Segment, error) {
	params := url.Values{}
	params.Set("v", track.VideoID)
	params.Set("lang", track.LanguageCode)
	params.Set("fmt", "json3")
	if track.Generated {
		params.Set("kind", "asr")
	}
	if track.Name != "" {
		params.Set("name", track.Name)
	}

	resp, err := tc.httpClient.Get(ctx, tc.baseURL+"?"+params.Encode())
	if err != nil {
		if httpclient.StatusCode(err) == http.StatusNotFound {
			return nil, ErrNoTranscript
		}
		return nil, fmt.Errorf("fetch captions %s/%s: %w", track.VideoID, track.LanguageCode, err)
	}
	if len(resp.Body) == 0 {
		return nil, ErrNoTranscript
	}
	return parseTimedtext(resp.Body)
}

func parseTimedtext(data []byte) ([]Segment, error) {
	var resp timedtextResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse timedtext response: %w", err)
	}

	var segments []Segment
	for _, event := range resp.Events {
		if len(event.Segs) == 0 {
			continue
		}
		var text strings.Builder
		for _, seg := range event.Segs {
			text.WriteString(seg.UTF8)
		}
		if strings.TrimSpace(text.String()) == "" {
			continue
		}
		segments = append(segments, Segment{
			Text:     text.String(),
			Start:    float64(event.TStartMs) / 1000.0,
			Duration: float64(event.DDurationMs) / 1000.0,
		})
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: no caption events", ErrNoTranscript)
	}
	return segments, nil
}

// Close releases idle connections.
func (tc *Timedtext) Close() error {
	return tc.httpClient.Close()
}
