package youtube

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpclient "ytarchive/http"
)

func TestSelectBest(t *testing.T) {
	manualEN := Track{LanguageCode: "en", Language: "English"}
	autoEN := Track{LanguageCode: "en", Language: "English", Generated: true}
	gb := Track{LanguageCode: "en-GB", Language: "English (UK)", Generated: true}
	de := Track{LanguageCode: "de", Language: "Deutsch"}

	tests := []struct {
		name   string
		tracks []Track
		want   Track
		ok     bool
	}{
		{"none", nil, Track{}, false},
		{"manual english wins", []Track{de, autoEN, manualEN}, manualEN, true},
		{"first english variant", []Track{de, gb, autoEN}, gb, true},
		{"first track otherwise", []Track{de, {LanguageCode: "fr"}}, de, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SelectBest(tt.tracks)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

type fakeSource struct {
	tracks   []Track
	listErr  error
	segments []Segment
	fetched  []Track
}

func (f *fakeSource) Tracks(ctx context.Context, videoID string) ([]Track, error) {
	return f.tracks, f.listErr
}

func (f *fakeSource) Fetch(ctx context.Context, track Track) ([]Segment, error) {
	f.fetched = append(f.fetched, track)
	return f.segments, nil
}

func TestDownloadTranscript(t *testing.T) {
	now := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{
		tracks:   []Track{{VideoID: "v1", LanguageCode: "de"}, {VideoID: "v1", LanguageCode: "en", Language: "English", Generated: true}},
		segments: []Segment{{Text: "hi", Start: 0, Duration: 1.5}},
	}

	tr, err := DownloadTranscript(context.Background(), src, "v1", now)
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, "en", src.fetched[0].LanguageCode)
	assert.Equal(t, TranscriptMetadata{
		Language: "English", LanguageCode: "en", IsGenerated: true,
		SegmentCount: 1, VideoID: "v1", DownloadedAt: now,
	}, tr.Metadata)
}

func TestDownloadTranscriptNone(t *testing.T) {
	for _, src := range []*fakeSource{{}, {listErr: ErrNoTranscript}} {
		tr, err := DownloadTranscript(context.Background(), src, "v1", time.Now())
		assert.NoError(t, err)
		assert.Nil(t, tr)
	}

	boom := errors.New("boom")
	_, err := DownloadTranscript(context.Background(), &fakeSource{listErr: boom}, "v1", time.Now())
	assert.ErrorIs(t, err, boom)
}

func testTimedtext(t *testing.T, handler http.HandlerFunc) *Timedtext {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := httpclient.DefaultConfig()
	cfg.ForbiddenIsRateLimit = true
	return NewTimedtext(srv.URL+"/api/timedtext", httpclient.New(cfg))
}

func TestTimedtextTracks(t *testing.T) {
	tc := testTimedtext(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "list", r.URL.Query().Get("type"))
		assert.Equal(t, "v1", r.URL.Query().Get("v"))
		w.Write([]byte(`<?xml version="1.0" encoding="utf-8" ?><transcript_list docid="1">
<track id="0" name="" lang_code="en" lang_original="English" lang_translated="English" kind="asr"/>
<track id="1" name="Director" lang_code="de" lang_original="Deutsch" lang_translated="German"/>
</transcript_list>`))
	})

	tracks, err := tc.Tracks(context.Background(), "v1")
	require.NoError(t, err)
	assert.Equal(t, []Track{
		{VideoID: "v1", LanguageCode: "en", Language: "English", Generated: true},
		{VideoID: "v1", LanguageCode: "de", Language: "Deutsch", Name: "Director"},
	}, tracks)
}

func TestTimedtextTracksEmptyAndMissing(t *testing.T) {
	tc := testTimedtext(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("v") == "missing" {
			w.WriteHeader(http.StatusNotFound)
		}
	})

	tracks, err := tc.Tracks(context.Background(), "v1")
	require.NoError(t, err)
	assert.Empty(t, tracks)

	_, err = tc.Tracks(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNoTranscript)
}

func TestTimedtextFetch(t *testing.T) {
	tc := testTimedtext(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "json3", q.Get("fmt"))
		assert.Equal(t, "en", q.Get("lang"))
		assert.Equal(t, "asr", q.Get("kind"))
		w.Write([]byte(`{"events":[
			{"tStartMs":0,"dDurationMs":1500,"segs":[{"utf8":"hello "},{"utf8":"world"}]},
			{"tStartMs":1500,"dDurationMs":10},
			{"tStartMs":1600,"dDurationMs":900,"segs":[{"utf8":"\n"}]},
			{"tStartMs":2500,"dDurationMs":1000,"segs":[{"utf8":"again"}]}]}`))
	})

	segs, err := tc.Fetch(context.Background(), Track{VideoID: "v1", LanguageCode: "en", Generated: true})
	require.NoError(t, err)
	assert.Equal(t, []Segment{
		{Text: "hello world", Start: 0, Duration: 1.5},
		{Text: "again", Start: 2.5, Duration: 1},
	}, segs)
}

func TestTimedtextForbiddenIsThrottling(t *testing.T) {
	tc := testTimedtext(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := tc.Fetch(context.Background(), Track{VideoID: "v1", LanguageCode: "en"})
	var rl *httpclient.RateLimitError
	assert.True(t, errors.As(err, &rl))
}
