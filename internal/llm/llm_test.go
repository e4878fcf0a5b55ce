package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderPrompt(t *testing.T) {
	tests := []struct {
		name   string
		tmpl   string
		params map[string]string
		want   string
	}{
		{"substitutes", "Title: {title}\nTags: {tags}", map[string]string{"title": "T", "tags": "a, b"}, "Title: T\nTags: a, b"},
		{"literal braces", "`{{x}}` and {title}", map[string]string{"title": "T"}, "`{x}` and T"},
		{"unknown placeholder kept", "{missing} {title}", map[string]string{"title": "T"}, "{missing} T"},
		{"values are not expanded", "{a}", map[string]string{"a": "{b}", "b": "no"}, "{b}"},
		{"no params", "plain", nil, "plain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RenderPrompt(tt.tmpl, tt.params))
		})
	}
}

func TestClientComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o", req.Model)
		assert.Equal(t, "Hello World", req.Prompt)
		assert.False(t, req.Stream)
		assert.Equal(t, 0.4, req.Options.Temperature)

		json.NewEncoder(w).Encode(generateResponse{Model: req.Model, Response: "  answer\n", Done: true})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL + "/", APIKey: "secret"})
	out, err := c.Complete(context.Background(), Request{
		Prompt:      "Hello {name}",
		Params:      map[string]string{"name": "World"},
		Model:       "gpt-4o",
		Temperature: 0.4,
	})
	require.NoError(t, err)
	assert.Equal(t, "answer", out)
}

func TestClientCompleteDefaultsAndErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Empty(t, r.Header.Get("Authorization"))
		switch req.Prompt {
		case "fail":
			w.WriteHeader(http.StatusBadRequest)
		case "partial":
			json.NewEncoder(w).Encode(generateResponse{Response: "half"})
		default:
			assert.Equal(t, DefaultModel, req.Model)
			json.NewEncoder(w).Encode(generateResponse{Response: "ok", Done: true})
		}
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	out, err := c.Complete(context.Background(), Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)

	_, err = c.Complete(context.Background(), Request{Prompt: "fail"})
	assert.Error(t, err)
	_, err = c.Complete(context.Background(), Request{Prompt: "partial"})
	assert.ErrorContains(t, err, "incomplete")
}
