// Package llm sends prompts to a text-completion endpoint speaking the
// Ollama generate API.
package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	httpclient "ytarchive/http"
)

// Defaults used when a Request leaves them empty.
const (
	DefaultModel       = "gpt-4.1-mini"
	DefaultTemperature = 0.8
)

// Request is one completion call. Prompt is a template whose {name}
// placeholders are filled from Params; {{ and }} are literal braces.
type Request struct {
	Prompt string
	Params map[string]string
	Model  string
	// Temperature ranges from 0 to 2 and is sent as given.
	Temperature float64
}

// Completer turns a prompt into text.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// RenderPrompt substitutes params into tmpl. Placeholders without a
// parameter are left as they are.
func RenderPrompt(tmpl string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := []string{"{{", "{", "}}", "}"}
	for _, k := range keys {
		pairs = append(pairs, "{"+k+"}", params[k])
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// Config configures a Client.
type Config struct {
	// BaseURL is the server root, e.g. http://localhost:11434.
	BaseURL string
	// APIKey is sent as a bearer token when set.
	APIKey  string
	Timeout time.Duration
}

// Client implements Completer over HTTP.
type Client struct {
	http    *httpclient.Client
	baseURL string
	apiKey  string
}

// NewClient creates a completion client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	hc := httpclient.DefaultConfig()
	hc.Timeout = cfg.Timeout
	return &Client{
		http:    httpclient.New(hc),
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
	}
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Complete implements Completer.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	model := req.Model
	if model == "" {
		model = DefaultModel
	}
	payload := generateRequest{
		Model:   model,
		Prompt:  RenderPrompt(req.Prompt, req.Params),
		Stream:  false,
		Options: generateOptions{Temperature: req.Temperature},
	}

	var headers map[string]string
	if c.apiKey != "" {
		headers = map[string]string{"Authorization": "Bearer " + c.apiKey}
	}

	var resp generateResponse
	if _, err := c.http.PostJSON(ctx, c.baseURL+"/api/generate", payload, headers, &resp); err != nil {
		return "", fmt.Errorf("llm %s: %w", model, err)
	}
	if !resp.Done {
		return "", fmt.Errorf("llm %s: incomplete response", model)
	}
	return strings.TrimSpace(resp.Response), nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	return c.http.Close()
}
