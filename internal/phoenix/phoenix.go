// Package phoenix is a thin client for the Phoenix trace API. The
// diagnostics use it to compare what the inference endpoint returned with
// what the host actually recorded.
package phoenix

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/sokinpui/concord.go/fieldpath"
)

// Trace is one recorded LLM call. The schema varies across host versions,
// so it stays a loose map and is read through field paths.
type Trace map[string]any

// ID returns the trace identifier, empty when the trace carries none.
func (t Trace) ID() string {
	for _, k := range []string{"id", "trace_id"} {
		if s, ok := t[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// Content extracts the recorded output content, trying the shapes Phoenix
// has used across versions.
func (t Trace) Content() (string, bool) {
	for _, path := range []string{
		"outputs.content",
		"outputs.choices[0].message.content",
		"outputs.choices[0].text",
		"metadata.output_content",
	} {
		if s, ok := fieldpath.Text(map[string]any(t), path); ok {
			return s, true
		}
	}
	return "", false
}

type Client struct {
	http *resty.Client
}

// New creates a client for the Phoenix instance at baseURL.
func New(baseURL string) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(10 * time.Second),
	}
}

// Traces lists traces recorded since the given time.
func (c *Client) Traces(ctx context.Context, since time.Time, limit int) ([]Trace, error) {
	var out []Trace
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"timestamp_gte": since.Format(time.RFC3339),
			"limit":         strconv.Itoa(limit),
			"skip":          "0",
		}).
		SetResult(&out).
		Get("/api/v1/llm-traces")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("phoenix returned %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	return out, nil
}

// Trace fetches one trace by id.
func (c *Client) Trace(ctx context.Context, id string) (Trace, error) {
	var out Trace
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/api/v1/llm-traces/" + url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("phoenix returned %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	return out, nil
}
