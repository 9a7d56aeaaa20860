package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"

	"github.com/sokinpui/concord.go/internal/models"
)

const doneMarker = "[DONE]"

// DefaultBaseURL is the hosted inference endpoint used when Config.BaseURL
// is left empty.
const DefaultBaseURL = "https://us.inference.heroku.com/v1"

// ErrMissingKey is returned by New when no API key is configured.
var ErrMissingKey = errors.New("inference API key is not set")

// Config holds the connection parameters for the inference endpoint.
// BaseURL is the versioned root, e.g. "https://us.inference.heroku.com/v1".
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Upstream is a verbatim upstream reply: status, headers and body exactly as
// received, including error replies.
type Upstream struct {
	Status int
	Header http.Header
	Body   []byte
}

// Stream is an open streaming reply. The caller owns Body and must close it.
type Stream struct {
	Status int
	Header http.Header
	Body   io.ReadCloser
}

// Close closes the underlying response body.
func (s *Stream) Close() error {
	return s.Body.Close()
}

// Event holds either one raw SSE data payload or a stream error.
type Event struct {
	Data []byte
	Err  error
}

// StatusError reports a non-2xx reply from the inference endpoint.
type StatusError struct {
	Status int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.Status, snippet(e.Body, 200))
}

// Client is an interface for talking to an OpenAI-compatible inference
// endpoint.
type Client interface {
	// Chat sends a completion request and decodes the reply.
	// Non-2xx replies are returned as a *StatusError.
	Chat(ctx context.Context, req *models.ChatRequest) (*models.ChatResponse, error)

	// ChatRaw forwards an already-encoded request body and returns the
	// upstream reply verbatim, whatever its status.
	ChatRaw(ctx context.Context, body []byte) (*Upstream, error)

	// ChatStream forwards an already-encoded request body and returns the
	// open reply without reading it.
	ChatStream(ctx context.Context, body []byte) (*Stream, error)

	// Events sends a streaming completion request and returns a channel of
	// SSE data payloads. A stream error is sent on the channel; the channel
	// is closed once the stream ends. An error is returned if the initial
	// request fails.
	Events(ctx context.Context, req *models.ChatRequest) (<-chan Event, error)

	// ModelsRaw fetches the model listing verbatim.
	ModelsRaw(ctx context.Context) (*Upstream, error)

	// Close releases idle connections.
	Close() error
}

// httpClient is the resty implementation of the Client interface.
type httpClient struct {
	http    *resty.Client
	timeout time.Duration
}

// New creates a client for the given endpoint.
func New(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	rc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json")

	return &httpClient{http: rc, timeout: cfg.Timeout}, nil
}

// Close implements the Client interface.
func (c *httpClient) Close() error {
	c.http.GetClient().CloseIdleConnections()
	return nil
}

// Chat implements the Client interface.
func (c *httpClient) Chat(ctx context.Context, req *models.ChatRequest) (*models.ChatResponse, error) {
	ctx, cancel := c.deadline(ctx)
	defer cancel()

	var out models.ChatResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/chat/completions")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, &StatusError{Status: resp.StatusCode(), Body: resp.Body()}
	}
	return &out, nil
}

// ChatRaw implements the Client interface.
func (c *httpClient) ChatRaw(ctx context.Context, body []byte) (*Upstream, error) {
	ctx, cancel := c.deadline(ctx)
	defer cancel()

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post("/chat/completions")
	if err != nil {
		return nil, err
	}
	return &Upstream{Status: resp.StatusCode(), Header: resp.Header(), Body: resp.Body()}, nil
}

// ChatStream implements the Client interface. The stream is bounded by ctx
// only, not by the configured timeout.
func (c *httpClient) ChatStream(ctx context.Context, body []byte) (*Stream, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetHeader("Accept", "text/event-stream").
		SetBody(body).
		Post("/chat/completions")
	if err != nil {
		return nil, err
	}
	return &Stream{
		Status: resp.StatusCode(),
		Header: resp.Header(),
		Body:   resp.RawBody(),
	}, nil
}

// Events implements the Client interface.
func (c *httpClient) Events(ctx context.Context, req *models.ChatRequest) (<-chan Event, error) {
	r := *req
	r.Stream = true

	body, err := json.Marshal(&r)
	if err != nil {
		return nil, err
	}

	stream, err := c.ChatStream(ctx, body)
	if err != nil {
		return nil, err
	}
	if stream.Status != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(stream.Body, 4096))
		stream.Close()
		return nil, &StatusError{Status: stream.Status, Body: b}
	}

	events := make(chan Event)

	go func() {
		defer close(events)
		defer stream.Close()

		sc := bufio.NewScanner(stream.Body)
		sc.Buffer(make([]byte, 64*1024), 1024*1024)

		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == doneMarker {
				return
			}
			if payload == "" {
				continue
			}
			select {
			case events <- Event{Data: []byte(payload)}:
			case <-ctx.Done():
				return
			}
		}
		if err := sc.Err(); err != nil {
			select {
			case events <- Event{Err: err}:
			case <-ctx.Done():
			}
		}
	}()

	return events, nil
}

// ModelsRaw implements the Client interface.
func (c *httpClient) ModelsRaw(ctx context.Context) (*Upstream, error) {
	ctx, cancel := c.deadline(ctx)
	defer cancel()

	resp, err := c.http.R().
		SetContext(ctx).
		Get("/models")
	if err != nil {
		return nil, err
	}
	return &Upstream{Status: resp.StatusCode(), Header: resp.Header(), Body: resp.Body()}, nil
}

func (c *httpClient) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func snippet(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) <= n {
		return s
	}
	// Back up so the cut never lands inside a multi-byte rune.
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
