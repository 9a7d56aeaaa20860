package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/concord.go/internal/models"
)

func stub(t *testing.T, h http.HandlerFunc) Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	c, err := New(Config{BaseURL: ts.URL + "/v1", APIKey: "inf-test-key", Timeout: 5 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestNewMissingKey(t *testing.T) {
	_, err := New(Config{BaseURL: "http://localhost:9"})
	assert.ErrorIs(t, err, ErrMissingKey)
}

func TestChat(t *testing.T) {
	c := stub(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer inf-test-key", r.Header.Get("Authorization"))
		assert.Contains(t, r.Header.Get("Content-Type"), "application/json")

		var req models.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "claude-4-sonnet", req.Model)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"chatcmpl-1","choices":[{"index":0,"message":{"role":"assistant","content":"Hi there!"},"finish_reason":"stop"}]}`)
	})

	resp, err := c.Chat(context.Background(), &models.ChatRequest{
		Model:    "claude-4-sonnet",
		Messages: []models.ChatMessage{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)
	require.NotNil(t, resp.Choices[0].Message)
	assert.Equal(t, "Hi there!", resp.Choices[0].Message.Content)
}

func TestChatUpstreamError(t *testing.T) {
	c := stub(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"invalid key"}}`)
	})

	_, err := c.Chat(context.Background(), &models.ChatRequest{Model: "m"})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.Status)
	assert.Contains(t, se.Error(), "401")
	assert.Contains(t, se.Error(), "invalid key")
}

func TestStatusErrorTruncatesOnRuneBoundary(t *testing.T) {
	// One leading ASCII byte pushes the cut into the middle of a rune.
	se := &StatusError{Status: http.StatusBadGateway, Body: []byte("x" + strings.Repeat("é", 150))}

	msg := se.Error()
	assert.Contains(t, msg, "502")
	assert.True(t, strings.HasSuffix(msg, "..."))
	assert.True(t, utf8.ValidString(msg))
}

func TestChatRaw(t *testing.T) {
	body := []byte(`{"model":"claude-4-sonnet","messages":[],"nonstandard":{"keep":true}}`)

	c := stub(t, func(w http.ResponseWriter, r *http.Request) {
		got, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, string(body), string(got))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, `{"error":{"message":"bad gateway"}}`)
	})

	up, err := c.ChatRaw(context.Background(), body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, up.Status)
	assert.Contains(t, up.Header.Get("Content-Type"), "application/json")
	assert.Contains(t, string(up.Body), "bad gateway")
}

func TestEvents(t *testing.T) {
	c := stub(t, func(w http.ResponseWriter, r *http.Request) {
		var req models.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"He\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"llo\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	events, err := c.Events(context.Background(), &models.ChatRequest{Model: "m"})
	require.NoError(t, err)

	var parts []string
	for ev := range events {
		require.NoError(t, ev.Err)
		var chunk models.ChatCompletionChunk
		require.NoError(t, json.Unmarshal(ev.Data, &chunk))
		require.Len(t, chunk.Choices, 1)
		parts = append(parts, chunk.Choices[0].Delta.Content)
	}
	assert.Equal(t, []string{"He", "llo"}, parts)
}

func TestEventsUpstreamError(t *testing.T) {
	c := stub(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "boom")
	})

	_, err := c.Events(context.Background(), &models.ChatRequest{Model: "m"})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.Status)
	assert.Contains(t, string(se.Body), "boom")
}

func TestChatStream(t *testing.T) {
	c := stub(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	s, err := c.ChatStream(context.Background(), []byte(`{"model":"m","stream":true}`))
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, http.StatusOK, s.Status)
	assert.Contains(t, s.Header.Get("Content-Type"), "text/event-stream")

	raw, err := io.ReadAll(s.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "[DONE]")
}

func TestModelsRaw(t *testing.T) {
	c := stub(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/models", r.URL.Path)
		assert.Equal(t, "Bearer inf-test-key", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[{"id":"claude-4-sonnet","object":"model"}]}`)
	})

	up, err := c.ModelsRaw(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, up.Status)

	var list models.ModelList
	require.NoError(t, json.Unmarshal(up.Body, &list))
	require.Len(t, list.Data, 1)
	assert.Equal(t, "claude-4-sonnet", list.Data[0].ID)
}
