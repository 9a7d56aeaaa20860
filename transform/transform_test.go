package transform

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

func TestResponseMirrorsMessageContent(t *testing.T) {
	resp := decode(t, `{
		"choices": [{
			"message": {"role": "assistant", "content": "Hi there!"},
			"index": 0,
			"finish_reason": "stop"
		}]
	}`)

	out := Response(resp)

	choice := out["choices"].([]any)[0].(map[string]any)
	assert.Equal(t, "Hi there!", choice["text"])
	assert.Equal(t, "Hi there!", choice["message"].(map[string]any)["content"])
	assert.Equal(t, "assistant", choice["message"].(map[string]any)["role"])
	assert.Equal(t, float64(0), choice["index"])
	assert.Equal(t, "stop", choice["finish_reason"])
}

func TestResponseSynthesizesMessage(t *testing.T) {
	for name, raw := range map[string]string{
		"message absent": `{"choices": [{"text": "hello"}]}`,
		"message null":   `{"choices": [{"text": "hello", "message": null}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			choice := Response(decode(t, raw))["choices"].([]any)[0].(map[string]any)
			require.IsType(t, map[string]any{}, choice["message"])
			msg := choice["message"].(map[string]any)
			assert.Equal(t, "assistant", msg["role"])
			assert.Equal(t, "hello", msg["content"])
			assert.Equal(t, "hello", choice["text"])
		})
	}
}

func TestResponseIdempotent(t *testing.T) {
	for name, raw := range map[string]string{
		"from message": `{"choices": [{"message": {"role": "assistant", "content": "Hi"}}]}`,
		"from text":    `{"choices": [{"text": "Hi"}]}`,
		"no content":   `{"choices": [{"finish_reason": "stop"}]}`,
		"empty":        `{}`,
	} {
		t.Run(name, func(t *testing.T) {
			once := Response(decode(t, raw))
			twice := Response(Response(decode(t, raw)))
			assert.Equal(t, once, twice)
		})
	}
}

func TestResponseFieldAgreement(t *testing.T) {
	for _, raw := range []string{
		`{"choices": [{"message": {"role": "assistant", "content": "abc"}}]}`,
		`{"choices": [{"text": "abc"}]}`,
		`{"choices": [{"text": "stale", "message": {"role": "assistant", "content": "abc"}}]}`,
	} {
		msg, text := ContentFields(Response(decode(t, raw)))
		assert.Equal(t, "abc", msg)
		assert.Equal(t, msg, text)
	}
}

func TestResponseMessageWins(t *testing.T) {
	resp := Response(decode(t, `{
		"choices": [{"text": "old", "message": {"role": "assistant", "content": "new"}}]
	}`))

	choice := resp["choices"].([]any)[0].(map[string]any)
	assert.Equal(t, "new", choice["text"])
}

func TestResponseLeavesUnrecognizedShapesAlone(t *testing.T) {
	for name, raw := range map[string]string{
		"empty object":            `{}`,
		"choices not a list":      `{"choices": "nope"}`,
		"choices empty":           `{"choices": []}`,
		"first choice scalar":     `{"choices": [42]}`,
		"no content anywhere":     `{"choices": [{"index": 0, "finish_reason": "stop"}]}`,
		"message without content": `{"choices": [{"message": {"role": "assistant"}}]}`,
		"content empty string":    `{"choices": [{"message": {"role": "assistant", "content": ""}}]}`,
		"content not a string":    `{"choices": [{"message": {"role": "assistant", "content": 7}}]}`,
		"text with message shell": `{"choices": [{"text": "hi", "message": {"role": "assistant"}}]}`,
		"text empty string":       `{"choices": [{"text": ""}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			want := decode(t, raw)
			assert.Equal(t, want, Response(decode(t, raw)))
		})
	}
}

func TestResponseNilMap(t *testing.T) {
	assert.Nil(t, Response(nil))
}

func TestResponsePreservesMetadata(t *testing.T) {
	resp := Response(decode(t, `{
		"id": "chatcmpl-123",
		"model": "claude-4-sonnet",
		"usage": {"prompt_tokens": 10, "completion_tokens": 3, "total_tokens": 13},
		"choices": [
			{"message": {"role": "assistant", "content": "one", "tool_calls": null}},
			{"message": {"role": "assistant", "content": "two"}}
		]
	}`))

	assert.Equal(t, "chatcmpl-123", resp["id"])
	assert.Equal(t, "claude-4-sonnet", resp["model"])
	assert.Equal(t, float64(13), resp["usage"].(map[string]any)["total_tokens"])

	first := resp["choices"].([]any)[0].(map[string]any)
	assert.Contains(t, first, "tool_calls")
	assert.Equal(t, "one", first["text"])

	second := resp["choices"].([]any)[1].(map[string]any)
	assert.NotContains(t, second, "text")
}

func TestStreamChunkMirrorsDelta(t *testing.T) {
	chunks := []string{
		`{"choices": [{"delta": {"content": "He"}, "index": 0}]}`,
		`{"choices": [{"delta": {"content": "llo"}, "index": 0}]}`,
	}
	want := []string{"He", "llo"}

	for i, raw := range chunks {
		choice := StreamChunk(decode(t, raw))["choices"].([]any)[0].(map[string]any)
		assert.Equal(t, want[i], choice["text"])
		assert.NotContains(t, choice, "message")
	}
}

func TestStreamChunkPassthrough(t *testing.T) {
	for name, raw := range map[string]string{
		"no delta":         `{"choices": [{"index": 0}]}`,
		"delta no content": `{"choices": [{"delta": {"role": "assistant"}}]}`,
		"empty content":    `{"choices": [{"delta": {"content": ""}}]}`,
		"final chunk":      `{"choices": [{"delta": {}, "finish_reason": "stop"}]}`,
		"no choices":       `{"object": "chat.completion.chunk"}`,
	} {
		t.Run(name, func(t *testing.T) {
			want := decode(t, raw)
			assert.Equal(t, want, StreamChunk(decode(t, raw)))
		})
	}
}

func TestResponseJSON(t *testing.T) {
	in := []byte(`{"choices":[{"message":{"role":"assistant","content":"Hi"}}]}`)
	out, changed := ResponseJSON(in)
	require.True(t, changed)

	var v map[string]any
	require.NoError(t, json.Unmarshal(out, &v))
	assert.Equal(t, "Hi", v["choices"].([]any)[0].(map[string]any)["text"])
}

func TestResponseJSONUntouched(t *testing.T) {
	for name, in := range map[string]string{
		"not json":         `this is not json`,
		"json array":       `[1, 2, 3]`,
		"nothing to do":    `{"choices":[{"finish_reason":"stop"}]}`,
		"already mirrored": `{"choices":[{"message":{"content":"Hi"},"text":"Hi"}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			out, changed := ResponseJSON([]byte(in))
			assert.False(t, changed)
			assert.Equal(t, in, string(out))
		})
	}
}

func TestChunkJSON(t *testing.T) {
	out, changed := ChunkJSON([]byte(`{"choices":[{"delta":{"content":"Hi"}}]}`))
	require.True(t, changed)

	var v map[string]any
	require.NoError(t, json.Unmarshal(out, &v))
	assert.Equal(t, "Hi", v["choices"].([]any)[0].(map[string]any)["text"])
}

func TestChunkJSONDoneMarker(t *testing.T) {
	out, changed := ChunkJSON([]byte("[DONE]"))
	assert.False(t, changed)
	assert.Equal(t, "[DONE]", string(out))
}

func TestContentFields(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantMsg string
		wantTxt string
	}{
		{"both", `{"choices":[{"message":{"content":"a"},"text":"b"}]}`, "a", "b"},
		{"message only", `{"choices":[{"message":{"content":"a"}}]}`, "a", ""},
		{"text only", `{"choices":[{"text":"b"}]}`, "", "b"},
		{"neither", `{"choices":[{}]}`, "", ""},
		{"no choices", `{}`, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, text := ContentFields(decode(t, tt.raw))
			assert.Equal(t, tt.wantMsg, msg)
			assert.Equal(t, tt.wantTxt, text)
		})
	}
}
