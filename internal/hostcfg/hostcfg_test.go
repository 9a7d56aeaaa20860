package hostcfg

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookup(env map[string]string) func(string) string {
	return func(k string) string { return env[k] }
}

func TestDirectPlaceholder(t *testing.T) {
	b, err := Direct().Placeholder()
	require.NoError(t, err)

	s := string(b)
	assert.Contains(t, s, "${INFERENCE_URL}/v1")
	assert.Contains(t, s, "Bearer ${INFERENCE_KEY}")
	assert.Contains(t, s, "${INFERENCE_MODEL_ID:-claude-4-sonnet}")
	assert.Contains(t, s, `"response_schema"`)
	assert.NotContains(t, s, `"transformers"`)
}

func TestRenderWith(t *testing.T) {
	b, err := Direct().RenderWith(lookup(map[string]string{
		"INFERENCE_URL": "https://us.inference.heroku.com",
		"INFERENCE_KEY": "inf-abc123",
	}))
	require.NoError(t, err)

	var doc Doc
	require.NoError(t, json.Unmarshal(b, &doc))
	assert.Equal(t, "https://us.inference.heroku.com/v1", doc.APIBase)
	assert.Equal(t, "Bearer inf-abc123", doc.APIKey)
	assert.Equal(t, "claude-4-sonnet", doc.Model)
	assert.Equal(t, "application/json", doc.Headers["Content-Type"])
	assert.Equal(t, 60000, doc.Timeout)
}

func TestRenderKeepsModelOverride(t *testing.T) {
	b, err := Direct().RenderWith(lookup(map[string]string{
		"INFERENCE_URL":      "https://eu.inference.heroku.com",
		"INFERENCE_KEY":      "inf-abc123",
		"INFERENCE_MODEL_ID": "claude-4-5-haiku",
	}))
	require.NoError(t, err)

	var doc Doc
	require.NoError(t, json.Unmarshal(b, &doc))
	assert.Equal(t, "claude-4-5-haiku", doc.Model)
}

func TestEmbeddedTransformersSurviveRender(t *testing.T) {
	b, err := Embedded().RenderWith(lookup(map[string]string{
		"INFERENCE_URL": "https://us.inference.heroku.com",
		"INFERENCE_KEY": "inf-abc123",
	}))
	require.NoError(t, err)

	var doc Doc
	require.NoError(t, json.Unmarshal(b, &doc))
	require.NotNil(t, doc.Transformers)
	assert.Contains(t, doc.Transformers.Response, "choice.text = choice.message.content")
	assert.Contains(t, doc.Transformers.Response, `role: "assistant"`)
	assert.Contains(t, doc.Transformers.Streaming, "choice.delta.content")
}

func TestShim(t *testing.T) {
	b, err := Shim(7070).RenderWith(lookup(map[string]string{
		"INFERENCE_KEY": "inf-abc123",
	}))
	require.NoError(t, err)

	var doc Doc
	require.NoError(t, json.Unmarshal(b, &doc))
	assert.Equal(t, "http://localhost:7070/v1", doc.APIBase)
	assert.Nil(t, doc.Transformers)
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "phoenix_config.json")

	b, err := Shim(6066).Placeholder()
	require.NoError(t, err)
	require.NoError(t, WriteFile(path, b))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, b, got)
}
