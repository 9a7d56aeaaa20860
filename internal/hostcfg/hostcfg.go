// Package hostcfg builds the endpoint configuration document consumed by
// observability hosts such as Phoenix. Documents are generated with
// ${VAR} placeholders so they can be committed or templated, and rendered
// against the environment at deploy time.
package hostcfg

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/drone/envsubst"
)

const responseTransformer = `
if (response.choices && response.choices.length > 0) {
  const choice = response.choices[0];
  if (choice.message && choice.message.content) {
    choice.text = choice.message.content;
  } else if (choice.text && !choice.message) {
    choice.message = { role: "assistant", content: choice.text };
  }
}
return response;
`

const streamingTransformer = `
if (chunk.choices && chunk.choices.length > 0) {
  const choice = chunk.choices[0];
  if (choice.delta && choice.delta.content) {
    choice.text = choice.delta.content;
  }
}
return chunk;
`

type Doc struct {
	APIBase        string            `json:"api_base"`
	APIKey         string            `json:"api_key"`
	Model          string            `json:"model"`
	Headers        map[string]string `json:"headers,omitempty"`
	Timeout        int               `json:"timeout,omitempty"`
	ResponseSchema map[string]any    `json:"response_schema,omitempty"`
	Transformers   *Transformers     `json:"transformers,omitempty"`
}

type Transformers struct {
	Response  string `json:"response,omitempty"`
	Streaming string `json:"streaming,omitempty"`
}

func base() *Doc {
	return &Doc{
		APIBase: "${INFERENCE_URL}/v1",
		APIKey:  "Bearer ${INFERENCE_KEY}",
		Model:   "${INFERENCE_MODEL_ID:-claude-4-sonnet}",
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Timeout: 60000,
	}
}

// Direct points the host straight at the inference endpoint and forces a
// plain-text response schema. It only works for hosts that read
// choices[0].message.content themselves.
func Direct() *Doc {
	d := base()
	d.ResponseSchema = map[string]any{"type": "text"}
	return d
}

// Embedded points the host straight at the inference endpoint and carries
// script transformers for hosts that can run them in-process.
func Embedded() *Doc {
	d := base()
	d.Transformers = &Transformers{
		Response:  responseTransformer,
		Streaming: streamingTransformer,
	}
	return d
}

// Shim points the host at a locally running relay, which normalizes
// responses before the host sees them. No host-side transformer is needed.
func Shim(port int) *Doc {
	d := base()
	d.APIBase = fmt.Sprintf("http://localhost:%d/v1", port)
	return d
}

// Placeholder returns the document with ${VAR} references left intact.
func (d *Doc) Placeholder() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// Render expands ${VAR} and ${VAR:-default} references from the process
// environment.
func (d *Doc) Render() ([]byte, error) {
	return d.RenderWith(os.Getenv)
}

// RenderWith expands references through the given lookup.
func (d *Doc) RenderWith(lookup func(string) string) ([]byte, error) {
	b, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, err
	}
	out, err := envsubst.Eval(string(b), lookup)
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

// WriteFile writes a rendered document to path.
func WriteFile(path string, b []byte) error {
	return os.WriteFile(path, b, 0o644)
}
