// Package diag holds the deployment diagnostics: probes that exercise the
// inference endpoint, inspect the reply shape against what rendering hosts
// expect, and suggest configuration for what they find.
package diag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sokinpui/concord.go/client"
	"github.com/sokinpui/concord.go/fieldpath"
	"github.com/sokinpui/concord.go/internal/color"
	"github.com/sokinpui/concord.go/internal/config"
	"github.com/sokinpui/concord.go/internal/hostcfg"
	"github.com/sokinpui/concord.go/internal/models"
	"github.com/sokinpui/concord.go/internal/phoenix"
	"github.com/sokinpui/concord.go/transform"
)

const probePrompt = "Say hello in plain text"

type Runner struct {
	cfg    *config.Settings
	client client.Client
	out    io.Writer
}

func NewRunner(cfg *config.Settings, c client.Client, out io.Writer) *Runner {
	return &Runner{cfg: cfg, client: c, out: out}
}

// Curl prints a copy-pasteable request against the configured endpoint,
// with the key redacted.
func (r *Runner) Curl() {
	r.section("CURL EQUIVALENT")
	fmt.Fprintf(r.out, `curl -X POST \
    %s/chat/completions \
    -H "Content-Type: application/json" \
    -H "Authorization: Bearer %s" \
    -d '{
        "model": "%s",
        "messages": [
            {"role": "user", "content": "%s"}
        ],
        "max_tokens": 50
    }'
`, r.cfg.BaseURL(), r.cfg.RedactedKey(), r.cfg.ModelID, probePrompt)
}

// Call makes one completion request and returns the decoded reply.
func (r *Runner) Call(ctx context.Context) (map[string]any, error) {
	body, err := json.Marshal(r.probeRequest(probePrompt))
	if err != nil {
		return nil, err
	}

	up, err := r.client.ChatRaw(ctx, body)
	if err != nil {
		return nil, err
	}
	if up.Status != http.StatusOK {
		return nil, &client.StatusError{Status: up.Status, Body: up.Body}
	}

	var resp map[string]any
	if err := json.Unmarshal(up.Body, &resp); err != nil {
		return nil, fmt.Errorf("upstream reply is not JSON: %w", err)
	}
	return resp, nil
}

// Probe makes a direct call and reports the fields a rendering host would
// read.
func (r *Runner) Probe(ctx context.Context) (map[string]any, error) {
	r.section("DIRECT API CALL")
	r.note("POST %s/chat/completions model=%s", r.cfg.BaseURL(), r.cfg.ModelID)

	resp, err := r.Call(ctx)
	if err != nil {
		r.fail("request failed: %v", err)
		return nil, err
	}

	pretty, _ := json.MarshalIndent(resp, "", "  ")
	fmt.Fprintf(r.out, "\nFull response:\n%s\n", pretty)

	fmt.Fprintln(r.out, "\nKey fields a host may read:")
	for _, path := range []string{"choices[0].message.content", "choices[0].text", "choices[0].message"} {
		if v, ok := fieldpath.Lookup(resp, path); ok {
			r.pass("%s = %v", path, v)
		} else {
			r.fail("%s missing", path)
		}
	}
	return resp, nil
}

// Expectations checks a live reply for the two content fields hosts read.
func (r *Runner) Expectations(ctx context.Context) error {
	resp, err := r.Probe(ctx)
	if err != nil {
		return err
	}

	r.section("HOST EXPECTATIONS")

	msgContent, text := transform.ContentFields(resp)
	if msgContent != "" {
		r.pass("standard content at choices[0].message.content")
	} else {
		r.fail("no standard content at choices[0].message.content")
	}
	if text != "" {
		r.pass("legacy text at choices[0].text")
	} else {
		r.fail("no legacy text at choices[0].text")
	}

	if msgContent == "" && text == "" {
		r.fail("reply carries no content a host could render")
		return errors.New("reply carries no content in either field")
	}
	if msgContent == "" || text == "" {
		r.note("one field is missing; run the relay or an embedded transformer to fill it")
	}
	return nil
}

// Schema reports which OpenAI-compatible fields the reply carries.
func (r *Runner) Schema(ctx context.Context) error {
	resp, err := r.Call(ctx)
	if err != nil {
		return err
	}

	r.section("RESPONSE SCHEMA")
	for _, field := range []string{"id", "object", "created", "model", "choices", "usage"} {
		if v, ok := resp[field]; ok {
			r.pass("%s (%T)", field, v)
		} else {
			r.fail("%s missing", field)
		}
	}

	choices, _ := resp["choices"].([]any)
	if len(choices) == 0 {
		r.fail("no usable choices array")
		return nil
	}
	if choice, ok := choices[0].(map[string]any); ok {
		r.note("first choice keys: %s", strings.Join(sortedKeys(choice), ", "))
	}
	return nil
}

// PathTrace walks the configured extraction path against a live reply and
// shows where extraction stops.
func (r *Runner) PathTrace(ctx context.Context) error {
	resp, err := r.Call(ctx)
	if err != nil {
		return err
	}

	r.section("CONTENT EXTRACTION TRACE")
	r.note("extraction path: %s", r.cfg.ExtractPath)

	for _, st := range fieldpath.Steps(resp, r.cfg.ExtractPath) {
		if st.OK {
			r.pass("%s", st.Seg)
		} else {
			r.fail("%s (stops here)", st.Seg)
		}
	}

	if content, ok := fieldpath.Text(resp, r.cfg.ExtractPath); ok {
		r.pass("primary path resolved: %q", clip(content, 120))
		return nil
	}
	r.fail("primary path failed")

	if text, ok := fieldpath.Text(resp, "choices[0].text"); ok {
		r.pass("fallback choices[0].text resolved: %q", clip(text, 120))
		return nil
	}
	r.fail("fallback choices[0].text failed; host would render nothing")
	return nil
}

// Formats sends the request variants hosts are known to use and reports how
// each changes the reply shape.
func (r *Runner) Formats(ctx context.Context) error {
	r.section("REQUEST FORMAT VARIANTS")

	variants := []struct {
		name string
		req  *models.ChatRequest
	}{
		{"standard", r.probeRequest("Say hello")},
		{"response_format text", withFormat(r.probeRequest("Say hello"), "text")},
		{"response_format json_object", withFormat(r.probeRequest("Say hello"), "json_object")},
	}

	for _, v := range variants {
		fmt.Fprintf(r.out, "\n%s\n", color.BlueString(v.name))

		body, err := json.Marshal(v.req)
		if err != nil {
			return err
		}
		up, err := r.client.ChatRaw(ctx, body)
		if err != nil {
			r.fail("request failed: %v", err)
			continue
		}
		if up.Status != http.StatusOK {
			r.fail("status %d: %s", up.Status, clip(strings.TrimSpace(string(up.Body)), 200))
			continue
		}

		var resp map[string]any
		if err := json.Unmarshal(up.Body, &resp); err != nil {
			r.fail("reply is not JSON: %v", err)
			continue
		}
		r.reportShape(resp)
	}

	r.streamVariant(ctx)
	return nil
}

func (r *Runner) streamVariant(ctx context.Context) {
	fmt.Fprintf(r.out, "\n%s\n", color.BlueString("stream: true"))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := r.client.Events(ctx, r.probeRequest("Say hello"))
	if err != nil {
		r.fail("request failed: %v", err)
		return
	}

	shown := 0
	for ev := range events {
		if ev.Err != nil {
			r.fail("stream broke: %v", ev.Err)
			return
		}
		r.note("chunk: %s", clip(string(ev.Data), 120))
		shown++
		if shown >= 3 {
			r.note("... (more chunks)")
			return
		}
	}
	if shown == 0 {
		r.fail("stream produced no chunks")
	}
}

// Suggest prints environment and endpoint configuration matching what the
// live reply actually looks like.
func (r *Runner) Suggest(ctx context.Context) error {
	resp, err := r.Call(ctx)
	if err != nil {
		return err
	}

	r.section("SUGGESTED CONFIGURATION")

	msgContent, text := transform.ContentFields(resp)

	fmt.Fprintln(r.out, "\n# Content extraction")
	switch {
	case msgContent != "":
		fmt.Fprintln(r.out, `export PHOENIX_OPENAI_EXTRACT_CONTENT_PATH="choices[0].message.content"`)
	case text != "":
		fmt.Fprintln(r.out, `export PHOENIX_OPENAI_EXTRACT_CONTENT_PATH="choices[0].text"`)
	default:
		r.fail("no content in reply; fix the endpoint before configuring extraction")
	}

	fmt.Fprintln(r.out, "\n# Capture settings")
	fmt.Fprintln(r.out, "export PHOENIX_LLM_TRACE_MESSAGE_CONTENT=true")
	fmt.Fprintln(r.out, "export PHOENIX_LLM_ENABLE_CONTENT_CAPTURE=true")
	fmt.Fprintln(r.out, "export PHOENIX_TRACE_DEBUG=true")

	if msgContent == "" && text != "" {
		fmt.Fprintln(r.out, "\n# The reply lacks message.content. Point the host at the relay,")
		fmt.Fprintln(r.out, "# or give it an embedded transformer:")
		doc, err := hostcfg.Embedded().Placeholder()
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "%s\n", doc)
	}
	return nil
}

// SelfTest runs the normalizer against canned replies and verifies both
// content fields come out present and equal. It needs no network.
func (r *Runner) SelfTest() error {
	r.section("NORMALIZER SELF TEST")

	fixtures := []struct {
		name        string
		resp        map[string]any
		wantContent bool
	}{
		{
			name: "standard message format",
			resp: map[string]any{
				"id": "chatcmpl-123",
				"choices": []any{map[string]any{
					"index":   float64(0),
					"message": map[string]any{"role": "assistant", "content": "Hello from standard format"},
				}},
			},
			wantContent: true,
		},
		{
			name: "text field only",
			resp: map[string]any{
				"id": "chatcmpl-123",
				"choices": []any{map[string]any{
					"index": float64(0),
					"text":  "Hello from text field",
				}},
			},
			wantContent: true,
		},
		{
			name: "empty choice",
			resp: map[string]any{
				"id":      "chatcmpl-123",
				"choices": []any{map[string]any{"index": float64(0)}},
			},
			wantContent: false,
		},
	}

	failed := 0
	for _, f := range fixtures {
		msgContent, text := transform.ContentFields(transform.Response(f.resp))
		got := msgContent != "" && msgContent == text
		if got == f.wantContent {
			r.pass("%s", f.name)
		} else {
			r.fail("%s: message.content=%q text=%q", f.name, msgContent, text)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d normalizer fixture(s) failed", failed)
	}
	return nil
}

// TraceDiff makes a live call, then checks the newest Phoenix traces for
// the same content.
func (r *Runner) TraceDiff(ctx context.Context, ph *phoenix.Client) error {
	r.section("API VS TRACE CONTENT")

	resp, err := r.Call(ctx)
	if err != nil {
		return err
	}

	apiContent, _ := transform.ContentFields(transform.Response(resp))
	if apiContent == "" {
		r.fail("live reply carries no content")
		return errors.New("live reply carries no content")
	}
	r.note("live content: %q", clip(apiContent, 120))

	traces, err := ph.Traces(ctx, time.Now().Add(-5*time.Minute), 5)
	if err != nil {
		r.fail("phoenix query failed: %v", err)
		return err
	}
	if len(traces) == 0 {
		r.fail("no traces recorded in the last 5 minutes")
		return nil
	}

	for _, tr := range traces {
		id := tr.ID()
		detail, err := ph.Trace(ctx, id)
		if err != nil {
			r.fail("trace %s: %v", id, err)
			continue
		}
		content, ok := detail.Content()
		switch {
		case !ok:
			r.fail("trace %s recorded no content", id)
		case content == apiContent:
			r.pass("trace %s matches the live reply", id)
		default:
			r.note("trace %s content differs: %q", id, clip(content, 120))
		}
	}
	return nil
}

// All runs the offline self test, then every online probe in order.
func (r *Runner) All(ctx context.Context) error {
	r.Curl()
	if err := r.SelfTest(); err != nil {
		return err
	}
	if err := r.Expectations(ctx); err != nil {
		return err
	}
	if err := r.Schema(ctx); err != nil {
		return err
	}
	if err := r.PathTrace(ctx); err != nil {
		return err
	}
	if err := r.Formats(ctx); err != nil {
		return err
	}
	return r.Suggest(ctx)
}

func (r *Runner) probeRequest(prompt string) *models.ChatRequest {
	return &models.ChatRequest{
		Model:     r.cfg.ModelID,
		Messages:  []models.ChatMessage{{Role: "user", Content: prompt}},
		MaxTokens: 50,
	}
}

func (r *Runner) reportShape(resp map[string]any) {
	choices, _ := resp["choices"].([]any)
	if len(choices) == 0 {
		r.fail("no choices array")
		return
	}
	choice, ok := choices[0].(map[string]any)
	if !ok {
		r.fail("first choice is not an object")
		return
	}
	r.note("choice keys: %s", strings.Join(sortedKeys(choice), ", "))

	msgContent, text := transform.ContentFields(resp)
	switch {
	case msgContent != "":
		r.pass("content at choices[0].message.content: %q", clip(msgContent, 120))
	case text != "":
		r.pass("content at choices[0].text: %q", clip(text, 120))
	default:
		r.fail("no content field found")
	}
}

func (r *Runner) section(title string) {
	bar := strings.Repeat("=", 70)
	fmt.Fprintf(r.out, "\n%s\n %s\n%s\n", bar, color.CyanString(title), bar)
}

func (r *Runner) pass(format string, args ...any) {
	fmt.Fprintf(r.out, "  %s %s\n", color.GreenString("[ok]"), fmt.Sprintf(format, args...))
}

func (r *Runner) fail(format string, args ...any) {
	fmt.Fprintf(r.out, "  %s %s\n", color.RedString("[!!]"), fmt.Sprintf(format, args...))
}

func (r *Runner) note(format string, args ...any) {
	fmt.Fprintf(r.out, "  %s\n", fmt.Sprintf(format, args...))
}

func withFormat(req *models.ChatRequest, kind string) *models.ChatRequest {
	req.ResponseFormat = &models.ResponseFormat{Type: kind}
	return req
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Back up so the cut never lands inside a multi-byte rune.
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
