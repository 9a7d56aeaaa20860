// Package transform normalizes chat-completion responses so that both known
// content-extraction paths carry the same value: consumers reading
// choices[0].message.content and consumers reading choices[0].text must both
// find the content. The transform is pure, idempotent, and never fails: a
// response whose shape it does not recognize passes through untouched.
package transform

import "encoding/json"

// Response normalizes a decoded chat-completion response in place and
// returns it. Only the first choice is touched; responses without a usable
// first choice pass through unchanged. The precedence is fixed:
// message.content is authoritative when present, otherwise a message is
// synthesized from text. Applying Response twice is the same as applying it
// once.
func Response(resp map[string]any) map[string]any {
	normalizeResponse(resp)
	return resp
}

// StreamChunk normalizes one decoded streaming chunk in place and returns
// it. The chunk's delta.content, when present, is mirrored into the
// choice's text field for that chunk only; chunks are independent and no
// content accumulates across them. No message object is synthesized on the
// streaming path, since partial deltas carry no role.
func StreamChunk(chunk map[string]any) map[string]any {
	normalizeChunk(chunk)
	return chunk
}

// ResponseJSON normalizes a raw response body. The returned bool reports
// whether the body was rewritten; when it is false the input bytes are
// returned untouched, including for bodies that are not JSON objects.
func ResponseJSON(b []byte) ([]byte, bool) {
	return rewrite(b, normalizeResponse)
}

// ChunkJSON normalizes one raw SSE data payload. Non-JSON payloads such as
// the [DONE] marker pass through untouched.
func ChunkJSON(b []byte) ([]byte, bool) {
	return rewrite(b, normalizeChunk)
}

// ContentFields reports the values currently present at the two extraction
// paths of the first choice, empty when absent or unusable. It does not
// modify the response.
func ContentFields(resp map[string]any) (msgContent, text string) {
	choice, ok := firstChoice(resp)
	if !ok {
		return "", ""
	}
	msgContent, _ = messageContent(choice)
	text, _ = nonEmptyString(choice["text"])
	return msgContent, text
}

func rewrite(b []byte, normalize func(map[string]any) bool) ([]byte, bool) {
	var v map[string]any
	if err := json.Unmarshal(b, &v); err != nil {
		return b, false
	}
	if !normalize(v) {
		return b, false
	}
	out, err := json.Marshal(v)
	if err != nil {
		return b, false
	}
	return out, true
}

func normalizeResponse(resp map[string]any) bool {
	choice, ok := firstChoice(resp)
	if !ok {
		return false
	}
	if content, ok := messageContent(choice); ok {
		if prev, _ := choice["text"].(string); prev == content {
			return false
		}
		choice["text"] = content
		return true
	}
	if text, ok := nonEmptyString(choice["text"]); ok && absent(choice, "message") {
		choice["message"] = map[string]any{
			"role":    "assistant",
			"content": text,
		}
		return true
	}
	return false
}

func normalizeChunk(chunk map[string]any) bool {
	choice, ok := firstChoice(chunk)
	if !ok {
		return false
	}
	delta, ok := choice["delta"].(map[string]any)
	if !ok {
		return false
	}
	content, ok := nonEmptyString(delta["content"])
	if !ok {
		return false
	}
	if prev, _ := choice["text"].(string); prev == content {
		return false
	}
	choice["text"] = content
	return true
}

func firstChoice(resp map[string]any) (map[string]any, bool) {
	if resp == nil {
		return nil, false
	}
	choices, ok := resp["choices"].([]any)
	if !ok || len(choices) == 0 {
		return nil, false
	}
	choice, ok := choices[0].(map[string]any)
	return choice, ok
}

func messageContent(choice map[string]any) (string, bool) {
	msg, ok := choice["message"].(map[string]any)
	if !ok {
		return "", false
	}
	return nonEmptyString(msg["content"])
}

func nonEmptyString(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// absent treats an explicit JSON null the same as a missing key.
func absent(m map[string]any, key string) bool {
	v, ok := m[key]
	return !ok || v == nil
}
