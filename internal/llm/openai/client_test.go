package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/plan-intel/internal/llm"
)

const completionBody = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-4o",
  "choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "{\"doors\":{\"total\":1}}"}}],
  "usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
}`

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{
		APIKey:      "sk-test",
		BaseURL:     srv.URL,
		Model:       "gpt-4o",
		BaseBackoff: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
	}, nil)
	require.NoError(t, err)
	return c
}

func TestComplete_SendsImagesAndText(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		b, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(b, &got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionBody)
	})

	out, err := c.Complete(context.Background(), llm.Request{
		System:      "sys",
		Text:        "Analyze these construction plan pages and extract quantities.",
		Images:      []llm.Image{{DataURL: "data:image/png;base64,AAAA"}},
		MaxTokens:   4000,
		Temperature: 0.1,
		JSON:        true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"doors":{"total":1}}`, out)

	assert.Equal(t, "gpt-4o", got["model"])
	assert.EqualValues(t, 4000, got["max_tokens"])
	assert.Equal(t, map[string]any{"type": "json_object"}, got["response_format"])
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	user := msgs[1].(map[string]any)
	parts := user["content"].([]any)
	require.Len(t, parts, 2)
	assert.Equal(t, "text", parts[0].(map[string]any)["type"])
	assert.Equal(t, "image_url", parts[1].(map[string]any)["type"])
}

func TestComplete_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = io.WriteString(w, `{"error":{"message":"slow down","type":"rate_limit"}}`)
			return
		}
		_, _ = io.WriteString(w, completionBody)
	})

	out, err := c.Complete(context.Background(), llm.Request{System: "s", Text: "t"})
	require.NoError(t, err)
	assert.NotEmpty(t, out)
	assert.EqualValues(t, 2, calls.Load())
}

func TestComplete_PlainTextOmitsResponseFormat(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(b, &got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionBody)
	})

	_, err := c.Complete(context.Background(), llm.Request{System: "s", Text: "t"})
	require.NoError(t, err)
	assert.NotContains(t, got, "response_format")
	assert.Equal(t, "t", got["messages"].([]any)[1].(map[string]any)["content"])
}

func TestComplete_NonRetryableError(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"bad image","type":"invalid_request_error"}}`)
	})

	_, err := c.Complete(context.Background(), llm.Request{System: "s", Text: "t"})
	require.Error(t, err)
	assert.EqualValues(t, 1, calls.Load())
}

func TestNewClient_RequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewClient(Config{}, nil)
	assert.ErrorIs(t, err, ErrAPIKeyNotSet)
}
