package insight

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicChatter_Chat(t *testing.T) {
	var got struct {
		Model     string `json:"model"`
		MaxTokens int    `json:"max_tokens"`
		System    []struct {
			Text string `json:"text"`
		} `json:"system"`
		Messages []struct {
			Role string `json:"role"`
		} `json:"messages"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-test",
			"content": [
				{"type": "text", "text": "Hello "},
				{"type": "text", "text": "there"}
			],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 3, "output_tokens": 2}
		}`))
	}))
	defer srv.Close()

	chat := NewAnthropicChatter(AnthropicConfig{
		APIKey:  "test-key",
		Model:   "claude-test",
		BaseURL: srv.URL,
	})
	require.NotNil(t, chat)

	text, err := chat.Chat(context.Background(), "be brief", "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello there", text)

	assert.Equal(t, "claude-test", got.Model)
	assert.Equal(t, 1000, got.MaxTokens)
	require.Len(t, got.System, 1)
	assert.Equal(t, "be brief", got.System[0].Text)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
}

func TestAnthropicChatter_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`))
	}))
	defer srv.Close()

	chat := NewAnthropicChatter(AnthropicConfig{APIKey: "k", Model: "m", BaseURL: srv.URL})
	_, err := chat.Chat(context.Background(), "s", "u")
	assert.Error(t, err)
}

func TestNewAnthropicChatter_PlaceholderKey(t *testing.T) {
	assert.Nil(t, NewAnthropicChatter(AnthropicConfig{APIKey: "your_key_here"}))
}
