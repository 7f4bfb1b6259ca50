package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type capturedChatRequest struct {
	Model       string   `json:"model"`
	Temperature float64  `json:"temperature"`
	Seed        *int     `json:"seed"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

func newTestOpenAIClassifier(t *testing.T, handler http.HandlerFunc) *OpenAIClassifier {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	classifier, err := NewOpenAIClassifier(OpenAIConfig{
		APIKey:  "test-key",
		BaseURL: server.URL + "/v1",
		Model:   "gpt-4o",
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)
	return classifier
}

func chatCompletionBody(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1234567890,
		"model":   "gpt-4o",
		"choices": []map[string]any{
			{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 3, "total_tokens": 13},
	}
}

func TestOpenAIClassifierSendsDeterministicRequest(t *testing.T) {
	var captured capturedChatRequest
	classifier := newTestOpenAIClassifier(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(chatCompletionBody(`{"response":"Math"}`)))
	})

	result, err := classifier.Classify(context.Background(), ClassificationInput{
		Instructions: "Classify each question into math or geo.",
		Question:     "2+2=?",
	})
	require.NoError(t, err)
	require.Equal(t, "Math", result.Label)
	require.Equal(t, "gpt-4o", result.Model)

	require.NotNil(t, captured.Seed)
	require.Equal(t, DefaultSeed, *captured.Seed)
	require.Less(t, captured.Temperature, 0.001)
	require.Equal(t, "json_schema", captured.ResponseFormat.Type)
	require.Len(t, captured.Messages, 2)
	require.Equal(t, "system", captured.Messages[0].Role)
	require.Equal(t, "Classify each question into math or geo.", captured.Messages[0].Content)
	require.Equal(t, "user", captured.Messages[1].Role)
	require.Equal(t, "2+2=?", captured.Messages[1].Content)
}

func TestOpenAIClassifierRejectsMalformedContent(t *testing.T) {
	classifier := newTestOpenAIClassifier(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(chatCompletionBody(`math`)))
	})

	_, err := classifier.Classify(context.Background(), ClassificationInput{Question: "2+2=?"})
	require.Error(t, err)
}

func TestOpenAIClassifierPropagatesServerErrors(t *testing.T) {
	classifier := newTestOpenAIClassifier(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "boom", "type": "server_error"}})
	})

	_, err := classifier.Classify(context.Background(), ClassificationInput{Question: "2+2=?"})
	require.Error(t, err)
}
