package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/raredex/internal/domain"
)

func newTestGenerator(url string, timeout time.Duration) *Generator {
	return NewGenerator(&GeneratorConfig{
		APIKey:  "test-key",
		BaseURL: url,
		Model:   "test-chat-model",
		Timeout: timeout,
		Logger:  zap.NewNop(),
	})
}

func chatResponse(content string) map[string]any {
	return map[string]any{
		"id":     "chatcmpl-test",
		"object": "chat.completion",
		"model":  "test-chat-model",
		"choices": []map[string]any{
			{
				"index": 0,
				"message": map[string]any{
					"role":    "assistant",
					"content": content,
				},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]any{
			"prompt_tokens":     100,
			"completion_tokens": 20,
			"total_tokens":      120,
		},
	}
}

func TestGenerator_Complete(t *testing.T) {
	var gotReq struct {
		Model          string `json:"model"`
		ResponseFormat struct {
			Type string `json:"type"`
		} `json:"response_format"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatResponse(`{"summary":"Seizures are characteristic."}`))
	}))
	defer server.Close()

	out, err := newTestGenerator(server.URL, 0).Complete(
		context.Background(), "You are a clinical assistant.", "What are the symptoms?")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if out != `{"summary":"Seizures are characteristic."}` {
		t.Errorf("unexpected content: %s", out)
	}

	if gotReq.Model != "test-chat-model" {
		t.Errorf("model = %s", gotReq.Model)
	}
	if gotReq.ResponseFormat.Type != "json_object" {
		t.Errorf("response_format = %s, expected json_object", gotReq.ResponseFormat.Type)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" || gotReq.Messages[1].Role != "user" {
		t.Errorf("unexpected messages: %+v", gotReq.Messages)
	}
}

func TestGenerator_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "upstream unavailable", "type": "server_error"},
		})
	}))
	defer server.Close()

	_, err := newTestGenerator(server.URL, 0).Complete(context.Background(), "sys", "user")
	if !errors.Is(err, domain.ErrGenerationService) {
		t.Fatalf("expected ErrGenerationService, got %v", err)
	}
}

func TestGenerator_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	_, err := newTestGenerator(server.URL, 50*time.Millisecond).Complete(context.Background(), "sys", "user")
	if !errors.Is(err, domain.ErrUpstreamTimeout) {
		t.Fatalf("expected ErrUpstreamTimeout, got %v", err)
	}
}
