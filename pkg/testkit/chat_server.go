// Package testkit provides fake model endpoints for end-to-end tests.
package testkit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// ChatMessage is one message of a recorded chat completion request.
type ChatMessage struct {
	Role    string
	Content string
}

// ChatRequest is a recorded chat completion request.
type ChatRequest struct {
	Model       string
	Messages    []ChatMessage
	Temperature float64
	MaxTokens   int
	Stream      bool
	APIKey      string
	APIVersion  string
}

// ChatServer emulates an OpenAI-compatible /chat/completions endpoint (which
// also covers Azure AI inference). Replies are served in order; once the script
// is exhausted the last reply repeats.
type ChatServer struct {
	*httptest.Server

	mu       sync.Mutex
	replies  []string
	requests []ChatRequest
	failWith int
}

// NewChatServer starts a server that answers with replies in order.
func NewChatServer(replies ...string) *ChatServer {
	s := &ChatServer{replies: replies}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// FailWith makes every following request fail with the given HTTP status.
func (s *ChatServer) FailWith(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = status
}

// Requests returns a copy of the requests received so far.
func (s *ChatServer) Requests() []ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChatRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

type wireRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"messages"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	Stream      bool    `json:"stream"`
}

func (s *ChatServer) handle(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var wire wireRequest
	if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	req := ChatRequest{
		Model:       wire.Model,
		Temperature: wire.Temperature,
		MaxTokens:   wire.MaxTokens,
		Stream:      wire.Stream,
		APIKey:      r.Header.Get("api-key"),
		APIVersion:  r.URL.Query().Get("api-version"),
	}
	if req.APIKey == "" {
		req.APIKey = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	for _, m := range wire.Messages {
		req.Messages = append(req.Messages, ChatMessage{Role: m.Role, Content: contentText(m.Content)})
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	reply := ""
	if n := len(s.requests); len(s.replies) > 0 {
		reply = s.replies[min(n, len(s.replies))-1]
	}
	failWith := s.failWith
	s.mu.Unlock()

	if failWith != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(failWith)
		fmt.Fprintf(w, `{"error":{"message":"scripted failure","type":"server_error","code":"%d"}}`, failWith)
		return
	}

	if req.Stream {
		writeStream(w, req.Model, reply)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-mock12345",
		"object":  "chat.completion",
		"created": 1699999999,
		"model":   req.Model,
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": reply},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{
			"prompt_tokens":     50,
			"completion_tokens": 100,
			"total_tokens":      150,
		},
	})
}

// writeStream sends reply as server-sent events, one word per chunk.
func writeStream(w http.ResponseWriter, model, reply string) {
	w.Header().Set("Content-Type", "text/event-stream")
	flusher, _ := w.(http.Flusher)

	for _, part := range splitKeepSpace(reply) {
		chunk, _ := json.Marshal(map[string]any{
			"id":      "chatcmpl-mock12345",
			"object":  "chat.completion.chunk",
			"created": 1699999999,
			"model":   model,
			"choices": []map[string]any{{"index": 0, "delta": map[string]any{"content": part}}},
		})
		fmt.Fprintf(w, "data: %s\n\n", chunk)
		if flusher != nil {
			flusher.Flush()
		}
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

// splitKeepSpace splits s after each space so the parts join back to s.
func splitKeepSpace(s string) []string {
	var parts []string
	for s != "" {
		i := strings.IndexByte(s, ' ')
		if i < 0 {
			parts = append(parts, s)
			break
		}
		parts = append(parts, s[:i+1])
		s = s[i+1:]
	}
	return parts
}

// contentText accepts both a plain string and an array of text parts.
func contentText(raw json.RawMessage) string {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	var parts []struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err == nil {
		var b strings.Builder
		for _, p := range parts {
			b.WriteString(p.Text)
		}
		return b.String()
	}
	return string(raw)
}
