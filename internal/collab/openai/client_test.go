package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	logx "livehost/pkg/logx"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Config{APIKey: "sk-test", BaseURL: srv.URL}, logx.Nop())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestCompleteSendsPersonaAndReturnsUsage(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("auth = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		var req chatRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "gpt-5" {
			t.Errorf("model = %q", req.Model)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Content != "berapa harganya?" {
			t.Errorf("messages = %+v", req.Messages)
		}
		if req.MaxCompletionTokens != 100 {
			t.Errorf("max tokens = %d", req.MaxCompletionTokens)
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": "Cek link di bio ya!"}}},
			"usage":   map[string]any{"total_tokens": 57},
		})
	})

	reply, tokens, err := c.Complete(context.Background(), "persona", "berapa harganya?", 100)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if reply != "Cek link di bio ya!" || tokens != 57 {
		t.Fatalf("reply=%q tokens=%d", reply, tokens)
	}
}

func TestCompleteAPIFailure(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit_error"}}`))
	})

	_, _, err := c.Complete(context.Background(), "p", "u", 100)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); !strings.Contains(got, "rate limited") {
		t.Fatalf("error = %q", got)
	}
}

func TestSpeakReturnsAudioBytes(t *testing.T) {
	t.Parallel()
	audio := []byte{0xFF, 0xFB, 0x90, 0x00}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req speechRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Voice != "nova" || req.ResponseFormat != "mp3" || req.Model != "gpt-4o-mini-tts" {
			t.Errorf("request = %+v", req)
		}
		_, _ = w.Write(audio)
	})

	got, err := c.Speak(context.Background(), "Halo semua", "nova")
	if err != nil {
		t.Fatalf("speak: %v", err)
	}
	if string(got) != string(audio) {
		t.Fatalf("audio = %v", got)
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{}, logx.Nop()); err == nil {
		t.Fatal("expected error for missing api key")
	}
}
