package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	logx "livehost/pkg/logx"
)

const defaultBaseURL = "https://api.openai.com/v1"

type Config struct {
	APIKey  string
	BaseURL string
	// ChatModel defaults to "gpt-5".
	ChatModel string
	// SpeechModel defaults to "gpt-4o-mini-tts".
	SpeechModel string
	// Timeout bounds a single API call. Zero means 30s.
	Timeout time.Duration
}

// Client talks to the OpenAI chat-completions and audio/speech endpoints.
// It deliberately speaks raw HTTP + JSON; the two calls this engine needs
// don't justify an SDK.
type Client struct {
	cfg  Config
	http *http.Client
	log  logx.Logger
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai: api key is empty")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = "gpt-5"
	}
	if cfg.SpeechModel == "" {
		cfg.SpeechModel = "gpt-4o-mini-tts"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
		log:  log,
	}, nil
}

// ---- chat completions ----

type chatRequest struct {
	Model               string        `json:"model"`
	Messages            []chatMessage `json:"messages"`
	MaxCompletionTokens int           `json:"max_completion_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Complete sends one system+user exchange and returns the reply text and
// the total token count the call consumed.
func (c *Client) Complete(ctx context.Context, system, user string, maxTokens int) (string, int, error) {
	req := chatRequest{
		Model: c.cfg.ChatModel,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxCompletionTokens: maxTokens,
	}

	body, err := c.post(ctx, "/chat/completions", req, "")
	if err != nil {
		return "", 0, err
	}

	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", 0, fmt.Errorf("openai: decode response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", resp.Usage.TotalTokens, errors.New("openai: empty choices")
	}
	return resp.Choices[0].Message.Content, resp.Usage.TotalTokens, nil
}

// ---- speech synthesis ----

type speechRequest struct {
	Model          string `json:"model"`
	Voice          string `json:"voice"`
	Input          string `json:"input"`
	ResponseFormat string `json:"response_format"`
}

// Speak renders text as MP3 audio with the given voice.
func (c *Client) Speak(ctx context.Context, text, voice string) ([]byte, error) {
	req := speechRequest{
		Model:          c.cfg.SpeechModel,
		Voice:          voice,
		Input:          text,
		ResponseFormat: "mp3",
	}
	return c.post(ctx, "/audio/speech", req, "audio/mpeg")
}

// ---- plumbing ----

func (c *Client) post(ctx context.Context, path string, payload any, accept string) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if accept != "" {
		httpReq.Header.Set("Accept", accept)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, c.parseError(resp)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai: read response: %w", err)
	}
	return respBody, nil
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *Client) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	var ae apiError
	if err := json.Unmarshal(body, &ae); err == nil && ae.Error.Message != "" {
		return fmt.Errorf("openai: %s (%s): %s", resp.Status, ae.Error.Type, ae.Error.Message)
	}
	return fmt.Errorf("openai: %s", resp.Status)
}
