package nl2sql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxReplyBytes = 1 << 20

type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// OpenAITranslator talks to any OpenAI-compatible chat completions endpoint.
type OpenAITranslator struct {
	endpoint    string
	apiKey      string
	model       string
	temperature float64
	client      *http.Client
}

// StatusError is a non-2xx reply from the completions endpoint.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("chat completion failed status=%d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the same request may succeed later.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewOpenAITranslator(cfg OpenAIConfig) (*OpenAITranslator, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-5"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAITranslator{
		endpoint:    baseURL + "/v1/chat/completions",
		apiKey:      apiKey,
		model:       model,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: timeout},
	}, nil
}

func (t *OpenAITranslator) Translate(ctx context.Context, req Request) (Result, error) {
	messages, err := promptMessages(req)
	if err != nil {
		return Result{}, err
	}
	body, err := json.Marshal(chatRequest{Model: t.model, Messages: messages, Temperature: t.temperature})
	if err != nil {
		return Result{}, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("request chat completion: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return Result{}, fmt.Errorf("read chat response: %w", err)
	}
	var parsed chatResponse
	decodeErr := json.Unmarshal(raw, &parsed)
	if resp.StatusCode >= http.StatusBadRequest {
		message := strings.TrimSpace(string(raw))
		if decodeErr == nil && parsed.Error != nil && parsed.Error.Message != "" {
			message = parsed.Error.Message
		}
		return Result{}, &StatusError{StatusCode: resp.StatusCode, Message: message}
	}
	if decodeErr != nil {
		return Result{}, fmt.Errorf("decode chat response: %w", decodeErr)
	}
	if len(parsed.Choices) == 0 {
		return Result{}, fmt.Errorf("chat response has no choices")
	}

	sql, interpretation := parseReply(parsed.Choices[0].Message.Content)
	if sql == "" {
		return Result{}, fmt.Errorf("model returned empty SQL")
	}
	return Result{
		SQL:            sql,
		Interpretation: interpretation,
		Provider:       "openai-compatible",
		Model:          t.model,
	}, nil
}

func promptMessages(req Request) ([]chatMessage, error) {
	tablesJSON, err := json.Marshal(req.Tables)
	if err != nil {
		return nil, fmt.Errorf("marshal table context: %w", err)
	}
	system := "You answer analytics questions by writing a single DuckDB SQL query. " +
		"DuckDB uses PostgreSQL-like SQL syntax. " +
		`Reply with a JSON object {"sql": "...", "interpretation": "..."} and nothing else. ` +
		"The interpretation restates the question in one sentence as the query answers it."
	user := fmt.Sprintf(
		"Schema and sample context (JSON):\n%s\n\nQuestion:\n%s\n\nRules:\n- Use only listed tables.\n- Prefer explicit columns with readable aliases.\n- Return dates as DATE or TIMESTAMP columns, not strings.\n- Output one read-only query.",
		string(tablesJSON),
		strings.TrimSpace(req.Question),
	)
	return []chatMessage{{Role: "system", Content: system}, {Role: "user", Content: user}}, nil
}
