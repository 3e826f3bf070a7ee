package nl2sql

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/duckmesh/reportdesk/internal/query"
	"github.com/duckmesh/reportdesk/internal/resultset"
)

func TestParseReplyJSON(t *testing.T) {
	sql, interpretation := parseReply("```json\n{\"sql\": \"SELECT 1\", \"interpretation\": \"One row\"}\n```")
	if sql != "SELECT 1" || interpretation != "One row" {
		t.Fatalf("parseReply() = %q, %q", sql, interpretation)
	}
}

func TestParseReplyPlainSQL(t *testing.T) {
	sql, interpretation := parseReply("```sql\nSELECT 1;\n```")
	if sql != "SELECT 1;" || interpretation != "" {
		t.Fatalf("parseReply() = %q, %q", sql, interpretation)
	}
}

func TestParseReplyInterpretationMarker(t *testing.T) {
	sql, interpretation := parseReply("SELECT region FROM orders\nThis is our interpretation of your question: \"Which regions have orders?\"")
	if sql != "SELECT region FROM orders" {
		t.Fatalf("sql = %q", sql)
	}
	if interpretation != "Which regions have orders?" {
		t.Fatalf("interpretation = %q", interpretation)
	}
}

func TestExtractInterpretationMissingMarker(t *testing.T) {
	if _, ok := ExtractInterpretation("no marker here"); ok {
		t.Fatal("expected no interpretation")
	}
}

func TestTranslateSendsSchemaAndParsesReply(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Fatalf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key-1" {
			t.Fatalf("Authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message": map[string]any{"content": `{"sql":"SELECT SUM(revenue) AS total_sales FROM orders","interpretation":"Total sales"}`},
			}},
		})
	}))
	defer server.Close()

	translator, err := NewOpenAITranslator(OpenAIConfig{BaseURL: server.URL + "/", APIKey: "key-1", Model: "test-model"})
	if err != nil {
		t.Fatalf("NewOpenAITranslator() error = %v", err)
	}
	result, err := translator.Translate(context.Background(), Request{
		Question: "What are total sales?",
		Tables: []query.TableSchema{{
			TableName: "orders",
			Columns:   []resultset.Column{{Name: "revenue", DatabaseType: "DOUBLE"}},
		}},
	})
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if result.SQL != "SELECT SUM(revenue) AS total_sales FROM orders" || result.Interpretation != "Total sales" {
		t.Fatalf("Translate() = %+v", result)
	}
	if result.Model != "test-model" {
		t.Fatalf("Model = %q", result.Model)
	}
	messages, _ := captured["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("messages = %#v", captured["messages"])
	}
	user, _ := messages[1].(map[string]any)
	if content, _ := user["content"].(string); !strings.Contains(content, `"table_name":"orders"`) || !strings.Contains(content, "What are total sales?") {
		t.Fatalf("user prompt = %q", content)
	}
}

func TestTranslateSurfacesUpstreamStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	translator, err := NewOpenAITranslator(OpenAIConfig{BaseURL: server.URL, APIKey: "key-1"})
	if err != nil {
		t.Fatalf("NewOpenAITranslator() error = %v", err)
	}
	_, err = translator.Translate(context.Background(), Request{Question: "x"})
	var status *StatusError
	if !errors.As(err, &status) || status.StatusCode != http.StatusServiceUnavailable || !status.Retryable() {
		t.Fatalf("Translate() error = %v", err)
	}
	if !strings.Contains(err.Error(), "status=503") {
		t.Fatalf("error text = %q", err.Error())
	}
}

func TestTranslateReadsProviderErrorMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
	}))
	defer server.Close()

	translator, err := NewOpenAITranslator(OpenAIConfig{BaseURL: server.URL, APIKey: "bad"})
	if err != nil {
		t.Fatalf("NewOpenAITranslator() error = %v", err)
	}
	_, err = translator.Translate(context.Background(), Request{Question: "x"})
	var status *StatusError
	if !errors.As(err, &status) || status.Message != "invalid api key" || status.Retryable() {
		t.Fatalf("Translate() error = %#v", err)
	}
}

func TestTranslateRejectsEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	translator, _ := NewOpenAITranslator(OpenAIConfig{BaseURL: server.URL, APIKey: "key-1"})
	if _, err := translator.Translate(context.Background(), Request{Question: "x"}); err == nil || !strings.Contains(err.Error(), "no choices") {
		t.Fatalf("Translate() error = %v", err)
	}
}

func TestNewOpenAITranslatorValidatesConfig(t *testing.T) {
	if _, err := NewOpenAITranslator(OpenAIConfig{APIKey: "k"}); err == nil {
		t.Fatal("expected error for missing base URL")
	}
	if _, err := NewOpenAITranslator(OpenAIConfig{BaseURL: "http://llm"}); err == nil {
		t.Fatal("expected error for missing api key")
	}
}
