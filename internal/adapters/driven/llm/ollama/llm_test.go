package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/bilgi/internal/core/domain"
	"github.com/custodia-labs/bilgi/internal/core/ports/driven"
)

func TestNewLLMService_Defaults(t *testing.T) {
	s := NewLLMService(Config{})
	assert.Equal(t, DefaultModel, s.ModelName())
	assert.Equal(t, DefaultBaseURL, s.baseURL)
}

func TestComplete(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"  Yıllık izin 14 gündür.\n"},"done":true}`))
	}))
	defer server.Close()

	s := NewLLMService(Config{BaseURL: server.URL, Model: "qwen2.5"})
	out, err := s.Complete(context.Background(), "Sen bir asistansın.", "İzin kaç gün?", []string{"İzin 14 gündür."})
	require.NoError(t, err)

	assert.Equal(t, "Yıllık izin 14 gündür.", out)
	assert.Equal(t, "qwen2.5", got.Model)
	assert.False(t, got.Stream)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Contains(t, got.Messages[0].Content, "[1] İzin 14 gündür.")
	assert.Equal(t, "İzin kaç gün?", got.Messages[1].Content)
	require.NotNil(t, got.Options)
	assert.InDelta(t, DefaultTemperature, got.Options.Temperature, 1e-9)
}

func TestChat_NoOptions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Nil(t, req.Options)
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"merhaba"},"done":true}`))
	}))
	defer server.Close()

	s := NewLLMService(Config{BaseURL: server.URL})
	out, err := s.Chat(context.Background(), []driven.ChatMessage{{Role: "user", Content: "selam"}}, driven.ChatOptions{})
	require.NoError(t, err)
	assert.Equal(t, "merhaba", out)
}

func TestChat_Errors(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "model not loaded", http.StatusInternalServerError)
		}))
		defer server.Close()

		_, err := NewLLMService(Config{BaseURL: server.URL}).Complete(context.Background(), "", "x", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "model not loaded")
	})

	t.Run("unreachable", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()

		_, err := NewLLMService(Config{BaseURL: url}).Complete(context.Background(), "", "x", nil)
		assert.ErrorIs(t, err, domain.ErrLLMUnavailable)
	})

	t.Run("cancelled", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}))
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewLLMService(Config{BaseURL: server.URL}).Complete(ctx, "", "x", nil)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"models":[]}`))
	}))
	defer server.Close()

	assert.NoError(t, NewLLMService(Config{BaseURL: server.URL}).Ping(context.Background()))
}
