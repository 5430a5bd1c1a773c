package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"sqlgate/cli/internal/errors"
	"sqlgate/cli/internal/httperrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *OpenRouter {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c := NewOpenRouter(Config{
		APIKey:    "sk-test-key",
		BaseURL:   srv.URL + "/",
		Model:     "openai/gpt-4o-mini",
		MaxTokens: 256,
		Timeout:   5 * time.Second,
	}, nil)
	c.backoff = func(int) time.Duration { return 0 }
	return c
}

func writeCompletion(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":` + quote(content) + `}}]}`))
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestCompleteSendsRequest(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "sqlgate", r.Header.Get("X-Title"))
		assert.NotEmpty(t, r.Header.Get("HTTP-Referer"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "openai/gpt-4o-mini", req.Model)
		assert.Equal(t, 256, req.MaxTokens)
		assert.Equal(t, []Message{System("rules"), User("how many orders?")}, req.Messages)

		writeCompletion(w, "  SELECT COUNT(*) FROM orders;\n")
	})

	got, err := c.Complete(context.Background(), []Message{System("rules"), User("how many orders?")})
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) FROM orders;", got)
}

func TestCompleteRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, `{"error":{"message":"slow down"}}`, http.StatusTooManyRequests)
			return
		}
		writeCompletion(w, "ok")
	})

	got, err := c.Complete(context.Background(), []Message{User("q")})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCompleteGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.Complete(context.Background(), []Message{User("q")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ModelFailed))
	assert.Equal(t, httperrors.Server, httperrors.Classify(err))
	assert.Equal(t, int32(maxRetries+1), calls.Load())
}

func TestCompleteDoesNotRetryUnauthorized(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "invalid key", http.StatusUnauthorized)
	})

	_, err := c.Complete(context.Background(), []Message{User("q")})
	require.Error(t, err)
	assert.Equal(t, httperrors.Unauthorized, httperrors.Classify(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestCompleteAPIErrorField(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":{"message":"model not found"}}`))
	})

	_, err := c.Complete(context.Background(), []Message{User("q")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not found")
}

func TestCompleteNoChoices(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})
	_, err := c.Complete(context.Background(), []Message{User("q")})
	assert.ErrorContains(t, err, "no completion returned")
}

func TestCompleteWithoutKey(t *testing.T) {
	c := NewOpenRouter(Config{}, nil)
	_, err := c.Complete(context.Background(), []Message{User("q")})
	assert.True(t, errors.Is(err, errors.ModelFailed))
}

func TestCompleteCancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeCompletion(w, "late")
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Complete(ctx, []Message{User("q")})
	assert.True(t, errors.Is(err, errors.ModelFailed))
}

func TestModelFunc(t *testing.T) {
	var m Model = ModelFunc(func(ctx context.Context, msgs []Message) (string, error) {
		return msgs[len(msgs)-1].Content, nil
	})
	got, err := m.Complete(context.Background(), []Message{Assistant("a"), User("echo")})
	require.NoError(t, err)
	assert.Equal(t, "echo", got)
}
