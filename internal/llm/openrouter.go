package llm

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sqlgate/cli/internal/errors"
	"sqlgate/cli/internal/httperrors"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the OpenRouter API root.
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	maxRetries     = 3
	maxBodyBytes   = 10 * 1024 * 1024
	siteName       = "sqlgate"
	siteURL        = "https://github.com/sqlgate/cli"
)

// Config configures an OpenRouter client.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	// RequestsPerSecond paces outgoing requests. Zero disables pacing.
	RequestsPerSecond float64
}

// OpenRouter implements Model over the OpenRouter chat-completions endpoint.
type OpenRouter struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
	// backoff returns the wait before retry attempt i (i >= 1).
	backoff func(i int) time.Duration
}

// NewOpenRouter creates a client. A missing base URL defaults to OpenRouter.
func NewOpenRouter(cfg Config, logger *zap.Logger) *OpenRouter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &OpenRouter{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
		logger:     logger,
		backoff:    func(i int) time.Duration { return time.Duration(1<<uint(i-1)) * time.Second },
	}
}

// Complete sends messages and returns the first choice's content. Rate limits,
// server errors and transport failures are retried with exponential backoff.
func (c *OpenRouter) Complete(ctx context.Context, messages []Message) (string, error) {
	if c.cfg.APIKey == "" {
		return "", errors.New(errors.ModelFailed, "API key not configured")
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	body, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return "", errors.Wrap(errors.ModelFailed, "failed to marshal request", err)
	}

	start := time.Now()
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return "", errors.Wrap(errors.ModelFailed, "model request cancelled", ctx.Err())
			case <-time.After(c.backoff(i)):
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return "", errors.Wrap(errors.ModelFailed, "model request cancelled", err)
		}

		content, err := c.do(ctx, body)
		if err == nil {
			c.logger.Debug("model completion",
				zap.String("model", c.cfg.Model),
				zap.Int("attempts", i+1),
				zap.Duration("elapsed", time.Since(start)),
				zap.Int("response_len", len(content)))
			return content, nil
		}
		lastErr = err
		if !httperrors.Retryable(err) || ctx.Err() != nil {
			break
		}
		c.logger.Debug("model request failed, retrying", zap.Int("attempt", i+1), zap.Error(err))
	}
	return "", errors.Wrap(errors.ModelFailed, "model request failed", lastErr)
}

func (c *OpenRouter) do(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("HTTP-Referer", siteURL)
	req.Header.Set("X-Title", siteName)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		excerpt := strings.TrimSpace(string(data))
		if len(excerpt) > 200 {
			excerpt = excerpt[:200]
		}
		return "", &httperrors.StatusError{Code: resp.StatusCode, Body: excerpt}
	}

	var out chatResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if out.Error != nil {
		return "", stderrors.New("API error: " + out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", stderrors.New("no completion returned")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}
