package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// ErrorPrefix tags a failed completion. Complete never returns an error
// value; callers check IsError (or emptiness) on the returned string.
const ErrorPrefix = "[error]"

// Config holds the settings for a completion client.
type Config struct {
	BaseURL        string
	APIKey         string
	Model          string
	Retries        int
	Backoff        time.Duration
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	Logger         *slog.Logger
}

// Client wraps an OpenAI-compatible chat completion endpoint with retry,
// timeout and response-cleanup behavior shared by every pipeline stage.
type Client struct {
	api     *openai.Client
	model   string
	retries int
	backoff time.Duration
	log     *slog.Logger
}

// New creates a completion client. Connect and read timeouts are enforced
// separately on the underlying HTTP transport.
func New(cfg Config) *Client {
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	apiCfg.HTTPClient = &http.Client{
		Transport: &http.Transport{
			DialContext:           (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext,
			ResponseHeaderTimeout: cfg.ReadTimeout,
		},
	}

	return &Client{
		api:     openai.NewClientWithConfig(apiCfg),
		model:   cfg.Model,
		retries: cfg.Retries,
		backoff: cfg.Backoff,
		log:     cfg.Logger,
	}
}

// IsError reports whether a completion result is the error-tagged failure
// string rather than content.
func IsError(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), ErrorPrefix)
}

// Complete sends a prompt with system instructions and returns the
// user-facing answer text. Transient upstream failures are retried with
// exponential backoff; irrecoverable failures return an ErrorPrefix-tagged
// string, never an error. A non-nil info payload is appended to the user
// prompt under a fixed supporting-info framing.
func (c *Client) Complete(ctx context.Context, prompt, system string, info Info) string {
	userContent := prompt
	if info != nil {
		userContent = strings.TrimRight(prompt, " \n") +
			"\n\nTo answer this prompt, the following info is provided:\n\n" +
			info.render(prompt)
	}

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: userContent},
		},
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			delay := c.backoff << (attempt - 1)
			c.log.Debug("retrying completion", "attempt", attempt, "delay", delay, "error", lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Sprintf("%s request canceled: %v", ErrorPrefix, ctx.Err())
			}
		}

		resp, err := c.api.CreateChatCompletion(ctx, req)
		if err != nil {
			lastErr = err
			if retryable(err) {
				continue
			}
			return fmt.Sprintf("%s completion request failed: %v", ErrorPrefix, err)
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("completion returned no choices")
			continue
		}
		_, answer := SplitReasoning(resp.Choices[0].Message.Content)
		return answer
	}

	return fmt.Sprintf("%s completion failed after %d retries: %v", ErrorPrefix, c.retries, lastErr)
}

// SplitReasoning separates an embedded reasoning segment, delimited by a
// closing </think> tag, from the user-facing answer. Content without the
// closing tag is treated entirely as the answer.
func SplitReasoning(content string) (reasoning, answer string) {
	before, after, found := strings.Cut(content, "</think>")
	if !found {
		return "", strings.TrimSpace(content)
	}
	reasoning = strings.TrimSpace(strings.ReplaceAll(before, "<think>", ""))
	return reasoning, strings.TrimSpace(after)
}

// retryable reports whether an upstream failure is worth retrying:
// connection errors, timeouts, rate limiting and 5xx responses qualify;
// other client errors do not.
func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	// Anything that is not a structured API error is a transport-level
	// failure (connection refused, timeout, DNS), which is transient.
	return true
}
