// Package openai implements llm.Model on the OpenAI chat completions API with vision inputs.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/joseph-ayodele/plan-intel/internal/llm"
)

var ErrAPIKeyNotSet = errors.New("OpenAI API key not set: please set OPENAI_API_KEY")

type Client struct {
	cfg    Config
	client openai.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	cfg.applyDefaults()
	if cfg.APIKey == "" {
		return nil, ErrAPIKeyNotSet
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0), // 429s are retried below with our own backoff
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Client{
		cfg:    cfg,
		client: openai.NewClient(opts...),
		logger: logger,
	}, nil
}

func (c *Client) Name() string { return c.cfg.Model }

// Complete sends the system prompt, then one user message holding the text part and every image.
func (c *Client) Complete(ctx context.Context, req llm.Request) (string, error) {
	params := buildParams(c.cfg.Model, req)

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := c.backoff(attempt)
			c.logger.Warn("openai.rate_limited", "attempt", attempt, "wait_ms", wait.Milliseconds())
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(wait):
			}
		}

		start := time.Now()
		completion, err := c.client.Chat.Completions.New(ctx, params)
		if err != nil {
			lastErr = err
			if isRateLimitError(err) {
				continue
			}
			return "", fmt.Errorf("openai chat completion: %w", err)
		}
		if len(completion.Choices) == 0 {
			return "", errors.New("openai: no completion choices returned")
		}

		c.logger.Debug("openai.completion.ok",
			"model", completion.Model,
			"images", len(req.Images),
			"total_tokens", completion.Usage.TotalTokens,
			"finish_reason", completion.Choices[0].FinishReason,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return completion.Choices[0].Message.Content, nil
	}
	return "", fmt.Errorf("openai: rate limited after %d retries: %w", c.cfg.MaxRetries, lastErr)
}

func buildParams(model string, req llm.Request) openai.ChatCompletionNewParams {
	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(req.Images)+1)
	if req.Text != "" {
		parts = append(parts, openai.TextContentPart(req.Text))
	}
	for _, img := range req.Images {
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: img.DataURL,
		}))
	}

	messages := []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(req.System)}
	if len(req.Images) == 0 {
		messages = append(messages, openai.UserMessage(req.Text))
	} else {
		messages = append(messages, openai.UserMessage(parts))
	}

	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(model),
		Messages:    messages,
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{Type: "json_object"},
		}
	}
	return params
}

func (c *Client) backoff(attempt int) time.Duration {
	d := c.cfg.BaseBackoff << (attempt - 1)
	if d > c.cfg.MaxBackoff || d <= 0 {
		d = c.cfg.MaxBackoff
	}
	return d
}

func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

var _ llm.Model = (*Client)(nil)
