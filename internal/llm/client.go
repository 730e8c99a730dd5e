package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/plan-intel/internal/common"
)

// ClientConfig bounds each model pass.
type ClientConfig struct {
	PassTimeout time.Duration // per pass; 0 = no extra deadline
	MaxTokens   int
	Temperature float64
}

// Client runs the two-pass protocol (extract, then audit) against a Model.
type Client struct {
	model  Model
	cfg    ClientConfig
	logger *slog.Logger
}

func NewClient(model Model, cfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4000
	}
	return &Client{model: model, cfg: cfg, logger: logger}
}

func (c *Client) ModelName() string { return c.model.Name() }

func (c *Client) passContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.PassTimeout > 0 {
		return context.WithTimeout(ctx, c.cfg.PassTimeout)
	}
	return context.WithCancel(ctx)
}

// ExtractQuantities is Pass 1. Model errors, empty output and undecodable output are all fatal.
func (c *Client) ExtractQuantities(ctx context.Context, images []Image, hint *PageHint) (map[string]any, error) {
	log := common.LoggerFromContext(ctx, c.logger)
	rid := uuid.New().String()
	start := time.Now()

	if len(images) == 0 {
		return nil, fmt.Errorf("%w: no images to analyze", common.ErrInvalidInput)
	}

	log.Info("llm.extract.start",
		"req_id", rid,
		"model", c.model.Name(),
		"images", len(images),
		"has_schedules", hint != nil && hint.HasSchedules,
		"has_legend", hint != nil && hint.HasLegend,
	)

	pctx, cancel := c.passContext(ctx)
	defer cancel()

	text, err := c.model.Complete(pctx, Request{
		System:      ExtractSystemPrompt,
		Text:        BuildExtractUserText(images, hint),
		Images:      images,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		JSON:        true,
	})
	if err != nil {
		log.Error("llm.extract.model_error", "req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return nil, fmt.Errorf("extract pass: %w", err)
	}

	out, err := ParseJSONObject(text)
	if err != nil {
		log.Error("llm.extract.decode_error",
			"req_id", rid, "error", err,
			"head", headTail(text, 1000, true),
			"tail", headTail(text, 500, false),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, fmt.Errorf("extract pass: %w", err)
	}

	log.Info("llm.extract.ok",
		"req_id", rid,
		"sections", len(out),
		"response_bytes", len(text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// AuditExtraction is Pass 2. It never fails: on any problem the Pass 1 result comes back unchanged.
func (c *Client) AuditExtraction(ctx context.Context, pass1 map[string]any) map[string]any {
	log := common.LoggerFromContext(ctx, c.logger)
	rid := uuid.New().String()
	start := time.Now()

	payload, err := json.MarshalIndent(pass1, "", "  ")
	if err != nil {
		log.Warn("llm.audit.fallback", "req_id", rid, "reason", "encode_pass1", "error", err)
		return pass1
	}

	log.Info("llm.audit.start", "req_id", rid, "model", c.model.Name(), "payload_bytes", len(payload))

	pctx, cancel := c.passContext(ctx)
	defer cancel()

	text, err := c.model.Complete(pctx, Request{
		System:      AuditSystemPrompt,
		Text:        BuildAuditUserText(string(payload)),
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		JSON:        true,
	})
	if err != nil {
		log.Warn("llm.audit.fallback", "req_id", rid, "reason", "model_error", "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return pass1
	}

	out, err := ParseJSONObject(text)
	if err != nil {
		log.Warn("llm.audit.fallback", "req_id", rid, "reason", "decode_error", "error", err,
			"head", headTail(text, 500, true),
			"elapsed_ms", time.Since(start).Milliseconds())
		return pass1
	}

	log.Info("llm.audit.ok", "req_id", rid, "elapsed_ms", time.Since(start).Milliseconds())
	return out
}

// ExtractWithAudit runs both passes in sequence.
func (c *Client) ExtractWithAudit(ctx context.Context, images []Image, hint *PageHint) (map[string]any, error) {
	pass1, err := c.ExtractQuantities(ctx, images, hint)
	if err != nil {
		return nil, err
	}
	return c.AuditExtraction(ctx, pass1), nil
}

func headTail(s string, n int, head bool) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	if head {
		return s[:n]
	}
	return s[len(s)-n:]
}

var _ Extractor = (*Client)(nil)
