// Package llm runs structured JSON prompts against the model API with
// retries, per-phase circuit breakers and cost logging.
package llm

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/buyer-universe/internal/config"
	"github.com/sells-group/buyer-universe/internal/model"
	"github.com/sells-group/buyer-universe/internal/resilience"
	"github.com/sells-group/buyer-universe/pkg/anthropic"
)

// Tier selects the model used for a call.
type Tier int

const (
	// TierFast uses the Haiku model for high-volume calls.
	TierFast Tier = iota
	// TierSmart uses the Sonnet model for reasoning-heavy calls.
	TierSmart
)

// Request is one structured prompt.
type Request struct {
	// Phase names the call site for logging and circuit breaking.
	Phase  string
	Tier   Tier
	System string
	Prompt string
	// MaxTokens overrides the configured default when > 0.
	MaxTokens int64
}

// Caller sends prompts and decodes JSON replies.
type Caller struct {
	client   anthropic.Client
	cfg      config.AnthropicConfig
	retry    resilience.RetryPolicy
	breakers *resilience.Breakers
	cacheTTL string
	zeroTemp float64
}

// NewCaller builds a Caller around client.
func NewCaller(client anthropic.Client, cfg config.AnthropicConfig, rc config.RetryConfig) *Caller {
	retryCfg, cbCfg := resilience.FromConfig(rc)
	return &Caller{
		client:   client,
		cfg:      cfg,
		retry:    retryCfg,
		breakers: resilience.NewBreakers(cbCfg),
		cacheTTL: "5m",
	}
}

// Breakers exposes the per-phase circuit breakers for health reporting.
func (c *Caller) Breakers() *resilience.Breakers {
	return c.breakers
}

func (c *Caller) model(t Tier) string {
	if t == TierSmart && c.cfg.SonnetModel != "" {
		return c.cfg.SonnetModel
	}
	return c.cfg.HaikuModel
}

// JSON sends req and unmarshals the reply's JSON object into out. Transient
// API failures are retried; an open breaker fails fast with
// resilience.ErrCircuitOpen.
func (c *Caller) JSON(ctx context.Context, req Request, out any) (model.TokenUsage, error) {
	if req.Phase == "" {
		return model.TokenUsage{}, eris.New("llm: phase is required")
	}
	modelID := c.model(req.Tier)
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.cfg.MaxTokens
	}
	if maxTokens <= 0 {
		maxTokens = 2048
	}

	msgReq := anthropic.MessageRequest{
		Model:       modelID,
		MaxTokens:   maxTokens,
		System:      anthropic.CachedSystem(req.System, c.cacheTTL),
		Messages:    []anthropic.Message{{Role: "user", Content: req.Prompt}},
		Temperature: &c.zeroTemp,
	}

	rc := c.retry
	rc.OnRetry = resilience.LogRetries("anthropic", req.Phase)
	cb := c.breakers.For(req.Phase)

	resp, err := resilience.Retry(ctx, rc, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return resilience.Guard(ctx, cb, func(ctx context.Context) (*anthropic.MessageResponse, error) {
			return c.client.CreateMessage(ctx, msgReq)
		})
	})
	if err != nil {
		return model.TokenUsage{}, eris.Wrapf(err, "llm: %s", req.Phase)
	}

	resp.Usage.LogCost(modelID, req.Phase)
	usage := toUsage(resp.Usage, modelID)

	if err := anthropic.DecodeJSON(resp, out); err != nil {
		zap.L().Warn("llm: unparseable reply",
			zap.String("phase", req.Phase),
			zap.String("stop_reason", resp.StopReason),
		)
		return usage, eris.Wrapf(err, "llm: %s", req.Phase)
	}
	return usage, nil
}

func toUsage(u anthropic.TokenUsage, modelID string) model.TokenUsage {
	return model.TokenUsage{
		InputTokens:         int(u.InputTokens),
		OutputTokens:        int(u.OutputTokens),
		CacheCreationTokens: int(u.CacheCreationInputTokens),
		CacheReadTokens:     int(u.CacheReadInputTokens),
		Cost:                u.EstimateCost(modelID),
	}
}
