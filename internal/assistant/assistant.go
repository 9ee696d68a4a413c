// Package assistant drafts and summarises CRM text through an
// OpenAI-compatible inference endpoint.
package assistant

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/brightdesk/crm-backend/internal/crm/domain"
	"github.com/brightdesk/crm-backend/pkg/actor"
	"github.com/brightdesk/crm-backend/pkg/config"
	"github.com/brightdesk/crm-backend/pkg/errors"
	"github.com/brightdesk/crm-backend/pkg/logger"
	"github.com/brightdesk/crm-backend/pkg/metrics"
	"github.com/brightdesk/crm-backend/pkg/permissions"
)

const (
	kindSummarize  = "summarize"
	kindDraftEmail = "draft_email"

	maxTokens = 512
)

// Completer is the subset of the OpenAI client the assistant needs.
type Completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Authorizer checks that a caller holds a permission.
type Authorizer interface {
	RequirePermission(ctx context.Context, caller *actor.Actor, permission string) (domain.Role, error)
}

// SummarizeInput is the body of POST /ai/summarize
type SummarizeInput struct {
	Text string `json:"text" validate:"required,max=20000"`
}

// DraftEmailInput is the body of POST /ai/draft-email
type DraftEmailInput struct {
	Recipient string `json:"recipient" validate:"required,max=200"`
	Purpose   string `json:"purpose" validate:"required,max=2000"`
	Context   string `json:"context,omitempty" validate:"max=10000"`
	Tone      string `json:"tone,omitempty" validate:"omitempty,oneof=formal friendly brief"`
}

// Result is a generated text
type Result struct {
	Text   string `json:"text"`
	Model  string `json:"model"`
	Tokens int    `json:"tokens"`
}

// Service calls the inference endpoint with a per-tenant rate limit.
type Service struct {
	client  Completer
	auth    Authorizer
	limiter *limiter.Limiter
	model   string
	timeout time.Duration
	enabled bool
	logger  *logger.Logger
}

// New creates an assistant for the configured endpoint. Without a token the
// assistant answers every call with 503.
func New(cfg config.InferenceConfig, auth Authorizer, log *logger.Logger) *Service {
	clientCfg := openai.DefaultConfig(cfg.Token)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	s := NewWithClient(openai.NewClientWithConfig(clientCfg), auth, cfg, log)
	s.enabled = cfg.Token != ""
	return s
}

// NewWithClient creates an assistant around an existing completer.
func NewWithClient(client Completer, auth Authorizer, cfg config.InferenceConfig, log *logger.Logger) *Service {
	rate := limiter.Rate{Period: time.Minute, Limit: cfg.RatePerMinute}
	if rate.Limit <= 0 {
		rate.Limit = 20
	}
	return &Service{
		client:  client,
		auth:    auth,
		limiter: limiter.New(memory.NewStore(), rate),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		enabled: true,
		logger:  log.WithComponent("assistant"),
	}
}

// Summarize condenses free text such as call notes into a few bullet points.
func (s *Service) Summarize(ctx context.Context, caller *actor.Actor, in SummarizeInput) (*Result, error) {
	messages := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: "You summarise notes for a sales team. Answer with at most five short bullet points in the language of the notes. Do not invent facts.",
		},
		{Role: openai.ChatMessageRoleUser, Content: in.Text},
	}
	return s.complete(ctx, caller, kindSummarize, messages)
}

// DraftEmail writes a short sales email.
func (s *Service) DraftEmail(ctx context.Context, caller *actor.Actor, in DraftEmailInput) (*Result, error) {
	tone := in.Tone
	if tone == "" {
		tone = "friendly"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Recipient: %s\n", in.Recipient)
	fmt.Fprintf(&b, "Purpose: %s\n", in.Purpose)
	if in.Context != "" {
		fmt.Fprintf(&b, "Context:\n%s\n", in.Context)
	}

	messages := []openai.ChatCompletionMessage{
		{
			Role: openai.ChatMessageRoleSystem,
			Content: "You write concise sales emails. Use a " + tone +
				" tone. Return a subject line followed by the body, no placeholders for facts you were not given.",
		},
		{Role: openai.ChatMessageRoleUser, Content: b.String()},
	}
	return s.complete(ctx, caller, kindDraftEmail, messages)
}

func (s *Service) complete(ctx context.Context, caller *actor.Actor, kind string, messages []openai.ChatCompletionMessage) (*Result, error) {
	if _, err := s.auth.RequirePermission(ctx, caller, permissions.AIUse); err != nil {
		return nil, err
	}
	if !s.enabled {
		return nil, errors.New("AI_UNAVAILABLE", "text generation is not configured", http.StatusServiceUnavailable)
	}
	if err := s.allow(ctx, caller.TenantID); err != nil {
		metrics.AIRequestsTotal.WithLabelValues(kind, metrics.ResultLimited).Inc()
		return nil, err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: 0.3,
	})
	if err != nil {
		metrics.AIRequestsTotal.WithLabelValues(kind, metrics.ResultError).Inc()
		s.logger.Warn().Err(err).Str("kind", kind).Str("tenant_id", caller.TenantID).Msg("inference call failed")
		return nil, errors.Wrap(err, "AI_UPSTREAM_ERROR", "text generation failed, please retry later", http.StatusBadGateway)
	}
	if len(resp.Choices) == 0 {
		metrics.AIRequestsTotal.WithLabelValues(kind, metrics.ResultError).Inc()
		return nil, errors.New("AI_UPSTREAM_ERROR", "text generation returned no result", http.StatusBadGateway)
	}

	metrics.AIRequestsTotal.WithLabelValues(kind, metrics.ResultOK).Inc()
	model := resp.Model
	if model == "" {
		model = s.model
	}
	return &Result{
		Text:   strings.TrimSpace(resp.Choices[0].Message.Content),
		Model:  model,
		Tokens: resp.Usage.TotalTokens,
	}, nil
}

// allow consumes one call from the tenant's per-minute budget.
func (s *Service) allow(ctx context.Context, tenantID string) error {
	lctx, err := s.limiter.Get(ctx, "tenant:"+tenantID)
	if err != nil {
		return errors.Wrap(err, "INTERNAL_ERROR", "rate limit check failed", http.StatusInternalServerError)
	}
	if lctx.Reached {
		return errors.New("RATE_LIMITED", "too many AI requests, please retry later", http.StatusTooManyRequests).
			WithDetails(map[string]string{
				"limit": strconv.FormatInt(lctx.Limit, 10),
				"reset": strconv.FormatInt(lctx.Reset, 10),
			})
	}
	return nil
}
