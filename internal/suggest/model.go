package suggest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/rawinstinctart/rawauditpro/internal/analyzer"
	"github.com/rawinstinctart/rawauditpro/internal/circuitbreaker"
	"github.com/rawinstinctart/rawauditpro/internal/policy"
)

// ErrMalformedResponse is returned when the model reply cannot be used.
var ErrMalformedResponse = errors.New("malformed model response")

const (
	defaultModel     = "claude-haiku-4-5"
	defaultMaxTokens = 1024
	defaultTimeout   = 20 * time.Second
	// bodyExcerpt caps the page text sent with each prompt.
	bodyExcerpt = 1500
)

const systemPrompt = `You are an SEO remediation assistant. For the issue described, write three
replacement values for the affected field: "safe" changes as little as possible,
"balanced" is a moderate rewrite, "aggressive" may restructure freely.
Respect each variant's limits. Reply with one JSON object only:
{"safe":"...","balanced":"...","aggressive":"...","reasoning":"...",
 "confidence":{"safe":0.0,"balanced":0.0,"aggressive":0.0}}`

// ModelConfig configures ModelProvider.
type ModelConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int64
	Timeout   time.Duration
	Breaker   circuitbreaker.Config
}

type messageCreator interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// ModelProvider asks a hosted Claude model for proposals. Calls go through a
// circuit breaker; wrap it in a FallbackProvider for production use.
type ModelProvider struct {
	client   anthropic.Client
	messages messageCreator
	breaker  *circuitbreaker.Breaker
	model    string
	tokens   int64
	timeout  time.Duration
}

// NewModelProvider builds a provider. SDK retries are disabled; the breaker
// and the rule fallback replace them.
func NewModelProvider(cfg ModelConfig) *ModelProvider {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	p := &ModelProvider{
		client:  anthropic.NewClient(opts...),
		breaker: circuitbreaker.New(cfg.Breaker),
		model:   cfg.Model,
		tokens:  cfg.MaxTokens,
		timeout: cfg.Timeout,
	}
	p.messages = &p.client.Messages
	return p
}

func (*ModelProvider) Name() string { return SourceModel }

// Breaker exposes the breaker state for health reporting.
func (p *ModelProvider) Breaker() *circuitbreaker.Breaker { return p.breaker }

func (p *ModelProvider) GenerateProposals(ctx context.Context, f analyzer.Finding, pc *PageContext) (*Proposals, error) {
	if pc == nil {
		pc = &PageContext{URL: f.PageURL}
	}
	prompt, err := buildPrompt(f, pc)
	if err != nil {
		return nil, err
	}

	var reply string
	err = p.breaker.Execute(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()

		msg, callErr := p.messages.New(callCtx, anthropic.MessageNewParams{
			Model:     anthropic.Model(p.model),
			MaxTokens: p.tokens,
			System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if callErr != nil {
			return callErr
		}
		reply = messageText(msg)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("model request: %w", err)
	}

	return parseReply(reply)
}

func messageText(msg *anthropic.Message) string {
	if msg == nil {
		return ""
	}
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

type promptVariant struct {
	MaxAddedChars       float64 `json:"max_length_change"`
	KeywordDensity      float64 `json:"keyword_density_target"`
	HeadingRestructure  string  `json:"heading_restructure"`
	ContentRewrite      string  `json:"content_rewrite"`
	MaxNewInternalLinks int     `json:"max_new_internal_links"`
	ImageQuality        int     `json:"image_quality"`
}

type promptPayload struct {
	Issue    analyzer.Finding         `json:"issue"`
	Page     *PageContext             `json:"page"`
	Variants map[string]promptVariant `json:"variants"`
}

func buildPrompt(f analyzer.Finding, pc *PageContext) (string, error) {
	page := *pc
	page.BodyText = fit(page.BodyText, bodyExcerpt)

	variants := make(map[string]promptVariant, 3)
	for _, prof := range policy.All() {
		variants[string(prof.Name)] = promptVariant{
			MaxAddedChars:       prof.MaxLengthChange,
			KeywordDensity:      prof.KeywordDensityTarget,
			HeadingRestructure:  prof.HeadingRestructure.String(),
			ContentRewrite:      prof.ContentRewrite.String(),
			MaxNewInternalLinks: prof.MaxNewInternalLinks,
			ImageQuality:        prof.ImageQuality,
		}
	}

	raw, err := json.MarshalIndent(promptPayload{Issue: f, Page: &page, Variants: variants}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode prompt: %w", err)
	}
	return "Propose fixes for this issue.\n\n" + string(raw), nil
}

type modelReply struct {
	Safe       string      `json:"safe"`
	Balanced   string      `json:"balanced"`
	Aggressive string      `json:"aggressive"`
	Reasoning  string      `json:"reasoning"`
	Confidence Confidences `json:"confidence"`
}

// parseReply accepts the JSON object anywhere in the reply, including inside
// a fenced code block.
func parseReply(text string) (*Proposals, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object", ErrMalformedResponse)
	}

	var r modelReply
	if err := json.Unmarshal([]byte(text[start:end+1]), &r); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	r.Safe = strings.TrimSpace(r.Safe)
	r.Balanced = strings.TrimSpace(r.Balanced)
	r.Aggressive = strings.TrimSpace(r.Aggressive)
	if r.Safe == "" || r.Balanced == "" || r.Aggressive == "" {
		return nil, fmt.Errorf("%w: missing variant", ErrMalformedResponse)
	}

	return &Proposals{
		Safe:        r.Safe,
		Balanced:    r.Balanced,
		Aggressive:  r.Aggressive,
		Reasoning:   strings.TrimSpace(r.Reasoning),
		Confidences: r.Confidence.Scale(1),
		Source:      SourceModel,
	}, nil
}
