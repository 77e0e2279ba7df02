// Package compose drafts outreach copy with an LLM.
package compose

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"emex-dashboard/internal/config"
	"emex-dashboard/pkg/logger"

	openai "github.com/sashabaranov/go-openai"
)

var (
	ErrNotConfigured   = errors.New("compose: openai not configured")
	ErrInvalidArgument = errors.New("compose: invalid argument")
	ErrEmptyDraft      = errors.New("compose: empty draft")
)

type DraftRequest struct {
	Goal      string   `json:"goal" validate:"required,max=2000"`
	Tone      string   `json:"tone,omitempty" validate:"omitempty,max=100"`
	Audience  string   `json:"audience,omitempty" validate:"omitempty,max=500"`
	Variables []string `json:"variables,omitempty" validate:"omitempty,max=20,dive,alphanum|contains=_"`
}

type Draft struct {
	Subject    string `json:"subject"`
	Content    string `json:"content"`
	Model      string `json:"model"`
	TokensUsed int    `json:"tokens_used"`
}

type Drafter struct {
	client *openai.Client
	model  string
}

func NewDrafter(cfg config.OpenAIConfig) *Drafter {
	if cfg.APIKey == "" {
		return &Drafter{model: cfg.Model}
	}
	return &Drafter{client: openai.NewClient(cfg.APIKey), model: cfg.Model}
}

// NewDrafterWithBaseURL points the client at an OpenAI-compatible endpoint.
func NewDrafterWithBaseURL(apiKey, baseURL, model string) *Drafter {
	c := openai.DefaultConfig(apiKey)
	c.BaseURL = baseURL
	return &Drafter{client: openai.NewClientWithConfig(c), model: model}
}

func (d *Drafter) Enabled() bool { return d != nil && d.client != nil }

const systemPrompt = `You write short B2B cold outreach emails.
Reply with exactly one line "Subject: <subject>", a blank line, then the HTML body.
Use only these placeholders where personalisation helps: %s.
Do not invent facts about the recipient.`

func (d *Drafter) DraftEmail(ctx context.Context, req DraftRequest) (Draft, error) {
	if !d.Enabled() {
		return Draft{}, ErrNotConfigured
	}
	if strings.TrimSpace(req.Goal) == "" {
		return Draft{}, fmt.Errorf("%w: goal required", ErrInvalidArgument)
	}

	vars := req.Variables
	if len(vars) == 0 {
		vars = []string{"first_name", "company"}
	}
	tokens := make([]string, 0, len(vars))
	for _, v := range vars {
		tokens = append(tokens, "{{"+v+"}}")
	}
	sort.Strings(tokens)

	var user strings.Builder
	fmt.Fprintf(&user, "Goal: %s\n", strings.TrimSpace(req.Goal))
	if req.Tone != "" {
		fmt.Fprintf(&user, "Tone: %s\n", req.Tone)
	}
	if req.Audience != "" {
		fmt.Fprintf(&user, "Audience: %s\n", req.Audience)
	}

	start := time.Now()
	resp, err := d.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: d.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: fmt.Sprintf(systemPrompt, strings.Join(tokens, ", "))},
			{Role: openai.ChatMessageRoleUser, Content: user.String()},
		},
		Temperature: 0.7,
		MaxTokens:   800,
	})
	if err != nil {
		logger.From(ctx).Warn("openai draft failed", "model", d.model, "duration_ms", time.Since(start).Milliseconds(), "error", err)
		return Draft{}, fmt.Errorf("openai chat failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Draft{}, ErrEmptyDraft
	}

	subject, body := ParseDraft(resp.Choices[0].Message.Content)
	if subject == "" || body == "" {
		return Draft{}, ErrEmptyDraft
	}
	return Draft{Subject: subject, Content: body, Model: resp.Model, TokensUsed: resp.Usage.TotalTokens}, nil
}

// ParseDraft splits "Subject: ..." + blank line + body. Without a subject line
// the first line becomes the subject.
func ParseDraft(text string) (subject, body string) {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if text == "" {
		return "", ""
	}
	first, rest, _ := strings.Cut(text, "\n")
	first = strings.TrimSpace(first)
	if len(first) >= 8 && strings.EqualFold(first[:8], "subject:") {
		first = strings.TrimSpace(first[8:])
	}
	return first, strings.TrimSpace(rest)
}
