package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-sonnet-4-5"

const tagSystemPrompt = `You tag operational signals raised by staff at an architecture and engineering firm.
Return only JSON of the form {"tags": ["..."]} with short lowercase topic tags (one to three words each).
Prefer concrete topics such as permitting, revit, consultant coordination, staffing, qa review.`

type messageCreator interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// AnthropicTagger asks a Claude model for tags and falls back to another tagger
// when the call or the response parsing fails.
type AnthropicTagger struct {
	messages messageCreator
	model    string
	maxTags  int
	fallback Tagger
	logger   *slog.Logger
}

// NewAnthropicTagger constructs a tagger using the Anthropic Messages API.
func NewAnthropicTagger(apiKey, model string, maxTags int, fallback Tagger, logger *slog.Logger) *AnthropicTagger {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return newAnthropicTagger(&client.Messages, model, maxTags, fallback, logger)
}

func newAnthropicTagger(messages messageCreator, model string, maxTags int, fallback Tagger, logger *slog.Logger) *AnthropicTagger {
	if logger == nil {
		logger = slog.Default()
	}
	if model == "" {
		model = DefaultModel
	}
	if maxTags <= 0 {
		maxTags = DefaultMaxTags
	}
	return &AnthropicTagger{messages: messages, model: model, maxTags: maxTags, fallback: fallback, logger: logger}
}

func (a *AnthropicTagger) Name() string { return "anthropic" }

func (a *AnthropicTagger) Tags(ctx context.Context, req TagRequest) ([]string, error) {
	tags, err := a.request(ctx, req)
	if err == nil && len(tags) > 0 {
		return tags, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if a.fallback == nil {
		if err == nil {
			err = fmt.Errorf("anthropic returned no tags")
		}
		return nil, err
	}
	a.logger.Warn("anthropic tagging failed, using fallback",
		slog.String("signal_id", req.Signal.ID),
		slog.String("fallback", a.fallback.Name()),
		slog.Any("error", err))
	return a.fallback.Tags(ctx, req)
}

func (a *AnthropicTagger) request(ctx context.Context, req TagRequest) ([]string, error) {
	message, err := a.messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 256,
		System:    []anthropic.TextBlockParam{{Text: tagSystemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(tagPrompt(req, a.maxTags))),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic messages: %w", err)
	}
	for _, block := range message.Content {
		if block.Type == "text" {
			a.logger.Debug("anthropic tags response",
				slog.String("signal_id", req.Signal.ID),
				slog.Int64("tokens_in", message.Usage.InputTokens),
				slog.Int64("tokens_out", message.Usage.OutputTokens))
			return parseTags(block.Text, a.maxTags)
		}
	}
	return nil, fmt.Errorf("no text content in anthropic response")
}

func tagPrompt(req TagRequest, maxTags int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Return at most %d tags.\n", maxTags)
	fmt.Fprintf(&b, "Title: %s\n", req.Signal.Title)
	fmt.Fprintf(&b, "Description: %s\n", req.Signal.Description)
	if rc := req.Classification.RootCause; rc != "" {
		fmt.Fprintf(&b, "Classified root cause: %s\n", rc)
	}
	if d := req.Classification.Department; d != "" {
		fmt.Fprintf(&b, "Department: %s\n", d)
	}
	return b.String()
}

// parseTags accepts {"tags": [...]} or a bare JSON array, optionally inside a
// markdown code fence.
func parseTags(text string, maxTags int) ([]string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var wrapped struct {
		Tags []string `json:"tags"`
	}
	if err := json.Unmarshal([]byte(text), &wrapped); err == nil && len(wrapped.Tags) > 0 {
		return normaliseTags(wrapped.Tags, maxTags), nil
	}
	var bare []string
	if err := json.Unmarshal([]byte(text), &bare); err != nil {
		return nil, fmt.Errorf("parse tags response: %w", err)
	}
	return normaliseTags(bare, maxTags), nil
}
