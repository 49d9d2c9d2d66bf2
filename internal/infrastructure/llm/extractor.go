package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"EventPoster/internal/config"
	"EventPoster/internal/domain"
	"EventPoster/internal/logging"
	"EventPoster/internal/ports"
)

const defaultSystemPrompt = "You are an expert event data extractor. You answer with a single JSON object and nothing else."

const userPrompt = `Extract the following information from the text content of an event page.
Return a JSON object matching this schema:

{
  "title": "Name of the event",
  "date": "Date of the event as YYYY-MM-DD",
  "time": "HH:MM",
  "place": "Venue name",
  "price": "Price info (optional)",
  "description": "Short description",
  "image_url": "Main image URL (optional)"
}

Today is %s. Resolve dates without a year relative to today; "sobota 14. února" becomes the next 14 February.
Keep the original language of the page. Use an empty string for anything you cannot find.

Content:
%s`

// ErrMisconfigured is returned when the extractor lacks credentials or a model.
var ErrMisconfigured = errors.New("chatgpt extractor misconfigured")

// Completer sends one system and user message pair and returns the reply text.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// OpenAICompleter talks to the Chat Completions API (or any compatible endpoint).
type OpenAICompleter struct {
	client openai.Client
	model  string
}

// NewOpenAICompleter builds a completer from configuration.
func NewOpenAICompleter(cfg config.ChatGPTConfig) (*OpenAICompleter, error) {
	if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.Model) == "" {
		return nil, ErrMisconfigured
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}
	return &OpenAICompleter{client: openai.NewClient(opts...), model: cfg.Model}, nil
}

// Complete implements Completer.
func (c *OpenAICompleter) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature:         openai.Float(0.2),
		MaxCompletionTokens: openai.Int(2048),
	})
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no response from openai")
	}
	return resp.Choices[0].Message.Content, nil
}

// Extractor reads an event page and asks the model for its structured detail.
type Extractor struct {
	fetcher      ports.HTMLFetcher
	completer    Completer
	systemPrompt string
	maxContent   int
	now          func() time.Time
	logger       *slog.Logger
}

var _ ports.EventExtractor = (*Extractor)(nil)

// ExtractorOptions configures NewExtractor.
type ExtractorOptions struct {
	SystemPrompt string
	MaxContent   int
	Now          func() time.Time
	Logger       *slog.Logger
}

// NewExtractor wires the page fetcher with a completer.
func NewExtractor(fetcher ports.HTMLFetcher, completer Completer, opts ExtractorOptions) *Extractor {
	e := &Extractor{
		fetcher:      fetcher,
		completer:    completer,
		systemPrompt: strings.TrimSpace(opts.SystemPrompt),
		maxContent:   opts.MaxContent,
		now:          opts.Now,
		logger:       opts.Logger,
	}
	if e.systemPrompt == "" {
		e.systemPrompt = defaultSystemPrompt
	}
	if e.maxContent <= 0 {
		e.maxContent = 10000
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.logger == nil {
		e.logger = logging.Discard()
	}
	return e
}

// Extract returns nil without error when the page has no text or the model answered with nothing usable.
func (e *Extractor) Extract(ctx context.Context, ref domain.EventReference) (*domain.EventDetail, error) {
	page, err := e.fetcher.Fetch(ctx, ref.URL, "")
	if err != nil {
		return nil, fmt.Errorf("fetch event page: %w", err)
	}

	text := PageText(page, e.maxContent)
	if text == "" {
		e.logger.Warn("event page has no text", "url", ref.URL)
		return nil, nil
	}
	e.logger.Debug("sending page to model", "url", ref.URL, "chars", len(text))

	reply, err := e.completer.Complete(ctx, e.systemPrompt, fmt.Sprintf(userPrompt, e.now().Format(time.DateOnly), text))
	if err != nil {
		return nil, err
	}

	detail, err := ParseReply(reply)
	if err != nil {
		e.logger.Warn("model reply is not a detail", "url", ref.URL, "error", err)
		return nil, nil
	}

	applyOverrides(page, ref.URL, detail)
	detail.URL = ref.URL
	return detail, nil
}

// ParseReply decodes a model reply: a JSON object, possibly fenced, or an array whose first element is used.
func ParseReply(reply string) (*domain.EventDetail, error) {
	body := stripFences(reply)
	if body == "" {
		return nil, errors.New("empty reply")
	}

	var decoded any
	if err := json.Unmarshal([]byte(body), &decoded); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	if list, ok := decoded.([]any); ok {
		if len(list) == 0 {
			return nil, errors.New("empty array reply")
		}
		decoded = list[0]
	}
	fields, ok := decoded.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("reply is %T, not an object", decoded)
	}

	return &domain.EventDetail{
		Title:       field(fields, "title"),
		Date:        field(fields, "date"),
		Time:        field(fields, "time"),
		Place:       field(fields, "place"),
		Price:       field(fields, "price"),
		Description: field(fields, "description"),
		ImageURL:    field(fields, "image_url"),
	}, nil
}

func stripFences(reply string) string {
	body := strings.TrimSpace(reply)
	if strings.HasPrefix(body, "```") {
		body = strings.TrimPrefix(body, "```")
		if nl := strings.IndexByte(body, '\n'); nl >= 0 {
			body = body[nl+1:]
		} else {
			body = strings.TrimPrefix(body, "json")
		}
		body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	}
	return strings.TrimSpace(body)
}

// field stringifies a loosely typed JSON value; models sometimes answer prices as numbers.
func field(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}
