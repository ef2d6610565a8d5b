package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const jsonOnlyInstruction = "Respond with a single JSON object and nothing else."

type anthropicClient struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float32
	jsonOutput  bool
}

func newAnthropicClient(apiKey, model string, opts *clientOptions) (*anthropicClient, error) {
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if opts.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.baseURL))
	}
	for k, v := range opts.headers {
		reqOpts = append(reqOpts, option.WithHeader(k, v))
	}

	return &anthropicClient{
		client:      anthropic.NewClient(reqOpts...),
		model:       model,
		maxTokens:   int64(opts.maxTokens),
		temperature: opts.temperature,
		jsonOutput:  opts.jsonOutput,
	}, nil
}

func (c *anthropicClient) params(messages []Message) (anthropic.MessageNewParams, error) {
	system, turns := splitConversation(messages)
	if len(turns) == 0 {
		return anthropic.MessageNewParams{}, fmt.Errorf("anthropic: no conversation messages")
	}
	if c.jsonOutput {
		system = append(system, jsonOnlyInstruction)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages:  make([]anthropic.MessageParam, 0, len(turns)),
	}
	for _, text := range system {
		params.System = append(params.System, anthropic.TextBlockParam{Text: text})
	}
	for _, m := range turns {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == RoleAssistant {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
		} else {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
		}
	}
	if c.temperature > 0 {
		params.Temperature = anthropic.Float(float64(c.temperature))
	}
	return params, nil
}

func (c *anthropicClient) Complete(ctx context.Context, messages []Message) (string, error) {
	params, err := c.params(messages)
	if err != nil {
		return "", err
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic completion: %w", err)
	}

	var b strings.Builder
	for i := range resp.Content {
		if block := &resp.Content[i]; block.Type == "text" {
			b.WriteString(block.Text)
		}
	}

	result := strings.TrimSpace(b.String())
	if result == "" {
		return "", fmt.Errorf("anthropic: empty response content")
	}
	return result, nil
}
