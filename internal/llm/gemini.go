package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

type geminiClient struct {
	client      *genai.Client
	model       string
	jsonOutput  bool
	temperature float32
	maxTokens   int
}

func newGeminiClient(apiKey, model string, opts *clientOptions) (*geminiClient, error) {
	config := &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}
	if opts.baseURL != "" {
		config.HTTPOptions.BaseURL = opts.baseURL
	}
	if len(opts.headers) > 0 {
		config.HTTPOptions.Headers = http.Header{}
		for k, v := range opts.headers {
			config.HTTPOptions.Headers.Set(k, v)
		}
	}

	client, err := genai.NewClient(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &geminiClient{
		client:      client,
		model:       model,
		jsonOutput:  opts.jsonOutput,
		temperature: opts.temperature,
		maxTokens:   opts.maxTokens,
	}, nil
}

// convertGeminiMessages joins system messages into one instruction; Gemini
// calls the assistant role "model".
func convertGeminiMessages(messages []Message) (*genai.Content, []*genai.Content) {
	system, turns := splitConversation(messages)

	var instruction *genai.Content
	if len(system) > 0 {
		instruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}

	contents := make([]*genai.Content, 0, len(turns))
	for _, m := range turns {
		role := genai.Role(genai.RoleUser)
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	return instruction, contents
}

func (c *geminiClient) Complete(ctx context.Context, messages []Message) (string, error) {
	instruction, contents := convertGeminiMessages(messages)
	if len(contents) == 0 {
		return "", fmt.Errorf("gemini: no conversation messages")
	}

	config := &genai.GenerateContentConfig{SystemInstruction: instruction}
	if c.jsonOutput {
		config.ResponseMIMEType = "application/json"
	}
	if c.temperature > 0 {
		config.Temperature = genai.Ptr(c.temperature)
	}
	if c.maxTokens > 0 {
		config.MaxOutputTokens = int32(c.maxTokens)
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini completion: %w", err)
	}

	text := strings.TrimSpace(result.Text())
	if text == "" {
		return "", fmt.Errorf("gemini: empty response text")
	}
	return text, nil
}
