package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Providers accepted as the prefix of a "provider/model" string.
var Providers = []string{"openai", "openrouter", "anthropic", "gemini"}

type Message struct {
	Role    string
	Content string
}

// conversationStart opens a chat whose first non-system message is the
// assistant's, which alternating-role providers reject.
const conversationStart = "(The conversation begins.)"

// splitConversation separates system text from the chat turns and reshapes
// the turns for providers that require strict user/assistant alternation:
// consecutive messages of the same role are merged and a leading assistant
// message gets a user placeholder in front of it.
func splitConversation(messages []Message) (system []string, turns []Message) {
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleUser, RoleAssistant:
			if n := len(turns); n > 0 && turns[n-1].Role == m.Role {
				turns[n-1].Content += "\n\n" + m.Content
				continue
			}
			if len(turns) == 0 && m.Role == RoleAssistant {
				turns = append(turns, Message{Role: RoleUser, Content: conversationStart})
			}
			turns = append(turns, m)
		}
	}
	return system, turns
}

type Client interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

type Option func(*clientOptions)

type clientOptions struct {
	baseURL     string
	jsonOutput  bool
	temperature float32
	maxTokens   int
	headers     map[string]string
}

func WithBaseURL(url string) Option {
	return func(o *clientOptions) {
		o.baseURL = url
	}
}

// WithJSONOutput asks the provider to return a single JSON object. Providers
// without a native JSON mode ignore it.
func WithJSONOutput() Option {
	return func(o *clientOptions) {
		o.jsonOutput = true
	}
}

func WithTemperature(t float32) Option {
	return func(o *clientOptions) {
		o.temperature = t
	}
}

func WithMaxTokens(n int) Option {
	return func(o *clientOptions) {
		o.maxTokens = n
	}
}

// WithHeader adds a header to every request sent by OpenAI-compatible
// providers.
func WithHeader(key, value string) Option {
	return func(o *clientOptions) {
		if o.headers == nil {
			o.headers = map[string]string{}
		}
		o.headers[key] = value
	}
}

// ParseModel splits "provider/model". Everything after the first slash is the
// model name, so OpenRouter ids such as "openrouter/meta-llama/llama-3" work.
func ParseModel(model string) (provider, modelName string, err error) {
	parts := strings.SplitN(model, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid model format %q: expected provider/model_name", model)
	}
	return parts[0], parts[1], nil
}

// NewClient builds a client for provider. Replies are capped at 1500 tokens
// unless WithMaxTokens says otherwise.
func NewClient(provider, apiKey, model string, opts ...Option) (Client, error) {
	o := &clientOptions{maxTokens: 1500}
	for _, opt := range opts {
		opt(o)
	}

	switch provider {
	case "openai":
		return asClient(newOpenAIClient(apiKey, model, o))
	case "openrouter":
		if o.baseURL == "" {
			o.baseURL = OpenRouterBaseURL
		}
		return asClient(newOpenAIClient(apiKey, model, o))
	case "anthropic":
		return asClient(newAnthropicClient(apiKey, model, o))
	case "gemini":
		return asClient(newGeminiClient(apiKey, model, o))
	default:
		return nil, fmt.Errorf("unknown LLM provider %q: supported providers are %s", provider, strings.Join(Providers, ", "))
	}
}

// asClient keeps a failed constructor's typed nil pointer out of the Client
// interface.
func asClient[C Client](c C, err error) (Client, error) {
	if err != nil {
		return nil, err
	}
	return c, nil
}

// StatusCode reports the HTTP status carried by a provider error, or 0 when
// the failure happened before a response was received.
func StatusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return anthropicErr.StatusCode
	}
	return 0
}
