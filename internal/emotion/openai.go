package emotion

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const detectPrompt = `Classify the facial expression of the person in this webcam frame.
Return only JSON: {"face": true|false, "expressions": {"neutral": 0-1, "happy": 0-1, "sad": 0-1, "angry": 0-1, "fearful": 0-1, "disgusted": 0-1, "surprised": 0-1}}.
Use "face": false and empty expressions when no face is visible.`

// OpenAIDetector scores expressions with a vision-capable chat model.
type OpenAIDetector struct {
	client *openai.Client
	model  string
}

func NewOpenAIDetector(apiKey, model, baseURL string) *OpenAIDetector {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIDetector{client: openai.NewClientWithConfig(config), model: model}
}

func (d *OpenAIDetector) Detect(ctx context.Context, frame Frame) (Detection, error) {
	mime := frame.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	dataURI := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(frame.Data)

	resp, err := d.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: d.model,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: detectPrompt},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: dataURI, Detail: openai.ImageURLDetailLow}},
			},
		}},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		MaxTokens:      200,
	})
	if err != nil {
		return Detection{}, fmt.Errorf("openai vision completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Detection{}, fmt.Errorf("openai: no choices in response")
	}

	var det Detection
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &det); err != nil {
		return Detection{}, fmt.Errorf("decode detection: %w", err)
	}
	return det, nil
}
