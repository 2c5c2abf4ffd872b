package ai

import (
	"context"
	"errors"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAICompleter talks to any OpenAI-compatible chat completion endpoint.
type OpenAICompleter struct {
	client *openai.Client
	task   TaskConfig
}

// NewOpenAICompleter creates a completer for task. A configured Endpoint may
// be either the API base ("https://api.openai.com/v1") or the full
// chat completions URL.
func NewOpenAICompleter(task TaskConfig, httpClient *http.Client) *OpenAICompleter {
	cfg := openai.DefaultConfig(task.APIKey)
	if task.Endpoint != "" {
		cfg.BaseURL = strings.TrimSuffix(strings.TrimRight(task.Endpoint, "/"), "/chat/completions")
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return &OpenAICompleter{client: openai.NewClientWithConfig(cfg), task: task}
}

// Complete implements Completer.
func (o *OpenAICompleter) Complete(ctx context.Context, system, user string) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: user})

	req := openai.ChatCompletionRequest{
		Model:       o.task.Model,
		Messages:    messages,
		Temperature: float32(o.task.Temperature),
		MaxTokens:   o.task.MaxTokens,
	}
	if o.task.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", openAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &ProviderError{Provider: ProviderOpenAI, Err: errors.New("response has no choices")}
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", &ProviderError{Provider: ProviderOpenAI, Err: errors.New("choices[0].message.content is empty")}
	}
	return content, nil
}

func openAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{Provider: ProviderOpenAI, StatusCode: apiErr.HTTPStatusCode, Body: truncate(apiErr.Message, maxErrorBody), Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &ProviderError{Provider: ProviderOpenAI, StatusCode: reqErr.HTTPStatusCode, Body: truncate(string(reqErr.Body), maxErrorBody), Err: err}
	}
	return &ProviderError{Provider: ProviderOpenAI, Err: err}
}
