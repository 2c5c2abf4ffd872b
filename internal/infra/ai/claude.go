package ai

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ClaudeCompleter uses the Anthropic Messages API. Anthropic has no JSON
// response mode; the prompts ask for JSON and the repair pipeline does the rest.
type ClaudeCompleter struct {
	client anthropic.Client
	task   TaskConfig
}

// NewClaudeCompleter creates a completer for task. SDK retries are disabled;
// a failed call is a transport failure for this run.
func NewClaudeCompleter(task TaskConfig, httpClient *http.Client) *ClaudeCompleter {
	opts := []option.RequestOption{
		option.WithAPIKey(task.APIKey),
		option.WithMaxRetries(0),
	}
	if task.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(task.Endpoint))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return &ClaudeCompleter{client: anthropic.NewClient(opts...), task: task}
}

// Complete implements Completer.
func (c *ClaudeCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.task.Model),
		MaxTokens:   int64(c.task.MaxTokens),
		Temperature: anthropic.Float(c.task.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", &ProviderError{Provider: ProviderAnthropic, StatusCode: apiErr.StatusCode, Body: truncate(apiErr.RawJSON(), maxErrorBody), Err: err}
		}
		return "", &ProviderError{Provider: ProviderAnthropic, Err: err}
	}

	var sb strings.Builder
	for _, block := range message.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", &ProviderError{Provider: ProviderAnthropic, Err: errors.New("response has no text content")}
	}
	return sb.String(), nil
}
