package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GeminiCompleter uses the Google Generative Language API.
type GeminiCompleter struct {
	client *genai.Client
	task   TaskConfig
}

// NewGeminiCompleter creates a completer for task. The returned completer
// holds a client connection; call Close when done.
func NewGeminiCompleter(task TaskConfig) (*GeminiCompleter, error) {
	opts := []option.ClientOption{option.WithAPIKey(task.APIKey)}
	if task.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(task.Endpoint))
	}
	client, err := genai.NewClient(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiCompleter{client: client, task: task}, nil
}

// Complete implements Completer.
func (g *GeminiCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	model := g.client.GenerativeModel(g.task.Model)
	model.SetTemperature(float32(g.task.Temperature))
	model.SetMaxOutputTokens(int32(g.task.MaxTokens))
	if g.task.JSONMode {
		model.ResponseMIMEType = "application/json"
	}
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	resp, err := model.GenerateContent(ctx, genai.Text(user))
	if err != nil {
		var gErr *googleapi.Error
		if errors.As(err, &gErr) {
			return "", &ProviderError{Provider: ProviderGemini, StatusCode: gErr.Code, Body: truncate(gErr.Body, maxErrorBody), Err: err}
		}
		return "", &ProviderError{Provider: ProviderGemini, Err: err}
	}

	text := geminiText(resp)
	if strings.TrimSpace(text) == "" {
		return "", &ProviderError{Provider: ProviderGemini, Err: errors.New("response has no candidates")}
	}
	return text, nil
}

// Close releases the client connection.
func (g *GeminiCompleter) Close() error {
	return g.client.Close()
}

// geminiText concatenates the text parts of the first candidate.
func geminiText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	return sb.String()
}
