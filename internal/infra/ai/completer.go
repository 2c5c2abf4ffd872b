// Package ai turns source items into articles through chat-completion
// providers. It builds prompts, calls the provider behind a transport
// circuit breaker and repairs the model's reply into the expected JSON shape.
package ai

import (
	"context"
	"fmt"
	"net/http"
	"unicode/utf8"

	"newsfromai/internal/domain/entity"
)

// Completer sends one system/user prompt pair to a provider and returns the
// first text reply.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// CompleterFactory builds the Completer for a task.
type CompleterFactory func(task TaskConfig, httpClient *http.Client) (Completer, error)

// NewCompleter is the default factory.
func NewCompleter(task TaskConfig, httpClient *http.Client) (Completer, error) {
	switch task.Provider {
	case ProviderOpenAI:
		return NewOpenAICompleter(task, httpClient), nil
	case ProviderAnthropic:
		return NewClaudeCompleter(task, httpClient), nil
	case ProviderGemini:
		return NewGeminiCompleter(task)
	default:
		return nil, fmt.Errorf("unknown provider %q: %w", task.Provider, entity.ErrConfiguration)
	}
}

// maxErrorBody caps provider response bodies copied into errors and logs.
const maxErrorBody = 512

// ProviderError describes a failed provider call. It always matches
// entity.ErrTransport.
type ProviderError struct {
	Provider   Provider
	StatusCode int
	Body       string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() []error {
	if e.Err == nil {
		return []error{entity.ErrTransport}
	}
	return []error{entity.ErrTransport, e.Err}
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
