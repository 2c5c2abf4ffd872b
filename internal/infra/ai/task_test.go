package ai_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"newsfromai/internal/domain/entity"
	"newsfromai/internal/infra/ai"
)

func validTask() ai.TaskConfig {
	c := ai.DefaultTaskConfig()
	c.Name = ai.TaskNewsAnalyzer
	c.APIKey = "sk-test"
	return c
}

func TestTaskConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ai.TaskConfig)
		wantErr bool
	}{
		{"defaults", func(*ai.TaskConfig) {}, false},
		{"custom endpoint", func(c *ai.TaskConfig) { c.Endpoint = "https://llm.internal/v1" }, false},
		{"unknown provider", func(c *ai.TaskConfig) { c.Provider = "mistral" }, true},
		{"missing model", func(c *ai.TaskConfig) { c.Model = "" }, true},
		{"relative endpoint", func(c *ai.TaskConfig) { c.Endpoint = "/v1" }, true},
		{"temperature too high", func(c *ai.TaskConfig) { c.Temperature = 2.5 }, true},
		{"zero max tokens", func(c *ai.TaskConfig) { c.MaxTokens = 0 }, true},
		{"zero timeout", func(c *ai.TaskConfig) { c.Timeout = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validTask()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				assert.True(t, errors.Is(err, entity.ErrConfiguration), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTaskConfig_Ready(t *testing.T) {
	c := validTask()
	assert.True(t, c.Ready())

	c.APIKey = ""
	assert.False(t, c.Ready())

	c = validTask()
	c.Disabled = true
	assert.False(t, c.Ready())
}

func TestTaskConfig_KeyEnv(t *testing.T) {
	c := validTask()
	assert.Equal(t, "OPENAI_API_KEY", c.KeyEnv())

	c.Provider = ai.ProviderAnthropic
	assert.Equal(t, "ANTHROPIC_API_KEY", c.KeyEnv())

	c.Provider = ai.ProviderGemini
	assert.Equal(t, "GEMINI_API_KEY", c.KeyEnv())

	c.APIKeyEnv = "MY_KEY"
	assert.Equal(t, "MY_KEY", c.KeyEnv())
}
