package analyzer_test

import (
	"context"
	"testing"

	"github.com/mohitagrawal/finsight/internal/analyzer"
	"github.com/mohitagrawal/finsight/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_KnownProviders(t *testing.T) {
	tests := []struct {
		provider string
		wantName string
	}{
		{"mock", "mock"},
		{"ollama", "ollama"},
		{"openai", "openai"},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			cfg := config.AnalyzerConfig{
				Provider: tt.provider,
				OpenAI:   config.OpenAIConfig{APIKey: "sk-test", Model: "gpt-4o-mini"},
				Ollama:   config.OllamaConfig{BaseURL: "http://localhost:11434", Model: "llama3"},
			}
			a, err := analyzer.New(cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, a.Name())
		})
	}
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := analyzer.New(config.AnalyzerConfig{Provider: "tarot"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tarot")
}

func TestMockAnalyzer(t *testing.T) {
	cfg := config.AnalyzerConfig{Provider: "mock"}
	a, err := analyzer.New(cfg)
	require.NoError(t, err)

	out, err := a.Analyze(context.Background(), "unused.pdf", "any query")
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}
