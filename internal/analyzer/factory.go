package analyzer

import (
	"fmt"

	"github.com/mohitagrawal/finsight/internal/analyzer/mock"
	"github.com/mohitagrawal/finsight/internal/analyzer/ollama"
	"github.com/mohitagrawal/finsight/internal/analyzer/openai"
	"github.com/mohitagrawal/finsight/internal/config"
)

// New constructs the analyzer named by config. Called once at worker startup;
// model and embedding selection ride in cfg rather than package state.
func New(cfg config.AnalyzerConfig) (Analyzer, error) {
	switch cfg.Provider {
	case "openai":
		return openai.NewProvider(cfg.OpenAI), nil
	case "ollama":
		return ollama.NewProvider(cfg.Ollama), nil
	case "mock":
		return mock.NewAnalyzer(), nil
	default:
		return nil, fmt.Errorf("unknown analyzer provider %q: must be one of openai, ollama, mock", cfg.Provider)
	}
}
