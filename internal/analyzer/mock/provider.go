package mock

import (
	"context"
	"errors"
)

// FixedOutput is what the default mock analyzer returns.
const FixedOutput = "Mock analysis: the document shows stable revenue and no material risks."

// Analyzer satisfies analyzer.Analyzer for testing.
type Analyzer struct {
	Name_       string
	AnalyzeFunc func(ctx context.Context, filePath, query string) (string, error)
}

func (m *Analyzer) Name() string { return m.Name_ }

func (m *Analyzer) Analyze(ctx context.Context, filePath, query string) (string, error) {
	if m.AnalyzeFunc != nil {
		return m.AnalyzeFunc(ctx, filePath, query)
	}
	return FixedOutput, nil
}

// NewAnalyzer returns a mock that always succeeds with FixedOutput.
func NewAnalyzer() *Analyzer {
	return &Analyzer{Name_: "mock"}
}

// NewFailingAnalyzer returns a mock that always returns the given error.
func NewFailingAnalyzer(err error) *Analyzer {
	return &Analyzer{
		Name_: "mock-failing",
		AnalyzeFunc: func(_ context.Context, _, _ string) (string, error) {
			return "", err
		},
	}
}

// NewBlockingAnalyzer returns a mock that blocks until its context expires,
// for exercising deadline handling.
func NewBlockingAnalyzer() *Analyzer {
	return &Analyzer{
		Name_: "mock-blocking",
		AnalyzeFunc: func(ctx context.Context, _, _ string) (string, error) {
			<-ctx.Done()
			return "", errors.New("analysis interrupted: " + ctx.Err().Error())
		},
	}
}
