// Package analyzer defines the document analysis collaborator. The pipeline
// treats it as an opaque capability: a file path and a query in, report text
// out. Whatever orchestration a provider does internally is its own concern.
package analyzer

import (
	"context"
	"errors"
)

// ErrAnalysisFailed wraps provider-side failures (bad document, upstream
// API error). The worker records it on the job; it never crashes a worker.
var ErrAnalysisFailed = errors.New("analysis failed")

// Analyzer produces an analysis report for a document. Implementations must
// honor ctx cancellation; the worker enforces the execution deadlines.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, filePath, query string) (string, error)
}
