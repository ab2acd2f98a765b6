package audit

import "context"

// Analyzer port (static analysis of one source file).
// Implementations never fail: problems are reported inside the result.
type Analyzer interface {
	Run(ctx context.Context, code string) AnalyzerResult
}
