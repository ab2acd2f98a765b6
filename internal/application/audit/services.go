package audit

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bryanwahyu/solaudit/internal/domain/ai"
	domain "github.com/bryanwahyu/solaudit/internal/domain/audit"
	"github.com/bryanwahyu/solaudit/internal/infra/ai/prompt"
	"github.com/bryanwahyu/solaudit/internal/infra/ai/response"
)

// Service runs one audit per call: analyzer, prompt, completion, extraction.
// It keeps no per-request state and is safe for concurrent use.
type Service struct {
	Analyzer domain.Analyzer
	AI       ai.Client
	Logger   zerolog.Logger
}

func NewService(analyzer domain.Analyzer, client ai.Client, logger zerolog.Logger) *Service {
	return &Service{Analyzer: analyzer, AI: client, Logger: logger}
}

// Audit rejects blank source with domain.ErrNoCode before anything else runs.
// Analyzer problems are folded into the result; completion problems abort
// with *ai.CallError or *ai.ParseError.
func (s *Service) Audit(ctx context.Context, code string) (domain.Result, error) {
	if strings.TrimSpace(code) == "" {
		return domain.Result{}, domain.ErrNoCode
	}

	log := s.logger(ctx).With().
		Str("audit_id", uuid.NewString()).
		Str("contract", domain.ContractName(code)).
		Logger()
	start := time.Now()

	raw := s.Analyzer.Run(ctx, code)
	if msg, failed := domain.AnalyzerError(raw); failed {
		log.Warn().Str("analyzer_error", msg).Msg("static analysis failed, continuing without findings")
	} else {
		c := domain.CountSeverities(domain.ParseFindings(raw))
		log.Info().
			Int("findings", c.Total).
			Int("high", c.High).
			Int("medium", c.Medium).
			Int("low", c.Low).
			Msg("static analysis done")
	}

	text, err := s.AI.Complete(ctx, prompt.GetSystemPrompt(), prompt.GetUserPrompt(code, raw))
	if err != nil {
		var cerr *ai.CallError
		if !errors.As(err, &cerr) {
			err = &ai.CallError{Err: err}
		}
		log.Error().Err(err).Msg("completion call failed")
		return domain.Result{}, err
	}

	report, err := response.Extract(text)
	if err != nil {
		log.Error().Err(err).Int("completion_bytes", len(text)).Msg("completion is not JSON")
		return domain.Result{}, err
	}

	r := domain.DecodeReport(report)
	log.Info().
		Int("risk_score", r.RiskScore).
		Int("vulnerabilities", len(r.Vulnerabilities)).
		Dur("duration", time.Since(start)).
		Msg("audit done")

	return domain.Result{Success: true, Audit: report, SlitherRaw: raw}, nil
}

// AuditFile checks the upload, decodes it as UTF-8 and hands it to Audit.
func (s *Service) AuditFile(ctx context.Context, filename string, content []byte) (domain.Result, error) {
	if err := domain.ValidateFilename(filename); err != nil {
		return domain.Result{}, err
	}
	if !utf8.Valid(content) {
		return domain.Result{}, domain.ErrNotUTF8
	}
	return s.Audit(ctx, string(content))
}

// logger prefers the request-scoped logger carried by ctx.
func (s *Service) logger(ctx context.Context) zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return *l
	}
	return s.Logger
}
