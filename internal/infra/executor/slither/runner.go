package slither

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"time"

	"github.com/rs/zerolog"

	domain "github.com/bryanwahyu/solaudit/internal/domain/audit"
)

const (
	DefaultBinary  = "slither"
	DefaultTimeout = 30 * time.Second

	// after the timeout kills the process, stop waiting on its pipes
	waitDelay    = 2 * time.Second
	stderrTailSz = 512

	// keeps the temp file name well under NAME_MAX
	maxNamePrefix = 64
)

type Options struct {
	Binary    string
	ExtraArgs []string
	Timeout   time.Duration
	TempDir   string // "" means os.TempDir()
}

// Runner runs the Slither CLI against one source file per call.
// It holds no per-request state and is safe for concurrent use.
type Runner struct {
	binary    string
	extraArgs []string
	timeout   time.Duration
	tempDir   string
	logger    zerolog.Logger
}

func NewRunner(opts Options, logger zerolog.Logger) *Runner {
	if opts.Binary == "" {
		opts.Binary = DefaultBinary
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Runner{
		binary:    opts.Binary,
		extraArgs: opts.ExtraArgs,
		timeout:   opts.Timeout,
		tempDir:   opts.TempDir,
		logger:    logger.With().Str("component", "slither").Logger(),
	}
}

// Run never returns an error: failures come back as {"error": ...} and an
// unusable stdout as the empty-findings shape.
func (r *Runner) Run(ctx context.Context, code string) domain.AnalyzerResult {
	start := time.Now()

	f, err := os.CreateTemp(r.tempDir, tempPattern(code))
	if err != nil {
		r.logger.Error().Err(err).Msg("create temp source file")
		return domain.ErrorResult(err.Error())
	}
	path := f.Name()
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			r.logger.Warn().Err(err).Str("path", path).Msg("remove temp source file")
		}
	}()

	_, werr := f.WriteString(code)
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		r.logger.Error().Err(werr).Str("path", path).Msg("write temp source file")
		return domain.ErrorResult(werr.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	args := make([]string, 0, len(r.extraArgs)+3)
	args = append(args, path)
	args = append(args, r.extraArgs...)
	args = append(args, "--json", "-")

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	err = cmd.Run()
	duration := time.Since(start)

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		r.logger.Warn().Dur("timeout", r.timeout).Dur("duration", duration).Msg("analysis timed out")
		return domain.ErrorResult(domain.AnalysisTimeout)
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		r.logger.Warn().Dur("duration", duration).Msg("analysis cancelled")
		return domain.ErrorResult(ctx.Err().Error())
	}

	exitCode := 0
	if err != nil {
		// slither exits non-zero whenever detectors fire; stdout is still valid
		var ee *exec.ExitError
		if !errors.As(err, &ee) {
			r.logger.Error().Err(err).Str("binary", r.binary).Msg("run analyzer")
			return domain.ErrorResult(err.Error())
		}
		exitCode = ee.ExitCode()
	}

	evt := r.logger.Debug().
		Int("exit_code", exitCode).
		Dur("duration", duration).
		Int("stdout_bytes", stdout.Len())
	if exitCode != 0 && stderr.Len() > 0 {
		evt = evt.Str("stderr", tail(stderr.Bytes(), stderrTailSz))
	}
	evt.Msg("analyzer finished")

	out := bytes.TrimSpace(stdout.Bytes())
	if len(out) == 0 {
		return domain.EmptyResult()
	}
	if !json.Valid(out) {
		r.logger.Warn().Str("stdout", tail(out, stderrTailSz)).Msg("analyzer output is not JSON")
		return domain.EmptyResult()
	}
	return domain.AnalyzerResult(out)
}

func tail(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[len(b)-n:])
}

// tempPattern names the source file after the contract, truncated.
// ContractName only yields ASCII word characters, so byte slicing is safe.
func tempPattern(code string) string {
	name := domain.ContractName(code)
	if len(name) > maxNamePrefix {
		name = name[:maxNamePrefix]
	}
	return name + "-*" + domain.SourceExt
}
