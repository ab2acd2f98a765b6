package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	domai "github.com/bryanwahyu/solaudit/internal/domain/ai"
	domain "github.com/bryanwahyu/solaudit/internal/domain/audit"
	"github.com/bryanwahyu/solaudit/internal/middleware"
)

// DefaultMaxUploadBytes caps request bodies when Options leaves it unset.
const DefaultMaxUploadBytes = 5 << 20

type Auditor interface {
	Audit(ctx context.Context, code string) (domain.Result, error)
	AuditFile(ctx context.Context, filename string, content []byte) (domain.Result, error)
}

type Compiler interface {
	Compile(ctx context.Context, code string) (domain.CompiledArtifact, error)
}

type Options struct {
	CORSOrigins    []string
	MaxUploadBytes int64
}

type Router struct {
	auditSvc   Auditor
	compileSvc Compiler
	maxBody    int64
}

func NewRouter(auditSvc Auditor, compileSvc Compiler, opts Options, logger zerolog.Logger) http.Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"http://localhost:3000"}
	}

	r := &Router{auditSvc: auditSvc, compileSvc: compileSvc, maxBody: opts.MaxUploadBytes}
	mux := chi.NewRouter()

	mux.Use(chimw.RequestID)
	mux.Use(chimw.RealIP)
	mux.Use(middleware.Logger(logger))
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(chimw.Recoverer)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS", "HEAD"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	mux.Get("/health", middleware.HealthHandler)
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Route("/api", func(rt chi.Router) {
		rt.Post("/audit", r.wrap(r.handleAudit))
		rt.Post("/audit/file", r.wrap(r.handleAuditFile))
		rt.Post("/compile", r.wrap(r.handleCompile))
	})

	return mux
}

// httpError carries a status and detail chosen by the handler itself.
type httpError struct {
	status int
	detail string
}

func (e *httpError) Error() string { return e.detail }

func unprocessable(detail string) error {
	return &httpError{status: http.StatusUnprocessableEntity, detail: detail}
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}

		var (
			herr    *httpError
			inErr   *domain.InputError
			tooBig  *http.MaxBytesError
			parseEr *domai.ParseError
			callErr *domai.CallError
		)
		switch {
		case errors.As(err, &tooBig):
			writeDetail(w, http.StatusRequestEntityTooLarge, "Request body too large")
		case errors.As(err, &herr):
			writeDetail(w, herr.status, herr.detail)
		case errors.As(err, &inErr):
			writeDetail(w, http.StatusBadRequest, inErr.Detail)
		case errors.As(err, &parseEr):
			writeDetail(w, http.StatusInternalServerError, "Failed to parse AI response: "+parseEr.Err.Error())
		case errors.As(err, &callErr):
			if errors.Is(err, domai.ErrQuotaExceeded) {
				zerolog.Ctx(req.Context()).Warn().Msg("completion quota exceeded")
			}
			writeDetail(w, http.StatusInternalServerError, "Llama analysis failed: "+callErr.Error())
		default:
			writeDetail(w, http.StatusInternalServerError, err.Error())
		}
	}
}

// POST /api/audit
// Body: {"code": "<solidity source>"}
func (r *Router) handleAudit(w http.ResponseWriter, req *http.Request) error {
	code, err := r.decodeCode(w, req)
	if err != nil {
		return err
	}

	res, err := r.trackAudit(func() (domain.Result, error) {
		return r.auditSvc.Audit(req.Context(), code)
	})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, res)
}

// POST /api/audit/file
// multipart/form-data with a single "file" part. The file name is checked
// before any of its content is read.
func (r *Router) handleAuditFile(w http.ResponseWriter, req *http.Request) error {
	req.Body = http.MaxBytesReader(w, req.Body, r.maxBody)

	mr, err := req.MultipartReader()
	if err != nil {
		return unprocessable("Expected multipart/form-data with a file field")
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return unprocessable("Field required: file")
		}
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				return err
			}
			return unprocessable("Malformed multipart body")
		}
		if part.FormName() != "file" {
			part.Close()
			continue
		}

		filename := part.FileName()
		if err := domain.ValidateFilename(filename); err != nil {
			part.Close()
			return err
		}
		content, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			return err
		}

		res, err := r.trackAudit(func() (domain.Result, error) {
			return r.auditSvc.AuditFile(req.Context(), filename, content)
		})
		if err != nil {
			return err
		}
		return writeJSON(w, http.StatusOK, res)
	}
}

// POST /api/compile
// Body: {"code": "<solidity source>"}
func (r *Router) handleCompile(w http.ResponseWriter, req *http.Request) error {
	code, err := r.decodeCode(w, req)
	if err != nil {
		return err
	}

	artifact, err := r.compileSvc.Compile(req.Context(), code)
	if err != nil {
		var inErr *domain.InputError
		if errors.As(err, &inErr) {
			return err
		}
		return &httpError{status: http.StatusInternalServerError, detail: "Compilation failed: " + err.Error()}
	}
	return writeJSON(w, http.StatusOK, artifact)
}

// decodeCode reads {"code": string}. A missing field or malformed body is 422;
// an empty string is left for the service to reject.
func (r *Router) decodeCode(w http.ResponseWriter, req *http.Request) (string, error) {
	req.Body = http.MaxBytesReader(w, req.Body, r.maxBody)

	var body struct {
		Code *string `json:"code"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return "", err
		}
		return "", unprocessable("Invalid JSON body")
	}
	if body.Code == nil {
		return "", unprocessable("Field required: code")
	}
	return *body.Code, nil
}

// trackAudit updates the audit counters around one service call.
func (r *Router) trackAudit(run func() (domain.Result, error)) (domain.Result, error) {
	middleware.IncrementAuditsRunning()
	defer middleware.DecrementAuditsRunning()
	res, err := run()

	var inErr *domain.InputError
	if errors.As(err, &inErr) {
		return res, err
	}
	middleware.IncrementAudits()

	var (
		parseErr *domai.ParseError
		callErr  *domai.CallError
	)
	switch {
	case errors.As(err, &parseErr):
		middleware.IncrementCompletionParseErrors()
	case errors.As(err, &callErr):
		middleware.IncrementCompletionCallFailures()
	}
	if err != nil {
		middleware.IncrementAuditsFailed()
		return res, err
	}

	if msg, failed := domain.AnalyzerError(res.SlitherRaw); failed {
		if msg == domain.AnalysisTimeout {
			middleware.IncrementAnalyzerTimeouts()
		} else {
			middleware.IncrementAnalyzerFailures()
		}
	}
	return res, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	_ = writeJSON(w, status, map[string]string{"detail": detail})
}
