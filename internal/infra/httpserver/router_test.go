package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	appaudit "github.com/bryanwahyu/solaudit/internal/application/audit"
	"github.com/bryanwahyu/solaudit/internal/application/compiler"
	domai "github.com/bryanwahyu/solaudit/internal/domain/ai"
	domain "github.com/bryanwahyu/solaudit/internal/domain/audit"
	"github.com/bryanwahyu/solaudit/internal/middleware"
)

type mockAnalyzer struct {
	mock.Mock
}

func (m *mockAnalyzer) Run(ctx context.Context, code string) domain.AnalyzerResult {
	args := m.Called(ctx, code)
	return args.Get(0).(domain.AnalyzerResult)
}

type mockAI struct {
	mock.Mock
}

func (m *mockAI) Complete(ctx context.Context, system, user string) (string, error) {
	args := m.Called(ctx, system, user)
	return args.String(0), args.Error(1)
}

type failingCompiler struct{}

func (failingCompiler) Compile(context.Context, string) (domain.CompiledArtifact, error) {
	return domain.CompiledArtifact{}, errors.New("solc not found")
}

const contract = "pragma solidity ^0.8.0;\ncontract Vault { function withdraw() public {} }"

const report = `{"riskScore": 72, "vulnerabilities": [{"title": "Reentrancy", "severity": "high", "description": "d", "line": 1, "recommendation": "r"}], "suggestions": ["s"], "fixedCode": "contract Vault {}"}`

type fixture struct {
	handler  http.Handler
	analyzer *mockAnalyzer
	ai       *mockAI
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	an := new(mockAnalyzer)
	cl := new(mockAI)
	comp, err := compiler.NewService(zerolog.Nop())
	require.NoError(t, err)
	svc := appaudit.NewService(an, cl, zerolog.Nop())
	return &fixture{handler: NewRouter(svc, comp, opts, zerolog.Nop()), analyzer: an, ai: cl}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func uploadRequest(t *testing.T, field, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/audit/file", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestAudit_Success(t *testing.T) {
	f := newFixture(t, Options{})
	slither := domain.AnalyzerResult(`{"success":true,"error":null,"results":{"detectors":[]}}`)
	f.analyzer.On("Run", mock.Anything, contract).Return(slither)
	f.ai.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return("Here you go:\n```json\n"+report+"\n```", nil)

	rec := f.do(jsonRequest("/api/audit", `{"code": `+quote(contract)+`}`))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"success":true,"audit":`+report+`,"slitherRaw":`+string(slither)+`}`, rec.Body.String())
}

func TestAudit_EmptyCodeNeverCallsOut(t *testing.T) {
	f := newFixture(t, Options{})

	rec := f.do(jsonRequest("/api/audit", `{"code": ""}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"detail":"No code provided"}`, rec.Body.String())
	f.analyzer.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
	f.ai.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
}

func TestAudit_MalformedBody(t *testing.T) {
	f := newFixture(t, Options{})

	for name, body := range map[string]string{
		"missing field": `{"source": "contract A {}"}`,
		"bad json":      `{"code": `,
		"wrong type":    `{"code": 42}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := f.do(jsonRequest("/api/audit", body))
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			assert.Contains(t, rec.Body.String(), `"detail"`)
		})
	}
}

func TestAudit_UnparsableCompletion(t *testing.T) {
	f := newFixture(t, Options{})
	f.analyzer.On("Run", mock.Anything, contract).Return(domain.EmptyResult())
	f.ai.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return("Sorry, I can't do that.", nil)

	rec := f.do(jsonRequest("/api/audit", `{"code": `+quote(contract)+`}`))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"detail":"Failed to parse AI response: `)
}

func TestAudit_CompletionCallFailure(t *testing.T) {
	f := newFixture(t, Options{})
	f.analyzer.On("Run", mock.Anything, contract).Return(domain.EmptyResult())
	f.ai.On("Complete", mock.Anything, mock.Anything, mock.Anything).
		Return("", &domai.CallError{StatusCode: http.StatusTooManyRequests, Err: errors.New("rate limit reached")})

	rec := f.do(jsonRequest("/api/audit", `{"code": `+quote(contract)+`}`))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"detail":"Llama analysis failed: rate limit reached"}`, rec.Body.String())
}

func TestAudit_AnalyzerTimeoutStillSucceeds(t *testing.T) {
	f := newFixture(t, Options{})
	f.analyzer.On("Run", mock.Anything, contract).Return(domain.ErrorResult(domain.AnalysisTimeout))
	f.ai.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return(report, nil)

	rec := f.do(jsonRequest("/api/audit", `{"code": `+quote(contract)+`}`))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"slitherRaw":{"error":"Analysis timeout"}`)
}

func TestAuditFile(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.analyzer.On("Run", mock.Anything, contract).Return(domain.EmptyResult())
		f.ai.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return(report, nil)

		rec := f.do(uploadRequest(t, "file", "Vault.sol", []byte(contract)))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"success":true,"audit":`+report+`,"slitherRaw":{"success":{"detectors":[]}}}`, rec.Body.String())
	})

	t.Run("wrong extension", func(t *testing.T) {
		f := newFixture(t, Options{})

		rec := f.do(uploadRequest(t, "file", "contract.txt", []byte(contract)))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"detail":"Only .sol files are allowed"}`, rec.Body.String())
		f.analyzer.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
		f.ai.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("not utf-8", func(t *testing.T) {
		f := newFixture(t, Options{})

		rec := f.do(uploadRequest(t, "file", "Vault.sol", []byte{0xff, 0xfe, 0x00, 0xc3}))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"detail":"File must be UTF-8 encoded text"}`, rec.Body.String())
	})

	t.Run("empty file", func(t *testing.T) {
		f := newFixture(t, Options{})

		rec := f.do(uploadRequest(t, "file", "Vault.sol", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"detail":"No code provided"}`, rec.Body.String())
	})

	t.Run("missing file field", func(t *testing.T) {
		f := newFixture(t, Options{})

		rec := f.do(uploadRequest(t, "attachment", "Vault.sol", []byte(contract)))

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("not multipart", func(t *testing.T) {
		f := newFixture(t, Options{})

		rec := f.do(jsonRequest("/api/audit/file", `{"code": "contract A {}"}`))

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("too large", func(t *testing.T) {
		f := newFixture(t, Options{MaxUploadBytes: 256})

		rec := f.do(uploadRequest(t, "file", "Vault.sol", bytes.Repeat([]byte("a"), 4096)))

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		f.ai.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestCompile(t *testing.T) {
	t.Run("canned artifact", func(t *testing.T) {
		f := newFixture(t, Options{})

		rec := f.do(jsonRequest("/api/compile", `{"code": `+quote(contract)+`}`))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"success":true`)
		assert.Contains(t, rec.Body.String(), `"bytecode":"`+compiler.Bytecode+`"`)
		assert.Contains(t, rec.Body.String(), `"name":"increment"`)
	})

	t.Run("empty code", func(t *testing.T) {
		f := newFixture(t, Options{})

		rec := f.do(jsonRequest("/api/compile", `{"code": "  "}`))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"detail":"No code provided"}`, rec.Body.String())
	})

	t.Run("unexpected failure", func(t *testing.T) {
		h := NewRouter(appaudit.NewService(new(mockAnalyzer), new(mockAI), zerolog.Nop()), failingCompiler{}, Options{}, zerolog.Nop())
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, jsonRequest("/api/compile", `{"code": "contract A {}"}`))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.JSONEq(t, `{"detail":"Compilation failed: solc not found"}`, rec.Body.String())
	})
}

func TestHealth(t *testing.T) {
	f := newFixture(t, Options{})

	rec := f.do(httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","slither_available":true}`, rec.Body.String())
}

func TestMetricsRoute(t *testing.T) {
	f := newFixture(t, Options{})

	rec := f.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"audits_total"`)
}

func TestCORS(t *testing.T) {
	f := newFixture(t, Options{CORSOrigins: []string{"https://app.example.com"}})

	t.Run("preflight from allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/audit", nil)
		req.Header.Set("Origin", "https://app.example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", "Content-Type")

		rec := f.do(req)

		assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("other origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", "https://evil.example.com")

		rec := f.do(req)

		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestAudit_PanicReleasesRunningGauge(t *testing.T) {
	f := newFixture(t, Options{})
	f.analyzer.On("Run", mock.Anything, contract).
		Run(func(mock.Arguments) { panic("analyzer blew up") }).
		Return(domain.EmptyResult())
	before := middleware.GetMetrics()["audits_running"]

	rec := f.do(jsonRequest("/api/audit", `{"code": `+quote(contract)+`}`))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, before, middleware.GetMetrics()["audits_running"])
	f.ai.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
}
