package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/gomega"

	"github.com/valpere/devgenie/internal"
	"github.com/valpere/devgenie/internal/chains"
	"github.com/valpere/devgenie/internal/pipeline"
	"github.com/valpere/devgenie/internal/postprocess"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeRunner struct {
	result   *internal.RunResult
	err      error
	got      *pipeline.Request
	registry *chains.Registry
}

func (f *fakeRunner) Run(ctx context.Context, req pipeline.Request) (*internal.RunResult, error) {
	f.got = &req
	return f.result, f.err
}

func (f *fakeRunner) Registry() *chains.Registry {
	return f.registry
}

func sampleResult() *internal.RunResult {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return &internal.RunResult{
		ID:          "run-1",
		InitialTask: "write fizzbuzz",
		Mode:        "fast",
		FinalOutput: "final code",
		Steps: []internal.StepResult{
			{Step: 1, Model: "gemini-2.5-pro", Output: "first", Success: true, Timestamp: start},
			{Step: 2, Model: "gemini-2.5-flash", Success: false, Error: "quota exceeded", Timestamp: start},
		},
		Candidates: []internal.ScoredCandidate{
			{Step: 1, Model: "gemini-2.5-pro", Output: "first", Score: 77, Success: true},
		},
		TotalModels:      2,
		SuccessfulModels: 1,
		ScoringEnabled:   true,
		StartedAt:        start,
		CompletedAt:      start.Add(1500 * time.Millisecond),
	}
}

func newTestServer(runner Runner, opts Options) http.Handler {
	return New(runner, opts, nil).Router()
}

func doRequest(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not JSON: %v (%s)", err, w.Body.String())
	}
	return out
}

func TestHealth(t *testing.T) {
	g := NewWithT(t)
	w := doRequest(newTestServer(&fakeRunner{}, Options{}), http.MethodGet, "/health", "")

	g.Expect(w.Code).To(Equal(http.StatusOK))
	g.Expect(decode(t, w)).To(Equal(map[string]any{"status": "healthy", "message": "Backend is running"}))
}

func TestRun_Success(t *testing.T) {
	g := NewWithT(t)
	runner := &fakeRunner{result: sampleResult()}
	h := newTestServer(runner, Options{})

	w := doRequest(h, http.MethodPost, "/run", `{"task":"write fizzbuzz","api_key":"k","mode":"FAST","verbose":true}`)

	g.Expect(w.Code).To(Equal(http.StatusOK))
	g.Expect(runner.got).NotTo(BeNil())
	g.Expect(runner.got.APIKey).To(Equal("k"))
	g.Expect(runner.got.Mode).To(Equal("FAST"))
	g.Expect(runner.got.Verbose).To(BeTrue())
	g.Expect(runner.got.Scoring).To(BeNil())

	body := decode(t, w)
	g.Expect(body).To(HaveKeyWithValue("run_id", "run-1"))
	g.Expect(body).To(HaveKeyWithValue("mode", "fast"))
	g.Expect(body).To(HaveKeyWithValue("final_code", "final code"))
	g.Expect(body).To(HaveKeyWithValue("total_models_used", BeNumerically("==", 2)))
	g.Expect(body).To(HaveKeyWithValue("successful_models", BeNumerically("==", 1)))
	g.Expect(body).To(HaveKeyWithValue("requirements", ""))
	g.Expect(body).To(HaveKeyWithValue("complexity_score", BeNumerically("==", 0)))
	g.Expect(body).To(HaveKey("workflow_started"))
	g.Expect(body).To(HaveKeyWithValue("messages", HaveLen(2)))
	g.Expect(body).To(HaveKeyWithValue("candidates", HaveLen(1)))

	metrics := body["performance_metrics"].(map[string]any)
	g.Expect(metrics).To(HaveKeyWithValue("success_rate", BeNumerically("==", 50)))
	g.Expect(metrics).To(HaveKeyWithValue("duration_ms", BeNumerically("==", 1500)))
	g.Expect(metrics).To(HaveKeyWithValue("best_score", BeNumerically("==", 77)))

	second := body["messages"].([]any)[1].(map[string]any)
	g.Expect(second).To(HaveKeyWithValue("success", false))
	g.Expect(second).To(HaveKeyWithValue("error", "quota exceeded"))
}

func TestRun_ScoringOverride(t *testing.T) {
	g := NewWithT(t)
	runner := &fakeRunner{result: sampleResult()}

	w := doRequest(newTestServer(runner, Options{}), http.MethodPost, "/run", `{"task":"t","api_key":"k","scoring":false}`)

	g.Expect(w.Code).To(Equal(http.StatusOK))
	g.Expect(runner.got.Scoring).To(HaveValue(BeFalse()))
}

func TestRun_FallbackAPIKey(t *testing.T) {
	g := NewWithT(t)
	runner := &fakeRunner{result: sampleResult()}

	w := doRequest(newTestServer(runner, Options{APIKey: "env-key"}), http.MethodPost, "/run", `{"task":"t"}`)

	g.Expect(w.Code).To(Equal(http.StatusOK))
	g.Expect(runner.got.APIKey).To(Equal("env-key"))
}

func TestRun_MissingAPIKey(t *testing.T) {
	g := NewWithT(t)
	runner := &fakeRunner{result: sampleResult()}

	w := doRequest(newTestServer(runner, Options{}), http.MethodPost, "/run", `{"task":"t"}`)

	g.Expect(w.Code).To(Equal(http.StatusBadRequest))
	g.Expect(decode(t, w)["detail"]).To(ContainSubstring("API key is required"))
	g.Expect(runner.got).To(BeNil())
}

func TestRun_InvalidBody(t *testing.T) {
	g := NewWithT(t)
	h := newTestServer(&fakeRunner{}, Options{APIKey: "k"})

	for _, body := range []string{`{}`, `not json`, `{"task":""}`} {
		w := doRequest(h, http.MethodPost, "/run", body)
		g.Expect(w.Code).To(Equal(http.StatusBadRequest), body)
	}
}

func TestRun_EmptyTaskFromRunner(t *testing.T) {
	g := NewWithT(t)
	runner := &fakeRunner{err: pipeline.ErrEmptyTask}

	w := doRequest(newTestServer(runner, Options{APIKey: "k"}), http.MethodPost, "/run", `{"task":"   "}`)

	g.Expect(w.Code).To(Equal(http.StatusBadRequest))
}

func TestRun_Failure(t *testing.T) {
	g := NewWithT(t)
	runner := &fakeRunner{err: errors.New("run aborted: boom")}

	w := doRequest(newTestServer(runner, Options{APIKey: "k"}), http.MethodPost, "/run", `{"task":"t"}`)

	g.Expect(w.Code).To(Equal(http.StatusInternalServerError))
	g.Expect(decode(t, w)).To(HaveKeyWithValue("detail", "Error: run aborted: boom"))
}

func TestRun_Truncation(t *testing.T) {
	g := NewWithT(t)
	res := sampleResult()
	res.FinalOutput = strings.Repeat("a", 9000)
	res.Steps[0].Output = strings.Repeat("b", 5000)
	runner := &fakeRunner{result: res}

	w := doRequest(newTestServer(runner, Options{APIKey: "k", FinalOutputLimit: 8000, StepOutputLimit: 4000}), http.MethodPost, "/run", `{"task":"t"}`)

	g.Expect(w.Code).To(Equal(http.StatusOK))
	body := decode(t, w)
	g.Expect(body["final_code"]).To(Equal(strings.Repeat("a", 8000) + postprocess.TruncationMarker))
	first := body["messages"].([]any)[0].(map[string]any)
	g.Expect(first["output"]).To(Equal(strings.Repeat("b", 4000) + postprocess.TruncationMarker))
}

func TestRunOptions(t *testing.T) {
	g := NewWithT(t)
	h := newTestServer(&fakeRunner{}, Options{})

	w := doRequest(h, http.MethodOptions, "/run", "")
	g.Expect(w.Code).To(Equal(http.StatusOK))
	g.Expect(decode(t, w)).To(HaveKeyWithValue("status", "ok"))
}

func TestCORS_Preflight(t *testing.T) {
	g := NewWithT(t)
	h := newTestServer(&fakeRunner{}, Options{})

	req := httptest.NewRequest(http.MethodOptions, "/run", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	g.Expect(w.Code).To(Equal(http.StatusNoContent))
	g.Expect(w.Header().Get("Access-Control-Allow-Origin")).To(Equal("http://localhost:3000"))
	g.Expect(w.Header().Get("Access-Control-Allow-Credentials")).To(Equal("true"))
	g.Expect(w.Header().Get("Access-Control-Allow-Headers")).To(Equal("content-type"))
	g.Expect(w.Header().Get("Access-Control-Allow-Methods")).To(ContainSubstring("POST"))
}

func TestCORS_SimpleRequest(t *testing.T) {
	g := NewWithT(t)
	w := doRequest(newTestServer(&fakeRunner{}, Options{}), http.MethodGet, "/health", "")

	g.Expect(w.Header().Get("Access-Control-Allow-Origin")).To(Equal("*"))
}

func TestChains(t *testing.T) {
	g := NewWithT(t)
	reg, err := chains.Default()
	g.Expect(err).NotTo(HaveOccurred())

	w := doRequest(newTestServer(&fakeRunner{registry: reg}, Options{}), http.MethodGet, "/chains", "")

	g.Expect(w.Code).To(Equal(http.StatusOK))
	var body chainsResponse
	g.Expect(json.Unmarshal(w.Body.Bytes(), &body)).To(Succeed())
	g.Expect(body.Default).To(Equal("fast"))
	g.Expect(body.Chains).To(HaveLen(7))
	g.Expect(body.Chains[0].Name).To(Equal("fast"))
	g.Expect(body.Chains[len(body.Chains)-1].Length).To(Equal(33))
}

func TestChains_NoRegistry(t *testing.T) {
	g := NewWithT(t)
	w := doRequest(newTestServer(&fakeRunner{}, Options{}), http.MethodGet, "/chains", "")

	g.Expect(w.Code).To(Equal(http.StatusServiceUnavailable))
}

func TestIndex_Missing(t *testing.T) {
	g := NewWithT(t)
	w := doRequest(newTestServer(&fakeRunner{}, Options{StaticDir: t.TempDir()}), http.MethodGet, "/", "")

	g.Expect(w.Code).To(Equal(http.StatusNotFound))
	g.Expect(decode(t, w)).To(HaveKeyWithValue("detail", "index.html not found"))
}

func TestIndex_AndStatic(t *testing.T) {
	g := NewWithT(t)
	dir := t.TempDir()
	g.Expect(os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>devgenie</h1>"), 0644)).To(Succeed())
	g.Expect(os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0644)).To(Succeed())
	h := newTestServer(&fakeRunner{}, Options{StaticDir: dir})

	w := doRequest(h, http.MethodGet, "/", "")
	g.Expect(w.Code).To(Equal(http.StatusOK))
	g.Expect(w.Body.String()).To(ContainSubstring("devgenie"))

	w = doRequest(h, http.MethodGet, "/static/app.js", "")
	g.Expect(w.Code).To(Equal(http.StatusOK))
	g.Expect(w.Body.String()).To(Equal("console.log(1)"))
}

func TestStatic_MissingDir(t *testing.T) {
	g := NewWithT(t)
	h := newTestServer(&fakeRunner{}, Options{StaticDir: filepath.Join(t.TempDir(), "absent")})

	w := doRequest(h, http.MethodGet, "/static/app.js", "")
	g.Expect(w.Code).To(Equal(http.StatusNotFound))
}

func TestListenAndServe_Shutdown(t *testing.T) {
	g := NewWithT(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- New(&fakeRunner{}, Options{}, nil).ListenAndServe(ctx, "127.0.0.1:0")
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		g.Expect(err).NotTo(HaveOccurred())
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
