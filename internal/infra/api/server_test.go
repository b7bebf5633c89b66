package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"genhub/internal/config"
	"genhub/internal/domain"
	"genhub/internal/domain/model"
	"genhub/internal/domain/ports/adapter"
	"genhub/internal/infra/logging"
	"genhub/internal/usecase"
)

// --- fakes ---

type fakeJobs struct {
	usecase.JobTrackerUseCase
	lastImage usecase.ImageJobRequest
	lastChat  usecase.ChatJobRequest
	chatErr   error
	statuses  []model.JobStatus
	jobs      map[string]*model.Job
}

func (f *fakeJobs) SubmitImage(ctx context.Context, req usecase.ImageJobRequest) (*model.Job, error) {
	f.lastImage = req
	if _, err := usecase.NormalizeImageRequest(req.Model, adapter.ImageRequest{Prompt: req.Prompt, Params: req.Params}); err != nil {
		return nil, err
	}
	return &model.Job{ID: "job-img", Kind: model.JobKindImage, Status: model.JobStatusRunning}, nil
}

func (f *fakeJobs) SubmitChat(ctx context.Context, req usecase.ChatJobRequest) (*model.Job, error) {
	f.lastChat = req
	if f.chatErr != nil {
		return &model.Job{ID: "job-chat", Kind: model.JobKindText, Status: model.JobStatusFailed, Error: f.chatErr.Error()}, f.chatErr
	}
	return &model.Job{ID: "job-chat", Kind: model.JobKindText, Status: model.JobStatusCompleted}, nil
}

func (f *fakeJobs) List(ctx context.Context, statuses []model.JobStatus, limit int) ([]*model.Job, error) {
	f.statuses = statuses
	return nil, nil
}

func (f *fakeJobs) Get(ctx context.Context, id string) (*model.Job, error) {
	if j, ok := f.jobs[id]; ok {
		return j, nil
	}
	return nil, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
}

func (f *fakeJobs) Retry(ctx context.Context, id string) (*model.Job, error) {
	return nil, fmt.Errorf("%w: only failed jobs can be retried", domain.ErrInvalidTransition)
}

type fakeResults struct {
	usecase.ResultUseCase
}

func (fakeResults) Artifact(ctx context.Context, id string, index int) ([]byte, string, error) {
	if index != 0 {
		return nil, "", domain.ErrNotFound
	}
	return []byte("\x89PNG fake"), "image/png", nil
}

type fakeCreds struct {
	usecase.CredentialUseCase
}

func (fakeCreds) Test(ctx context.Context, p model.ProviderID) (*model.CredentialView, error) {
	return &model.CredentialView{Provider: p, Status: model.ConnectionError}, &domain.UpstreamError{Provider: string(p), StatusCode: 500, Body: "down"}
}

func (fakeCreds) Get(ctx context.Context, p model.ProviderID) (*model.CredentialView, error) {
	return &model.CredentialView{Provider: p, MaskedSecret: "********abcd"}, nil
}

type fakeCatalog struct {
	ProviderCatalog
}

func (fakeCatalog) ListModels(ctx context.Context, p model.ProviderID) ([]string, error) {
	return nil, fmt.Errorf("%w: connection to %s refused, is %s running?", domain.ErrConnection, p, p)
}

type countingLimiter struct {
	n, limit int
}

func (c *countingLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	c.n++
	return c.n <= c.limit, nil
}

// --- helpers ---

func newTestServer(jobs *fakeJobs, auth config.AuthConfig, limiter LoginLimiter) http.Handler {
	if jobs == nil {
		jobs = &fakeJobs{}
	}
	if auth.TTL == 0 {
		auth.TTL = time.Hour
	}
	s := NewServer(Deps{
		Jobs:        jobs,
		Credentials: fakeCreds{},
		Results:     fakeResults{},
		Providers:   fakeCatalog{},
		Limiter:     limiter,
	}, config.ServerConfig{RequestTimeout: time.Second}, auth, logging.Nop())
	return s.Handler()
}

func do(h http.Handler, method, path, body string, mods ...func(*http.Request)) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for _, m := range mods {
		m(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return env
}

// --- tests ---

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.Invalid("model", "is required"), http.StatusBadRequest},
		{fmt.Errorf("x: %w", domain.ErrNotFound), http.StatusNotFound},
		{domain.ErrConflict, http.StatusConflict},
		{domain.ErrAlreadyExists, http.StatusConflict},
		{fmt.Errorf("%w: openai", domain.ErrNotConfigured), http.StatusServiceUnavailable},
		{domain.ErrAuth, http.StatusServiceUnavailable},
		{domain.ErrConnection, http.StatusBadGateway},
		{&domain.UpstreamError{StatusCode: 429}, http.StatusBadGateway},
		{domain.ErrTimeout, http.StatusGatewayTimeout},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := StatusFor(tc.err); got != tc.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestHealth(t *testing.T) {
	rec := do(newTestServer(nil, config.AuthConfig{}, nil), http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || !decodeEnvelope(t, rec).Success {
		t.Fatalf("health: %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing request id header")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rec := do(newTestServer(nil, config.AuthConfig{}, nil), http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rec.Code)
	}
}

func TestAuthFlow(t *testing.T) {
	auth := config.AuthConfig{AdminPassword: "hunter2", HMACSecret: "s3cret"}
	h := newTestServer(nil, auth, nil)

	if rec := do(h, http.MethodGet, "/api/jobs", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no session: %d", rec.Code)
	}
	if rec := do(h, http.MethodPost, "/api/auth/login", `{"password":"nope"}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad password: %d", rec.Code)
	}

	rec := do(h, http.MethodPost, "/api/auth/login", `{"password":"hunter2"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: %d %s", rec.Code, rec.Body.String())
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != cookieName || !cookies[0].HttpOnly {
		t.Fatalf("cookies = %+v", cookies)
	}
	var body struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)

	withCookie := func(r *http.Request) { r.AddCookie(cookies[0]) }
	if rec := do(h, http.MethodGet, "/api/jobs", "", withCookie); rec.Code != http.StatusOK {
		t.Fatalf("cookie session: %d", rec.Code)
	}
	withBearer := func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+body.Data.Token) }
	if rec := do(h, http.MethodGet, "/api/jobs", "", withBearer); rec.Code != http.StatusOK {
		t.Fatalf("bearer session: %d", rec.Code)
	}

	forged := NewAuthManager(config.AuthConfig{AdminPassword: "x", HMACSecret: "other", TTL: time.Hour})
	token, _ := forged.Mint(httptest.NewRecorder())
	withForged := func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
	if rec := do(h, http.MethodGet, "/api/jobs", "", withForged); rec.Code != http.StatusUnauthorized {
		t.Fatalf("forged token accepted: %d", rec.Code)
	}
}

func TestExpiredToken(t *testing.T) {
	a := NewAuthManager(config.AuthConfig{AdminPassword: "pw", HMACSecret: "k", TTL: time.Minute})
	a.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := a.Mint(httptest.NewRecorder())
	if err != nil {
		t.Fatal(err)
	}
	a.now = time.Now
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	if _, err := a.ParseFromRequest(req); err == nil {
		t.Fatalf("expired token accepted")
	}
}

func TestLoginRateLimited(t *testing.T) {
	auth := config.AuthConfig{AdminPassword: "hunter2", HMACSecret: "s3cret"}
	h := newTestServer(nil, auth, &countingLimiter{limit: 2})
	for i := 0; i < 2; i++ {
		do(h, http.MethodPost, "/api/auth/login", `{"password":"wrong"}`)
	}
	rec := do(h, http.MethodPost, "/api/auth/login", `{"password":"hunter2"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third attempt: %d", rec.Code)
	}
}

func TestSubmitImageAppliesDefaults(t *testing.T) {
	jobs := &fakeJobs{}
	h := newTestServer(jobs, config.AuthConfig{}, nil)

	rec := do(h, http.MethodPost, "/api/jobs/image", `{"provider":"comfyui","model":"sd15","prompt":"a fox","params":{"steps":30}}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("submit: %d %s", rec.Code, rec.Body.String())
	}
	p := jobs.lastImage.Params
	if p.Width != 512 || p.Height != 512 || p.Steps != 30 || p.Seed != -1 || p.BatchSize != 1 {
		t.Fatalf("params = %+v", p)
	}

	rec = do(h, http.MethodPost, "/api/jobs/image", `{"provider":"comfyui","model":"sd15","prompt":"a fox","params":{"width":0}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("explicit zero width: %d", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Success || env.Kind != "validation" {
		t.Fatalf("envelope = %+v", env)
	}

	if rec := do(h, http.MethodPost, "/api/jobs/image", `{"provider":"dalle","model":"x","prompt":"y"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown provider: %d", rec.Code)
	}
	if rec := do(h, http.MethodPost, "/api/jobs/image", `{"provider":`); rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: %d", rec.Code)
	}
}

func TestSubmitChatFailureCarriesJob(t *testing.T) {
	jobs := &fakeJobs{chatErr: fmt.Errorf("%w: openai has no stored credential", domain.ErrNotConfigured)}
	h := newTestServer(jobs, config.AuthConfig{}, nil)

	rec := do(h, http.MethodPost, "/api/jobs/chat", `{"provider":"openai","model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Success bool      `json:"success"`
		Error   string    `json:"error"`
		Data    model.Job `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Success || body.Data.ID != "job-chat" || body.Data.Status != model.JobStatusFailed {
		t.Fatalf("body = %+v", body)
	}

	jobs.chatErr = nil
	if rec := do(h, http.MethodPost, "/api/jobs/chat", `{"provider":"openai","model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`); rec.Code != http.StatusOK {
		t.Fatalf("completed chat: %d", rec.Code)
	}
}

func TestListJobsParsesStatuses(t *testing.T) {
	jobs := &fakeJobs{}
	h := newTestServer(jobs, config.AuthConfig{}, nil)

	rec := do(h, http.MethodGet, "/api/jobs?status=complete,failed", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d", rec.Code)
	}
	if len(jobs.statuses) != 2 || jobs.statuses[0] != model.JobStatusCompleted || jobs.statuses[1] != model.JobStatusFailed {
		t.Fatalf("statuses = %v", jobs.statuses)
	}
	if !strings.Contains(rec.Body.String(), `"data":[]`) {
		t.Fatalf("empty list should serialize as []: %s", rec.Body.String())
	}
	if rec := do(h, http.MethodGet, "/api/jobs?status=exploded", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad status: %d", rec.Code)
	}
}

func TestJobErrorsMapToStatus(t *testing.T) {
	h := newTestServer(&fakeJobs{}, config.AuthConfig{}, nil)
	if rec := do(h, http.MethodGet, "/api/jobs/nope", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing job: %d", rec.Code)
	}
	if rec := do(h, http.MethodPost, "/api/jobs/abc/retry", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("retry of non-failed job: %d", rec.Code)
	}
}

func TestDownloadArtifact(t *testing.T) {
	h := newTestServer(nil, config.AuthConfig{}, nil)
	rec := do(h, http.MethodGet, "/api/results/r1/files/0?download=1", "")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("download: %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), `r1-0.png`) {
		t.Fatalf("disposition = %q", rec.Header().Get("Content-Disposition"))
	}
	if rec := do(h, http.MethodGet, "/api/results/r1/files/x", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad index: %d", rec.Code)
	}
	if rec := do(h, http.MethodGet, "/api/results/r1/files/3", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing file: %d", rec.Code)
	}
}

func TestCredentialTestReportsProbeError(t *testing.T) {
	h := newTestServer(nil, config.AuthConfig{}, nil)
	rec := do(h, http.MethodPost, "/api/credentials/claude/test", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("test: %d", rec.Code)
	}
	var body struct {
		Data struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		} `json:"data"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Data.Status != "error" || body.Data.Error == "" {
		t.Fatalf("body = %s", rec.Body.String())
	}

	rec = do(h, http.MethodGet, "/api/credentials/openai", "")
	if rec.Code != http.StatusOK || strings.Contains(rec.Body.String(), "secret\":\"sk") {
		t.Fatalf("get: %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(h, http.MethodGet, "/api/credentials/bard", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown provider: %d", rec.Code)
	}
}

func TestProviderConnectionErrorIsBadGateway(t *testing.T) {
	h := newTestServer(nil, config.AuthConfig{}, nil)
	rec := do(h, http.MethodGet, "/api/providers/ollama/models", "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rec.Code)
	}
	if env := decodeEnvelope(t, rec); !strings.Contains(env.Error, "is ollama running?") {
		t.Fatalf("error = %q", env.Error)
	}
}

func TestRecoverReturnsEnvelope(t *testing.T) {
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}), TraceID(), Recover(logging.Nop()))
	rec := do(h, http.MethodGet, "/", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Success || env.Error != "internal error" {
		t.Fatalf("envelope = %+v", env)
	}
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	rec := httptest.NewRecorder()
	fail(rec, httptest.NewRequest(http.MethodGet, "/", nil), logging.Nop(), errors.New("pq: password authentication failed for user genhub"), nil)
	if strings.Contains(rec.Body.String(), "password") {
		t.Fatalf("leaked: %s", rec.Body.String())
	}
}
