package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"finlern/internal/auth"
	"finlern/internal/botdetect"
	"finlern/internal/csrf"
	"finlern/internal/http/handlers"
	"finlern/internal/logging"
	"finlern/internal/notify"
	"finlern/internal/pagination"
	"finlern/internal/ratelimit"
	"finlern/internal/repo"
	"finlern/internal/validate"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const (
	trustedOrigin = "https://finlern.example"
	adminKey      = "admin-key-for-tests"
	jwtSecret     = "0123456789abcdef0123456789abcdef"
	sessionSecret = "fedcba9876543210fedcba9876543210"
)

type store struct {
	mu      sync.Mutex
	records []repo.Enrollment
}

func (s *store) Append(ctx context.Context, e *repo.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, *e)
	return nil
}

func (s *store) List(ctx context.Context, p pagination.Pager) ([]repo.Enrollment, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]repo.Enrollment(nil), s.records...), len(s.records), nil
}

func (s *store) ListAll(ctx context.Context) ([]repo.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]repo.Enrollment(nil), s.records...), nil
}

func (s *store) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

type outbox struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (o *outbox) Send(ctx context.Context, msg notify.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, msg)
	return nil
}

type env struct {
	srv      *httptest.Server
	store    *store
	outbox   *outbox
	jwt      *auth.JWTProvider
	limiter  *ratelimit.Limiter
	sessions *auth.Sessions
}

type options struct {
	provider    string
	strictToken bool
	limiter     *ratelimit.Limiter
}

func newEnv(t *testing.T, opts options) *env {
	t.Helper()
	e := &env{store: &store{}, outbox: &outbox{}}

	e.limiter = opts.limiter
	if e.limiter == nil {
		mem, err := ratelimit.NewMemoryStore(1000)
		require.NoError(t, err)
		e.limiter, err = ratelimit.New(mem, ratelimit.DefaultTiers(), logging.Nop())
		require.NoError(t, err)
	}

	bots, err := botdetect.New(botdetect.DefaultConfig(), botdetect.Profile{Version: "v1", FieldOrder: validate.FieldOrder})
	require.NoError(t, err)
	validator, err := csrf.New(csrf.Config{TrustedHost: "finlern.example", StrictToken: opts.strictToken})
	require.NoError(t, err)
	key, err := auth.NewAdminKey(adminKey, "")
	require.NoError(t, err)
	e.jwt, err = auth.NewJWTProvider(jwtSecret, "")
	require.NoError(t, err)
	e.sessions, err = auth.NewSessions(sessionSecret, false)
	require.NoError(t, err)

	var provider auth.Provider = auth.NoneProvider{}
	switch opts.provider {
	case auth.ProviderJWT:
		provider = e.jwt
	case auth.ProviderSession:
		provider = e.sessions
	}

	h := handlers.New(handlers.Deps{
		Store:    e.store,
		Notifier: e.outbox,
		Bots:     bots,
		Limiter:  e.limiter,
		Sessions: e.sessions,
		Logger:   logging.Nop(),
		MailTo:   "office@finlern.example",
	})
	e.srv = httptest.NewServer(NewRouter(Config{
		Handlers: h,
		Limiter:  e.limiter,
		CSRF:     validator,
		Identity: provider,
		Sessions: e.sessions,
		AdminKey: key,
		Logger:   logging.Nop(),
	}))
	t.Cleanup(e.srv.Close)
	return e
}

func (e *env) do(t *testing.T, method, path string, body string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readJSON(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

const enrollment = `{
	"fullName": "Jane Doe",
	"email": "jane@example.com",
	"phoneNumber": "+358401234567",
	"currentJobStatus": "Engineer",
	"desiredOccupation": "Teacher",
	"courseType": "Beginner Finnish Course",
	"_honeypot": {"website": "", "timeSpent": 4500, "userInteracted": true}
}`

var jsonFromSite = map[string]string{"Content-Type": "application/json", "Origin": trustedOrigin}

func TestEnrollment_EndToEnd(t *testing.T) {
	e := newEnv(t, options{})
	body := strings.Replace(enrollment, `"Engineer"`, `"Engineer (QA)"`, 1)
	body = strings.Replace(body, `"Teacher"`, `"Teacher, O'Brien school"`, 1)

	resp := e.do(t, http.MethodPost, "/api/enrollment-email", body, jsonFromSite)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "1; mode=block", resp.Header.Get("X-XSS-Protection"))
	assert.Equal(t, "3", resp.Header.Get("X-RateLimit-Limit"))
	assert.Equal(t, "2", resp.Header.Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, resp.Header.Get("X-RateLimit-Reset"))
	assert.Empty(t, resp.Header.Get("Retry-After"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	out := readJSON(t, resp)
	require.Equal(t, 1, e.store.count())
	assert.Equal(t, out["id"], e.store.records[0].ID)

	require.Len(t, e.outbox.sent, 1)
	html := e.outbox.sent[0].HTML
	assert.Contains(t, html, "Jane Doe")
	assert.Contains(t, html, "Teacher, O&#39;Brien school")
	assert.NotContains(t, html, "O'Brien")
}

func TestEnrollment_MaliciousPayload(t *testing.T) {
	e := newEnv(t, options{})
	body := strings.Replace(enrollment, `"Teacher"`, `"Teacher'); DROP TABLE users;--"`, 1)

	resp := e.do(t, http.MethodPost, "/api/enrollment-email", body, jsonFromSite)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	msg := readJSON(t, resp)["message"].(string)
	assert.Contains(t, msg, "Invalid input")
	assert.NotContains(t, msg, "sql")
	assert.Zero(t, e.store.count())
	assert.Empty(t, e.outbox.sent)
}

func TestEnrollment_CrossSite(t *testing.T) {
	e := newEnv(t, options{})
	resp := e.do(t, http.MethodPost, "/api/enrollment-email", enrollment, map[string]string{
		"Content-Type": "application/json",
		"Origin":       "https://evil.example",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.NotEmpty(t, readJSON(t, resp)["message"])
	assert.Zero(t, e.store.count())

	resp = e.do(t, http.MethodPost, "/api/enrollment-email", strings.Replace(enrollment, "{", `{"csrfToken":"t0k",`, 1), map[string]string{
		"Content-Type": "application/json",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode, "a body token satisfies the default token mode")
}

func TestEnrollment_RateLimitedBeforeCSRF(t *testing.T) {
	e := newEnv(t, options{})
	evil := map[string]string{"Content-Type": "application/json", "Origin": "https://evil.example"}

	for i := 0; i < 3; i++ {
		resp := e.do(t, http.MethodPost, "/api/enrollment-email", enrollment, evil)
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
	}
	resp := e.do(t, http.MethodPost, "/api/enrollment-email", enrollment, jsonFromSite)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "300", resp.Header.Get("Retry-After"))
	assert.Equal(t, "0", resp.Header.Get("X-RateLimit-Remaining"))
	assert.Zero(t, e.store.count())
}

func TestEnrollment_Honeypot(t *testing.T) {
	e := newEnv(t, options{})
	body := strings.Replace(enrollment, `"website": ""`, `"website": "http://spam.biz"`, 1)

	resp := e.do(t, http.MethodPost, "/api/enrollment-email", body, jsonFromSite)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NotContains(t, readJSON(t, resp)["message"], "honeypot")
	assert.Zero(t, e.store.count())
}

func TestEnrollment_OversizedBody(t *testing.T) {
	e := newEnv(t, options{})
	body := strings.Replace(enrollment, `"Engineer"`, `"`+strings.Repeat("x", 65<<10)+`"`, 1)
	resp := e.do(t, http.MethodPost, "/api/enrollment-email", body, jsonFromSite)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestEnrollment_StrictToken(t *testing.T) {
	e := newEnv(t, options{strictToken: true})

	resp := e.do(t, http.MethodGet, "/api/csrf-token", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token := readJSON(t, resp)["csrfToken"].(string)
	require.NotEmpty(t, token)
	cookies := resp.Cookies()
	require.NotEmpty(t, cookies)

	post := func(tok string) int {
		req, err := http.NewRequest(http.MethodPost, e.srv.URL+"/api/enrollment-email", strings.NewReader(enrollment))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-CSRF-Token", tok)
		for _, c := range cookies {
			req.AddCookie(c)
		}
		resp, err := e.srv.Client().Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusForbidden, post("forged"))
	assert.Equal(t, http.StatusOK, post(token))
}

func TestAdminExport(t *testing.T) {
	e := newEnv(t, options{})
	resp := e.do(t, http.MethodPost, "/api/enrollment-email", enrollment, jsonFromSite)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	bearer := "Bearer " + adminKey

	resp = e.do(t, http.MethodGet, "/api/admin/enrollments-export", "", map[string]string{"Authorization": bearer})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "csrf is enforced on GET")

	resp = e.do(t, http.MethodGet, "/api/admin/enrollments-export", "", map[string]string{"Origin": trustedOrigin})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/api/admin/enrollments-export", "", map[string]string{"Origin": trustedOrigin, "Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "AUTH_INVALID", readJSON(t, resp)["code"])

	resp = e.do(t, http.MethodGet, "/api/admin/enrollments-export", "", map[string]string{"Origin": trustedOrigin, "Authorization": bearer})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "5", resp.Header.Get("X-RateLimit-Limit"))

	var buf bytes.Buffer
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Jane Doe", rows[1][1])

	resp = e.do(t, http.MethodGet, "/api/admin/enrollments?page=1&page_size=10", "", map[string]string{"Referer": trustedOrigin + "/admin", "Authorization": bearer})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := readJSON(t, resp)
	assert.Len(t, page["items"], 1)
}

func TestAdminAuthTierBlocks(t *testing.T) {
	e := newEnv(t, options{})
	headers := map[string]string{"Origin": trustedOrigin, "Authorization": "Bearer wrong"}
	for i := 0; i < 5; i++ {
		resp := e.do(t, http.MethodGet, "/api/admin/enrollments", "", headers)
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
	}
	resp := e.do(t, http.MethodGet, "/api/admin/enrollments", "", map[string]string{"Origin": trustedOrigin, "Authorization": "Bearer " + adminKey})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "120", resp.Header.Get("Retry-After"))
}

func TestUserInfo(t *testing.T) {
	t.Run("no provider", func(t *testing.T) {
		e := newEnv(t, options{})
		resp := e.do(t, http.MethodGet, "/api/protected/user-info", "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		body := readJSON(t, resp)
		assert.Equal(t, "AUTH_REQUIRED", body["code"])
		assert.NotEmpty(t, body["error"])
		assert.Equal(t, "20", resp.Header.Get("X-RateLimit-Limit"))
	})

	t.Run("jwt", func(t *testing.T) {
		e := newEnv(t, options{provider: auth.ProviderJWT})
		token, err := e.jwt.SignToken(auth.Identity{Subject: "u-42", Email: "u42@example.com", Name: "Maija", Role: "student"}, time.Hour)
		require.NoError(t, err)

		resp := e.do(t, http.MethodGet, "/api/protected/user-info", "", map[string]string{"Authorization": "Bearer " + token})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := readJSON(t, resp)
		assert.Equal(t, "u-42", body["sub"])
		assert.Equal(t, "u42@example.com", body["email"])
		assert.Equal(t, "Maija", body["name"])
		assert.Equal(t, "student", body["role"])

		resp = e.do(t, http.MethodGet, "/api/protected/user-info", "", map[string]string{"Authorization": "Bearer not.a.jwt"})
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, "AUTH_INVALID", readJSON(t, resp)["code"])
	})
}

func TestUserInfo_SubjectScopedLimit(t *testing.T) {
	e := newEnv(t, options{provider: auth.ProviderJWT})
	sign := func(sub string) map[string]string {
		token, err := e.jwt.SignToken(auth.Identity{Subject: sub}, time.Hour)
		require.NoError(t, err)
		return map[string]string{"Authorization": "Bearer " + token}
	}

	alice := sign("alice")
	for i := 0; i < 20; i++ {
		resp := e.do(t, http.MethodGet, "/api/protected/user-info", "", alice)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp := e.do(t, http.MethodGet, "/api/protected/user-info", "", alice)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/api/protected/user-info", "", sign("bob"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthErrorAndHealth(t *testing.T) {
	e := newEnv(t, options{limiter: ratelimit.NewFailOpen(errors.New("invalid tier config"), ratelimit.DefaultTiers(), logging.Nop())})

	resp := e.do(t, http.MethodGet, "/api/auth/error?error=AccessDenied", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "AccessDenied", readJSON(t, resp)["error"])

	resp = e.do(t, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := readJSON(t, resp)
	assert.Equal(t, "degraded", body["status"])
	rl := body["rateLimiter"].(map[string]any)
	assert.Equal(t, "degraded", rl["status"])
	assert.NotEmpty(t, rl["lastError"])
}

func TestFailOpenStillServes(t *testing.T) {
	e := newEnv(t, options{limiter: ratelimit.NewFailOpen(errors.New("redis unreachable"), ratelimit.DefaultTiers(), logging.Nop())})
	for i := 0; i < 5; i++ {
		resp := e.do(t, http.MethodPost, "/api/enrollment-email", enrollment, jsonFromSite)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "3", resp.Header.Get("X-RateLimit-Limit"))
	}
	assert.Equal(t, 5, e.store.count())
}

func TestNotFound(t *testing.T) {
	e := newEnv(t, options{})
	resp := e.do(t, http.MethodGet, "/api/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
}

func TestEnrollment_OriginCheckedBeforeContent(t *testing.T) {
	e := newEnv(t, options{})
	body := strings.Replace(enrollment, `"Engineer"`, "\"Eng\x00ineer\"", 1)

	resp := e.do(t, http.MethodPost, "/api/enrollment-email", body, map[string]string{
		"Content-Type": "application/json",
		"Origin":       "https://evil.example",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/api/enrollment-email", body, jsonFromSite)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, e.store.count())
}

func TestAdmin_BodyIgnoredByOriginCheck(t *testing.T) {
	e := newEnv(t, options{})
	body := `{"csrfToken":"t0k","pad":"` + strings.Repeat("x", 1<<20) + `"}`

	resp := e.do(t, http.MethodGet, "/api/admin/enrollments", body, map[string]string{
		"Content-Type":  "application/json",
		"Authorization": "Bearer " + adminKey,
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
