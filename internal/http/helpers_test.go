package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tazhibayda/learnpath-auth/internal/auth"
	api "github.com/tazhibayda/learnpath-auth/internal/http"
	"github.com/tazhibayda/learnpath-auth/internal/oauth"
	"github.com/tazhibayda/learnpath-auth/internal/ratelimit"
	"github.com/tazhibayda/learnpath-auth/internal/repo"
	"github.com/tazhibayda/learnpath-auth/internal/security"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type outbox struct {
	mu    sync.Mutex
	codes map[string]string
	links map[string]string
}

func (o *outbox) SendVerificationCode(_ context.Context, to, _, code string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.codes[to] = code
	return nil
}

func (o *outbox) SendPasswordReset(_ context.Context, to, _, link string, _ time.Duration) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.links[to] = link
	return nil
}

type testEnv struct {
	T        *testing.T
	Store    *repo.MemoryStore
	Mail     *outbox
	Sessions *security.Issuer
	Now      time.Time
	Router   *gin.Engine
}

type envOption func(*api.Handler, *api.RouterOptions)

func withLimiter(l ratelimit.Limiter) envOption {
	return func(_ *api.Handler, o *api.RouterOptions) { o.Limiter = l }
}

func withGoogle(g *oauth.GoogleOAuth) envOption {
	return func(h *api.Handler, _ *api.RouterOptions) { h.Google = g }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		T:     t,
		Store: repo.NewMemoryStore(),
		Mail:  &outbox{codes: map[string]string{}, links: map[string]string{}},
		Now:   time.Now(),
	}
	clock := security.WithClock(func() time.Time { return env.Now })
	env.Sessions = security.NewIssuer("session-secret", "learnpath-auth", security.PurposeSession, clock)

	svc := auth.NewService(auth.Deps{
		Users:    env.Store,
		Hasher:   security.BcryptHasher{Cost: bcrypt.MinCost},
		Sessions: env.Sessions,
		Resets:   security.NewIssuer("reset-secret", "learnpath-auth", security.PurposeReset, clock),
		Mail:     env.Mail,
	}, auth.Options{
		FrontendURL:     "http://localhost:5173",
		SessionTTL:      time.Hour,
		OAuthSessionTTL: 7 * 24 * time.Hour,
		ResetTTL:        24 * time.Hour,
	})

	h := api.NewHandler(svc, nil, "http://localhost:5173/oauth/success", "http://localhost:5173/login")
	h.Checks["store"] = env.Store
	ro := api.RouterOptions{
		Logger:      zap.NewNop(),
		CORSOrigins: []string{"http://localhost:5173"},
		Production:  true,
	}
	for _, o := range opts {
		o(h, &ro)
	}
	env.Router = api.NewRouter(h, ro)
	return env
}

func (e *testEnv) do(method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	e.Router.ServeHTTP(w, req)
	return w
}

func bearer(tok string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + tok}
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return m
}

// registerVerified registers email and confirms it, returning a session token.
func (e *testEnv) registerVerified(email, password string) string {
	e.T.Helper()
	w := e.do("POST", "/api/auth/register", `{"fullName":"Test User","email":"`+email+`","password":"`+password+`"}`, nil)
	if w.Code != 201 {
		e.T.Fatalf("register: %d %s", w.Code, w.Body.String())
	}
	w = e.do("POST", "/api/auth/verify", `{"email":"`+email+`","code":"`+e.Mail.codes[email]+`"}`, nil)
	if w.Code != 200 {
		e.T.Fatalf("verify: %d %s", w.Code, w.Body.String())
	}
	return decode(e.T, w)["token"].(string)
}

// resetPath turns a mailed reset link into the API path that consumes it.
func (e *testEnv) resetPath(email string) (id, token string) {
	parts := strings.Split(e.Mail.links[email], "/")
	return parts[len(parts)-2], parts[len(parts)-1]
}
