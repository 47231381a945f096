package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/iliyamo/contacts-manager/internal/config"
	"github.com/iliyamo/contacts-manager/internal/model"
	"github.com/iliyamo/contacts-manager/internal/service"
)

// stubVerifier accepts tokens of the form "<role>:<id>".
type stubVerifier struct{}

func (stubVerifier) Verify(token string) (service.Identity, error) {
	role, id, ok := strings.Cut(token, ":")
	if !ok || !model.Role(role).Valid() {
		return service.Identity{}, errors.New("bad token")
	}
	return service.Identity{ID: id, Role: model.Role(role)}, nil
}

func newGuardedEcho(roles ...model.Role) *echo.Echo {
	e := echo.New()
	g := e.Group("/v1", JWTAuth(stubVerifier{}), RequireRole(roles...))
	g.GET("/whoami", func(c echo.Context) error {
		id, _ := IdentityFrom(c)
		return c.String(http.StatusOK, string(id.Role)+"/"+id.ID)
	})
	return e
}

func do(e *echo.Echo, method, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set(echo.HeaderAuthorization, auth)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuth(t *testing.T) {
	e := newGuardedEcho()
	cases := []struct {
		name   string
		auth   string
		status int
		body   string
	}{
		{"missing header", "", http.StatusUnauthorized, "Missing bearer token"},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, "Missing bearer token"},
		{"empty token", "Bearer ", http.StatusUnauthorized, "Missing bearer token"},
		{"invalid token", "Bearer nonsense", http.StatusUnauthorized, "Invalid token"},
		{"valid user", "Bearer user:u1", http.StatusOK, "user/u1"},
		{"lowercase scheme", "bearer admin:a1", http.StatusOK, "admin/a1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(e, http.MethodGet, "/v1/whoami", tc.auth)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d (%s)", tc.status, rec.Code, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), tc.body) {
				t.Fatalf("expected body to contain %q, got %s", tc.body, rec.Body.String())
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	admins := newGuardedEcho(model.RoleAdmin)
	if rec := do(admins, http.MethodGet, "/v1/whoami", "Bearer user:u1"); rec.Code != http.StatusForbidden ||
		!strings.Contains(rec.Body.String(), "Insufficient role") {
		t.Fatalf("expected 403 Insufficient role, got %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(admins, http.MethodGet, "/v1/whoami", "Bearer admin:a1"); rec.Code != http.StatusOK {
		t.Fatalf("expected admin to pass, got %d", rec.Code)
	}

	both := newGuardedEcho(model.RoleUser, model.RoleAdmin)
	if rec := do(both, http.MethodGet, "/v1/whoami", "Bearer user:u1"); rec.Code != http.StatusOK {
		t.Fatalf("expected user to pass, got %d", rec.Code)
	}
}

func TestRequireRoleWithoutIdentity(t *testing.T) {
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, RequireRole())
	if rec := do(e, http.MethodGet, "/x", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestNamespace(t *testing.T) {
	cases := map[string]string{
		"/v1/contacts":       "/v1/contacts",
		"/v1/contacts/:id":   "/v1/contacts",
		"/v1/users/:id/role": "/v1/users",
		"/healthz":           "/healthz",
	}
	for in, want := range cases {
		if got := namespace(in); got != want {
			t.Fatalf("namespace(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCacheKeySeparatesCallersAndGenerations(t *testing.T) {
	e := echo.New()
	key := func(who service.Identity, gen int64, query string) string {
		req := httptest.NewRequest(http.MethodGet, "/v1/contacts?"+query, nil)
		c := e.NewContext(req, httptest.NewRecorder())
		c.Set(identityKey, who)
		return cacheKey("cache", "/v1/contacts", gen, c)
	}
	ann := service.Identity{ID: "ann", Role: model.RoleUser}
	bob := service.Identity{ID: "bob", Role: model.RoleUser}

	base := key(ann, 0, "page=1")
	if base != key(ann, 0, "page=1") {
		t.Fatal("cache key is not stable")
	}
	for name, other := range map[string]string{
		"caller":     key(bob, 0, "page=1"),
		"generation": key(ann, 1, "page=1"),
		"query":      key(ann, 0, "page=2"),
		"role":       key(service.Identity{ID: "ann", Role: model.RoleAdmin}, 0, "page=1"),
	} {
		if other == base {
			t.Fatalf("key must change with %s", name)
		}
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	hdr := http.Header{echo.HeaderContentType: []string{echo.MIMEApplicationJSON}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"data":[]}`))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	status, gotHdr, body, ok := decodePayload(bs)
	if !ok || status != http.StatusOK || string(body) != `{"data":[]}` ||
		gotHdr.Get(echo.HeaderContentType) != echo.MIMEApplicationJSON {
		t.Fatalf("unexpected decode: ok=%v status=%d hdr=%v body=%s", ok, status, gotHdr, body)
	}
	if _, _, _, ok := decodePayload([]byte{0, 0}); ok {
		t.Fatal("short payload must not decode")
	}
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.7")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/auth/login")

	cfg := config.RateLimitConfig{Prefix: "rl", KeyStrategy: "ip_route"}
	if got := buildRateKey(cfg, c); got != "rl:ip:10.0.0.7:route:POST /v1/auth/login" {
		t.Fatalf("unexpected key %q", got)
	}
	cfg.KeyStrategy = "user"
	if got := buildRateKey(cfg, c); got != "rl:user:guest" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestRedisFeaturesDisabledWithoutClient(t *testing.T) {
	log := zaptest.NewLogger(t)
	e := echo.New()
	e.GET("/v1/contacts", func(c echo.Context) error { return c.String(http.StatusOK, "ok") },
		RateLimit(config.RateLimitConfig{Enabled: true}, nil, log),
		ResponseCache(config.CacheConfig{Enabled: true}, nil, log))

	rec := do(e, http.MethodGet, "/v1/contacts", "")
	if rec.Code != http.StatusOK || rec.Header().Get("X-Cache") != "" {
		t.Fatalf("expected plain pass-through, got %d X-Cache=%q", rec.Code, rec.Header().Get("X-Cache"))
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	for ms, want := range map[int64]int{0: 1, 999: 1, 1000: 1, 1001: 2, 2500: 3} {
		if got := retryAfterSeconds(ms); got != want {
			t.Fatalf("retryAfterSeconds(%d) = %d, want %d", ms, got, want)
		}
	}
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	e := echo.New()
	e.Use(RequestLogger(zap.New(core)))
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	do(e, http.MethodGet, "/healthz", "")
	if logs.Len() != 1 {
		t.Fatalf("expected one access log entry, got %d", logs.Len())
	}
	fields := logs.All()[0].ContextMap()
	if fields["uri"] != "/healthz" || fields["status"] != int64(http.StatusOK) || fields["user_id"] != "guest" {
		t.Fatalf("unexpected fields: %v", fields)
	}
}
