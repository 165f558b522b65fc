package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/clinic-gateway/internal/authority"
	"github.com/openkcm/clinic-gateway/internal/config"
	"github.com/openkcm/clinic-gateway/internal/credstore"
	credmemory "github.com/openkcm/clinic-gateway/internal/credstore/memory"
	"github.com/openkcm/clinic-gateway/internal/forwarder"
	"github.com/openkcm/clinic-gateway/internal/guard"
	"github.com/openkcm/clinic-gateway/internal/session"
)

const (
	sessionCookieName = "__Host-Http-SESSION"
	csrfCookieName    = "CSRF-TOKEN"
	testPassword      = "correct-horse"
)

// clinicAPI fakes the backend and its authority endpoints.
type clinicAPI struct {
	mu       sync.Mutex
	requests []string
	bearers  map[string]string
	last     wireRequest
}

// wireRequest is the request line and framing as received by the backend.
type wireRequest struct {
	EscapedPath      string
	RawQuery         string
	ContentLength    int64
	TransferEncoding []string
}

func (a *clinicAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	a.requests = append(a.requests, r.Method+" "+r.URL.Path)
	a.bearers[r.URL.Path] = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	a.last = wireRequest{
		EscapedPath:      r.URL.EscapedPath(),
		RawQuery:         r.URL.RawQuery,
		ContentLength:    r.ContentLength,
		TransferEncoding: r.TransferEncoding,
	}
	a.mu.Unlock()

	reply := func(status int, body string) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}

	switch r.URL.Path {
	case "/auth/login":
		var in struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in.Password != testPassword {
			reply(http.StatusUnauthorized, `{"ok":false,"error":"INVALID_CREDENTIALS"}`)
			return
		}
		hqRole := ""
		if strings.HasPrefix(in.Email, "hq") {
			hqRole = `,"hq_role":"admin"`
		}
		reply(http.StatusOK, `{"ok":true,"data":{"access":"access-1","refresh":"refresh-1",`+
			`"user":{"email":"`+in.Email+`"},"clinics":[{"slug":"north","role":"vet"}]`+hqRole+`}}`)
	case "/auth/me":
		reply(http.StatusOK, `{"ok":true,"data":{"user":{"email":"vet@clinic"},"clinics":[{"slug":"north","role":"vet"}]}}`)
	case "/hq/support/start":
		expiresAt := time.Now().Add(10 * time.Minute).UTC().Format(time.RFC3339Nano)
		reply(http.StatusOK, `{"ok":true,"data":{"support_token":"support-1","expires_at":"`+expiresAt+`"}}`)
	case "/hq/support/stop":
		reply(http.StatusOK, `{"ok":true}`)
	default:
		if r.URL.Path == "/clinic/north/patients" || r.URL.Path == "/clinic/south/patients" || r.URL.Path == "/users" {
			body, _ := io.ReadAll(r.Body)
			reply(http.StatusCreated, `{"ok":true,"data":{"method":"`+r.Method+`","query":`+jsonString(r.URL.RawQuery)+`,"body":`+
				jsonString(string(body))+`}}`)
			return
		}
		reply(http.StatusNotFound, `{"ok":false,"error":"NOT_FOUND"}`)
	}
}

func jsonString(s string) string {
	out, _ := json.Marshal(s)
	return string(out)
}

func (a *clinicAPI) Requests() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.requests...)
}

func (a *clinicAPI) Last() wireRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

func (a *clinicAPI) Bearer(path string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bearers[path]
}

type harness struct {
	t       *testing.T
	handler http.Handler
	api     *clinicAPI
	store   *credstore.Store
	cookies map[string]string
}

type harnessOption func(*config.Config, *Deps)

func withCSRF(secret string) harnessOption {
	return func(_ *config.Config, d *Deps) {
		d.CSRFSecret = []byte(secret)
	}
}

func withFrontend(url string) harnessOption {
	return func(c *config.Config, _ *Deps) {
		c.Frontend.URL = url
	}
}

func testConfig() *config.Config {
	return &config.Config{
		BaseConfig: commoncfg.BaseConfig{
			Application: commoncfg.Application{
				Name: "test-app",
			},
		},
		HTTP: config.HTTPServer{
			Address:         "localhost:0",
			ShutdownTimeout: time.Second,
		},
		Gateway: config.Gateway{
			SessionCookieTemplate: config.CookieTemplate{
				Name:     sessionCookieName,
				Path:     "/",
				SameSite: config.CookieSameSiteLax,
			},
			CSRFCookieTemplate: config.CookieTemplate{
				Name:     csrfCookieName,
				Path:     "/",
				HTTPOnly: new(false),
				SameSite: config.CookieSameSiteStrict,
			},
		},
	}
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	api := &clinicAPI{bearers: map[string]string{}}
	backend := httptest.NewServer(api)
	t.Cleanup(backend.Close)

	cfg := testConfig()
	store := credstore.NewStore(credmemory.NewBackend(time.Minute))
	deps := Deps{
		Store:     store,
		Sessions:  session.NewManager(authority.NewClient(backend.URL, 5*time.Second), config.Lifetimes{}),
		Guard:     guard.New(config.Paths{}),
		Forwarder: forwarder.New(backend.URL, "clinic", 5*time.Second),
	}
	for _, opt := range opts {
		opt(cfg, &deps)
	}

	m, err := initMeters(t.Context(), cfg)
	require.NoError(t, err)

	server, err := createHTTPServer(t.Context(), cfg, deps, m)
	require.NoError(t, err)

	return &harness{
		t:       t,
		handler: server.Handler,
		api:     api,
		store:   store,
		cookies: map[string]string{},
	}
}

// do sends a request carrying the cookies collected so far and records
// the cookies set by the response.
func (h *harness) do(method, path, body string, header ...string) *httptest.ResponseRecorder {
	h.t.Helper()

	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	for name, value := range h.cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}

	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(h.cookies, c.Name)
			continue
		}
		h.cookies[c.Name] = c.Value
	}

	return rec
}

func (h *harness) login(email string) {
	h.t.Helper()

	rec := h.do(http.MethodPost, "/api/auth/login", `{"email":"`+email+`","password":"`+testPassword+`"}`)
	require.Equal(h.t, http.StatusOK, rec.Code, rec.Body.String())
}

// csrfHeader returns the header pair echoing the CSRF cookie.
func (h *harness) csrfHeader() []string {
	return []string{"X-CSRF-Token", h.cookies[csrfCookieName]}
}

type response struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) response {
	t.Helper()

	var resp response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}
