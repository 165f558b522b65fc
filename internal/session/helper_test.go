package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openkcm/clinic-gateway/internal/authority"
	"github.com/openkcm/clinic-gateway/internal/config"
	"github.com/openkcm/clinic-gateway/internal/credstore"
	credmock "github.com/openkcm/clinic-gateway/internal/credstore/mock"
	"github.com/openkcm/clinic-gateway/internal/session"
)

// fakeAuthority records the calls made to the authority.
type fakeAuthority struct {
	mu sync.Mutex

	loginResult authority.LoginResult
	loginErr    error
	profile     authority.Profile
	meErr       error
	grant       authority.SupportGrant
	startErr    error
	stopErr     error

	calls     []string
	forgotten []string
	lastStart struct {
		access   string
		clinicID int64
		reason   string
	}
	lastStop struct {
		access  string
		support string
	}
}

func (f *fakeAuthority) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeAuthority) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAuthority) Login(_ context.Context, _, _ string) (authority.LoginResult, error) {
	f.record("login")
	return f.loginResult, f.loginErr
}

func (f *fakeAuthority) Me(_ context.Context, _ string) (authority.Profile, error) {
	f.record("me")
	return f.profile, f.meErr
}

func (f *fakeAuthority) ForgetProfile(access string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forgotten = append(f.forgotten, access)
}

func (f *fakeAuthority) StartSupport(_ context.Context, access string, clinicID int64, reason string) (authority.SupportGrant, error) {
	f.record("start")
	f.lastStart.access, f.lastStart.clinicID, f.lastStart.reason = access, clinicID, reason
	return f.grant, f.startErr
}

func (f *fakeAuthority) StopSupport(_ context.Context, access, supportToken string) error {
	f.record("stop")
	f.lastStop.access, f.lastStop.support = access, supportToken
	return f.stopErr
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	clock     *clock
	backend   *credmock.Backend
	store     *credstore.Store
	authority *fakeAuthority
	manager   *session.Manager
}

func newFixture(t *testing.T, opts ...credmock.BackendOption) *fixture {
	t.Helper()
	f := &fixture{
		clock:   &clock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)},
		backend: credmock.NewBackend(opts...),
		authority: &fakeAuthority{
			loginResult: authority.LoginResult{Access: "access", Refresh: "refresh"},
		},
	}
	f.store = credstore.NewStore(f.backend, credstore.WithClock(f.clock.Now))
	f.manager = session.NewManager(f.authority, config.DefaultLifetimes())

	return f
}

// signedIn returns a jar holding a session, optionally with HQ role and clinic.
func (f *fixture) signedIn(t *testing.T, hqRole, clinic string) *credstore.Jar {
	t.Helper()
	jar := f.store.Open(t.Context(), "")
	writes := []credstore.Write{
		credstore.Set(credstore.KeyAccessToken, "access", 30*time.Minute),
		credstore.Set(credstore.KeyRefreshToken, "refresh", 7*24*time.Hour),
	}
	if hqRole != "" {
		writes = append(writes, credstore.Set(credstore.KeyHQRole, hqRole, 7*24*time.Hour))
	}
	if clinic != "" {
		writes = append(writes, credstore.Set(credstore.KeyClinicSlug, clinic, 24*time.Hour))
	}
	require.NoError(t, jar.Commit(t.Context(), writes...))

	return jar
}

// withSupport installs an active support session on jar.
func (f *fixture) withSupport(t *testing.T, jar *credstore.Jar, clinic string, ttl time.Duration) {
	t.Helper()
	require.NoError(t, jar.Commit(t.Context(), credstore.SetSupport(credstore.SupportSession{
		Token: "support", ClinicSlug: clinic, ExpiresAt: f.clock.Now().Add(ttl),
	})...))
}
