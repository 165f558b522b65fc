// Package session implements the lifecycle of the gateway sessions: login,
// clinic selection, support sessions and logout. Every operation works on the
// credential jar of the calling browser.
package session

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/clinic-gateway/internal/authority"
	"github.com/openkcm/clinic-gateway/internal/config"
	"github.com/openkcm/clinic-gateway/internal/credstore"
	"github.com/openkcm/clinic-gateway/internal/serviceerr"
)

// Authority issues and revokes the tokens carried by the sessions.
type Authority interface {
	Login(ctx context.Context, email, password string) (authority.LoginResult, error)
	Me(ctx context.Context, access string) (authority.Profile, error)
	ForgetProfile(access string)
	StartSupport(ctx context.Context, access string, clinicID int64, reason string) (authority.SupportGrant, error)
	StopSupport(ctx context.Context, access, supportToken string) error
}

var slugPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,49}$`)

// ValidSlug reports whether slug is a well-formed clinic slug.
func ValidSlug(slug string) bool {
	return slugPattern.MatchString(slug)
}

// RequireHQ fails unless the session is authenticated and holds an HQ role.
func RequireHQ(jar *credstore.Jar) error {
	sess := jar.Session()
	if !sess.Authenticated() || sess.HQRole == "" {
		return serviceerr.ErrUnauthorized
	}

	return nil
}

type Manager struct {
	authority Authority
	lifetimes config.Lifetimes
}

func NewManager(authority Authority, lifetimes config.Lifetimes) *Manager {
	return &Manager{
		authority: authority,
		lifetimes: lifetimes.OrDefault(),
	}
}

// Login exchanges the credentials for tokens and installs a fresh session.
// The returned profile never contains tokens.
func (m *Manager) Login(ctx context.Context, jar *credstore.Jar, email, password string) (authority.Profile, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return authority.Profile{}, serviceerr.ErrInvalidCredentials
	}

	result, err := m.authority.Login(ctx, email, password)
	if err != nil {
		if authority.IsDownstream(err) {
			return authority.Profile{}, err
		}
		return authority.Profile{}, fmt.Errorf("%w: logging in: %w", serviceerr.ErrUnknown, err)
	}

	writes := []credstore.Write{
		credstore.Set(credstore.KeyAccessToken, result.Access, m.lifetimes.AccessToken),
		credstore.Set(credstore.KeyRefreshToken, result.Refresh, m.lifetimes.RefreshToken),
		credstore.Clear(credstore.KeyClinicSlug),
	}
	if result.HQRole != "" {
		writes = append(writes, credstore.Set(credstore.KeyHQRole, result.HQRole, m.lifetimes.HQRole))
	} else {
		writes = append(writes, credstore.Clear(credstore.KeyHQRole))
	}
	writes = append(writes, credstore.ClearSupport()...)

	if err := jar.Commit(ctx, writes...); err != nil {
		return authority.Profile{}, fmt.Errorf("%w: storing session: %w", serviceerr.ErrUnknown, err)
	}

	slogctx.Info(ctx, "Session established", "hqRole", result.HQRole != "")

	return result.Profile, nil
}

// SelectClinic binds the session to a clinic and ends any support session.
func (m *Manager) SelectClinic(ctx context.Context, jar *credstore.Jar, slug string) error {
	if !jar.Session().Authenticated() {
		return serviceerr.ErrUnauthorized
	}
	if !ValidSlug(slug) {
		return serviceerr.ErrInvalidSlug
	}

	writes := append([]credstore.Write{
		credstore.Set(credstore.KeyClinicSlug, slug, m.lifetimes.ClinicSlug),
	}, credstore.ClearSupport()...)
	if err := jar.Commit(ctx, writes...); err != nil {
		return fmt.Errorf("%w: storing clinic: %w", serviceerr.ErrUnknown, err)
	}

	return nil
}

// StartSupportSession requests a support token for a clinic. A support
// session already active is replaced.
func (m *Manager) StartSupportSession(ctx context.Context, jar *credstore.Jar, clinicID int64, reason, clinicSlug string) (credstore.SupportSession, error) {
	if err := RequireHQ(jar); err != nil {
		return credstore.SupportSession{}, err
	}
	sess := jar.Session()
	if strings.TrimSpace(reason) == "" {
		return credstore.SupportSession{}, serviceerr.ErrInvalidPayload
	}
	if !ValidSlug(clinicSlug) {
		return credstore.SupportSession{}, serviceerr.ErrInvalidSlug
	}

	grant, err := m.authority.StartSupport(ctx, sess.AccessToken, clinicID, reason)
	if err != nil {
		return credstore.SupportSession{}, fmt.Errorf("starting support session: %w", err)
	}

	expiresAt := grant.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = jar.Now().Add(m.lifetimes.SupportFallback)
	}
	if !jar.Now().Before(expiresAt) {
		return credstore.SupportSession{}, fmt.Errorf("%w: support grant expired at %s",
			serviceerr.ErrUpstreamUnavailable, expiresAt.Format(time.RFC3339))
	}
	if accessExpiry, ok := accessTokenExpiry(sess.AccessToken); ok && expiresAt.After(accessExpiry) {
		slogctx.Warn(ctx, "Support session outlives the access token",
			"supportExpiresAt", expiresAt, "accessExpiresAt", accessExpiry)
	}

	support := credstore.SupportSession{
		Token:      grant.Token,
		ClinicSlug: clinicSlug,
		ExpiresAt:  expiresAt,
	}
	if err := jar.Commit(ctx, credstore.SetSupport(support)...); err != nil {
		return credstore.SupportSession{}, fmt.Errorf("%w: storing support session: %w", serviceerr.ErrUnknown, err)
	}

	slogctx.Info(ctx, "Support session started", "clinicSlug", clinicSlug, "expiresAt", expiresAt)

	return support, nil
}

// StopSupportSession revokes the active support session. The local support
// session is cleared whatever the authority answers.
func (m *Manager) StopSupportSession(ctx context.Context, jar *credstore.Jar) error {
	sess := jar.Session()
	support, active := jar.SupportSession()
	if !sess.Authenticated() || !active {
		m.clearSupport(ctx, jar)
		return nil
	}

	revokeErr := m.authority.StopSupport(ctx, sess.AccessToken, support.Token)
	if err := jar.Commit(ctx, credstore.ClearSupport()...); err != nil {
		slogctx.Error(ctx, "Could not clear support session", "error", err)
		if revokeErr == nil {
			return fmt.Errorf("%w: clearing support session: %w", serviceerr.ErrUnknown, err)
		}
	}
	if revokeErr != nil {
		return fmt.Errorf("stopping support session: %w", revokeErr)
	}

	slogctx.Info(ctx, "Support session stopped", "clinicSlug", support.ClinicSlug)

	return nil
}

// Logout ends the session. It never fails: an active support session is
// revoked on a best effort basis and storage errors are only logged.
func (m *Manager) Logout(ctx context.Context, jar *credstore.Jar) {
	sess := jar.Session()
	if sess.Authenticated() {
		if support, active := jar.SupportSession(); active {
			if err := m.authority.StopSupport(ctx, sess.AccessToken, support.Token); err != nil {
				slogctx.Warn(ctx, "Could not revoke support session on logout", "error", err)
			}
		}
		m.authority.ForgetProfile(sess.AccessToken)
	}

	if err := jar.Destroy(ctx); err != nil {
		slogctx.Error(ctx, "Could not delete credential jar", "error", err)
	}
}

// Profile returns the user, clinics and HQ role of the session. A rejected
// access token ends the session.
func (m *Manager) Profile(ctx context.Context, jar *credstore.Jar) (authority.Profile, error) {
	sess := jar.Session()
	if !sess.Authenticated() {
		return authority.Profile{}, serviceerr.ErrUnauthorized
	}

	profile, err := m.authority.Me(ctx, sess.AccessToken)
	if err != nil {
		if authority.IsDownstream(err) && serviceerr.As(err).HTTPStatus() == http.StatusUnauthorized {
			if err := jar.Commit(ctx, credstore.Clear(credstore.KeyAccessToken)); err != nil {
				slogctx.Error(ctx, "Could not clear rejected session", "error", err)
			}
		}
		return authority.Profile{}, fmt.Errorf("getting profile: %w", err)
	}

	return profile, nil
}

func (m *Manager) clearSupport(ctx context.Context, jar *credstore.Jar) {
	present := false
	for _, k := range credstore.SupportKeys {
		if jar.Has(k) {
			present = true
		}
	}
	if !present {
		return
	}

	if err := jar.Commit(ctx, credstore.ClearSupport()...); err != nil {
		slogctx.Warn(ctx, "Could not clear support session", "error", err)
	}
}
