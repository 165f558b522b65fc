package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/clinic-gateway/internal/config"
)

type cookies struct {
	session config.CookieTemplate
	csrf    config.CookieTemplate
}

// newCookies validates the cookie templates and warns about settings not
// suitable for production.
func newCookies(ctx context.Context, gw config.Gateway, csrfEnabled bool) (cookies, error) {
	c := cookies{session: gw.SessionCookieTemplate, csrf: gw.CSRFCookieTemplate}

	sessionCookie := c.session.ToCookie("value")
	if err := sessionCookie.Valid(); err != nil {
		return cookies{}, fmt.Errorf("invalid session cookie: %w", err)
	}
	if !strings.HasPrefix(sessionCookie.Name, "__Host-") {
		slogctx.Warn(ctx, "Session cookie name does not start with __Host-; this is not recommended in production environments")
	}
	if !sessionCookie.Secure {
		slogctx.Warn(ctx, "Session cookie is not marked as Secure; this is not recommended in production environments")
	}
	if !sessionCookie.HttpOnly {
		slogctx.Warn(ctx, "Session cookie is not marked as HttpOnly; this is not recommended in production environments")
	}

	if !csrfEnabled {
		return c, nil
	}

	csrfCookie := c.csrf.ToCookie("value")
	if err := csrfCookie.Valid(); err != nil {
		return cookies{}, fmt.Errorf("invalid CSRF cookie: %w", err)
	}
	if !csrfCookie.Secure {
		slogctx.Warn(ctx, "CSRF cookie is not marked as Secure; this is not recommended in production environments")
	}
	if csrfCookie.HttpOnly {
		slogctx.Warn(ctx, "CSRF cookie is marked as HttpOnly; this is not recommended as the CSRF token needs to be accessible from JavaScript")
	}
	if csrfCookie.SameSite != http.SameSiteStrictMode {
		slogctx.Warn(ctx, "CSRF cookie is not marked as SameSite=Strict; this is not recommended in production environments")
	}

	return c, nil
}

func (ck cookies) sessionID(c *gin.Context) string {
	cookie, err := c.Request.Cookie(ck.session.Name)
	if err != nil {
		return ""
	}

	return cookie.Value
}

func (ck cookies) setSession(c *gin.Context, id string) {
	http.SetCookie(c.Writer, ck.session.ToCookie(id))
}

func (ck cookies) setCSRF(c *gin.Context, token string) {
	http.SetCookie(c.Writer, ck.csrf.ToCookie(token))
}

func (ck cookies) expire(c *gin.Context, csrfEnabled bool) {
	http.SetCookie(c.Writer, ck.session.ToExpiredCookie())
	if csrfEnabled {
		http.SetCookie(c.Writer, ck.csrf.ToExpiredCookie())
	}
}
