package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/clinic-gateway/internal/credstore"
	"github.com/openkcm/clinic-gateway/internal/guard"
	"github.com/openkcm/clinic-gateway/internal/serviceerr"
	"github.com/openkcm/clinic-gateway/pkg/csrf"
)

const jarKey = "credentialJar"

// jarMiddleware opens the credential jar named by the session cookie.
func jarMiddleware(store *credstore.Store, ck cookies) gin.HandlerFunc {
	return func(c *gin.Context) {
		jar := store.Open(c.Request.Context(), ck.sessionID(c))
		c.Set(jarKey, jar)
		c.Next()
	}
}

func jarFrom(c *gin.Context) *credstore.Jar {
	//nolint:forcetypeassert
	return c.MustGet(jarKey).(*credstore.Jar)
}

// guardMiddleware redirects page requests the session may not see yet.
func guardMiddleware(g *guard.Guard) gin.HandlerFunc {
	return func(c *gin.Context) {
		decision := g.Evaluate(c.Request.URL.Path, guard.ViewOf(jarFrom(c)))
		if decision == guard.Allow {
			c.Next()
			return
		}

		slogctx.Debug(c.Request.Context(), "Redirecting page request", "decision", decision.String())
		c.Redirect(http.StatusFound, g.Target(decision))
		c.Abort()
	}
}

// csrfMiddleware checks the CSRF header of mutating calls made with an
// existing session. It is a no-op without a secret.
func csrfMiddleware(secret []byte, exempt ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(exempt))
	for _, p := range exempt {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if len(secret) == 0 || safeMethod(c.Request.Method) {
			c.Next()
			return
		}
		if _, ok := skip[c.FullPath()]; ok {
			c.Next()
			return
		}

		jar := jarFrom(c)
		if jar.IsNew() {
			c.Next()
			return
		}

		if !csrf.Validate(c.GetHeader(csrf.Header), jar.ID(), secret) {
			writeError(c, serviceerr.ErrInvalidCSRFToken)
			return
		}

		c.Next()
	}
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}
