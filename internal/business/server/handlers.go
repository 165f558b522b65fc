package server

import (
	"time"

	"github.com/gin-gonic/gin"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/clinic-gateway/internal/serviceerr"
	"github.com/openkcm/clinic-gateway/internal/session"
	"github.com/openkcm/clinic-gateway/pkg/csrf"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type selectClinicRequest struct {
	Slug string `json:"slug"`
}

type startSupportRequest struct {
	ClinicID   int64  `json:"clinic_id" binding:"required,gt=0"`
	Reason     string `json:"reason" binding:"max=255"`
	ClinicSlug string `json:"clinic_slug"`
}

type supportResponse struct {
	ClinicSlug string    `json:"clinic_slug"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// login installs the session in a fresh jar; the jar of the previous
// session, if any, is deleted once the new one is stored.
func (g *gateway) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, serviceerr.ErrInvalidPayload)
		return
	}

	ctx := c.Request.Context()
	previous := jarFrom(c)
	jar := g.store.Open(ctx, "")

	profile, err := g.sessions.Login(ctx, jar, req.Email, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}

	if !previous.IsNew() {
		if err := previous.Destroy(ctx); err != nil {
			slogctx.Warn(ctx, "Could not delete the previous credential jar", "error", err)
		}
	}

	g.cookies.setSession(c, jar.ID())
	if g.csrfEnabled() {
		g.cookies.setCSRF(c, csrf.NewToken(jar.ID(), g.csrfSecret))
	}

	writeData(c, profile)
}

func (g *gateway) logout(c *gin.Context) {
	g.sessions.Logout(c.Request.Context(), jarFrom(c))
	g.cookies.expire(c, g.csrfEnabled())

	writeData(c, nil)
}

func (g *gateway) me(c *gin.Context) {
	profile, err := g.sessions.Profile(c.Request.Context(), jarFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}

	writeData(c, profile)
}

func (g *gateway) selectClinic(c *gin.Context) {
	var req selectClinicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, serviceerr.ErrInvalidPayload)
		return
	}

	jar := jarFrom(c)
	if err := g.sessions.SelectClinic(c.Request.Context(), jar, req.Slug); err != nil {
		writeError(c, err)
		return
	}
	g.cookies.setSession(c, jar.ID())

	writeData(c, gin.H{"clinic_slug": req.Slug})
}

func (g *gateway) startSupport(c *gin.Context) {
	jar := jarFrom(c)

	var req startSupportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if hqErr := session.RequireHQ(jar); hqErr != nil {
			writeError(c, hqErr)
			return
		}
		writeError(c, serviceerr.ErrInvalidPayload)
		return
	}

	support, err := g.sessions.StartSupportSession(c.Request.Context(), jar, req.ClinicID, req.Reason, req.ClinicSlug)
	if err != nil {
		writeError(c, err)
		return
	}
	g.cookies.setSession(c, jar.ID())

	writeData(c, supportResponse{ClinicSlug: support.ClinicSlug, ExpiresAt: support.ExpiresAt})
}

func (g *gateway) stopSupport(c *gin.Context) {
	if err := g.sessions.StopSupportSession(c.Request.Context(), jarFrom(c)); err != nil {
		writeError(c, err)
		return
	}

	writeData(c, nil)
}

// health answers the liveness probe of the presentation layer.
func health(c *gin.Context) {
	writeData(c, gin.H{"status": "up"})
}
