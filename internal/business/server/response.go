package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/clinic-gateway/internal/serviceerr"
)

// envelope is the response shape shared with the backend.
type envelope struct {
	OK    bool   `json:"ok"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

func writeData(c *gin.Context, data any) {
	c.JSON(http.StatusOK, envelope{OK: true, Data: data})
}

func writeError(c *gin.Context, err error) {
	serviceErr := serviceerr.As(err)
	status := serviceErr.HTTPStatus()

	ctx := c.Request.Context()
	if status >= http.StatusInternalServerError {
		slogctx.Error(ctx, "Request failed", "error", err)
	} else {
		slogctx.Debug(ctx, "Request rejected", "error", err)
	}

	c.AbortWithStatusJSON(status, envelope{Error: string(serviceErr.Err)})
}
