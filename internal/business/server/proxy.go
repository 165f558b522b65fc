package server

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/clinic-gateway/internal/forwarder"
	"github.com/openkcm/clinic-gateway/internal/serviceerr"
)

// forward relays /backend/*path to the clinic API with the token the jar
// selects for the path. The path tail is taken escaped so that encoded
// separators reach the backend unchanged.
func (g *gateway) forward(c *gin.Context) {
	ctx := c.Request.Context()

	resp, err := g.forwarder.Forward(ctx, jarFrom(c), forwarder.Request{
		Method:        c.Request.Method,
		Path:          strings.TrimPrefix(c.Request.URL.EscapedPath(), g.backendPrefix),
		RawQuery:      c.Request.URL.RawQuery,
		Body:          c.Request.Body,
		ContentLength: c.Request.ContentLength,
		ContentType:   c.GetHeader("Content-Type"),
		Accept:        c.GetHeader("Accept"),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	if err := forwarder.Relay(c.Writer, resp); err != nil {
		slogctx.Warn(ctx, "Could not relay backend response", "error", err)
	}
}

// newPageProxy returns the handler serving the guarded pages from the
// presentation upstream. Without an upstream every page is unknown.
func newPageProxy(apiPrefix, upstream string) (gin.HandlerFunc, error) {
	var proxy *httputil.ReverseProxy
	if upstream != "" {
		target, err := url.Parse(upstream)
		if err != nil {
			return nil, fmt.Errorf("parsing frontend URL: %w", err)
		}

		proxy = &httputil.ReverseProxy{
			Rewrite: func(r *httputil.ProxyRequest) {
				r.SetURL(target)
				r.SetXForwarded()
			},
			ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
				slogctx.Error(r.Context(), "Frontend unreachable", "error", err)
				w.WriteHeader(http.StatusBadGateway)
			},
		}
	}

	return func(c *gin.Context) {
		if proxy == nil || underAPI(c.Request.URL.Path, apiPrefix) {
			writeError(c, serviceerr.ErrNotFound)
			return
		}

		proxy.ServeHTTP(c.Writer, c.Request)
	}, nil
}

func underAPI(path, apiPrefix string) bool {
	return path == apiPrefix || strings.HasPrefix(path, strings.TrimSuffix(apiPrefix, "/")+"/")
}
