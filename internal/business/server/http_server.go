package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/samber/oops"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/clinic-gateway/internal/config"
	"github.com/openkcm/clinic-gateway/internal/credstore"
	"github.com/openkcm/clinic-gateway/internal/forwarder"
	"github.com/openkcm/clinic-gateway/internal/guard"
	"github.com/openkcm/clinic-gateway/internal/session"
	"github.com/openkcm/clinic-gateway/pkg/csrf"
)

// Deps are the components serving the gateway endpoints.
type Deps struct {
	Store     *credstore.Store
	Sessions  *session.Manager
	Guard     *guard.Guard
	Forwarder *forwarder.Forwarder
	// CSRFSecret enables CSRF protection when not empty.
	CSRFSecret []byte
}

type gateway struct {
	store      *credstore.Store
	sessions   *session.Manager
	forwarder  *forwarder.Forwarder
	cookies    cookies
	csrfSecret []byte

	// backendPrefix is the route prefix of the forwarded calls.
	backendPrefix string
}

func (g *gateway) csrfEnabled() bool {
	return len(g.csrfSecret) > 0
}

var forwardedMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
}

// createHTTPServer creates the gateway http server using the given config
func createHTTPServer(ctx context.Context, cfg *config.Config, deps Deps, m *meters) (*http.Server, error) {
	ck, err := newCookies(ctx, cfg.Gateway, len(deps.CSRFSecret) > 0)
	if err != nil {
		return nil, oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "Invalid cookie template")
	}

	paths := cfg.Gateway.Paths.OrDefault()
	pages, err := newPageProxy(paths.APIPrefix, cfg.Frontend.URL)
	if err != nil {
		return nil, oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "Invalid frontend")
	}

	g := &gateway{
		store:      deps.Store,
		sessions:   deps.Sessions,
		forwarder:  deps.Forwarder,
		cookies:    ck,
		csrfSecret: deps.CSRFSecret,

		backendPrefix: strings.TrimSuffix(paths.APIPrefix, "/") + "/backend",
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(newTraceMiddleware(cfg, m))
	if len(cfg.HTTP.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.HTTP.AllowedOrigins,
			AllowMethods:     forwardedMethods,
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", csrf.Header},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	api := router.Group(paths.APIPrefix)
	api.GET("/health", health)

	loginPath := strings.TrimSuffix(paths.APIPrefix, "/") + "/auth/login"
	scoped := api.Group("", jarMiddleware(deps.Store, ck), csrfMiddleware(deps.CSRFSecret, loginPath))

	auth := scoped.Group("/auth")
	auth.POST("/login", g.login)
	auth.POST("/logout", g.logout)
	auth.GET("/me", g.me)
	auth.POST("/select-clinic", g.selectClinic)

	support := scoped.Group("/hq/support")
	support.POST("/start", g.startSupport)
	support.POST("/stop", g.stopSupport)

	for _, method := range forwardedMethods {
		scoped.Handle(method, "/backend/*path", g.forward)
	}

	router.NoRoute(jarMiddleware(deps.Store, ck), guardMiddleware(deps.Guard), pages)

	return &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

// StartHTTPServer starts the gateway HTTP server using the given config.
func StartHTTPServer(ctx context.Context, cfg *config.Config, deps Deps) error {
	m, err := initMeters(ctx, cfg)
	if err != nil {
		return err
	}

	server, err := createHTTPServer(ctx, cfg, deps, m)
	if err != nil {
		return err
	}

	slogctx.Info(ctx, "Starting a listener", "address", server.Addr)

	// Parse network if the address if provided in the format of network://address.
	// Otherwise use tcp network by default.
	network := "tcp"
	if idx := strings.IndexRune(server.Addr, ':'); idx != -1 && len(server.Addr) > idx+3 && server.Addr[idx:idx+3] == "://" {
		network = server.Addr[:idx]
		server.Addr = server.Addr[idx+3:]
	}

	listener, err := new(net.ListenConfig).Listen(ctx, network, server.Addr)
	if err != nil {
		return oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "Failed to create a listener")
	}

	slogctx.Info(ctx, "A listener started", "address", listener.Addr().String())

	go func() {
		slogctx.Info(ctx, "Serving an HTTP server", "address", listener.Addr().String())
		err := server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slogctx.Error(ctx, "Failed to serve an HTTP server", "error", err)
		}

		slogctx.Info(ctx, "Stopped an HTTP server")
	}()

	<-ctx.Done()

	shutdownCtx, shutdownRelease := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
	defer shutdownRelease()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "Failed shutting down HTTP server")
	}

	slogctx.Info(ctx, "Completed graceful shutdown of HTTP server")

	return nil
}
