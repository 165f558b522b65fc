package business

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/valkey-io/valkey-go"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/clinic-gateway/internal/authority"
	"github.com/openkcm/clinic-gateway/internal/business/server"
	"github.com/openkcm/clinic-gateway/internal/config"
	"github.com/openkcm/clinic-gateway/internal/credstore"
	credmemory "github.com/openkcm/clinic-gateway/internal/credstore/memory"
	credvalkey "github.com/openkcm/clinic-gateway/internal/credstore/valkey"
	"github.com/openkcm/clinic-gateway/internal/forwarder"
	"github.com/openkcm/clinic-gateway/internal/guard"
	"github.com/openkcm/clinic-gateway/internal/session"
)

var ErrUnknownStoreType = errors.New("unknown store type")

// Main starts the gateway HTTP server
func Main(ctx context.Context, cfg *config.Config) error {
	deps, closeFn, err := initGateway(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialising the gateway: %w", err)
	}

	defer closeFn()

	return server.StartHTTPServer(ctx, cfg, deps)
}

func initGateway(ctx context.Context, cfg *config.Config) (_ server.Deps, closeFn func(), _ error) {
	backend, closeFn, err := initCredentialBackend(ctx, cfg)
	if err != nil {
		return server.Deps{}, nil, err
	}

	httpClient, err := loadHTTPClient(cfg.Backend)
	if err != nil {
		closeFn()
		return server.Deps{}, nil, fmt.Errorf("loading http client: %w", err)
	}

	csrfSecret, err := config.LoadCSRFSecret(cfg.Gateway)
	if err != nil {
		closeFn()
		return server.Deps{}, nil, err
	}
	if csrfSecret == nil {
		slogctx.Warn(ctx, "No CSRF secret configured; CSRF protection is disabled")
	}

	authorityClient := authority.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout,
		authority.WithHTTPClient(httpClient),
		authority.WithProfileCacheTTL(cfg.Gateway.ProfileCacheTTL),
	)
	paths := cfg.Gateway.Paths.OrDefault()

	return server.Deps{
		Store:      credstore.NewStore(backend),
		Sessions:   session.NewManager(authorityClient, cfg.Gateway.Lifetimes),
		Guard:      guard.New(paths),
		Forwarder:  forwarder.New(cfg.Backend.BaseURL, paths.ClinicResource, cfg.Backend.Timeout, forwarder.WithHTTPClient(httpClient)),
		CSRFSecret: csrfSecret,
	}, closeFn, nil
}

func initCredentialBackend(ctx context.Context, cfg *config.Config) (_ credstore.Backend, closeFn func(), _ error) {
	switch cfg.Store.Type {
	case config.StoreTypeMemory, "":
		slogctx.Info(ctx, "Using the in-memory credential store")
		return credmemory.NewBackend(cfg.Store.CleanupInterval), func() {}, nil
	case config.StoreTypeValKey:
		valkeyClient, err := newValKeyClient(cfg.ValKey)
		if err != nil {
			return nil, nil, err
		}

		slogctx.Info(ctx, "Using the valkey credential store", "prefix", cfg.ValKey.Prefix)
		return credvalkey.NewBackend(valkeyClient, cfg.ValKey.Prefix), valkeyClient.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownStoreType, cfg.Store.Type)
	}
}

func newValKeyClient(conf config.ValKey) (valkey.Client, error) {
	creds, err := config.LoadValKeyCredentials(conf)
	if err != nil {
		return nil, err
	}

	valkeyOpts := valkey.ClientOption{
		InitAddress: []string{creds.Host},
		Username:    creds.User,
		Password:    creds.Password,
	}

	if conf.SecretRef.Type == commoncfg.MTLSSecretType {
		tlsConfig, err := commoncfg.LoadMTLSConfig(&conf.SecretRef.MTLS)
		if err != nil {
			return nil, fmt.Errorf("loading valkey mTLS config from secret ref: %w", err)
		}

		valkeyOpts.TLSConfig = tlsConfig
	}

	valkeyClient, err := valkey.NewClient(valkeyOpts)
	if err != nil {
		return nil, fmt.Errorf("creating a new valkey client: %w", err)
	}

	return valkeyClient, nil
}

// loadHTTPClient returns the client shared by the authority and the
// forwarder, with mTLS when the backend requires it.
func loadHTTPClient(conf config.Backend) (*http.Client, error) {
	if conf.SecretRef.Type != commoncfg.MTLSSecretType {
		return &http.Client{Timeout: conf.Timeout}, nil
	}

	tlsConfig, err := commoncfg.LoadMTLSConfig(&conf.SecretRef.MTLS)
	if err != nil {
		return nil, fmt.Errorf("loading mTLS config: %w", err)
	}

	return &http.Client{
		Timeout: conf.Timeout,
		Transport: &http.Transport{
			TLSClientConfig: tlsConfig,
		},
	}, nil
}
