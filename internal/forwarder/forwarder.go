// Package forwarder relays application calls to the backend, presenting the
// credential the call is entitled to.
package forwarder

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/openkcm/clinic-gateway/internal/credstore"
	"github.com/openkcm/clinic-gateway/internal/serviceerr"
)

type Option func(*Forwarder)

func WithHTTPClient(c *http.Client) Option {
	return func(f *Forwarder) {
		if c != nil {
			f.client = c
		}
	}
}

type Forwarder struct {
	baseURL        string
	clinicResource string
	client         *http.Client
}

func New(baseURL, clinicResource string, timeout time.Duration, opts ...Option) *Forwarder {
	f := &Forwarder{
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		clinicResource: clinicResource,
		client:         &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}

	return f
}

// Request is a call to relay. Path is the escaped path relative to the
// backend base URL and is sent as is.
type Request struct {
	Method   string
	Path     string
	RawQuery string
	Body     io.Reader
	// ContentLength is the size of Body when known. Zero keeps the size
	// derived from Body and a negative value sends the body chunked.
	ContentLength int64
	ContentType   string
	Accept        string
}

// SelectToken returns the support token for calls scoped to the clinic of
// the active support session, and the access token otherwise.
func (f *Forwarder) SelectToken(path string, jar *credstore.Jar) (string, error) {
	segments := strings.SplitN(strings.Trim(path, "/"), "/", 3)
	if len(segments) >= 2 && unescape(segments[0]) == f.clinicResource {
		if support, ok := jar.SupportSession(); ok && support.ClinicSlug == unescape(segments[1]) {
			return support.Token, nil
		}
	}

	if access, ok := jar.Get(credstore.KeyAccessToken); ok {
		return access, nil
	}

	return "", serviceerr.ErrUnauthorized
}

func unescape(segment string) string {
	if s, err := url.PathUnescape(segment); err == nil {
		return s
	}

	return segment
}

// Forward sends the request to the backend. The caller owns the response body.
func (f *Forwarder) Forward(ctx context.Context, jar *credstore.Jar, r Request) (*http.Response, error) {
	token, err := f.SelectToken(r.Path, jar)
	if err != nil {
		return nil, err
	}

	target := f.baseURL + "/" + strings.TrimPrefix(r.Path, "/")
	if r.RawQuery != "" {
		target += "?" + r.RawQuery
	}

	var body io.Reader
	if r.Method != http.MethodGet {
		body = r.Body
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("creating backend request: %w", err)
	}
	if body != nil && r.ContentLength > 0 {
		req.ContentLength = r.ContentLength
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil && r.ContentType != "" {
		req.Header.Set("Content-Type", r.ContentType)
	}
	if r.Accept != "" {
		req.Header.Set("Accept", r.Accept)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", serviceerr.ErrUpstreamUnavailable, err)
	}

	return resp, nil
}

// Relay writes the backend response verbatim: status, content type and body.
func Relay(w http.ResponseWriter, resp *http.Response) error {
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("streaming backend response: %w", err)
	}

	return nil
}
