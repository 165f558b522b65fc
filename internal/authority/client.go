// Package authority is the client of the backend endpoints issuing and
// revoking tokens.
package authority

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/openkcm/clinic-gateway/internal/serviceerr"
)

const (
	pathLogin        = "/auth/login"
	pathMe           = "/auth/me"
	pathSupportStart = "/hq/support/start"
	pathSupportStop  = "/hq/support/stop"

	maxResponseSize = 1 << 20
)

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithProfileCacheTTL memoises profiles per access token. Zero disables it.
func WithProfileCacheTTL(ttl time.Duration) Option {
	return func(cl *Client) {
		cl.profileTTL = ttl
	}
}

type Client struct {
	baseURL    string
	http       *http.Client
	profileTTL time.Duration
	profiles   *cache.Cache
}

func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.profileTTL > 0 {
		c.profiles = cache.New(c.profileTTL, 2*c.profileTTL)
	}

	return c
}

type Clinic struct {
	ID   int64  `json:"id,omitempty"`
	Slug string `json:"slug"`
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
}

type Profile struct {
	User    json.RawMessage `json:"user"`
	Clinics []Clinic        `json:"clinics"`
	HQRole  string          `json:"hq_role,omitempty"`
}

type LoginResult struct {
	Profile

	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// SupportGrant is a support token. ExpiresAt is zero when the backend did not
// send a readable expiry.
type SupportGrant struct {
	Token     string
	ExpiresAt time.Time
}

type envelope struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	body := map[string]string{"email": email, "password": password}

	var result LoginResult
	if err := c.do(ctx, http.MethodPost, pathLogin, "", body, &result); err != nil {
		return LoginResult{}, err
	}
	if result.Access == "" || result.Refresh == "" {
		return LoginResult{}, fmt.Errorf("%w: login response without tokens", serviceerr.ErrUpstreamUnavailable)
	}

	return result, nil
}

func (c *Client) Me(ctx context.Context, access string) (Profile, error) {
	key := profileKey(access)
	if c.profiles != nil {
		if v, ok := c.profiles.Get(key); ok {
			//nolint:forcetypeassert
			return v.(Profile), nil
		}
	}

	var profile Profile
	if err := c.do(ctx, http.MethodGet, pathMe, access, nil, &profile); err != nil {
		return Profile{}, err
	}
	if c.profiles != nil {
		c.profiles.Set(key, profile, cache.DefaultExpiration)
	}

	return profile, nil
}

// ForgetProfile drops the memoised profile of access.
func (c *Client) ForgetProfile(access string) {
	if c.profiles != nil {
		c.profiles.Delete(profileKey(access))
	}
}

func (c *Client) StartSupport(ctx context.Context, access string, clinicID int64, reason string) (SupportGrant, error) {
	body := struct {
		ClinicID int64  `json:"clinic_id"`
		Reason   string `json:"reason"`
	}{clinicID, reason}

	var data struct {
		SupportToken string `json:"support_token"`
		ExpiresAt    string `json:"expires_at"`
	}
	if err := c.do(ctx, http.MethodPost, pathSupportStart, access, body, &data); err != nil {
		return SupportGrant{}, err
	}
	if data.SupportToken == "" {
		return SupportGrant{}, fmt.Errorf("%w: support response without token", serviceerr.ErrUpstreamUnavailable)
	}

	grant := SupportGrant{Token: data.SupportToken}
	if expiresAt, err := time.Parse(time.RFC3339Nano, data.ExpiresAt); err == nil {
		grant.ExpiresAt = expiresAt
	}

	return grant, nil
}

func (c *Client) StopSupport(ctx context.Context, access, supportToken string) error {
	body := map[string]string{"support_token": supportToken}
	return c.do(ctx, http.MethodPost, pathSupportStop, access, body, nil)
}

func (c *Client) do(ctx context.Context, method, path, bearer string, in, out any) error {
	var reqBody io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", serviceerr.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%w: reading response: %w", serviceerr.ErrUpstreamUnavailable, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return statusError("", resp.StatusCode)
		}
		return fmt.Errorf("%w: decoding response: %w", serviceerr.ErrUpstreamUnavailable, err)
	}

	if !env.OK || resp.StatusCode >= http.StatusBadRequest {
		return statusError(env.Error, resp.StatusCode)
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: decoding data: %w", serviceerr.ErrUpstreamUnavailable, err)
	}

	return nil
}

// statusError converts a rejected call into a downstream error. The backend
// code is kept verbatim; a missing code is derived from the status.
func statusError(code string, status int) error {
	if code == "" {
		switch status {
		case http.StatusUnauthorized:
			code = string(serviceerr.CodeUnauthorized)
		default:
			code = string(serviceerr.CodeUnknown)
		}
	}
	if status < http.StatusBadRequest {
		status = 0
	}

	return serviceerr.Downstream(code, status)
}

func profileKey(access string) string {
	sum := sha256.Sum256([]byte(access))
	return hex.EncodeToString(sum[:])
}

// IsDownstream reports whether err was returned by the backend rather than
// caused by an unreachable or misbehaving backend.
func IsDownstream(err error) bool {
	var serviceErr *serviceerr.Error
	if !errors.As(err, &serviceErr) {
		return false
	}

	return serviceErr.Err != serviceerr.CodeUpstreamUnavailable
}
