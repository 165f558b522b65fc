// Package config defines the necessary types to configure the application.
// An example config file config.yaml is provided in the repository.
package config

import (
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
)

type Config struct {
	commoncfg.BaseConfig `mapstructure:",squash" yaml:",inline"`

	HTTP     HTTPServer `yaml:"http"`
	Backend  Backend    `yaml:"backend"`
	Frontend Frontend   `yaml:"frontend"`
	Store    Store      `yaml:"store"`
	ValKey   ValKey     `yaml:"valkey"`
	Gateway  Gateway    `yaml:"gateway"`
}

type HTTPServer struct {
	Address         string        `yaml:"address" default:":8080"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" default:"5s"`
	// AllowedOrigins enables CORS with credentials for the listed origins.
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// Backend is the clinic API. The authority endpoints (/auth, /hq/support)
// are served from the same base URL.
type Backend struct {
	BaseURL string        `yaml:"baseURL" default:"http://localhost:8000"`
	Timeout time.Duration `yaml:"timeout" default:"15s"`
	// SecretRef enables mTLS towards the backend.
	SecretRef commoncfg.SecretRef `yaml:"secretRef"`
}

// Frontend is the upstream rendering the pages protected by the route guard.
// Page requests are answered with 404 when it is empty.
type Frontend struct {
	URL string `yaml:"url"`
}

type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeValKey StoreType = "valkey"
)

type Store struct {
	Type            StoreType     `yaml:"type" default:"memory"`
	CleanupInterval time.Duration `yaml:"cleanupInterval" default:"10m"`
}

type ValKey struct {
	Host     commoncfg.SourceRef `yaml:"host"`
	User     commoncfg.SourceRef `yaml:"user"`
	Password commoncfg.SourceRef `yaml:"password"`
	Prefix   string              `yaml:"prefix" default:"clinic-gateway"`

	SecretRef commoncfg.SecretRef `yaml:"secretRef"`
}

type Gateway struct {
	SessionCookieTemplate CookieTemplate `mapstructure:"sessionCookie" yaml:"sessionCookie"`
	CSRFCookieTemplate    CookieTemplate `mapstructure:"csrfCookie" yaml:"csrfCookie"`
	// CSRFSecret enables CSRF protection of mutating API calls when set.
	CSRFSecret      commoncfg.SourceRef `yaml:"csrfSecret"`
	ProfileCacheTTL time.Duration       `yaml:"profileCacheTTL" default:"30s"`
	Lifetimes       Lifetimes           `yaml:"lifetimes"`
	Paths           Paths               `yaml:"paths"`
}

type Lifetimes struct {
	AccessToken     time.Duration `yaml:"accessToken" default:"30m"`
	RefreshToken    time.Duration `yaml:"refreshToken" default:"168h"`
	HQRole          time.Duration `yaml:"hqRole" default:"168h"`
	ClinicSlug      time.Duration `yaml:"clinicSlug" default:"24h"`
	SupportFallback time.Duration `yaml:"supportFallback" default:"15m"`
}

type Paths struct {
	APIPrefix    string `yaml:"apiPrefix" default:"/api"`
	Login        string `yaml:"login" default:"/login"`
	SelectClinic string `yaml:"selectClinic" default:"/select-clinic"`
	HQPrefix     string `yaml:"hqPrefix" default:"/hq"`
	TenantPrefix string `yaml:"tenantPrefix" default:"/tenant"`
	// ClinicResource is the first segment of clinic scoped backend paths.
	ClinicResource string `yaml:"clinicResource" default:"clinic"`
}

func DefaultLifetimes() Lifetimes {
	return Lifetimes{
		AccessToken:     30 * time.Minute,
		RefreshToken:    7 * 24 * time.Hour,
		HQRole:          7 * 24 * time.Hour,
		ClinicSlug:      24 * time.Hour,
		SupportFallback: 15 * time.Minute,
	}
}

func DefaultPaths() Paths {
	return Paths{
		APIPrefix:      "/api",
		Login:          "/login",
		SelectClinic:   "/select-clinic",
		HQPrefix:       "/hq",
		TenantPrefix:   "/tenant",
		ClinicResource: "clinic",
	}
}

// OrDefault fills the zero durations with the default lifetimes.
func (l Lifetimes) OrDefault() Lifetimes {
	def := DefaultLifetimes()
	if l.AccessToken <= 0 {
		l.AccessToken = def.AccessToken
	}
	if l.RefreshToken <= 0 {
		l.RefreshToken = def.RefreshToken
	}
	if l.HQRole <= 0 {
		l.HQRole = def.HQRole
	}
	if l.ClinicSlug <= 0 {
		l.ClinicSlug = def.ClinicSlug
	}
	if l.SupportFallback <= 0 {
		l.SupportFallback = def.SupportFallback
	}

	return l
}

// OrDefault fills the empty paths with the default paths.
func (p Paths) OrDefault() Paths {
	def := DefaultPaths()
	if p.APIPrefix == "" {
		p.APIPrefix = def.APIPrefix
	}
	if p.Login == "" {
		p.Login = def.Login
	}
	if p.SelectClinic == "" {
		p.SelectClinic = def.SelectClinic
	}
	if p.HQPrefix == "" {
		p.HQPrefix = def.HQPrefix
	}
	if p.TenantPrefix == "" {
		p.TenantPrefix = def.TenantPrefix
	}
	if p.ClinicResource == "" {
		p.ClinicResource = def.ClinicResource
	}

	return p
}
