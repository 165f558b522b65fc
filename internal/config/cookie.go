package config

import "net/http"

type CookieSameSite string

const (
	CookieSameSiteNone   CookieSameSite = "None"
	CookieSameSiteLax    CookieSameSite = "Lax"
	CookieSameSiteStrict CookieSameSite = "Strict"
)

var sameSiteModes = map[CookieSameSite]http.SameSite{
	CookieSameSiteNone:   http.SameSiteNoneMode,
	CookieSameSiteLax:    http.SameSiteLaxMode,
	CookieSameSiteStrict: http.SameSiteStrictMode,
}

// CookieTemplate holds the attributes of a cookie issued by the gateway.
// Secure and HTTPOnly are on unless explicitly set to false.
type CookieTemplate struct {
	Name     string         `yaml:"name"`
	MaxAge   int            `yaml:"maxAge"`
	Path     string         `yaml:"path" default:"/"`
	Domain   string         `yaml:"domain"`
	Secure   *bool          `yaml:"secure,omitempty" default:"true"`
	HTTPOnly *bool          `yaml:"httpOnly,omitempty" default:"true"`
	SameSite CookieSameSite `yaml:"sameSite" default:"Lax"`
}

// ToCookie returns the cookie carrying value. An unknown SameSite value
// leaves the attribute unset.
func (ct *CookieTemplate) ToCookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     ct.Name,
		Value:    value,
		MaxAge:   ct.MaxAge,
		Path:     ct.Path,
		Domain:   ct.Domain,
		Secure:   enabled(ct.Secure),
		HttpOnly: enabled(ct.HTTPOnly),
		SameSite: sameSiteModes[ct.SameSite],
	}
}

// ToExpiredCookie returns a cookie instructing the browser to drop the cookie.
func (ct *CookieTemplate) ToExpiredCookie() *http.Cookie {
	c := ct.ToCookie("")
	c.MaxAge = -1

	return c
}

func enabled(flag *bool) bool {
	return flag == nil || *flag
}
