// Package guard decides whether a page request may reach the presentation
// upstream or has to be redirected.
package guard

import (
	"strings"

	"github.com/openkcm/clinic-gateway/internal/config"
	"github.com/openkcm/clinic-gateway/internal/credstore"
)

type Decision int

const (
	Allow Decision = iota
	RedirectLogin
	RedirectSelectClinic
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case RedirectLogin:
		return "redirect-login"
	case RedirectSelectClinic:
		return "redirect-select-clinic"
	default:
		return "unknown"
	}
}

// View is the part of a session the guard looks at.
type View struct {
	Authenticated bool
	HQRole        bool
	ClinicSlug    string
}

// ViewOf builds the guard view of a jar.
func ViewOf(jar *credstore.Jar) View {
	s := jar.Session()
	return View{
		Authenticated: s.Authenticated(),
		HQRole:        s.HQRole != "",
		ClinicSlug:    s.ClinicSlug,
	}
}

type Guard struct {
	paths config.Paths
}

func New(paths config.Paths) *Guard {
	return &Guard{paths: paths.OrDefault()}
}

// Target returns the page a decision redirects to.
func (g *Guard) Target(d Decision) string {
	switch d {
	case RedirectLogin:
		return g.paths.Login
	case RedirectSelectClinic:
		return g.paths.SelectClinic
	default:
		return ""
	}
}

// Evaluate applies the page rules in order. The first matching rule wins.
func (g *Guard) Evaluate(path string, v View) Decision {
	path = Normalise(path)

	switch {
	case underPrefix(path, g.paths.APIPrefix):
		return Allow
	case samePage(path, g.paths.Login):
		if v.Authenticated {
			return RedirectSelectClinic
		}
		return Allow
	case samePage(path, g.paths.SelectClinic):
		if !v.Authenticated {
			return RedirectLogin
		}
		return Allow
	case underPrefix(path, g.paths.HQPrefix):
		if !v.Authenticated || !v.HQRole {
			return RedirectLogin
		}
		return Allow
	case underPrefix(path, g.paths.TenantPrefix):
		if !v.Authenticated {
			return RedirectLogin
		}
		rest := path[len(strings.TrimSuffix(g.paths.TenantPrefix, "/")):]
		slug, _, _ := strings.Cut(strings.TrimPrefix(rest, "/"), "/")
		if slug == "" || slug != v.ClinicSlug {
			return RedirectSelectClinic
		}
		return Allow
	default:
		return Allow
	}
}

// Normalise gives path a single leading slash.
func Normalise(path string) string {
	return "/" + strings.TrimLeft(path, "/")
}

func samePage(path, page string) bool {
	return path == page || strings.TrimSuffix(path, "/") == page
}

// underPrefix matches prefix as whole path segments: /hq matches /hq and
// /hq/tenants but not /hqx.
func underPrefix(path, prefix string) bool {
	prefix = strings.TrimSuffix(prefix, "/")
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	rest := path[len(prefix):]

	return rest == "" || rest[0] == '/'
}
