package navigator

import (
	"net/url"
	"strings"
)

// Routes maps a page basename to the controller family mounted for it.
type Routes map[string]string

// Controller families.
const (
	FamilyApp       = "app"
	FamilyDashboard = "dashboard"
)

// DefaultRoutes returns the bulletin's routing table.
func DefaultRoutes() Routes {
	return Routes{
		"":               FamilyApp,
		"index.html":     FamilyApp,
		"profile.html":   FamilyApp,
		"dashboard.html": FamilyDashboard,
	}
}

// Lookup returns the family routed for the basename of u.
func (r Routes) Lookup(u *url.URL) (string, bool) {
	if u == nil {
		return "", false
	}
	family, ok := r[Basename(u.Path)]
	return family, ok
}

// Basename returns the last path segment, "" for a directory path.
func Basename(p string) string {
	return p[strings.LastIndex(p, "/")+1:]
}

// pageName is Basename with the directory index spelled out.
func pageName(p string) string {
	if b := Basename(p); b != "" {
		return b
	}
	return "index.html"
}
