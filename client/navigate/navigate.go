// Package navigate gates access to the authenticated application shell and
// computes which navigation entries a role may see. The mapping is pure:
// the same role always yields the same filtered list and landing path.
package navigate

import "ainstein.io/prm"

// Entry is one candidate navigation destination together with the roles
// permitted to see it.
type Entry struct {
	Path  string
	Title string
	Roles []prm.Role
}

// Allows reports whether the entry's role set contains the role.
func (e Entry) Allows(role prm.Role) bool {
	for _, r := range e.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Route paths for the top-level application areas.
const (
	PathLogin     = "/login"
	PathDashboard = "/dashboard"
	PathNetwork   = "/network"
	PathPartners  = "/partners"
	PathLeads     = "/leads"
	PathBilling   = "/billing"
	PathAssistant = "/assistant"
	PathAdmin     = "/admin"
	PathSettings  = "/settings"
)

var allRoles = prm.Roles

// DefaultEntries is the full navigation list of the PRM shell.
var DefaultEntries = []Entry{
	{Path: PathDashboard, Title: "Dashboard", Roles: []prm.Role{prm.RolePartnerManager, prm.RoleOrganization, prm.RoleAInsteinAdmin}},
	{Path: PathNetwork, Title: "Partner Network", Roles: allRoles},
	{Path: PathPartners, Title: "Partners", Roles: []prm.Role{prm.RolePartnerManager, prm.RoleOrganization, prm.RoleAInsteinAdmin}},
	{Path: PathLeads, Title: "Leads", Roles: []prm.Role{prm.RolePartnerSI, prm.RolePartnerISV, prm.RolePartnerManager, prm.RoleOrganization}},
	{Path: PathBilling, Title: "Billing", Roles: []prm.Role{prm.RoleOrganization, prm.RoleAInsteinAdmin}},
	{Path: PathAssistant, Title: "Assistant", Roles: allRoles},
	{Path: PathAdmin, Title: "Administration", Roles: []prm.Role{prm.RoleAInsteinAdmin}},
	{Path: PathSettings, Title: "Settings", Roles: []prm.Role{prm.RoleOrganization, prm.RoleAInsteinAdmin}},
}

// Session is the read-only view of the auth state machine the guard needs.
type Session interface {
	Current() (prm.Bundle, bool)
}

// Guard filters navigation by the committed session's role.
type Guard struct {
	session Session
	entries []Entry
}

// NewGuard builds a guard over the given navigation list. A nil entries
// slice uses DefaultEntries.
func NewGuard(session Session, entries []Entry) *Guard {
	if entries == nil {
		entries = DefaultEntries
	}
	return &Guard{session: session, entries: entries}
}

// Authenticated reports whether a committed session exists. Requests for
// protected routes redirect to the login route when it is false.
func (g *Guard) Authenticated() bool {
	_, ok := g.session.Current()
	return ok
}

// Navigation returns the entries visible to the current session's role.
// Without a committed session the list is empty.
func (g *Guard) Navigation() []Entry {
	bundle, ok := g.session.Current()
	if !ok {
		return nil
	}
	return Filter(g.entries, bundle.User.Role)
}

// Resolve maps a requested path to the one the session may actually visit:
// the login route without a session, the requested path when permitted,
// the role's landing path otherwise.
func (g *Guard) Resolve(path string) string {
	bundle, ok := g.session.Current()
	if !ok {
		return PathLogin
	}
	for _, e := range Filter(g.entries, bundle.User.Role) {
		if e.Path == path {
			return path
		}
	}
	return Landing(bundle.User.Role)
}

// Filter returns the subset of entries whose role set contains the role.
func Filter(entries []Entry, role prm.Role) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Allows(role) {
			out = append(out, e)
		}
	}
	return out
}

// Landing returns the default landing path for a role: partner-category
// roles land on the network view, the platform admin on the admin view,
// everyone else on the dashboard.
func Landing(role prm.Role) string {
	switch {
	case role.IsPartner():
		return PathNetwork
	case role == prm.RoleAInsteinAdmin:
		return PathAdmin
	default:
		return PathDashboard
	}
}
