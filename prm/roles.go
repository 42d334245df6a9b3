package prm

import "strings"

// Role is one of the five access roles a user account can hold.
type Role string

const (
	// RolePartnerSI marks a system-integrator partner user.
	RolePartnerSI Role = "partner_si"
	// RolePartnerISV marks an independent-software-vendor partner user.
	RolePartnerISV Role = "partner_isv"
	// RolePartnerManager manages partners on behalf of an organization.
	RolePartnerManager Role = "partner_manager"
	// RoleOrganization is an organization administrator.
	RoleOrganization Role = "organization"
	// RoleAInsteinAdmin is the platform super-admin. It is the only role
	// without an owning organization.
	RoleAInsteinAdmin Role = "ainstein_admin"
)

// Roles lists every known role.
var Roles = []Role{
	RolePartnerSI,
	RolePartnerISV,
	RolePartnerManager,
	RoleOrganization,
	RoleAInsteinAdmin,
}

// ParseRole normalizes raw input into a known Role.
func ParseRole(raw string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Roles {
		if r == known {
			return known, true
		}
	}
	return "", false
}

// IsPartner reports whether the role belongs to the partner category.
func (r Role) IsPartner() bool {
	return r == RolePartnerSI || r == RolePartnerISV
}

// RequiresOrganization reports whether an account with this role must be
// attached to an organization.
func (r Role) RequiresOrganization() bool {
	return r != RoleAInsteinAdmin
}
