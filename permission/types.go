package permission

import (
	"errors"
	"sort"
)

// Role is one of the fixed platform roles.
type Role string

// Permission is one of the fixed capability tags.
type Permission string

const (
	SuperAdmin      Role = "super_admin"
	OrgAdmin        Role = "org_admin"
	StandardUser    Role = "standard_user"
	IntegrationUser Role = "integration_user"
)

const (
	ReadData              Permission = "read_data"
	WriteData             Permission = "write_data"
	ManageTemplates       Permission = "manage_templates"
	ConfigureIntegrations Permission = "configure_integrations"
	ManageUsers           Permission = "manage_users"
)

var (
	// ErrUnknownRole is returned for role names outside the fixed set.
	ErrUnknownRole = errors.New("permission: unknown role")
	// ErrUnknownPermission is returned for permission names outside the fixed set.
	ErrUnknownPermission = errors.New("permission: unknown permission")
)

var (
	allRoles       = []Role{SuperAdmin, OrgAdmin, StandardUser, IntegrationUser}
	allPermissions = []Permission{ReadData, WriteData, ManageTemplates, ConfigureIntegrations, ManageUsers}
)

// ParseRole validates s.
func ParseRole(s string) (Role, error) {
	for _, r := range allRoles {
		if string(r) == s {
			return r, nil
		}
	}
	return "", ErrUnknownRole
}

// ParsePermission validates s.
func ParsePermission(s string) (Permission, error) {
	for _, p := range allPermissions {
		if string(p) == s {
			return p, nil
		}
	}
	return "", ErrUnknownPermission
}

// AllRoles lists the fixed roles, most privileged first.
func AllRoles() []Role {
	return append([]Role(nil), allRoles...)
}

// AllPermissions lists every permission sorted by name.
func AllPermissions() []Permission {
	out := append([]Permission(nil), allPermissions...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
