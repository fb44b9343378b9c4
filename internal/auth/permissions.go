// Package auth holds the role permission matrix and session tokens.
package auth

import (
	"slices"

	"shelterhub/pkg/domain"
)

// Permission names a capability checked before a service operation.
type Permission string

const (
	PermCatsRead        Permission = "cats:read"
	PermCatsWrite       Permission = "cats:write"
	PermHousingWrite    Permission = "housing:write"
	PermTreatmentsWrite Permission = "treatments:write"
	PermFinanceRead     Permission = "finance:read"
	PermFinanceWrite    Permission = "finance:write"
	PermUsersAdmin      Permission = "users:admin"
	PermReportsRead     Permission = "reports:read"
)

// AllPermissions lists every permission in a stable order.
var AllPermissions = []Permission{
	PermCatsRead,
	PermCatsWrite,
	PermHousingWrite,
	PermTreatmentsWrite,
	PermFinanceRead,
	PermFinanceWrite,
	PermUsersAdmin,
	PermReportsRead,
}

var matrix = map[domain.Role][]Permission{
	domain.RoleAdmin: AllPermissions,
	domain.RoleManager: {
		PermCatsRead, PermCatsWrite, PermHousingWrite, PermTreatmentsWrite,
		PermFinanceRead, PermFinanceWrite, PermReportsRead,
	},
	domain.RoleCaretaker: {
		PermCatsRead, PermCatsWrite, PermHousingWrite, PermTreatmentsWrite, PermReportsRead,
	},
	domain.RoleVolunteer: {PermCatsRead, PermReportsRead},
}

// Allowed reports whether role grants perm. Unknown roles grant nothing.
func Allowed(role domain.Role, perm Permission) bool {
	return slices.Contains(matrix[role], perm)
}

// PermissionsFor returns a copy of the permissions granted to role.
func PermissionsFor(role domain.Role) []Permission {
	return slices.Clone(matrix[role])
}
