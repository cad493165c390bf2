package models

import "slices"

// Role constants for user roles within a workspace.
const (
	RoleAdmin     = "admin"
	RoleDeveloper = "developer"
	RoleViewer    = "viewer"
)

// Datasource permissions reported back to clients as userPermissions.
const (
	PermissionManageDatasources  = "manage:datasources"
	PermissionReadDatasources    = "read:datasources"
	PermissionExecuteDatasources = "execute:datasources"
	PermissionDeleteDatasources  = "delete:datasources"
)

var rolePermissions = map[string][]string{
	RoleAdmin: {
		PermissionManageDatasources,
		PermissionReadDatasources,
		PermissionExecuteDatasources,
		PermissionDeleteDatasources,
	},
	RoleDeveloper: {
		PermissionManageDatasources,
		PermissionReadDatasources,
		PermissionExecuteDatasources,
	},
	RoleViewer: {
		PermissionReadDatasources,
		PermissionExecuteDatasources,
	},
}

// PermissionsForRoles returns the sorted union of datasource permissions granted by roles.
// Unknown roles grant nothing.
func PermissionsForRoles(roles []string) []string {
	var perms []string
	for _, role := range roles {
		for _, p := range rolePermissions[role] {
			if !slices.Contains(perms, p) {
				perms = append(perms, p)
			}
		}
	}
	slices.Sort(perms)
	return perms
}
