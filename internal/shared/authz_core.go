package shared

// Account administration permissions declared for authorization. The
// roles.* pair gates the permission-group admin pages; profile roles are a
// separate enum and never appear here.
const (
	PermUsersView = "users.view"
	PermUsersEdit = "users.edit"

	PermRolesView = "roles.view"
	PermRolesEdit = "roles.edit"

	PermPermissionsView = "permissions.view"
)

// CoreScopes lists the account administration permissions.
func CoreScopes() []string {
	return []string{
		PermUsersView,
		PermUsersEdit,
		PermRolesView,
		PermRolesEdit,
		PermPermissionsView,
	}
}
