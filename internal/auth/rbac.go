package auth

// Roles carried in tokens.
const (
	RoleViewer   = "viewer"
	RoleOperator = "operator"
)

// Permissions checked by the API.
const (
	PermStatusRead      = "server.status.read"
	PermLogsRead        = "server.logs.read"
	PermPlayersRead     = "server.players.read"
	PermEventsRead      = "server.events.read"
	PermLifecycle       = "server.lifecycle"
	PermConsoleExecute  = "server.console.execute"
	PermPlayersManage   = "server.players.manage"
	PermSchedulesRead   = "schedules.read"
	PermSchedulesManage = "schedules.manage"
	PermSettingsManage  = "settings.manage"
)

var viewerPermissions = []string{
	PermStatusRead,
	PermLogsRead,
	PermPlayersRead,
	PermEventsRead,
	PermSchedulesRead,
}

var rolePermissions = map[string][]string{
	RoleViewer: viewerPermissions,
	RoleOperator: append(append([]string{}, viewerPermissions...),
		PermLifecycle,
		PermConsoleExecute,
		PermPlayersManage,
		PermSchedulesManage,
		PermSettingsManage,
	),
}

// ValidRole reports whether role is known.
func ValidRole(role string) bool {
	_, ok := rolePermissions[role]
	return ok
}

// HasPermission reports whether role grants permission.
func HasPermission(role, permission string) bool {
	for _, p := range rolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}

// RolePermissions returns a copy of the permissions granted to role.
func RolePermissions(role string) []string {
	return append([]string{}, rolePermissions[role]...)
}
