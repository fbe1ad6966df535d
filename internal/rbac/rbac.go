package rbac

type Role string
type Action string

const (
	RoleUsuario Role = "usuario"
	RoleJefe    Role = "jefe"
	RoleAdmin   Role = "admin"
)

const (
	ActionTaskRead      Action = "task:read"
	ActionTaskCreate    Action = "task:create"
	ActionTaskUpdate    Action = "task:update"
	ActionTaskAssign    Action = "task:assign"
	ActionAreaManage    Action = "area:manage"
	ActionUserManage    Action = "user:manage"
	ActionAnalyticsView Action = "analytics:view"
	ActionChatPost      Action = "chat:post"
)

// Can reports whether role may perform action. Ownership rules, such as a
// usuario only updating tasks assigned to them, are enforced by the caller.
func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleJefe:
		switch action {
		case ActionTaskRead, ActionTaskCreate, ActionTaskUpdate, ActionTaskAssign, ActionAnalyticsView, ActionChatPost:
			return true
		}
		return false
	case RoleUsuario:
		return action == ActionTaskRead || action == ActionTaskUpdate || action == ActionChatPost
	default:
		return false
	}
}

// SeesAllTasks reports whether role views every open task rather than only
// the ones assigned to the viewer.
func SeesAllTasks(role Role) bool {
	return role == RoleAdmin || role == RoleJefe
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleUsuario, RoleJefe, RoleAdmin:
		return Role(role)
	default:
		return RoleUsuario
	}
}
