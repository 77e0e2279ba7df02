package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleOwner      = "owner"
	RoleMarketer   = "marketer"
	RoleViewer     = "viewer"
	RoleSuperAdmin = "super_admin"
	RoleScheduler  = "scheduler" // hidden service role, cron endpoints only
)

// Editors may mutate tenant data.
var Editors = []string{RoleOwner, RoleMarketer}

// Readers may view tenant data.
var Readers = []string{RoleOwner, RoleMarketer, RoleViewer}

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }

func IsHiddenRole(role string) bool { return role == RoleScheduler }
