package auth

import "performa-system/internal/database/models"

type Role string

const (
	RoleAdmin    Role = "Admin"
	RoleManager  Role = "Manager"
	RoleEmployee Role = "Employee"
)

// Actor is the acting identity on a request: email and role come from the
// token, name and dept from identity resolution.
type Actor struct {
	Email string
	Name  string
	Dept  string
	Role  Role
}

// CanAccessKra is the single KRA-access predicate consulted by create, update,
// scoring and availability listing. Admin passes unconditionally here;
// Admin-only operations are gated separately.
func CanAccessKra(actor Actor, kra *models.KRA) bool {
	switch actor.Role {
	case RoleAdmin:
		return true
	case RoleManager:
		return kra.Dept == actor.Dept || kra.ManagerName == actor.Name
	case RoleEmployee:
		return kra.EmployeeName == actor.Name
	}
	return false
}

// CanWriteKpis gates the create/update/score paths. Admins administer KRAs
// and delete KPIs but do not score them.
func CanWriteKpis(role Role) bool {
	return role == RoleManager || role == RoleEmployee
}
