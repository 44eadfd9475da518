package domain

type Role string

const (
	RoleResident Role = "resident"
	RoleStaff    Role = "staff"
	RoleAdmin    Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleResident, RoleStaff, RoleAdmin:
		return true
	}
	return false
}

// Principal is the authenticated caller of an operation.
type Principal struct {
	ResidentID string
	Role       Role
}

func (p Principal) IsStaff() bool {
	return p.Role == RoleStaff || p.Role == RoleAdmin
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}
