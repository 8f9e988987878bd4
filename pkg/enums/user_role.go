package enums

// UserRole is the campus role carried in access tokens.
type UserRole string

const (
	UserRoleStudent UserRole = "student"
	UserRoleFaculty UserRole = "faculty"
	UserRoleAdmin   UserRole = "admin"
)

var userRoles = []UserRole{UserRoleStudent, UserRoleFaculty, UserRoleAdmin}

func (r UserRole) String() string { return string(r) }
func (r UserRole) IsValid() bool  { return oneOf(r, userRoles) }

func ParseUserRole(value string) (UserRole, error) {
	return parse(value, userRoles, "user role")
}
