package models

// UserRole represents the roles recognised at the HTTP boundary.
type UserRole string

const (
	RoleAdmin         UserRole = "ADMIN"
	RoleCenterManager UserRole = "CENTER_MANAGER"
	RoleAcademicStaff UserRole = "ACADEMIC_STAFF"
	RoleTeacher       UserRole = "TEACHER"
	RoleStudent       UserRole = "STUDENT"
)

// IsStaff reports whether the role may act on behalf of students and decide requests.
func (r UserRole) IsStaff() bool {
	switch r {
	case RoleAdmin, RoleCenterManager, RoleAcademicStaff:
		return true
	default:
		return false
	}
}

// UserContact is the minimal directory entry used to address notifications.
type UserContact struct {
	ID       string  `db:"id" json:"id"`
	FullName string  `db:"full_name" json:"fullName"`
	Email    *string `db:"email" json:"email,omitempty"`
}
