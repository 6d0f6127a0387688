package domain

// Role is the closed set of account roles known to the platform.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleDirector Role = "director"
	RoleTeacher  Role = "teacher"
	RoleParent   Role = "parent"
)

// roleHome maps every role to its landing path. Adding a role is a table
// change, not a new branch.
var roleHome = map[Role]string{
	RoleAdmin:    "/admin/dashboard",
	RoleDirector: "/director/dashboard",
	RoleTeacher:  "/teacher/dashboard",
	RoleParent:   "/parent/home",
}

// LoginPath is where an account with no valid session lands.
const LoginPath = "/login"

// HomePath returns the landing path for the role. Unknown roles are sent
// back to login.
func (r Role) HomePath() string {
	if path, ok := roleHome[r]; ok {
		return path
	}
	return LoginPath
}

// Valid reports whether the role is one the platform knows.
func (r Role) Valid() bool {
	_, ok := roleHome[r]
	return ok
}

// User is the authenticated identity as returned by the login endpoint.
type User struct {
	ID        int64  `json:"id"`
	Role      Role   `json:"role"`
	Name      string `json:"name"`
	DaycareID int64  `json:"daycare_id"`
}
