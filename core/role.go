package core

import "fmt"

// Role is an ordered capability level, resolved once at admission time.
type Role string

const (
	RoleOwner     Role = "owner"
	RoleEditor    Role = "editor"
	RoleCommenter Role = "commenter"
	RoleViewer    Role = "viewer"
)

var roleLevels = map[Role]int{
	RoleOwner:     4,
	RoleEditor:    3,
	RoleCommenter: 2,
	RoleViewer:    1,
}

// Level returns the numeric rank of the role, 0 for unknown roles.
func (r Role) Level() int {
	return roleLevels[r]
}

// AtLeast reports whether r grants the capabilities of required.
func (r Role) AtLeast(required Role) bool {
	return r.Level() >= required.Level()
}

// CanEdit reports whether the role may publish edit messages and write
// through the persistence gateway.
func (r Role) CanEdit() bool {
	return r.AtLeast(RoleEditor)
}

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := roleLevels[r]; !ok {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}
