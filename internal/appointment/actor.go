package appointment

type Role string

const (
	RoleClient Role = "client"
	RoleStaff  Role = "staff"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	Subject string
	Email   string
	Name    string
	Role    Role
}

func (a Actor) IsStaff() bool { return a.Role == RoleStaff }

// Scope returns the listing scope the actor is entitled to.
func (a Actor) Scope() Scope {
	if a.IsStaff() {
		return ScopeAll()
	}
	return ScopeMine(a.Email)
}
