package towing

// Role is a closed set of actor variants. Handlers never compare raw
// role strings; they carry an Actor and ask it what it may do.
type Role int

const (
	RoleAnonymous Role = iota
	RoleCustomer
	RoleDriver
)

func (r Role) String() string {
	switch r {
	case RoleCustomer:
		return "customer"
	case RoleDriver:
		return "driver"
	default:
		return "anonymous"
	}
}

// ParseRole maps a stored role string onto a Role. Unknown values fall
// back to anonymous rather than failing open as a privileged variant.
func ParseRole(s string) Role {
	switch s {
	case "customer":
		return RoleCustomer
	case "driver":
		return RoleDriver
	default:
		return RoleAnonymous
	}
}

type Actor struct {
	ID   int64
	Role Role
}

func Customer(id int64) Actor { return Actor{ID: id, Role: RoleCustomer} }
func Driver(id int64) Actor   { return Actor{ID: id, Role: RoleDriver} }
func Anonymous() Actor        { return Actor{Role: RoleAnonymous} }

func (a Actor) IsDriver() bool   { return a.Role == RoleDriver }
func (a Actor) IsCustomer() bool { return a.Role == RoleCustomer }

// Authenticated reports whether the actor maps to a stored account.
func (a Actor) Authenticated() bool { return a.Role != RoleAnonymous }
