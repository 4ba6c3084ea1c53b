// Package domain contains core concepts of the chat system.
// No runtime, network, or UI logic should be added here.
package domain

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Identity is the stable user a connection, session or punishment is
// attached to. Owned by the user store; everything else only reads it.
type Identity struct {
	ID          string
	DisplayName string
	Roles       []string
}

func (i Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}
