// README: Acting user as supplied by the identity provider.
package types

type Role string

const (
	RoleDriver    Role = "driver"
	RolePassenger Role = "passenger"
	RoleAdmin     Role = "admin"
)

type Gender string

const (
	GenderUnknown Gender = ""
	GenderFemale  Gender = "female"
	GenderMale    Gender = "male"
)

// Actor is the authenticated caller of an operation. The core only reads it.
type Actor struct {
	ID       ID
	Role     Role
	Gender   Gender
	Verified bool
}

func (a Actor) IsDriver() bool {
	return a.Role == RoleDriver
}
