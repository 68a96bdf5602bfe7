package authz

// Actor is the principal on whose behalf an operation is attempted. The zero
// value is the anonymous actor.
type Actor struct {
	ID        string
	Namespace string
}

func (a Actor) Authenticated() bool {
	return a.ID != ""
}

// Anonymous is the actor used for requests that carry no verified identity.
var Anonymous = Actor{}

// Resource identifies a single instance of a registered resource type.
type Resource struct {
	Type string
	ID   string
}

// RoleGrant pins one role on one resource. The resolver's bootstrap identity
// is configured with exactly one of these.
type RoleGrant struct {
	Resource Resource
	Role     string
}
