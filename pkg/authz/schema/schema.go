// Package schema declares resource types and precomputes the role and
// permission closures the resolver consults at request time.
package schema

// Permission is an atomic right declared on a resource type. AllowAnonymous
// opts the permission out of the authentication pre-check; no built-in type
// uses it.
type Permission struct {
	Name           string
	AllowAnonymous bool
}

// InheritRule conditions a role on this type on a role held on the parent
// reached through the enclosing relation.
type InheritRule struct {
	Role       string
	ParentRole string
}

// Relation names a parent type reachable from instances of this type. A
// relation is functional: each instance has at most one parent per relation.
type Relation struct {
	Name       string
	ParentType string
	Rules      []InheritRule
}

// Type is the declared schema for one resource type. It is consumed by
// NewRegistry and never mutated afterwards.
type Type struct {
	Name        string
	Permissions []Permission

	Roles []string

	// RolePermissions maps a role to the permissions it grants directly.
	RolePermissions map[string][]string

	// RoleImplications maps a role to the roles it implies within this type.
	RoleImplications map[string][]string

	Relations []Relation
}
