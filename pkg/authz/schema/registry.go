package schema

import (
	"sort"

	"github.com/agily/omicron/pkg/authz"
	"github.com/hashicorp/go-multierror"
)

// RoleSet is an immutable set of role names.
type RoleSet map[string]struct{}

func (s RoleSet) Contains(role string) bool {
	_, ok := s[role]
	return ok
}

func (s RoleSet) Intersects(other RoleSet) bool {
	small, large := s, other
	if len(large) < len(small) {
		small, large = large, small
	}
	for role := range small {
		if large.Contains(role) {
			return true
		}
	}
	return false
}

// Names returns the member roles in sorted order.
func (s RoleSet) Names() []string {
	names := make([]string, 0, len(s))
	for role := range s {
		names = append(names, role)
	}
	sort.Strings(names)
	return names
}

type typeTables struct {
	decl Type

	permissions map[string]Permission

	// roleClosure[r] holds r plus every role r transitively implies.
	roleClosure map[string]RoleSet

	// baseRoles[p] holds every role whose closure grants permission p.
	baseRoles map[string]RoleSet

	relations map[string]Relation
}

// Registry holds the validated, precomputed schema for every registered
// resource type. It is built once at startup and is thereafter immutable and
// safe for concurrent reads without locking.
type Registry struct {
	types map[string]*typeTables
}

// NewRegistry registers the given types, validates them, and precomputes the
// closure tables. Validation failures are aggregated; any error is fatal to
// construction so cycles can never surface at request time.
func NewRegistry(types ...Type) (*Registry, error) {
	r := &Registry{types: make(map[string]*typeTables, len(types))}

	var result *multierror.Error
	for _, t := range types {
		if _, exists := r.types[t.Name]; exists {
			result = multierror.Append(result, authz.NewSchemaError("duplicate type %q", t.Name))
			continue
		}
		tables, err := newTypeTables(t)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		r.types[t.Name] = tables
	}

	if err := r.validateRelations(); err != nil {
		result = multierror.Append(result, err)
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}

	for _, tables := range r.types {
		tables.precompute()
	}

	return r, nil
}

func newTypeTables(t Type) (*typeTables, error) {
	var result *multierror.Error

	tables := &typeTables{
		decl:        t,
		permissions: make(map[string]Permission, len(t.Permissions)),
		relations:   make(map[string]Relation, len(t.Relations)),
	}

	for _, p := range t.Permissions {
		if _, exists := tables.permissions[p.Name]; exists {
			result = multierror.Append(result, authz.NewSchemaError("type %q: duplicate permission %q", t.Name, p.Name))
			continue
		}
		tables.permissions[p.Name] = p
	}

	roles := make(map[string]struct{}, len(t.Roles))
	for _, role := range t.Roles {
		if _, exists := roles[role]; exists {
			result = multierror.Append(result, authz.NewSchemaError("type %q: duplicate role %q", t.Name, role))
			continue
		}
		roles[role] = struct{}{}
	}

	for role, perms := range t.RolePermissions {
		if _, ok := roles[role]; !ok {
			result = multierror.Append(result, authz.NewSchemaError("type %q: permission grant on undeclared role %q", t.Name, role))
		}
		for _, p := range perms {
			if _, ok := tables.permissions[p]; !ok {
				result = multierror.Append(result, authz.NewSchemaError("type %q: role %q grants undeclared permission %q", t.Name, role, p))
			}
		}
	}

	for role, implied := range t.RoleImplications {
		if _, ok := roles[role]; !ok {
			result = multierror.Append(result, authz.NewSchemaError("type %q: implication on undeclared role %q", t.Name, role))
		}
		for _, i := range implied {
			if _, ok := roles[i]; !ok {
				result = multierror.Append(result, authz.NewSchemaError("type %q: role %q implies undeclared role %q", t.Name, role, i))
			}
		}
	}

	for _, rel := range t.Relations {
		if _, exists := tables.relations[rel.Name]; exists {
			result = multierror.Append(result, authz.NewSchemaError("type %q: duplicate relation %q", t.Name, rel.Name))
			continue
		}
		tables.relations[rel.Name] = rel
		for _, rule := range rel.Rules {
			if _, ok := roles[rule.Role]; !ok {
				result = multierror.Append(result, authz.NewSchemaError("type %q: relation %q rule targets undeclared role %q", t.Name, rel.Name, rule.Role))
			}
		}
	}

	if err := detectRoleCycles(t); err != nil {
		result = multierror.Append(result, err)
	}

	return tables, result.ErrorOrNil()
}

// detectRoleCycles walks the role-implication graph of a single type with
// three-color DFS. Iteration order does not matter for detection.
func detectRoleCycles(t Type) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := make(map[string]int, len(t.Roles))

	var visit func(role string) bool
	visit = func(role string) bool {
		color[role] = gray
		for _, implied := range t.RoleImplications[role] {
			switch color[implied] {
			case gray:
				return true
			case white:
				if visit(implied) {
					return true
				}
			}
		}
		color[role] = black
		return false
	}

	for _, role := range t.Roles {
		if color[role] == white && visit(role) {
			return authz.NewSchemaError("type %q: role implication cycle through %q", t.Name, role)
		}
	}
	return nil
}

// validateRelations checks that every relation targets a registered type and
// that the type-level relation graph is acyclic, so ancestor ascent always
// terminates regardless of instance data.
func (r *Registry) validateRelations() error {
	var result *multierror.Error

	for name, tables := range r.types {
		for _, rel := range tables.decl.Relations {
			parent, ok := r.types[rel.ParentType]
			if !ok {
				result = multierror.Append(result, authz.NewSchemaError("type %q: relation %q targets unregistered type %q", name, rel.Name, rel.ParentType))
				continue
			}
			for _, rule := range rel.Rules {
				if !containsRole(parent.decl.Roles, rule.ParentRole) {
					result = multierror.Append(result, authz.NewSchemaError("type %q: relation %q rule requires undeclared role %q on type %q", name, rel.Name, rule.ParentRole, rel.ParentType))
				}
			}
		}
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(r.types))

	var visit func(name string) bool
	visit = func(name string) bool {
		color[name] = gray
		tables := r.types[name]
		if tables != nil {
			for _, rel := range tables.decl.Relations {
				switch color[rel.ParentType] {
				case gray:
					return true
				case white:
					if visit(rel.ParentType) {
						return true
					}
				}
			}
		}
		color[name] = black
		return false
	}

	for name := range r.types {
		if color[name] == white && visit(name) {
			result = multierror.Append(result, authz.NewSchemaError("relation cycle through type %q", name))
		}
	}

	return result.ErrorOrNil()
}

func containsRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// precompute materializes the role closures and base-role tables. Inputs are
// validated and acyclic by the time this runs.
func (t *typeTables) precompute() {
	t.roleClosure = make(map[string]RoleSet, len(t.decl.Roles))
	for _, role := range t.decl.Roles {
		closure := RoleSet{}
		t.close(role, closure)
		t.roleClosure[role] = closure
	}

	t.baseRoles = make(map[string]RoleSet, len(t.permissions))
	for name := range t.permissions {
		t.baseRoles[name] = RoleSet{}
	}
	for _, role := range t.decl.Roles {
		for implied := range t.roleClosure[role] {
			for _, p := range t.decl.RolePermissions[implied] {
				t.baseRoles[p][role] = struct{}{}
			}
		}
	}
}

func (t *typeTables) close(role string, into RoleSet) {
	if into.Contains(role) {
		return
	}
	into[role] = struct{}{}
	for _, implied := range t.decl.RoleImplications[role] {
		t.close(implied, into)
	}
}

func (r *Registry) lookup(typeName string) (*typeTables, error) {
	tables, ok := r.types[typeName]
	if !ok {
		return nil, authz.NewSchemaError("unregistered type %q", typeName)
	}
	return tables, nil
}

// BaseRoles returns the set of roles that, granted directly, imply the
// permission on the given type.
func (r *Registry) BaseRoles(typeName, permission string) (RoleSet, error) {
	tables, err := r.lookup(typeName)
	if err != nil {
		return nil, err
	}
	set, ok := tables.baseRoles[permission]
	if !ok {
		return nil, authz.NewSchemaError("type %q: unregistered permission %q", typeName, permission)
	}
	return set, nil
}

// RoleClosure returns the role plus every role it transitively implies on the
// given type. Closing an already-closed set is a no-op.
func (r *Registry) RoleClosure(typeName, role string) (RoleSet, error) {
	tables, err := r.lookup(typeName)
	if err != nil {
		return nil, err
	}
	closure, ok := tables.roleClosure[role]
	if !ok {
		return nil, authz.NewSchemaError("type %q: unregistered role %q", typeName, role)
	}
	return closure, nil
}

// Relations returns the relation declarations for a type in declaration order.
func (r *Registry) Relations(typeName string) ([]Relation, error) {
	tables, err := r.lookup(typeName)
	if err != nil {
		return nil, err
	}
	return tables.decl.Relations, nil
}

// AllowsAnonymous reports whether the permission is reachable without
// authentication.
func (r *Registry) AllowsAnonymous(typeName, permission string) (bool, error) {
	tables, err := r.lookup(typeName)
	if err != nil {
		return false, err
	}
	p, ok := tables.permissions[permission]
	if !ok {
		return false, authz.NewSchemaError("type %q: unregistered permission %q", typeName, permission)
	}
	return p.AllowAnonymous, nil
}

// Types returns the registered type names in sorted order.
func (r *Registry) Types() []string {
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasType reports whether the type is registered.
func (r *Registry) HasType(typeName string) bool {
	_, ok := r.types[typeName]
	return ok
}
