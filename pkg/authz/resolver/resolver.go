// Package resolver answers "does this actor hold this permission on this
// instance" by combining the schema registry's precomputed closures with the
// assignment and relation stores. Every failure path resolves to a denial;
// nothing here defaults to allow.
package resolver

import (
	"context"

	"code.cloudfoundry.org/lager"
	"github.com/agily/omicron/pkg/authz"
	"github.com/agily/omicron/pkg/authz/repos"
	"github.com/agily/omicron/pkg/authz/schema"
)

const (
	messageRelationMissing = "relation-missing"
	messageUnknownRole     = "unknown-assigned-role"
	errFailedToListRoles   = "failed-to-list-roles"
	errFailedToFindParent  = "failed-to-find-parent"
)

// DefaultMaxDepth bounds ancestor ascent. The built-in hierarchy is three
// levels deep; anything past the bound is treated as absent.
const DefaultMaxDepth = 16

type Resolver struct {
	registry    *schema.Registry
	assignments repos.RoleAssignmentRepo
	relations   repos.RelationRepo

	bootstrapActor authz.Actor
	bootstrapGrant authz.RoleGrant

	cache    *DecisionCache
	maxDepth int
}

type Option func(*Resolver)

// WithBootstrapIdentity wires the fixed system identity. It holds exactly the
// given role on exactly the given resource, resolved before any store lookup.
func WithBootstrapIdentity(actor authz.Actor, grant authz.RoleGrant) Option {
	return func(r *Resolver) {
		r.bootstrapActor = actor
		r.bootstrapGrant = grant
	}
}

// WithDecisionCache enables the optional latency cache. Correctness does not
// depend on it.
func WithDecisionCache(cache *DecisionCache) Option {
	return func(r *Resolver) {
		r.cache = cache
	}
}

func WithMaxDepth(depth int) Option {
	return func(r *Resolver) {
		r.maxDepth = depth
	}
}

func NewResolver(
	registry *schema.Registry,
	assignments repos.RoleAssignmentRepo,
	relations repos.RelationRepo,
	opts ...Option,
) *Resolver {
	r := &Resolver{
		registry:    registry,
		assignments: assignments,
		relations:   relations,
		maxDepth:    DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HasPermission reports whether the actor holds the permission on the
// resource. An error means a lookup failed or the schema was violated; the
// gateway converts every error to Deny.
func (r *Resolver) HasPermission(
	ctx context.Context,
	logger lager.Logger,
	actor authz.Actor,
	resource authz.Resource,
	permission string,
) (bool, error) {
	logger = logger.Session("has-permission", lager.Data{
		"resource.type": resource.Type,
		"resource.id":   resource.ID,
		"permission":    permission,
	})

	baseRoles, err := r.registry.BaseRoles(resource.Type, permission)
	if err != nil {
		return false, err
	}

	if !actor.Authenticated() {
		return r.registry.AllowsAnonymous(resource.Type, permission)
	}

	// The bootstrap identity lives outside the identity and assignment
	// stores. It is resolved here, before any lookup, and never escalates
	// beyond its single grant.
	if r.bootstrapActor.Authenticated() && actor == r.bootstrapActor {
		if resource != r.bootstrapGrant.Resource {
			return false, nil
		}
		closure, err := r.registry.RoleClosure(resource.Type, r.bootstrapGrant.Role)
		if err != nil {
			return false, err
		}
		return closure.Intersects(baseRoles), nil
	}

	if r.cache != nil {
		if allowed, ok := r.cache.Get(actor, resource, permission); ok {
			return allowed, nil
		}
	}

	effective, chain, err := r.effectiveRoles(ctx, logger, actor, resource)
	if err != nil {
		return false, err
	}

	allowed := effective.Intersects(baseRoles)
	if r.cache != nil {
		r.cache.Put(actor, resource, permission, allowed, chain)
	}
	return allowed, nil
}

type inheritEdge struct {
	parent    int
	childType string
	rules     []schema.InheritRule
}

// effectiveRoles computes the actor's closure-expanded role set on the
// resource, folding in roles inherited through relation rules. The ascent is
// an explicit frontier loop: a visited set over instance handles drops any
// revisited instance (a cyclic relation configuration denies that path rather
// than looping) and maxDepth bounds the climb outright.
func (r *Resolver) effectiveRoles(
	ctx context.Context,
	logger lager.Logger,
	actor authz.Actor,
	resource authz.Resource,
) (schema.RoleSet, []authz.Resource, error) {
	nodes := []authz.Resource{resource}
	seen := map[authz.Resource]int{resource: 0}
	edges := make(map[int][]inheritEdge)

	frontier := []int{0}
	for depth := 0; len(frontier) > 0 && depth < r.maxDepth; depth++ {
		var next []int
		for _, idx := range frontier {
			node := nodes[idx]
			relations, err := r.registry.Relations(node.Type)
			if err != nil {
				return nil, nil, err
			}

			for _, rel := range relations {
				if len(rel.Rules) == 0 {
					continue
				}

				parent, ok, err := r.relations.ParentOf(ctx, logger, repos.ParentQuery{
					Resource: node,
					Relation: rel.Name,
				})
				if err != nil {
					logger.Error(errFailedToFindParent, err, lager.Data{"relation": rel.Name})
					return nil, nil, wrapStoreErr(err)
				}
				if !ok {
					// Required parent absent: the rule simply cannot
					// grant, so the path denies.
					logger.Debug(messageRelationMissing, lager.Data{"relation": rel.Name})
					continue
				}

				parentIdx, visited := seen[parent]
				if visited {
					continue
				}
				nodes = append(nodes, parent)
				parentIdx = len(nodes) - 1
				seen[parent] = parentIdx
				next = append(next, parentIdx)

				edges[idx] = append(edges[idx], inheritEdge{
					parent:    parentIdx,
					childType: node.Type,
					rules:     rel.Rules,
				})
			}
		}
		frontier = next
	}

	// Parents are always discovered after their children, so walking the
	// node list backwards evaluates ancestors first.
	effective := make([]schema.RoleSet, len(nodes))
	for i := len(nodes) - 1; i >= 0; i-- {
		node := nodes[i]
		set := schema.RoleSet{}

		direct, err := r.assignments.RolesOf(ctx, logger, repos.RolesOfQuery{
			Actor:    actor,
			Resource: node,
		})
		if err != nil {
			logger.Error(errFailedToListRoles, err)
			return nil, nil, wrapStoreErr(err)
		}

		for _, role := range direct {
			closure, err := r.registry.RoleClosure(node.Type, role)
			if err != nil {
				// Stale grant naming a role the schema no longer
				// declares. It grants nothing.
				logger.Error(messageUnknownRole, err, lager.Data{"role": role})
				continue
			}
			for implied := range closure {
				set[implied] = struct{}{}
			}
		}

		for _, edge := range edges[i] {
			parentSet := effective[edge.parent]
			for _, rule := range edge.rules {
				if !parentSet.Contains(rule.ParentRole) {
					continue
				}
				closure, err := r.registry.RoleClosure(edge.childType, rule.Role)
				if err != nil {
					return nil, nil, err
				}
				for implied := range closure {
					set[implied] = struct{}{}
				}
			}
		}

		effective[i] = set
	}

	return effective[0], nodes, nil
}

func wrapStoreErr(err error) error {
	if _, ok := err.(authz.StoreUnavailableError); ok {
		return err
	}
	return authz.NewStoreUnavailableError(err)
}
