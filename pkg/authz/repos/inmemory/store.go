// Package inmemory provides a map-backed assignment and relation store. Hosts
// use it for tests and single-process deployments; the db package is the
// durable equivalent.
package inmemory

import (
	"context"
	"sync"

	"code.cloudfoundry.org/lager"
	"github.com/agily/omicron/pkg/authz"
	"github.com/agily/omicron/pkg/authz/repos"
)

const (
	messageAssignedRole   = "assigned-role"
	messageUnassignedRole = "unassigned-role"
	messageSetParent      = "set-parent"
	messageRemovedParent  = "removed-parent"

	errAssignmentAlreadyExists = "role-assignment-already-exists"
	errAssignmentNotFound      = "role-assignment-not-found"
	errParentAlreadySet        = "parent-already-set"
)

// Invalidator receives a notification whenever a role assignment on a
// resource changes. The resolver's decision cache implements it.
type Invalidator interface {
	RoleAssignmentChanged(resource authz.Resource)
}

type parentKey struct {
	resource authz.Resource
	relation string
}

type assignmentKey struct {
	actor    authz.Actor
	resource authz.Resource
}

type Store struct {
	mu sync.RWMutex

	assignments map[assignmentKey][]string
	parents     map[parentKey]authz.Resource

	invalidator Invalidator
}

type StoreOption func(*Store)

func WithInvalidator(invalidator Invalidator) StoreOption {
	return func(s *Store) {
		s.invalidator = invalidator
	}
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		assignments: make(map[assignmentKey][]string),
		parents:     make(map[parentKey]authz.Resource),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) RolesOf(
	ctx context.Context,
	logger lager.Logger,
	query repos.RolesOfQuery,
) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, authz.NewStoreUnavailableError(err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	roles := s.assignments[assignmentKey{actor: query.Actor, resource: query.Resource}]
	out := make([]string, len(roles))
	copy(out, roles)
	return out, nil
}

func (s *Store) ParentOf(
	ctx context.Context,
	logger lager.Logger,
	query repos.ParentQuery,
) (authz.Resource, bool, error) {
	if err := ctx.Err(); err != nil {
		return authz.Resource{}, false, authz.NewStoreUnavailableError(err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	parent, ok := s.parents[parentKey{resource: query.Resource, relation: query.Relation}]
	return parent, ok, nil
}

// AssignRole grants a direct role to an actor on a resource instance.
func (s *Store) AssignRole(
	ctx context.Context,
	logger lager.Logger,
	actor authz.Actor,
	resource authz.Resource,
	role string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := assignmentKey{actor: actor, resource: resource}
	for _, existing := range s.assignments[key] {
		if existing == role {
			err := ErrAssignmentAlreadyExists
			logger.Error(errAssignmentAlreadyExists, err)
			return err
		}
	}

	s.assignments[key] = append(s.assignments[key], role)
	s.notifyLocked(resource)

	logger.Debug(messageAssignedRole, lager.Data{
		"actor.id":        actor.ID,
		"actor.namespace": actor.Namespace,
		"resource.type":   resource.Type,
		"resource.id":     resource.ID,
		"role":            role,
	})
	return nil
}

// UnassignRole revokes a direct role grant. The revocation is visible to the
// very next resolution.
func (s *Store) UnassignRole(
	ctx context.Context,
	logger lager.Logger,
	actor authz.Actor,
	resource authz.Resource,
	role string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := assignmentKey{actor: actor, resource: resource}
	roles := s.assignments[key]
	for i, existing := range roles {
		if existing == role {
			s.assignments[key] = append(roles[:i], roles[i+1:]...)
			s.notifyLocked(resource)
			logger.Debug(messageUnassignedRole, lager.Data{
				"actor.id":      actor.ID,
				"resource.type": resource.Type,
				"resource.id":   resource.ID,
				"role":          role,
			})
			return nil
		}
	}

	err := ErrAssignmentNotFound
	logger.Error(errAssignmentNotFound, err)
	return err
}

// SetParent records the immutable parent pointer for a relation. Reassignment
// is rejected; parents are set at creation and never repointed.
func (s *Store) SetParent(
	ctx context.Context,
	logger lager.Logger,
	resource authz.Resource,
	relation string,
	parent authz.Resource,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := parentKey{resource: resource, relation: relation}
	if _, exists := s.parents[key]; exists {
		err := ErrParentAlreadySet
		logger.Error(errParentAlreadySet, err)
		return err
	}

	s.parents[key] = parent
	logger.Debug(messageSetParent, lager.Data{
		"resource.type": resource.Type,
		"resource.id":   resource.ID,
		"relation":      relation,
		"parent.type":   parent.Type,
		"parent.id":     parent.ID,
	})
	return nil
}

// RemoveParent deletes a parent pointer. Intended for teardown of destroyed
// instances, not repointing.
func (s *Store) RemoveParent(
	ctx context.Context,
	logger lager.Logger,
	resource authz.Resource,
	relation string,
) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.parents, parentKey{resource: resource, relation: relation})
	logger.Debug(messageRemovedParent, lager.Data{
		"resource.type": resource.Type,
		"resource.id":   resource.ID,
		"relation":      relation,
	})
}

func (s *Store) notifyLocked(resource authz.Resource) {
	if s.invalidator != nil {
		s.invalidator.RoleAssignmentChanged(resource)
	}
}
