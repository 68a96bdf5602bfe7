package repos

import (
	"context"

	"code.cloudfoundry.org/lager"
	"github.com/agily/omicron/pkg/authz"
)

type RolesOfQuery struct {
	Actor    authz.Actor
	Resource authz.Resource
}

//go:generate counterfeiter . RoleAssignmentRepo

// RoleAssignmentRepo reads the roles directly granted to an actor on a single
// resource instance. Grant lifecycle lives outside the core; the resolver only
// reads.
type RoleAssignmentRepo interface {
	RolesOf(
		ctx context.Context,
		logger lager.Logger,
		query RolesOfQuery,
	) ([]string, error)
}
