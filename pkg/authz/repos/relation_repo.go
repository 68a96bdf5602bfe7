package repos

import (
	"context"

	"code.cloudfoundry.org/lager"
	"github.com/agily/omicron/pkg/authz"
)

type ParentQuery struct {
	Resource authz.Resource
	Relation string
}

//go:generate counterfeiter . RelationRepo

// RelationRepo resolves an instance's parent along a named relation. Relations
// are functional: at most one parent per relation per instance. A missing
// parent is reported through the bool, not an error.
type RelationRepo interface {
	ParentOf(
		ctx context.Context,
		logger lager.Logger,
		query ParentQuery,
	) (authz.Resource, bool, error)
}
