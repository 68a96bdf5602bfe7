// Package db implements the assignment and relation read interfaces over
// MySQL. The resolver treats any failure here as StoreUnavailable and denies.
package db

import (
	"context"
	"database/sql"

	"code.cloudfoundry.org/lager"
	"github.com/Masterminds/squirrel"
	"github.com/agily/omicron/pkg/authz"
	"github.com/agily/omicron/pkg/authz/repos"
	"github.com/agily/omicron/pkg/sqlx"
)

const (
	errFailedToQueryRoles    = "failed-to-query-roles"
	errFailedToScanRole      = "failed-to-scan-role"
	errFailedToQueryRelation = "failed-to-query-relation"
)

type Store struct {
	conn *sqlx.DB
}

func NewStore(conn *sqlx.DB) *Store {
	return &Store{
		conn: conn,
	}
}

func (s *Store) RolesOf(
	ctx context.Context,
	logger lager.Logger,
	query repos.RolesOfQuery,
) ([]string, error) {
	logger = logger.Session("roles-of")

	rows, err := squirrel.Select("role_name").
		From("role_assignment").
		Where(squirrel.Eq{
			"actor_id":        query.Actor.ID,
			"actor_namespace": query.Actor.Namespace,
			"resource_type":   query.Resource.Type,
			"resource_id":     query.Resource.ID,
		}).
		RunWith(s.conn.DB).
		QueryContext(ctx)
	if err != nil {
		logger.Error(errFailedToQueryRoles, err)
		return nil, authz.NewStoreUnavailableError(err)
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			logger.Error(errFailedToScanRole, err)
			return nil, authz.NewStoreUnavailableError(err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		logger.Error(errFailedToQueryRoles, err)
		return nil, authz.NewStoreUnavailableError(err)
	}

	return roles, nil
}

func (s *Store) ParentOf(
	ctx context.Context,
	logger lager.Logger,
	query repos.ParentQuery,
) (authz.Resource, bool, error) {
	logger = logger.Session("parent-of")

	var (
		parentType string
		parentID   string
	)

	err := squirrel.Select("parent_type", "parent_id").
		From("resource_relation").
		Where(squirrel.Eq{
			"child_type":    query.Resource.Type,
			"child_id":      query.Resource.ID,
			"relation_name": query.Relation,
		}).
		RunWith(s.conn).
		ScanContext(ctx, &parentType, &parentID)

	switch err {
	case nil:
		return authz.Resource{Type: parentType, ID: parentID}, true, nil
	case sql.ErrNoRows:
		return authz.Resource{}, false, nil
	default:
		logger.Error(errFailedToQueryRelation, err)
		return authz.Resource{}, false, authz.NewStoreUnavailableError(err)
	}
}
