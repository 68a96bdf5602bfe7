package db

import (
	"context"

	"code.cloudfoundry.org/lager"
	"github.com/agily/omicron/pkg/sqlx"
)

const MigrationsTableName = "authz_db_migrations"

var Migrations = []sqlx.Migration{
	{
		Name: "create_role_assignment_table",
		Up:   createRoleAssignmentTable,
	},
	{
		Name: "create_resource_relation_table",
		Up:   createResourceRelationTable,
	},
}

func createRoleAssignmentTable(ctx context.Context, logger lager.Logger, tx *sqlx.Tx) error {
	_, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS role_assignment
(
  id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
  actor_id VARCHAR(511) NOT NULL,
  actor_namespace VARCHAR(2047) NOT NULL,
  resource_type VARCHAR(255) NOT NULL,
  resource_id VARCHAR(511) NOT NULL,
  role_name VARCHAR(255) NOT NULL,
  UNIQUE KEY unique_assignment (actor_id(127), actor_namespace(127), resource_type, resource_id(127), role_name)
)
`)
	return err
}

func createResourceRelationTable(ctx context.Context, logger lager.Logger, tx *sqlx.Tx) error {
	_, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS resource_relation
(
  id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
  child_type VARCHAR(255) NOT NULL,
  child_id VARCHAR(511) NOT NULL,
  relation_name VARCHAR(255) NOT NULL,
  parent_type VARCHAR(255) NOT NULL,
  parent_id VARCHAR(511) NOT NULL,
  UNIQUE KEY unique_relation (child_type, child_id(255), relation_name)
)
`)
	return err
}
