package sqlx

import (
	"context"

	"code.cloudfoundry.org/lager"
	"github.com/Masterminds/squirrel"
)

const (
	starting  = "starting"
	finished  = "finished"
	committed = "committed"

	retrievedAppliedMigrations = "retrieved-applied-migrations"
	skippedAppliedMigration    = "skipped-applied-migration"

	failedToStartTransaction = "failed-to-start-transaction"
	failedToCreateTable      = "failed-to-create-table"
	failedToApplyMigration   = "failed-to-apply-migration"
	failedToQueryMigrations  = "failed-to-query-migrations"
	failedToRollback         = "failed-to-rollback"
	failedToCommit           = "failed-to-commit"
)

// ApplyMigrations runs every not-yet-applied migration in order, each inside
// its own transaction, recording versions in tableName.
func ApplyMigrations(
	ctx context.Context,
	logger lager.Logger,
	conn *DB,
	tableName string,
	migrations []Migration,
) error {
	if err := createMigrationsTable(ctx, logger.Session("create-migrations-table"), conn, tableName); err != nil {
		return err
	}

	if len(migrations) == 0 {
		return nil
	}

	applied, err := RetrieveAppliedMigrations(ctx, logger.Session("retrieve-applied-migrations"), conn, tableName)
	if err != nil {
		return err
	}
	logger.Debug(retrievedAppliedMigrations, lager.Data{"versions": applied})

	for version, migration := range migrations {
		migrationLogger := logger.Session("apply-migration", lager.Data{
			"version": version,
			"name":    migration.Name,
		})

		if _, ok := applied[version]; ok {
			migrationLogger.Debug(skippedAppliedMigration)
			continue
		}

		if err := applyMigration(ctx, migrationLogger, conn, tableName, version, migration); err != nil {
			return err
		}
	}

	return nil
}

// RetrieveAppliedMigrations returns the applied migrations keyed by version.
func RetrieveAppliedMigrations(
	ctx context.Context,
	logger lager.Logger,
	conn *DB,
	tableName string,
) (map[int]AppliedMigration, error) {
	rows, err := squirrel.Select("version", "name", "applied_at").
		From(tableName).
		RunWith(conn).
		QueryContext(ctx)
	if err != nil {
		logger.Error(failedToQueryMigrations, err)
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]AppliedMigration)
	for rows.Next() {
		var migration AppliedMigration
		if err := rows.Scan(&migration.Version, &migration.Name, &migration.AppliedAt); err != nil {
			return nil, err
		}
		applied[migration.Version] = migration
	}

	return applied, rows.Err()
}

func createMigrationsTable(
	ctx context.Context,
	logger lager.Logger,
	conn *DB,
	tableName string,
) (err error) {
	var tx *Tx
	tx, err = conn.BeginTx(ctx, nil)
	if err != nil {
		logger.Error(failedToStartTransaction, err)
		return
	}

	defer func() {
		if err != nil {
			logger.Error(failedToCreateTable, err)
		}
		err = Commit(logger, tx, err)
	}()

	_, err = tx.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS `"+tableName+
		"` (id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY, version INTEGER, name VARCHAR(255), applied_at DATETIME)")

	return
}

func applyMigration(
	ctx context.Context,
	logger lager.Logger,
	conn *DB,
	tableName string,
	version int,
	migration Migration,
) (err error) {
	logger.Debug(starting)

	var tx *Tx
	tx, err = conn.BeginTx(ctx, nil)
	if err != nil {
		logger.Error(failedToStartTransaction, err)
		return
	}

	defer func() {
		if err != nil {
			logger.Error(failedToApplyMigration, err)
		}
		err = Commit(logger, tx, err)
	}()

	if err = migration.Up(ctx, logger, tx); err != nil {
		return
	}

	_, err = squirrel.Insert(tableName).
		Columns("version", "name", "applied_at").
		Values(version, migration.Name, squirrel.Expr("NOW()")).
		RunWith(tx).
		ExecContext(ctx)
	if err != nil {
		return
	}

	logger.Debug(finished)
	return
}

// Commit finalizes or rolls back a transaction depending on err, returning
// the first failure encountered.
func Commit(logger lager.Logger, tx *Tx, err error) error {
	if err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			logger.Error(failedToRollback, rollbackErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		logger.Error(failedToCommit, err)
		return err
	}

	logger.Debug(committed)
	return nil
}
