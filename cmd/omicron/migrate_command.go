package main

import (
	"context"

	"github.com/agily/omicron/cmd/flags"
	"github.com/agily/omicron/pkg/authz/repos/db"
	"github.com/agily/omicron/pkg/sqlx"
)

type MigrateCommand struct {
	Logger flags.LagerFlag

	MigrationsTableName string `long:"migrations-table-name" description:"Name of the table which holds migration information" default:"authz_db_migrations"`

	SQL flags.DBFlag `group:"SQL" namespace:"sql"`
}

func (cmd MigrateCommand) Execute([]string) error {
	logger, _ := cmd.Logger.Logger("omicron")
	logger = logger.Session("migrate")

	ctx := context.Background()

	conn, err := cmd.SQL.Connect(ctx, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	return sqlx.ApplyMigrations(ctx, logger, conn, cmd.MigrationsTableName, db.Migrations)
}
