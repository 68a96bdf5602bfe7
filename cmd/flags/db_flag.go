package flags

import (
	"context"
	"fmt"

	"code.cloudfoundry.org/lager"
	"github.com/agily/omicron/pkg/sqlx"
	"github.com/go-sql-driver/mysql"
)

type DBFlag struct {
	Driver   string `long:"driver" description:"Database driver to use for SQL backend (e.g. mysql)" default:"mysql"`
	Host     string `long:"host" description:"Host for SQL backend" required:"true"`
	Port     int    `long:"port" description:"Port for SQL backend" required:"true"`
	Schema   string `long:"schema" description:"Database name to use for connecting to SQL backend" required:"true"`
	Username string `long:"username" description:"Username to use for connecting to SQL backend" required:"true"`
	Password string `long:"password" description:"Password to use for connecting to SQL backend" required:"true"`
}

func (f DBFlag) Connect(ctx context.Context, logger lager.Logger) (*sqlx.DB, error) {
	logger = logger.WithData(f.LagerData())

	cfg := mysql.NewConfig()
	cfg.User = f.Username
	cfg.Passwd = f.Password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", f.Host, f.Port)
	cfg.DBName = f.Schema
	cfg.ParseTime = true

	conn, err := sqlx.Connect(ctx, sqlx.DBDriverName(f.Driver), cfg.FormatDSN())
	if err != nil {
		logger.Error(errFailedToConnect, err)
		return nil, err
	}

	return conn, nil
}

func (f DBFlag) LagerData() lager.Data {
	return lager.Data{
		"db_driver":   f.Driver,
		"db_host":     f.Host,
		"db_port":     f.Port,
		"db_schema":   f.Schema,
		"db_username": f.Username,
	}
}
