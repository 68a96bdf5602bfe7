// Package sqlx wraps database/sql with the small amount of plumbing the
// assignment and relation stores need: driver-tagged connections, transaction
// helpers, and ordered migrations.
package sqlx

import (
	"context"
	"database/sql"

	"github.com/Masterminds/squirrel"
)

type DBDriverName string

const (
	DBDriverNameMySQL DBDriverName = "mysql"
)

type DB struct {
	*sql.DB

	DriverName DBDriverName
}

type Tx struct {
	*sql.Tx
}

func Connect(ctx context.Context, driverName DBDriverName, dataSourceName string) (*DB, error) {
	if driverName != DBDriverNameMySQL {
		return nil, ErrUnsupportedSQLDriver
	}

	db, err := sql.Open(string(driverName), dataSourceName)
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, ErrFailedToEstablishConnection
	}

	return &DB{
		DB:         db,
		DriverName: driverName,
	}, nil
}

func (db *DB) QueryRowContext(ctx context.Context, query string, args ...interface{}) squirrel.RowScanner {
	return db.DB.QueryRowContext(ctx, query, args...)
}

func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	tx, err := db.DB.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}

	return &Tx{Tx: tx}, nil
}

func (tx *Tx) QueryRowContext(ctx context.Context, query string, args ...interface{}) squirrel.RowScanner {
	return tx.Tx.QueryRowContext(ctx, query, args...)
}
