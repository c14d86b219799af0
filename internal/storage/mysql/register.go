// Package mysql registers a plain MySQL server as a Store backend,
// reusing internal/storage/rdbms for every table/query concern and
// contributing only DSN construction and driver registration.
package mysql

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"github.com/byteowlz/hstry/internal/config"
	"github.com/byteowlz/hstry/internal/storage"
	"github.com/byteowlz/hstry/internal/storage/factory"
	"github.com/byteowlz/hstry/internal/storage/rdbms"
)

func init() {
	factory.RegisterBackend(config.BackendMySQL, open)
}

func open(ctx context.Context, _ string, opts factory.Options) (storage.Storage, error) {
	if opts.DSN != "" {
		return openDSN(ctx, opts.DSN, "")
	}

	host := opts.ServerHost
	if host == "" {
		host = "127.0.0.1"
	}
	port := opts.ServerPort
	if port == 0 {
		port = 3306
	}
	database := opts.Database
	if database == "" {
		database = "hstry"
	}
	user := opts.ServerUser
	if user == "" {
		user = "root"
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/", user, opts.ServerPassword, host, port)
	return openDSN(ctx, dsn, database)
}

func openDSN(ctx context.Context, dsn, database string) (storage.Storage, error) {
	if database != "" {
		initDB, err := sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("mysql: open server connection: %w", err)
		}
		_, execErr := initDB.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", database))
		initDB.Close()
		if execErr != nil {
			return nil, fmt.Errorf("mysql: create database %q: %w", database, execErr)
		}
		dsn += database
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysql: ping: %w", err)
	}

	return rdbms.Wrap(ctx, db)
}
