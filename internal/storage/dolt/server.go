package dolt

import (
	"context"
	"fmt"

	"database/sql"

	_ "github.com/go-sql-driver/mysql"

	"github.com/byteowlz/hstry/internal/storage"
	"github.com/byteowlz/hstry/internal/storage/factory"
	"github.com/byteowlz/hstry/internal/storage/rdbms"
)

// openServer connects to a running `dolt sql-server` over the MySQL
// wire protocol (no CGO required). Used when opts.ServerHost is set,
// and unconditionally on non-CGO builds (register_server.go).
func openServer(ctx context.Context, opts factory.Options) (storage.Storage, error) {
	host := opts.ServerHost
	if host == "" {
		host = "127.0.0.1"
	}
	port := opts.ServerPort
	if port == 0 {
		port = 3307
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
	initDB, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("dolt: open server connection: %w", err)
	}
	defer initDB.Close()

	if _, err := initDB.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", database)); err != nil {
		return nil, fmt.Errorf("dolt: create database %q on server: %w", database, err)
	}

	db, err := sql.Open("mysql", dsn+database)
	if err != nil {
		return nil, fmt.Errorf("dolt: open database connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("dolt: ping server: %w", err)
	}

	return rdbms.Wrap(ctx, db)
}
