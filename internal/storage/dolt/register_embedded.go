//go:build cgo

// Package dolt registers Dolt as an alternate Store backend, selected
// via `[store] backend = "dolt"`. A Dolt database is a directory, not a
// single file. The Remote Gateway does not go through this backend: a
// fetched remote snapshot is a copy of the peer's sqlite store file.
// Everything downstream of "have a *sql.DB speaking MySQL
// dialect" lives in internal/storage/rdbms, shared with the mysql
// backend, since Dolt's SQL surface is MySQL-compatible.
package dolt

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	embedded "github.com/dolthub/driver"

	"github.com/byteowlz/hstry/internal/config"
	"github.com/byteowlz/hstry/internal/storage"
	"github.com/byteowlz/hstry/internal/storage/factory"
	"github.com/byteowlz/hstry/internal/storage/rdbms"
)

func init() {
	factory.RegisterBackend(config.BackendDolt, openEmbedded)
}

// openEmbedded opens (creating if needed) a Dolt database directory at
// path using the embedded, CGO-linked driver. Server-mode connections
// (no CGO required) go through register_server.go instead when this
// file is excluded from the build.
func openEmbedded(ctx context.Context, path string, opts factory.Options) (storage.Storage, error) {
	if opts.ServerHost != "" {
		return openServer(ctx, opts)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("dolt: resolve path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0o750); err != nil {
		return nil, fmt.Errorf("dolt: create database directory: %w", err)
	}

	database := opts.Database
	if database == "" {
		database = "hstry"
	}

	initDSN := fmt.Sprintf("file://%s?commitname=hstry&commitemail=hstry@local", absPath)
	if err := withDB(initDSN, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", database))
		return err
	}); err != nil {
		return nil, fmt.Errorf("dolt: create database %q: %w", database, err)
	}

	dbDSN := fmt.Sprintf("file://%s?commitname=hstry&commitemail=hstry@local&database=%s", absPath, database)
	db, connector, err := openEmbeddedConnection(dbDSN)
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("dolt: ping: %w", err)
	}

	store, err := rdbms.Wrap(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &embeddedStore{Storage: store, connector: connector}, nil
}

// embeddedStore wraps rdbms.Store so Close also releases the embedded
// driver's filesystem locks via the connector.
type embeddedStore struct {
	storage.Storage
	connector *embedded.Connector
}

func (e *embeddedStore) Close() error {
	err := e.Storage.Close()
	if e.connector != nil {
		if cerr := e.connector.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func openEmbeddedConnection(dsn string) (*sql.DB, *embedded.Connector, error) {
	openCfg, err := embedded.ParseDSN(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("dolt: parse DSN: %w", err)
	}
	connector, err := embedded.NewConnector(openCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("dolt: new connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(1) // Dolt embedded mode is single-writer
	db.SetMaxIdleConns(1)
	return db, connector, nil
}

func withDB(dsn string, fn func(*sql.DB) error) error {
	db, connector, err := openEmbeddedConnection(dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	defer connector.Close()
	return fn(db)
}
