//go:build cgo

package assetdb

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	sqliteAvailable  = true
	sqliteDriverName = "sqlite3"
)

var errSQLiteUnavailable error
