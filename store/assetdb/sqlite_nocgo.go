//go:build !cgo

package assetdb

import "errors"

const (
	sqliteAvailable  = false
	sqliteDriverName = ""
)

var errSQLiteUnavailable = errors.New("sqlite driver is not available in non-cgo builds; use the bolt driver or rebuild with CGO_ENABLED=1")
