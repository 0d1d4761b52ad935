// Package archive writes ledger snapshots to object storage and restores them.
package archive

import (
	"sitcomledger/internal/archive/core"
)

type (
	// Driver identifies an archive backend driver.
	Driver = core.Driver
	// PutOptions configures an object write.
	PutOptions = core.PutOptions
	// Object describes stored object metadata.
	Object = core.Object
	// Store is the interface implemented by archive backends.
	Store = core.Store
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrExists     = core.ErrExists
	ErrNotFound   = core.ErrNotFound
	ErrInvalidKey = core.ErrInvalidKey
)
