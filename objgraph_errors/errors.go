// Provides common objgraph errors definitions.
package objgraph_errors

import "errors"

var (
	ErrDuplicateClassID = errors.New("objgraph: class id already registered or hash collision")
	ErrClassNotFound    = errors.New("objgraph: no registered class in the version chain")
	ErrBadClass         = errors.New("objgraph: bad class description")

	ErrStorageUnavailable = errors.New("objgraph: storage facility failed")
	ErrNoFacility         = errors.New("objgraph: domain has no such facility")
	ErrNotStored          = errors.New("objgraph: object not present in storage")
	ErrBadRecord          = errors.New("objgraph: bad object record")

	ErrDuplicateObjID  = errors.New("objgraph: object id already resident")
	ErrNullHandle      = errors.New("objgraph: null handle")
	ErrObjectDestroyed = errors.New("objgraph: object already destroyed")
)
