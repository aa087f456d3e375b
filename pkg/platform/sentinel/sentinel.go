package sentinel

import "errors"

// Infrastructure facts returned (usually wrapped) by stores and adapters.
// Services translate them into pkg/domain-errors codes; they never reach a
// transport directly.
//
//   - ErrNotFound: the record does not exist
//   - ErrConflict: a uniqueness constraint rejected the write
//   - ErrUnavailable: the backing store could not be reached
//   - ErrInvalidState: the record is in the wrong state for the operation
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnavailable  = errors.New("unavailable")
	ErrInvalidState = errors.New("invalid state")
)
