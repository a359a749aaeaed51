//nolint:revive // types is a standard Go package name pattern
package types

import "errors"

// ErrNotFound is returned by persistence layers when a requested entity does not
// exist or is not visible to the caller.
var ErrNotFound = errors.New("not found")
