package token

import "errors"

// ErrInvalidArgument marks caller mistakes (malformed address, non-positive
// amount, precision overflow). These are rejected before any network I/O and
// are never retried. Check with errors.Is.
var ErrInvalidArgument = errors.New("invalid argument")
