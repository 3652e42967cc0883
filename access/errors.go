package access

import "errors"

// ErrNonBlocking is returned when a non-blocking acquire could not
// immediately succeed.
var ErrNonBlocking = errors.New("access: would block")

// ErrTimeout is returned when a blocking acquire with a timeout did not
// succeed before the deadline.
var ErrTimeout = errors.New("access: timed out waiting for access")
