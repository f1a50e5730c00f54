package lock

import "errors"

// ErrInvalidSnapshot is returned by Restore when snap is structurally
// malformed: a non-positive acquisition index, or two entries sharing the
// same index.
var ErrInvalidSnapshot = errors.New("lock: invalid snapshot")
