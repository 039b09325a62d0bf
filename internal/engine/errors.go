package engine

import "errors"

// Error kinds the worker boundary maps to a failed job. Rule violations are
// never errors; only upstream auth/data failures are.
var (
	ErrAuthentication  = errors.New("terminal login failed")
	ErrDataUnavailable = errors.New("required account data unavailable")
)
