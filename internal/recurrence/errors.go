package recurrence

import "errors"

// ErrInvalidPattern is returned when a pattern or expansion window cannot produce dates
var ErrInvalidPattern = errors.New("invalid pattern")
