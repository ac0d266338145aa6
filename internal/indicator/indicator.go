// Package indicator computes moving-average indicators over close prices.
//
// The streaming types take one value at a time; the whole-series helpers
// built on them return one output per input, aligned 1:1.
package indicator

import "errors"

// ErrInvalidSpan is returned for a span below 1.
var ErrInvalidSpan = errors.New("indicator: span must be >= 1")
