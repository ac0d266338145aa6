package model

import (
	"errors"
	"fmt"
)

// ErrEndOfData signals the exchange has nothing past the cursor.
// It terminates the ingestion loop cleanly and is never reported as a failure.
var ErrEndOfData = errors.New("end of data")

// ErrEmptySeries is returned when a backtest finds no candles.
var ErrEmptySeries = errors.New("empty price series")

// ConnectivityError means the store or the exchange could not be reached.
type ConnectivityError struct {
	Target string // "store" or "exchange"
	Err    error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s unreachable: %v", e.Target, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// TransportError is a failed fetch: network error, non-2xx, or an exchange error code.
type TransportError struct {
	StatusCode int    // HTTP status, 0 when the request never completed
	Code       string // exchange error code, if any
	Msg        string
	Retryable  bool
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("transport: %v", e.Err)
	case e.Code != "":
		return fmt.Sprintf("transport: exchange code %s: %s", e.Code, e.Msg)
	default:
		return fmt.Sprintf("transport: http status %d", e.StatusCode)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// IntegrityViolation is a duplicate or out-of-order candle caught at write time.
type IntegrityViolation struct {
	Symbol string
	TS     Timestamp
	Reason string
}

func (e *IntegrityViolation) Error() string {
	return fmt.Sprintf("integrity violation for %s at %d: %s", e.Symbol, int64(e.TS), e.Reason)
}

// IsRetryable reports whether err is a transport error worth retrying.
func IsRetryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Retryable
}
