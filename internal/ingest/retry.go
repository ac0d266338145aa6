package ingest

import (
	"alphabot/config"

	"github.com/cenkalti/backoff/v4"
)

// newBackOff builds the retry schedule for page fetches. The "none" policy
// stops after the first failure.
func newBackOff(cfg config.RetryConfig) backoff.BackOff {
	if cfg.Policy != config.RetryExponential || cfg.MaxAttempts <= 1 {
		return &backoff.StopBackOff{}
	}
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = cfg.InitialInterval
	exp.MaxInterval = cfg.MaxInterval
	exp.MaxElapsedTime = 0 // bounded by attempts instead
	return backoff.WithMaxRetries(exp, uint64(cfg.MaxAttempts-1))
}
