package provider

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// Policy describes an exponential backoff schedule: after the n-th failed
// attempt (0-based) the caller sleeps BaseDelay·2^n, up to MaxRetries
// attempts in total.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// Do runs op under policy. Only failures wrapping ErrTransient are
// retried; every other error, a nil policy budget and context
// cancellation end the loop immediately.
func Do(ctx context.Context, policy Policy, name string, op func() error) error {
	if policy.MaxRetries < 1 {
		policy.MaxRetries = 1
	}
	var last error
	for attempt := 0; attempt < policy.MaxRetries; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrTransient) {
			return err
		}
		last = err
		if attempt == policy.MaxRetries-1 {
			break
		}
		delay := policy.BaseDelay * (1 << uint(attempt))
		log.Warn("Retrying provider call", "op", name, "attempt", attempt+1, "delay", delay, "err", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	log.Error("Provider call gave up", "op", name, "attempts", policy.MaxRetries, "err", last)
	return last
}
