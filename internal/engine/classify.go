package engine

import (
	"context"
	"errors"
	"time"

	"dexflow/internal/chain"
)

// FailureClass is the retry-or-terminate decision for one raw failure.
type FailureClass int

const (
	// ClassTransient failures are retried with exponential backoff up to
	// the configured attempt bound.
	ClassTransient FailureClass = iota
	// ClassPermanent failures terminate the order immediately.
	ClassPermanent
	// ClassUnknown failures terminate immediately and raise an alert for
	// operator review. Never retry what you can't classify.
	ClassUnknown
)

// Classify maps an adapter failure to its class.
func Classify(err error) FailureClass {
	switch {
	case errors.Is(err, chain.ErrTimeout),
		errors.Is(err, chain.ErrUnavailable),
		errors.Is(err, chain.ErrUnderpriced),
		errors.Is(err, context.DeadlineExceeded):
		return ClassTransient
	case errors.Is(err, chain.ErrInsufficientBalance),
		errors.Is(err, chain.ErrInvalidAddress),
		errors.Is(err, chain.ErrRejected):
		return ClassPermanent
	default:
		return ClassUnknown
	}
}

// backoff returns the delay before retry attempt n (zero-based), doubling
// from base.
func backoff(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
	}
	return d
}

// reason renders an adapter failure as the human-readable string stored on
// terminal orders and failed transactions.
func reason(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
