package queue

import (
	"errors"

	"github.com/dmitrijs2005/crewclock/internal/common"
)

// Class tells whether a failed delivery is worth retrying.
type Class int

const (
	Transient Class = iota
	Permanent
)

func (c Class) String() string {
	if c == Permanent {
		return "permanent"
	}
	return "transient"
}

// ErrPermanent marks a failure that no retry can fix, such as a payload the
// server rejected or a photo file that can no longer be read.
var ErrPermanent = errors.New("permanent failure")

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() []error { return []error{e.err, ErrPermanent} }

// MarkPermanent wraps err so that the default classifier evicts the item
// immediately. The original error stays reachable through errors.Is.
func MarkPermanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// RetryClassifier decides whether an error is transient or permanent.
type RetryClassifier interface {
	Classify(err error) Class
}

// ClassifierFunc adapts a function to RetryClassifier.
type ClassifierFunc func(err error) Class

func (f ClassifierFunc) Classify(err error) Class { return f(err) }

// DefaultClassifier treats validation failures and errors marked with
// MarkPermanent as permanent. Everything else, network and server errors
// included, is transient.
var DefaultClassifier RetryClassifier = ClassifierFunc(func(err error) Class {
	switch {
	case errors.Is(err, ErrPermanent), errors.Is(err, common.ErrValidation):
		return Permanent
	default:
		return Transient
	}
})

// EvictionPolicy decides when a transiently failing item stops being
// retried.
type EvictionPolicy interface {
	ShouldEvict(retryCount int) bool
}

// MaxAttempts evicts an item once it has failed the given number of times.
// Zero or negative values never evict.
type MaxAttempts int

// DefaultMaxAttempts is the retry ceiling used when none is configured.
const DefaultMaxAttempts MaxAttempts = 3

func (m MaxAttempts) ShouldEvict(retryCount int) bool {
	return m > 0 && retryCount >= int(m)
}
