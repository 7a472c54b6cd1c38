package projector

import (
	"context"
	"errors"

	"github.com/stratumhq/stratum/envelope"
	"github.com/stratumhq/stratum/persistence"
)

// Handler applies a single event to a read model.
//
// Side effects must be performed within tx, so that they commit atomically
// with the dedup marker recorded by the runtime. An error returned by the
// handler causes redelivery, unless it is wrapped via Fatal(), in which
// case the event is terminated as a poison pill.
type Handler func(
	ctx context.Context,
	tx persistence.Transaction,
	env *envelope.Envelope,
) error

// Fatal wraps err to indicate that handling the event can never succeed,
// and that it must not be redelivered.
func Fatal(err error) error {
	if err == nil {
		panic("cannot mark a nil error as fatal")
	}

	return fatalError{err}
}

// IsFatal returns true if err was marked via Fatal().
func IsFatal(err error) bool {
	var f fatalError
	return errors.As(err, &f)
}

type fatalError struct {
	cause error
}

func (e fatalError) Error() string {
	return e.cause.Error()
}

func (e fatalError) Unwrap() error {
	return e.cause
}
