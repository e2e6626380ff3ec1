// Package ctxerr provides functions to wrap errors with annotations and
// stack traces, and to handle those errors once they reach the top of the
// call stack.
//
// Typical uses of this package should be to call New or Wrap[f] as close as
// possible from where the error is encountered (or where it needs to be
// created for New), and then to call Handle with the error only once, after it
// bubbled back to the top of the call stack (e.g. in the CLI command). It is
// fine to wrap the error with more annotations along the way, by calling
// Wrap[f].
package ctxerr

import (
	"context"
	"errors"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	pkgerrors "github.com/pkg/errors"
)

type key int

const loggerKey key = 0

// NewContext returns a context derived from ctx that carries the logger used
// by Handle.
func NewContext(ctx context.Context, logger log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

func fromContext(ctx context.Context) log.Logger {
	v, _ := ctx.Value(loggerKey).(log.Logger)
	return v
}

// New creates a new error with the provided error message.
func New(ctx context.Context, errMsg string) error {
	return pkgerrors.New(errMsg)
}

// Errorf creates a new error with the provided formatted message.
func Errorf(ctx context.Context, fmsg string, args ...any) error {
	return pkgerrors.Errorf(fmsg, args...)
}

// Wrap annotates err with the provided message. Only the first wrap in the
// chain records a stack trace. Wrapping a nil error returns nil.
func Wrap(ctx context.Context, err error, msg string) error {
	if err == nil {
		return nil
	}
	if hasStack(err) {
		return pkgerrors.WithMessage(err, msg)
	}
	return pkgerrors.Wrap(err, msg)
}

// Wrapf annotates err with the provided formatted message.
func Wrapf(ctx context.Context, err error, fmsg string, args ...any) error {
	if err == nil {
		return nil
	}
	if hasStack(err) {
		return pkgerrors.WithMessagef(err, fmsg, args...)
	}
	return pkgerrors.Wrapf(err, fmsg, args...)
}

// Cause returns the root error in err's chain.
func Cause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

// Handle logs err with the logger stored in ctx, if any, and returns it.
func Handle(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if logger := fromContext(ctx); logger != nil {
		level.Error(logger).Log("err", err, "cause", Cause(err)) //nolint:errcheck
	}
	return err
}

func hasStack(err error) bool {
	var st interface{ StackTrace() pkgerrors.StackTrace }
	return errors.As(err, &st)
}
