package worker

import "fmt"

// FatalError marks a delivery failure that retrying cannot fix: the
// submission does not belong to the tenant, the tenant has no delivery
// configuration, or the target no longer resolves. The queue sees Fatal()
// and routes the job straight to the dead letter stream.
type FatalError struct {
	Reason string
	Err    error
}

func (e *FatalError) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *FatalError) Unwrap() error { return e.Err }
func (e *FatalError) Fatal() bool   { return true }

func fatalf(err error, format string, args ...interface{}) *FatalError {
	return &FatalError{Reason: fmt.Sprintf(format, args...), Err: err}
}

// retryablef is a plain error; anything not fatal gets backed off and
// retried by the queue.
func retryablef(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
