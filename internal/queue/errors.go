package queue

import "errors"

// terminalError marks a failure that retrying cannot fix: insufficient
// stock, a declined card, a recipient with no contact details. The worker
// fails the job immediately instead of spending the retry budget.
type terminalError struct {
	err error
}

func (e *terminalError) Error() string { return e.err.Error() }

func (e *terminalError) Unwrap() error { return e.err }

func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &terminalError{err: err}
}

func IsTerminal(err error) bool {
	var t *terminalError
	return errors.As(err, &t)
}
