package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrTimeout marks a probe that did not complete within its timeout.
var ErrTimeout = errors.New("probe timed out")

// TransportError covers resolution failures, refused connections and
// unreachable hosts.
type TransportError struct {
	Op     string
	Target string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Target, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError is a well-formed but unacceptable answer, such as a non-2xx
// HTTP status or an empty DNS answer section.
type ProtocolError struct {
	Op     string
	Target string
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Op, e.Target, e.Reason)
}

// Kind names the taxonomy bucket of err for logging.
func Kind(err error) string {
	var (
		pe *ProtocolError
		te *TransportError
	)
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.As(err, &pe):
		return "protocol"
	case errors.As(err, &te):
		return "transport"
	default:
		return "unknown"
	}
}

func wrapErr(op, target string, err error) error {
	if err == nil {
		return nil
	}
	if isTimeout(err) {
		return fmt.Errorf("%s %s: %w", op, target, ErrTimeout)
	}
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return err
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Op: op, Target: target, Err: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
