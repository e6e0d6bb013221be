package irc

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/matt0x6f/irc-relay/internal/constants"
)

var (
	// ErrNotConnected is returned when sending without a registered session
	ErrNotConnected = errors.New("not connected")

	// ErrDisconnected ends a session closed on request
	ErrDisconnected = errors.New("disconnected")

	// ErrServerError wraps an ERROR line sent by the server
	ErrServerError = errors.New("server error")

	// ErrRegistrationTimeout is returned when the server never confirms
	// registration
	ErrRegistrationTimeout = errors.New("registration timed out")
)

// FailureKind classifies why a session ended
type FailureKind string

const (
	FailureNone               FailureKind = "none"
	FailureTimeout            FailureKind = "timeout"
	FailureHostUnreachable    FailureKind = "host_unreachable"
	FailureHostNotFound       FailureKind = "host_not_found"
	FailureConnectionRefused  FailureKind = "connection_refused"
	FailureNetworkUnreachable FailureKind = "network_unreachable"
	FailureReset              FailureKind = "connection_reset"
	FailureBrokenPipe         FailureKind = "broken_pipe"
	FailureClosed             FailureKind = "closed"
	FailureServerError        FailureKind = "server_error"
	FailureOther              FailureKind = "other"
)

// Decision is what the engine does after a failure
type Decision int

const (
	// Reconnect retries the same server after the backoff delay
	Reconnect Decision = iota
	// Jump disables the server and moves to the next one immediately
	Jump
)

func (d Decision) String() string {
	if d == Jump {
		return "jump"
	}
	return "reconnect"
}

// ClassifyFailure maps a session error onto a FailureKind
func ClassifyFailure(err error) FailureKind {
	var dnsErr *net.DNSError
	var netErr net.Error
	switch {
	case err == nil:
		return FailureNone
	case errors.Is(err, ErrServerError):
		return FailureServerError
	case errors.Is(err, ErrRegistrationTimeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, os.ErrDeadlineExceeded),
		errors.Is(err, syscall.ETIMEDOUT):
		return FailureTimeout
	case errors.As(err, &dnsErr):
		if dnsErr.IsTimeout {
			return FailureTimeout
		}
		return FailureHostNotFound
	case errors.Is(err, syscall.ECONNREFUSED):
		return FailureConnectionRefused
	case errors.Is(err, syscall.EHOSTUNREACH), errors.Is(err, syscall.EHOSTDOWN):
		return FailureHostUnreachable
	case errors.Is(err, syscall.ENETUNREACH), errors.Is(err, syscall.ENETDOWN):
		return FailureNetworkUnreachable
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.ECONNABORTED):
		return FailureReset
	case errors.Is(err, syscall.EPIPE):
		return FailureBrokenPipe
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrClosedPipe), errors.Is(err, net.ErrClosed):
		return FailureClosed
	case errors.As(err, &netErr) && netErr.Timeout():
		return FailureTimeout
	}
	return FailureOther
}

// Decide picks the recovery for a failure. attempts counts consecutive
// failures against the current server, this one included. Timeouts are
// retried until attempts exceeds threshold.
func Decide(kind FailureKind, attempts, threshold int) Decision {
	switch kind {
	case FailureHostUnreachable, FailureHostNotFound, FailureConnectionRefused:
		return Jump
	case FailureTimeout:
		if attempts > threshold {
			return Jump
		}
	}
	return Reconnect
}

// Backoff grows the reconnect delay multiplicatively: each delay is the
// previous one times the attempt number
type Backoff struct {
	Initial time.Duration
	Max     time.Duration

	delay    time.Duration
	attempts int
}

// Next records a failure and returns how long to wait before retrying
func (b *Backoff) Next() time.Duration {
	if b.Initial <= 0 {
		b.Initial = constants.DefaultReconnectDelay
	}
	if b.Max <= 0 {
		b.Max = constants.MaxReconnectDelay
	}
	b.attempts++
	if b.delay == 0 {
		b.delay = b.Initial
		return b.delay
	}
	factor := time.Duration(b.attempts)
	if b.delay > b.Max/factor {
		b.delay = b.Max
	} else {
		b.delay *= factor
	}
	return b.delay
}

// Attempts returns the failures recorded since the last reset
func (b *Backoff) Attempts() int { return b.attempts }

// Reset restores the initial delay
func (b *Backoff) Reset() {
	b.delay = 0
	b.attempts = 0
}
