package irc

import (
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func opError(errno syscall.Errno) error {
	return &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", errno)}
}

func TestClassifyFailure(t *testing.T) {
	cases := []struct {
		err  error
		want FailureKind
	}{
		{nil, FailureNone},
		{opError(syscall.ECONNREFUSED), FailureConnectionRefused},
		{opError(syscall.EHOSTUNREACH), FailureHostUnreachable},
		{opError(syscall.ENETUNREACH), FailureNetworkUnreachable},
		{opError(syscall.ECONNRESET), FailureReset},
		{opError(syscall.EPIPE), FailureBrokenPipe},
		{opError(syscall.ETIMEDOUT), FailureTimeout},
		{&net.DNSError{Err: "no such host", Name: "irc.invalid", IsNotFound: true}, FailureHostNotFound},
		{&net.DNSError{Err: "timeout", Name: "irc.slow", IsTimeout: true}, FailureTimeout},
		{fmt.Errorf("read: %w", os.ErrDeadlineExceeded), FailureTimeout},
		{fmt.Errorf("%w: closing link", ErrServerError), FailureServerError},
		{ErrRegistrationTimeout, FailureTimeout},
		{io.EOF, FailureClosed},
		{fmt.Errorf("something else"), FailureOther},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ClassifyFailure(tc.err), "%v", tc.err)
	}
}

func TestDecide(t *testing.T) {
	assert.Equal(t, Jump, Decide(FailureConnectionRefused, 1, 3))
	assert.Equal(t, Jump, Decide(FailureHostUnreachable, 1, 3))
	assert.Equal(t, Jump, Decide(FailureHostNotFound, 1, 3))

	assert.Equal(t, Reconnect, Decide(FailureReset, 10, 3))
	assert.Equal(t, Reconnect, Decide(FailureBrokenPipe, 10, 3))
	assert.Equal(t, Reconnect, Decide(FailureNetworkUnreachable, 10, 3))

	for attempt := 1; attempt <= 3; attempt++ {
		assert.Equal(t, Reconnect, Decide(FailureTimeout, attempt, 3))
	}
	assert.Equal(t, Jump, Decide(FailureTimeout, 4, 3))
}

func TestBackoffGrowsAndResets(t *testing.T) {
	b := &Backoff{Initial: 2 * time.Second, Max: time.Hour}

	prev := time.Duration(0)
	for i := 0; i < 6; i++ {
		d := b.Next()
		assert.Greater(t, d, prev)
		prev = d
	}
	assert.Equal(t, 6, b.Attempts())
	b.Reset()
	assert.Equal(t, 2*time.Second, b.Next())
	assert.Equal(t, 1, b.Attempts())
}

func TestBackoffSequence(t *testing.T) {
	b := &Backoff{Initial: 2 * time.Second, Max: time.Hour}
	var got []time.Duration
	for i := 0; i < 4; i++ {
		got = append(got, b.Next())
	}
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 12 * time.Second, 48 * time.Second}, got)
}

func TestBackoffCapped(t *testing.T) {
	b := &Backoff{Initial: time.Minute, Max: 10 * time.Minute}
	var d time.Duration
	for i := 0; i < 20; i++ {
		d = b.Next()
	}
	assert.Equal(t, 10*time.Minute, d)

	var zero Backoff
	assert.Positive(t, zero.Next())
}
