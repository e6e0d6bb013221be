package constants

import "time"

// Reconnection timing constants
const (
	// DefaultReconnectDelay is the delay used for the first retry after a
	// transport failure and restored after every successful registration
	DefaultReconnectDelay = 2 * time.Second

	// MaxReconnectDelay caps the multiplicative reconnect backoff
	MaxReconnectDelay = 72 * time.Hour

	// DefaultReconnectAttempts is how many timeouts are retried against the
	// same server before it is disabled
	DefaultReconnectAttempts = 3
)

// Keep-alive constants
const (
	DefaultPingInterval = 90 * time.Second
	MinPingInterval     = 15 * time.Second
	MaxPingInterval     = 10 * time.Minute
)

// Network auto-disable constants
const (
	// AutoDisableDelay is the first delay before a network with no usable
	// server re-enables itself; it doubles on every recurrence
	AutoDisableDelay = 30 * time.Second
)

// Socket timing constants
const (
	DialTimeout         = 30 * time.Second
	WriteTimeout        = 30 * time.Second
	RegistrationTimeout = 2 * time.Minute

	// QuitDrainDelay is how long a graceful disconnect waits for the server
	// to close the socket after QUIT
	QuitDrainDelay = 2 * time.Second
)
