package validation

import (
	"fmt"
	"strings"
)

// ValidateNetwork validates the identity fields of a network
func ValidateNetwork(name, nickname string, servers int) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("network name is required")
	}
	if err := ValidateNickname(nickname); err != nil {
		return err
	}
	if servers == 0 {
		return fmt.Errorf("at least one server is required")
	}
	return nil
}

// ValidateNickname validates a configured nickname
func ValidateNickname(nickname string) error {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return fmt.Errorf("nickname is required")
	}
	if strings.ContainsAny(nickname, " ,*?!@#:\x00\r\n") {
		return fmt.Errorf("nickname %q contains invalid characters", nickname)
	}
	if c := nickname[0]; (c >= '0' && c <= '9') || c == '-' {
		return fmt.Errorf("nickname %q must not start with a digit or dash", nickname)
	}
	return nil
}

// ValidateChannelName validates an IRC channel name
func ValidateChannelName(channel string) error {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return fmt.Errorf("channel name is required")
	}
	// IRC channels must start with #, &, +, or !
	if channel[0] != '#' && channel[0] != '&' && channel[0] != '+' && channel[0] != '!' {
		return fmt.Errorf("channel name %q must start with #, &, +, or !", channel)
	}
	// Channel names have length limits (typically 50 chars, but varies by server)
	if len(channel) > 200 {
		return fmt.Errorf("channel name too long (max 200 characters)")
	}
	// Check for invalid characters
	if strings.ContainsAny(channel, " \x00\x07\x0A\x0D,") {
		return fmt.Errorf("channel name %q contains invalid characters", channel)
	}
	return nil
}

// ValidateServerAddress validates a server address and port
func ValidateServerAddress(address string, port int) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return fmt.Errorf("server address is required")
	}
	if strings.ContainsAny(address, " /") {
		return fmt.Errorf("server address %q is not a host name", address)
	}
	if port <= 0 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	return nil
}

// ValidateEndpoint validates one side of a bind
func ValidateEndpoint(network, channel string) error {
	if strings.TrimSpace(network) == "" {
		return fmt.Errorf("bind network is required")
	}
	return ValidateChannelName(channel)
}
