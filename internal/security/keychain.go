package security

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	// KeychainService is the service name used for storing passwords in the keychain
	KeychainService = "relaybot"

	// SecretPrefix marks a configuration value that names a keychain account
	SecretPrefix = "keyring:"
)

// ErrSecretNotFound is returned when a referenced keychain entry is missing
var ErrSecretNotFound = errors.New("secret not found in keychain")

// Keychain provides secure password storage using OS keychain
type Keychain struct {
	service string
}

// NewKeychain creates a new keychain instance
func NewKeychain() *Keychain {
	return &Keychain{service: KeychainService}
}

// IsReference reports whether value points into the keychain
func IsReference(value string) bool {
	return strings.HasPrefix(value, SecretPrefix)
}

// Resolve returns value unchanged unless it is a "keyring:<account>"
// reference, in which case the stored password is returned
func (k *Keychain) Resolve(value string) (string, error) {
	if !IsReference(value) {
		return value, nil
	}
	account := strings.TrimSpace(strings.TrimPrefix(value, SecretPrefix))
	if account == "" {
		return "", fmt.Errorf("empty keychain account in %q", value)
	}
	password, err := keyring.Get(k.service, account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrSecretNotFound, account)
		}
		return "", fmt.Errorf("failed to get password from keychain: %w", err)
	}
	return password, nil
}

// StorePassword stores a password for an account in the OS keychain
func (k *Keychain) StorePassword(account string, password string) error {
	if password == "" {
		// Empty password, delete instead
		return k.DeletePassword(account)
	}
	if err := keyring.Set(k.service, account, password); err != nil {
		return fmt.Errorf("failed to store password in keychain: %w", err)
	}
	return nil
}

// DeletePassword removes a password for an account from the OS keychain
func (k *Keychain) DeletePassword(account string) error {
	err := keyring.Delete(k.service, account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil // Not found is not an error
		}
		return fmt.Errorf("failed to delete password from keychain: %w", err)
	}
	return nil
}
