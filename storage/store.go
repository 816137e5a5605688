// Package storage provides the durable key-value store backing the client's
// local state: the persisted user, token-cache records and secure session
// entries. It plays the role browser localStorage plays for a web client.
package storage

import "errors"

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("storage: key not found")

// Store defines the interface for durable key-value operations. Values are
// shared across all processes using the same data folder, so readers must
// treat them as potentially stale.
type Store interface {
	// Set writes value under key, replacing any previous value.
	Set(key string, value []byte) error

	// Get retrieves the value for key, or ErrNotFound.
	Get(key string) ([]byte, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error
}
