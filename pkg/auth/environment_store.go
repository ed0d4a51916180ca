package auth

import (
	"os"
	"time"
)

const (
	envHandle      = "SKEETER_HANDLE"
	envAppPassword = "SKEETER_APP_PASSWORD"
	envPDS         = "SKEETER_PDS"
)

// EnvironmentStore implements CredentialStore using environment variables.
// It is read-only.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

// Retrieve gets credentials from environment variables. An empty handle
// matches whatever handle the environment names.
func (e *EnvironmentStore) Retrieve(handle string) (*Account, error) {
	envHandleValue := NormalizeHandle(os.Getenv(envHandle))
	password := os.Getenv(envAppPassword)

	if envHandleValue == "" || password == "" {
		return nil, ErrCredentialsNotFound
	}
	if handle != "" && NormalizeHandle(handle) != envHandleValue {
		return nil, ErrCredentialsNotFound
	}

	return &Account{
		Handle:       envHandleValue,
		AppPassword:  password,
		PDS:          os.Getenv(envPDS),
		LastModified: time.Now(),
	}, nil
}

// List returns a single account if environment variables are set
func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(handle string) error {
	return ErrStoreUnavailable
}

// Exists checks if environment credentials exist for the handle
func (e *EnvironmentStore) Exists(handle string) bool {
	_, err := e.Retrieve(handle)
	return err == nil
}
