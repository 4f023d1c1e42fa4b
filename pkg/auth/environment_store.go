package auth

import (
	"os"
	"time"
)

// TokenEnvVar holds an API token that applies to any backend
const TokenEnvVar = "IMGSCRAPER_API_TOKEN"

// EnvironmentStore implements CredentialStore using environment variables.
// It is read-only.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(cred *Credential) error {
	return ErrStoreUnavailable
}

// Retrieve returns the environment token for any backend
func (e *EnvironmentStore) Retrieve(backend string) (*Credential, error) {
	token := os.Getenv(TokenEnvVar)
	if token == "" {
		return nil, ErrCredentialsNotFound
	}

	if backend == "" {
		backend = "default"
	}

	return &Credential{
		Backend:      backend,
		Token:        token,
		Note:         "from " + TokenEnvVar,
		LastModified: time.Now(),
	}, nil
}

// List returns a single credential if the environment variable is set
func (e *EnvironmentStore) List() ([]*Credential, error) {
	cred, err := e.Retrieve("")
	if err != nil {
		return []*Credential{}, nil
	}
	return []*Credential{cred}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(backend string) error {
	return ErrStoreUnavailable
}

// Exists checks if the environment token is set
func (e *EnvironmentStore) Exists(backend string) bool {
	return os.Getenv(TokenEnvVar) != ""
}
