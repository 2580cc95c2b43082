package auth

import (
	"os"
	"time"
)

// EnvironmentStore implements CredentialStore over FANSYNC_COOKIE,
// FANSYNC_USER_AGENT and FANSYNC_X_BC. The session is named by
// FANSYNC_ACCOUNT, or "default".
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(session *Session) error {
	return ErrStoreUnavailable
}

// Retrieve returns the environment session if its name matches. An empty
// name matches any.
func (e *EnvironmentStore) Retrieve(name string) (*Session, error) {
	cookie := os.Getenv("FANSYNC_COOKIE")
	if cookie == "" {
		return nil, ErrCredentialsNotFound
	}

	envName := os.Getenv("FANSYNC_ACCOUNT")
	if envName == "" {
		envName = "default"
	}
	if name != "" && name != envName {
		return nil, ErrCredentialsNotFound
	}

	return &Session{
		Name:         envName,
		Cookie:       cookie,
		UserAgent:    os.Getenv("FANSYNC_USER_AGENT"),
		XBC:          os.Getenv("FANSYNC_X_BC"),
		LastModified: time.Now(),
	}, nil
}

// List returns a single session if the environment carries one
func (e *EnvironmentStore) List() ([]*Session, error) {
	session, err := e.Retrieve("")
	if err != nil {
		return []*Session{}, nil
	}
	return []*Session{session}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(name string) error {
	return ErrStoreUnavailable
}

// Exists checks if the environment carries a session for name
func (e *EnvironmentStore) Exists(name string) bool {
	_, err := e.Retrieve(name)
	return err == nil
}
