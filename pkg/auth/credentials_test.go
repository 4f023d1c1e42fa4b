package auth

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileName(t *testing.T) {
	assert.Equal(t, "localhost:5001", ProfileName("http://localhost:5001"))
	assert.Equal(t, "scraper.example.com", ProfileName("https://Scraper.Example.com/api/"))
	assert.Equal(t, "not a url", ProfileName(" not a url "))
}

func TestCredentialManager(t *testing.T) {
	manager, store := NewMockManager()

	cred := &Credential{Backend: "localhost:5001", Token: " tok_1234567890 "}
	require.NoError(t, manager.Store(cred))
	assert.False(t, cred.LastModified.IsZero())

	got, err := manager.Retrieve("localhost:5001")
	require.NoError(t, err)
	assert.Equal(t, "tok_1234567890", got.Token)
	assert.Equal(t, "tok_1234567890", manager.Token("http://localhost:5001"))
	assert.Empty(t, manager.Token("http://other:1"))

	creds, err := manager.List()
	require.NoError(t, err)
	assert.Len(t, creds, 1)

	require.NoError(t, manager.Delete("localhost:5001"))
	_, err = manager.Retrieve("localhost:5001")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
	assert.Zero(t, store.Count())
}

func TestManagerStoreValidation(t *testing.T) {
	manager, _ := NewMockManager()
	assert.Error(t, manager.Store(nil))
	assert.Error(t, manager.Store(&Credential{Token: "x"}))
	assert.Error(t, manager.Store(&Credential{Backend: "b", Token: "   "}))
}

func TestManagerFallsBackToNextStore(t *testing.T) {
	failing := NewMockStore()
	failing.StoreError = errors.New("keyring locked")
	fallback := NewMockStore()
	manager := NewManagerWithStores(failing, fallback)

	require.NoError(t, manager.Store(&Credential{Backend: "b", Token: "t"}))
	assert.Zero(t, failing.Count())
	assert.Equal(t, 1, fallback.Count())

	got, err := manager.Retrieve("b")
	require.NoError(t, err)
	assert.Equal(t, "t", got.Token)
}

func TestManagerAllStoresFail(t *testing.T) {
	s := NewMockStore()
	s.StoreError = errors.New("boom")
	manager := NewManagerWithStores(s)

	err := manager.Store(&Credential{Backend: "b", Token: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestManagerListPrefersNewest(t *testing.T) {
	a, b := NewMockStore(), NewMockStore()
	old := time.Now().Add(-time.Hour)
	require.NoError(t, a.Store(&Credential{Backend: "x", Token: "old", LastModified: old}))
	require.NoError(t, b.Store(&Credential{Backend: "x", Token: "new", LastModified: time.Now()}))
	require.NoError(t, b.Store(&Credential{Backend: "a", Token: "z", LastModified: time.Now()}))

	creds, err := NewManagerWithStores(a, b).List()
	require.NoError(t, err)
	require.Len(t, creds, 2)
	assert.Equal(t, "a", creds[0].Backend)
	assert.Equal(t, "new", creds[1].Token)
}

func TestManagerDeleteAll(t *testing.T) {
	manager, store := NewMockManager()
	require.NoError(t, manager.Store(&Credential{Backend: "one", Token: "1"}))
	require.NoError(t, manager.Store(&Credential{Backend: "two", Token: "2"}))

	require.NoError(t, manager.DeleteAll())
	assert.Zero(t, store.Count())
	assert.ErrorIs(t, manager.Delete("one"), ErrCredentialsNotFound)
}

func TestSanitizeCredential(t *testing.T) {
	cred := &Credential{Backend: "b", Token: "abcdefghijklmnop"}
	s := SanitizeCredential(cred)
	assert.Equal(t, "abcd...mnop", s.Token)
	assert.Equal(t, "b", s.Backend)
	assert.Equal(t, "********", SanitizeCredential(&Credential{Token: "short"}).Token)
	assert.Nil(t, SanitizeCredential(nil))
}

func TestEncryptedFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.enc")
	store, err := NewEncryptedFileStoreWithPassphrase(path, "test_passphrase_123")
	require.NoError(t, err)

	require.NoError(t, store.Store(&Credential{Backend: "host:1", Token: "secret_token_value"}))
	require.NoError(t, store.Store(&Credential{Backend: "host:2", Token: "second_token"}))
	assert.True(t, store.Exists("host:1"))

	got, err := store.Retrieve("host:1")
	require.NoError(t, err)
	assert.Equal(t, "secret_token_value", got.Token)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, bytes.Contains(content, []byte("secret_token_value")), "file contains plaintext token")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	creds, err := store.List()
	require.NoError(t, err)
	assert.Len(t, creds, 2)

	require.NoError(t, store.Delete("host:1"))
	require.NoError(t, store.Delete("host:2"))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "file should be removed with the last credential")
	assert.ErrorIs(t, store.Delete("host:1"), ErrCredentialsNotFound)
}

func TestEncryptedFileStoreWrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.enc")
	store, err := NewEncryptedFileStoreWithPassphrase(path, "right")
	require.NoError(t, err)
	require.NoError(t, store.Store(&Credential{Backend: "b", Token: "t"}))

	other, err := NewEncryptedFileStoreWithPassphrase(path, "wrong")
	require.NoError(t, err)
	_, err = other.Retrieve("b")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCredentialsNotFound)
}

func TestEncryptedFileStoreGeneratesPassphrase(t *testing.T) {
	t.Setenv(PassphraseEnvVar, "")
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.enc")

	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Store(&Credential{Backend: "b", Token: "t"}))

	_, err = os.Stat(filepath.Join(dir, ".passphrase"))
	require.NoError(t, err)

	reopened, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	got, err := reopened.Retrieve("b")
	require.NoError(t, err)
	assert.Equal(t, "t", got.Token)
}

func TestEnvironmentStore(t *testing.T) {
	store := NewEnvironmentStore()

	t.Setenv(TokenEnvVar, "")
	_, err := store.Retrieve("any")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
	assert.False(t, store.Exists("any"))

	t.Setenv(TokenEnvVar, "env_token")
	cred, err := store.Retrieve("")
	require.NoError(t, err)
	assert.Equal(t, "env_token", cred.Token)
	assert.Equal(t, "default", cred.Backend)
	assert.True(t, store.Exists("any"))

	assert.ErrorIs(t, store.Store(&Credential{}), ErrStoreUnavailable)
	assert.ErrorIs(t, store.Delete("x"), ErrStoreUnavailable)

	manager := NewManagerWithStores(NewMockStore(), store)
	assert.Equal(t, "env_token", manager.Token("http://anything:9"))
}

func TestMockStoreErrorInjection(t *testing.T) {
	store := NewMockStore()
	store.ListError = errors.New("injected error")
	_, err := store.List()
	assert.EqualError(t, err, "injected error")
}
