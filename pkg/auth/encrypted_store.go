package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize   = 32
	keySize    = 32
	iterations = 100000

	// PassphraseEnvVar overrides the generated passphrase file
	PassphraseEnvVar = "IMGSCRAPER_PASSPHRASE"
)

// EncryptedFileStore implements CredentialStore using an AES-GCM encrypted
// file keyed by a PBKDF2-derived passphrase
type EncryptedFileStore struct {
	filepath   string
	passphrase string
	mu         sync.RWMutex
}

type encryptedFile struct {
	Salt      string    `json:"salt"`
	Encrypted string    `json:"encrypted"`
	Version   int       `json:"version"`
	Modified  time.Time `json:"modified"`
}

type vault struct {
	salt        string
	credentials map[string]Credential
}

// NewEncryptedFileStore creates a store at filePath. The passphrase comes
// from IMGSCRAPER_PASSPHRASE, or a generated .passphrase file beside filePath.
func NewEncryptedFileStore(filePath string) (*EncryptedFileStore, error) {
	if err := ensureDir(filePath); err != nil {
		return nil, err
	}

	passphrase, err := loadOrCreatePassphrase(filepath.Join(filepath.Dir(filePath), ".passphrase"))
	if err != nil {
		return nil, fmt.Errorf("failed to get passphrase: %w", err)
	}

	return &EncryptedFileStore{filepath: filePath, passphrase: passphrase}, nil
}

// NewEncryptedFileStoreWithPassphrase creates a store with an explicit
// passphrase
func NewEncryptedFileStoreWithPassphrase(filePath, passphrase string) (*EncryptedFileStore, error) {
	if passphrase == "" {
		return nil, errors.New("passphrase is required")
	}
	if err := ensureDir(filePath); err != nil {
		return nil, err
	}
	return &EncryptedFileStore{filepath: filePath, passphrase: passphrase}, nil
}

func ensureDir(filePath string) error {
	dir := filepath.Dir(filePath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	return nil
}

// Store saves the credential to the encrypted file
func (e *EncryptedFileStore) Store(cred *Credential) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cred == nil || cred.Backend == "" {
		return ErrInvalidCredentials
	}

	v, err := e.load()
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load existing data: %w", err)
	}
	if v == nil {
		v = &vault{credentials: make(map[string]Credential)}
	}

	v.credentials[cred.Backend] = *cred
	return e.save(v)
}

// Retrieve gets the credential for backend from the encrypted file
func (e *EncryptedFileStore) Retrieve(backend string) (*Credential, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if backend == "" {
		return nil, ErrInvalidCredentials
	}

	v, err := e.load()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrCredentialsNotFound
		}
		return nil, fmt.Errorf("failed to load data: %w", err)
	}

	cred, exists := v.credentials[backend]
	if !exists {
		return nil, ErrCredentialsNotFound
	}
	return &cred, nil
}

// List returns all stored credentials
func (e *EncryptedFileStore) List() ([]*Credential, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	v, err := e.load()
	if err != nil {
		if os.IsNotExist(err) {
			return []*Credential{}, nil
		}
		return nil, fmt.Errorf("failed to load data: %w", err)
	}

	creds := make([]*Credential, 0, len(v.credentials))
	for _, cred := range v.credentials {
		c := cred
		creds = append(creds, &c)
	}
	return creds, nil
}

// Delete removes the credential for backend. The file is removed with the
// last credential.
func (e *EncryptedFileStore) Delete(backend string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if backend == "" {
		return ErrInvalidCredentials
	}

	v, err := e.load()
	if err != nil {
		if os.IsNotExist(err) {
			return ErrCredentialsNotFound
		}
		return fmt.Errorf("failed to load data: %w", err)
	}

	if _, exists := v.credentials[backend]; !exists {
		return ErrCredentialsNotFound
	}
	delete(v.credentials, backend)

	if len(v.credentials) == 0 {
		return os.Remove(e.filepath)
	}
	return e.save(v)
}

// Exists checks if a credential exists
func (e *EncryptedFileStore) Exists(backend string) bool {
	cred, err := e.Retrieve(backend)
	return err == nil && cred != nil
}

// load reads and decrypts the data file
func (e *EncryptedFileStore) load() (*vault, error) {
	content, err := os.ReadFile(e.filepath)
	if err != nil {
		return nil, err
	}

	var file encryptedFile
	if err := json.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("failed to parse file: %w", err)
	}

	salt, err := base64.StdEncoding.DecodeString(file.Salt)
	if err != nil {
		return nil, fmt.Errorf("failed to decode salt: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(file.Encrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encrypted data: %w", err)
	}

	key := pbkdf2.Key([]byte(e.passphrase), salt, iterations, keySize, sha256.New)
	plain, err := decrypt(sealed, key)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt data: %w", err)
	}

	var creds map[string]Credential
	if err := json.Unmarshal(plain, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}
	if creds == nil {
		creds = make(map[string]Credential)
	}

	return &vault{salt: file.Salt, credentials: creds}, nil
}

// save encrypts v and writes it through a temporary file
func (e *EncryptedFileStore) save(v *vault) error {
	var salt []byte
	if v.salt == "" {
		salt = make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return fmt.Errorf("failed to generate salt: %w", err)
		}
		v.salt = base64.StdEncoding.EncodeToString(salt)
	} else {
		var err error
		salt, err = base64.StdEncoding.DecodeString(v.salt)
		if err != nil {
			return fmt.Errorf("failed to decode salt: %w", err)
		}
	}

	key := pbkdf2.Key([]byte(e.passphrase), salt, iterations, keySize, sha256.New)

	plain, err := json.Marshal(v.credentials)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	sealed, err := encrypt(plain, key)
	if err != nil {
		return fmt.Errorf("failed to encrypt data: %w", err)
	}

	content, err := json.MarshalIndent(encryptedFile{
		Salt:      v.salt,
		Encrypted: base64.StdEncoding.EncodeToString(sealed),
		Version:   1,
		Modified:  time.Now(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal file data: %w", err)
	}

	tempFile := e.filepath + ".tmp"
	if err := os.WriteFile(tempFile, content, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return os.Rename(tempFile, e.filepath)
}

// loadOrCreatePassphrase returns the env passphrase, the one stored at path,
// or a new random one saved to path
func loadOrCreatePassphrase(path string) (string, error) {
	if pass := os.Getenv(PassphraseEnvVar); pass != "" {
		return pass, nil
	}

	if content, err := os.ReadFile(path); err == nil && len(content) > 0 {
		return string(content), nil
	}

	passphrase, err := generatePassphrase()
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(passphrase), 0600); err != nil {
		return "", fmt.Errorf("failed to save passphrase: %w", err)
	}
	return passphrase, nil
}

func generatePassphrase() (string, error) {
	b := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("failed to generate passphrase: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// encrypt encrypts data using AES-GCM
func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// decrypt decrypts data using AES-GCM
func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
