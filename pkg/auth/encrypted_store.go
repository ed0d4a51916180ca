package auth

import (
	"bytes"
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
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize   = 32
	keySize    = 32
	iterations = 100000

	envPassphrase  = "SKEETER_PASSPHRASE"
	passphraseFile = ".passphrase"

	vaultVersion = 1
)

// vaultAAD binds the ciphertext to this file format
var vaultAAD = []byte("skeeterdeleter/credentials/v1")

// EncryptedFileStore implements CredentialStore using a file encrypted with
// AES-GCM under a PBKDF2-derived key. The passphrase comes from
// SKEETER_PASSPHRASE or a generated key file stored next to the credentials.
type EncryptedFileStore struct {
	path   string
	sealer *sealer
	mu     sync.RWMutex
}

// fileEnvelope is the on-disk layout
type fileEnvelope struct {
	Version   int       `json:"version"`
	Salt      string    `json:"salt"`
	Encrypted string    `json:"encrypted"`
	Modified  time.Time `json:"modified"`
}

// accountSet maps normalized handles to accounts
type accountSet map[string]Account

// NewEncryptedFileStore opens the store at path. The file itself is created
// on the first Store.
func NewEncryptedFileStore(path string) (*EncryptedFileStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	passphrase, err := loadPassphrase(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get passphrase: %w", err)
	}

	return &EncryptedFileStore{path: path, sealer: &sealer{passphrase: []byte(passphrase)}}, nil
}

func (e *EncryptedFileStore) Store(account *Account) error {
	if account == nil || account.Handle == "" {
		return ErrInvalidCredentials
	}
	return e.update(func(set accountSet) error {
		set[account.Handle] = *account
		return nil
	})
}

func (e *EncryptedFileStore) Retrieve(handle string) (*Account, error) {
	if handle == "" {
		return nil, ErrInvalidCredentials
	}
	set, err := e.read()
	if err != nil {
		return nil, err
	}
	account, ok := set[handle]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &account, nil
}

// List returns the stored accounts ordered by handle
func (e *EncryptedFileStore) List() ([]*Account, error) {
	set, err := e.read()
	if err != nil {
		return nil, err
	}

	accounts := make([]*Account, 0, len(set))
	for _, account := range set {
		account := account
		accounts = append(accounts, &account)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Handle < accounts[j].Handle })
	return accounts, nil
}

// Delete removes one account. Removing the last one deletes the file.
func (e *EncryptedFileStore) Delete(handle string) error {
	if handle == "" {
		return ErrInvalidCredentials
	}
	return e.update(func(set accountSet) error {
		if _, ok := set[handle]; !ok {
			return ErrCredentialsNotFound
		}
		delete(set, handle)
		return nil
	})
}

func (e *EncryptedFileStore) Exists(handle string) bool {
	_, err := e.Retrieve(handle)
	return err == nil
}

// read returns the decrypted accounts, empty when the file does not exist
func (e *EncryptedFileStore) read() (accountSet, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	set, _, err := e.load()
	return set, err
}

// update loads the accounts, applies fn and writes the result back
// atomically. An empty result removes the file.
func (e *EncryptedFileStore) update(fn func(accountSet) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	set, salt, err := e.load()
	if err != nil {
		return err
	}
	if err := fn(set); err != nil {
		return err
	}

	if len(set) == 0 {
		if err := os.Remove(e.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove credentials file: %w", err)
		}
		return nil
	}
	return e.save(set, salt)
}

func (e *EncryptedFileStore) load() (accountSet, []byte, error) {
	content, err := os.ReadFile(e.path)
	if os.IsNotExist(err) {
		return accountSet{}, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	var envelope fileEnvelope
	if err := json.Unmarshal(content, &envelope); err != nil {
		return nil, nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}
	if envelope.Version != vaultVersion {
		return nil, nil, fmt.Errorf("unsupported credentials file version %d", envelope.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(envelope.Salt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode salt: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(envelope.Encrypted)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode encrypted data: %w", err)
	}

	plaintext, err := e.sealer.open(salt, sealed)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decrypt credentials (wrong passphrase?): %w", err)
	}

	set := accountSet{}
	if err := json.Unmarshal(plaintext, &set); err != nil {
		return nil, nil, fmt.Errorf("failed to parse accounts: %w", err)
	}
	return set, salt, nil
}

func (e *EncryptedFileStore) save(set accountSet, salt []byte) error {
	if len(salt) == 0 {
		salt = make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return fmt.Errorf("failed to generate salt: %w", err)
		}
	}

	plaintext, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("failed to marshal accounts: %w", err)
	}
	sealed, err := e.sealer.seal(salt, plaintext)
	if err != nil {
		return fmt.Errorf("failed to encrypt accounts: %w", err)
	}

	content, err := json.MarshalIndent(fileEnvelope{
		Version:   vaultVersion,
		Salt:      base64.StdEncoding.EncodeToString(salt),
		Encrypted: base64.StdEncoding.EncodeToString(sealed),
		Modified:  time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return err
	}

	tmp := e.path + ".tmp"
	if err := os.WriteFile(tmp, content, 0600); err != nil {
		return fmt.Errorf("failed to write credentials file: %w", err)
	}
	return os.Rename(tmp, e.path)
}

// sealer encrypts with AES-GCM under a key derived from the passphrase and
// salt. The derived key is cached for the last salt seen.
type sealer struct {
	passphrase []byte

	mu   sync.Mutex
	salt []byte
	aead cipher.AEAD
}

func (s *sealer) cipherFor(salt []byte) (cipher.AEAD, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.aead != nil && bytes.Equal(s.salt, salt) {
		return s.aead, nil
	}

	key := pbkdf2.Key(s.passphrase, salt, iterations, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	s.salt = append([]byte(nil), salt...)
	s.aead = aead
	return aead, nil
}

// seal returns nonce || ciphertext
func (s *sealer) seal(salt, plaintext []byte) ([]byte, error) {
	aead, err := s.cipherFor(salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, vaultAAD), nil
}

func (s *sealer) open(salt, sealed []byte) ([]byte, error) {
	aead, err := s.cipherFor(salt)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	return aead.Open(nil, nonce, ciphertext, vaultAAD)
}

// loadPassphrase reads SKEETER_PASSPHRASE, or the key file in dir, creating
// the key file on first use
func loadPassphrase(dir string) (string, error) {
	if pass := os.Getenv(envPassphrase); pass != "" {
		return pass, nil
	}

	path := filepath.Join(dir, passphraseFile)
	if content, err := os.ReadFile(path); err == nil && len(content) > 0 {
		return string(content), nil
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("failed to generate passphrase: %w", err)
	}
	passphrase := base64.URLEncoding.EncodeToString(key)

	if err := os.WriteFile(path, []byte(passphrase), 0600); err != nil {
		return "", fmt.Errorf("failed to save passphrase: %w", err)
	}
	return passphrase, nil
}
