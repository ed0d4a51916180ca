package auth

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Account represents a Bluesky account's login credentials
type Account struct {
	Handle       string    `json:"handle"`
	AppPassword  string    `json:"app_password"`
	PDS          string    `json:"pds,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// CredentialStore is the interface for storing and retrieving credentials
type CredentialStore interface {
	// Store saves credentials for a given account
	Store(account *Account) error

	// Retrieve gets credentials for a specific handle
	Retrieve(handle string) (*Account, error)

	// List returns all stored accounts
	List() ([]*Account, error)

	// Delete removes credentials for a specific handle
	Delete(handle string) error

	// Exists checks if credentials exist for a handle
	Exists(handle string) bool
}

// Manager tries a list of stores in order: keyring, encrypted file, then
// the environment
type Manager struct {
	stores []CredentialStore
	now    func() time.Time
}

// NewManager creates a Manager over the keyring (when it works), the
// encrypted file in ConfigDir and the environment
func NewManager() (*Manager, error) {
	var stores []CredentialStore
	if ks, err := NewKeyringStore(); err == nil {
		stores = append(stores, ks)
	}

	dir, err := ConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}
	fs, err := NewEncryptedFileStore(filepath.Join(dir, "credentials.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, fs, NewEnvironmentStore())

	return NewManagerWithStores(stores...), nil
}

// NewManagerWithStores creates a Manager over explicit stores, tried in order
func NewManagerWithStores(stores ...CredentialStore) *Manager {
	return &Manager{stores: stores, now: time.Now}
}

// Store validates the account and saves it in the first store that accepts
// it
func (m *Manager) Store(account *Account) error {
	if account == nil {
		return ErrInvalidCredentials
	}
	account.Handle = NormalizeHandle(account.Handle)
	if err := account.Validate(); err != nil {
		return err
	}
	account.LastModified = m.now()

	var failures []error
	for _, store := range m.stores {
		err := store.Store(account)
		if err == nil {
			return nil
		}
		failures = append(failures, err)
	}
	if len(failures) == 0 {
		return errors.New("no available credential stores")
	}
	return fmt.Errorf("failed to store credentials: %w", errors.Join(failures...))
}

// Retrieve gets credentials from the first store that has them
func (m *Manager) Retrieve(handle string) (*Account, error) {
	handle = NormalizeHandle(handle)
	for _, store := range m.stores {
		if account, err := store.Retrieve(handle); err == nil && account != nil {
			return account, nil
		}
	}
	return nil, fmt.Errorf("%w for %s", ErrCredentialsNotFound, handle)
}

// RetrieveDefault gets credentials from the environment or, failing that, the
// most recently stored account
func (m *Manager) RetrieveDefault() (*Account, error) {
	for _, store := range m.stores {
		if envStore, ok := store.(*EnvironmentStore); ok {
			if account, err := envStore.Retrieve(""); err == nil && account != nil {
				return account, nil
			}
		}
	}

	accounts, err := m.List()
	if err == nil && len(accounts) > 0 {
		return accounts[0], nil
	}

	return nil, ErrCredentialsNotFound
}

// List returns all stored accounts from all stores, newest first
func (m *Manager) List() ([]*Account, error) {
	accountMap := make(map[string]*Account)

	for _, store := range m.stores {
		accounts, err := store.List()
		if err != nil {
			continue
		}
		for _, account := range accounts {
			// Use the most recently modified version
			if existing, ok := accountMap[account.Handle]; !ok || account.LastModified.After(existing.LastModified) {
				accountMap[account.Handle] = account
			}
		}
	}

	result := make([]*Account, 0, len(accountMap))
	for _, account := range accountMap {
		result = append(result, account)
	}
	sortByModified(result)

	return result, nil
}

// Delete removes the handle from every store holding it
func (m *Manager) Delete(handle string) error {
	handle = NormalizeHandle(handle)

	var deleted bool
	var failures []error
	for _, store := range m.stores {
		err := store.Delete(handle)
		switch {
		case err == nil:
			deleted = true
		case errors.Is(err, ErrCredentialsNotFound), errors.Is(err, ErrStoreUnavailable):
		default:
			failures = append(failures, err)
		}
	}

	if len(failures) > 0 {
		return fmt.Errorf("failed to delete credentials: %w", errors.Join(failures...))
	}
	if !deleted {
		return fmt.Errorf("%w for %s", ErrCredentialsNotFound, handle)
	}
	return nil
}

// DeleteAll removes all stored credentials
func (m *Manager) DeleteAll() error {
	accounts, err := m.List()
	if err != nil {
		return err
	}

	var failures []error
	for _, account := range accounts {
		// accounts that only exist in the environment report not found
		if err := m.Delete(account.Handle); err != nil && !errors.Is(err, ErrCredentialsNotFound) {
			failures = append(failures, err)
		}
	}
	return errors.Join(failures...)
}

func sortByModified(accounts []*Account) {
	sort.SliceStable(accounts, func(i, j int) bool {
		if accounts[i].LastModified.Equal(accounts[j].LastModified) {
			return accounts[i].Handle < accounts[j].Handle
		}
		return accounts[i].LastModified.After(accounts[j].LastModified)
	})
}

// ConfigDir returns the per-user skeeterdeleter directory, creating it if
// needed
func ConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(base, "skeeterdeleter")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return dir, nil
}

// NormalizeHandle strips a leading @ and lowercases the handle
func NormalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(handle), "@"))
}

var appPasswordPattern = regexp.MustCompile(`^[a-z0-9]{4}-[a-z0-9]{4}-[a-z0-9]{4}-[a-z0-9]{4}$`)

// Validate checks the handle, password and PDS of an account
func (a *Account) Validate() error {
	switch {
	case a.Handle == "":
		return fmt.Errorf("%w: handle is required", ErrInvalidCredentials)
	case !strings.Contains(a.Handle, ".") && !strings.HasPrefix(a.Handle, "did:"):
		return fmt.Errorf("%w: %q is neither a domain handle nor a DID", ErrInvalidCredentials, a.Handle)
	case a.AppPassword == "":
		return fmt.Errorf("%w: app password is required", ErrInvalidCredentials)
	}
	if a.PDS != "" {
		u, err := url.Parse(a.PDS)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			return fmt.Errorf("%w: PDS %q is not an http(s) URL", ErrInvalidCredentials, a.PDS)
		}
	}
	return nil
}

// LooksLikeAppPassword reports whether s has the xxxx-xxxx-xxxx-xxxx shape
// Bluesky gives app passwords
func LooksLikeAppPassword(s string) bool {
	return appPasswordPattern.MatchString(s)
}

// SanitizeAccount creates a copy of the account with the password masked
func SanitizeAccount(account *Account) *Account {
	if account == nil {
		return nil
	}

	return &Account{
		Handle:       account.Handle,
		AppPassword:  maskString(account.AppPassword),
		PDS:          account.PDS,
		LastModified: account.LastModified,
	}
}

// maskString masks all but the first 4 characters of a string
func maskString(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + strings.Repeat("*", len(s)-4)
}

// Errors
var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)
