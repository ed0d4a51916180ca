package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"time"

	"skeeterdeleter/pkg/logger"
)

// CurrentVersion is the state file format version
const CurrentVersion = 1

// State is the resume point of the account's traversal
type State struct {
	LastLikesCursor      string    `json:"last_likes_cursor"`
	LastPostsCursor      string    `json:"last_posts_cursor"`
	PagesConsumedThisRun int       `json:"pages_consumed_this_run"`
	UpdatedAt            time.Time `json:"updated_at"`
	Version              int       `json:"version"`
}

// Store persists State to a single JSON file
type Store struct {
	path   string
	logger logger.Logger
	now    func() time.Time
}

// NewStore creates a store for the given file path
func NewStore(path string, log logger.Logger) *Store {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Store{path: path, logger: log, now: time.Now}
}

// NewStoreForHandle creates a store at the default location for handle
func NewStoreForHandle(handle string, log logger.Logger) (*Store, error) {
	path, err := DefaultPath(handle)
	if err != nil {
		return nil, err
	}
	return NewStore(path, log), nil
}

// Path returns the state file location
func (s *Store) Path() string {
	return s.path
}

// Load reads the state. A missing file yields a fresh state.
func (s *Store) Load() (State, error) {
	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.DebugWithFields("No state file, starting fresh", map[string]interface{}{
				"path": s.path,
			})
			return State{Version: CurrentVersion}, nil
		}
		return State{}, fmt.Errorf("failed to open state file: %w", err)
	}
	defer file.Close()

	var st State
	if err := json.NewDecoder(file).Decode(&st); err != nil {
		return State{}, fmt.Errorf("failed to decode state file %s: %w", s.path, err)
	}
	if st.Version == 0 {
		st.Version = CurrentVersion
	}
	if st.Version > CurrentVersion {
		return State{}, fmt.Errorf("state file %s has version %d, newer than supported %d", s.path, st.Version, CurrentVersion)
	}

	s.logger.InfoWithFields("State loaded", map[string]interface{}{
		"likes_cursor": st.LastLikesCursor,
		"posts_cursor": st.LastPostsCursor,
		"updated_at":   st.UpdatedAt,
	})

	return st, nil
}

// Save writes the state atomically: a temporary file is written, synced and
// renamed over the old one, so a crash leaves either version intact.
func (s *Store) Save(st State) error {
	st.UpdatedAt = s.now().UTC()
	st.Version = CurrentVersion

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tempPath := s.path + ".tmp"
	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create temporary state file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(st); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode state: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync state file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close state file: %w", err)
	}

	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	s.logger.DebugWithFields("State saved", map[string]interface{}{
		"likes_cursor": st.LastLikesCursor,
		"posts_cursor": st.LastPostsCursor,
		"pages":        st.PagesConsumedThisRun,
	})

	return nil
}

// ApplyLikesOverride returns st with the likes cursor replaced by a fixed
// one. Nothing is written: the cursor reaches disk with the next Save, so a
// run that fails before completing a page leaves the file as it was. An empty
// cursor leaves st untouched.
func (s *Store) ApplyLikesOverride(st State, cursor string) State {
	if cursor == "" || cursor == st.LastLikesCursor {
		return st
	}

	s.logger.InfoWithFields("Using fixed likes cursor", map[string]interface{}{
		"cursor":   cursor,
		"previous": st.LastLikesCursor,
	})
	st.LastLikesCursor = cursor
	return st
}

// Reset deletes the state file
func (s *Store) Reset() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete state file: %w", err)
	}
	s.logger.InfoWithFields("State reset", map[string]interface{}{"path": s.path})
	return nil
}

// Exists reports whether a state file is present
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeName makes a handle or DID safe to use as a file name
func SanitizeName(name string) string {
	safe := unsafeChars.ReplaceAllString(name, "_")
	if safe == "" || safe == "." || safe == ".." {
		return "_"
	}
	return safe
}

// DefaultPath returns <data dir>/skeeterdeleter/state/<handle>.state.json
func DefaultPath(handle string) (string, error) {
	dataDir, err := DataDirectory()
	if err != nil {
		return "", fmt.Errorf("failed to get data directory: %w", err)
	}
	return filepath.Join(dataDir, "state", SanitizeName(handle)+".state.json"), nil
}

// DataDirectory returns the per-user data directory for the current OS
func DataDirectory() (string, error) {
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support", "skeeterdeleter"), nil
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		return filepath.Join(appData, "skeeterdeleter"), nil
	default:
		if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
			return filepath.Join(xdgDataHome, "skeeterdeleter"), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".local", "share", "skeeterdeleter"), nil
	}
}
