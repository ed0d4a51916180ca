package archive

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"skeeterdeleter/pkg/state"
)

const (
	blobDir = "blobs"

	// snapshotLayout names each run's repo and manifest by its UTC start time
	snapshotLayout = "20060102T150405Z"
)

// blobExtensions maps sniffed content types to file extensions
var blobExtensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"image/bmp":       ".bmp",
	"video/mp4":       ".mp4",
	"video/webm":      ".webm",
	"application/pdf": ".pdf",
}

// Store lays out one account's archive on disk and remembers which blobs
// are already saved
type Store struct {
	dir   string
	blobs map[string]string
	mu    sync.RWMutex
}

// NewStore opens the archive directory for did under root, creating it if
// needed, and indexes the blobs already present
func NewStore(root, did string) (*Store, error) {
	dir := filepath.Join(root, state.SanitizeName(did))
	if err := os.MkdirAll(filepath.Join(dir, blobDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	s := &Store{dir: dir, blobs: make(map[string]string)}
	if err := s.scanExistingBlobs(); err != nil {
		return nil, fmt.Errorf("failed to scan existing blobs: %w", err)
	}
	return s, nil
}

func (s *Store) scanExistingBlobs() error {
	entries, err := os.ReadDir(filepath.Join(s.dir, blobDir))
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasSuffix(name, ".tmp") {
			continue
		}
		cid := strings.TrimSuffix(name, filepath.Ext(name))
		s.blobs[cid] = name
	}
	return nil
}

// Dir returns the account's archive directory
func (s *Store) Dir() string {
	return s.dir
}

// HasBlob reports whether the blob is already archived
func (s *Store) HasBlob(cid string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[cid]
	return ok
}

// BlobFile returns the archived file name of a blob
func (s *Store) BlobFile(cid string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, ok := s.blobs[cid]
	return name, ok
}

// BlobCount returns the number of archived blobs
func (s *Store) BlobCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// RepoFileName is the CAR file of a snapshot
func RepoFileName(snapshot string) string {
	return "repo-" + snapshot + ".car"
}

// ManifestFileName is the manifest of a snapshot
func ManifestFileName(snapshot string) string {
	return "manifest-" + snapshot + ".json"
}

// SnapshotName names a snapshot taken at t. Earlier snapshots are never
// reused: a second snapshot within the same second gets a -2, -3... suffix.
func (s *Store) SnapshotName(t time.Time) string {
	base := t.UTC().Format(snapshotLayout)
	name := base
	for i := 2; s.fileExists(RepoFileName(name)) || s.fileExists(ManifestFileName(name)); i++ {
		name = fmt.Sprintf("%s-%d", base, i)
	}
	return name
}

func (s *Store) fileExists(name string) bool {
	_, err := os.Stat(filepath.Join(s.dir, name))
	return err == nil
}

// SaveRepo writes the repository CAR file of a snapshot and returns its name
func (s *Store) SaveRepo(snapshot string, data []byte) (string, error) {
	name := RepoFileName(snapshot)
	if err := writeFileAtomic(filepath.Join(s.dir, name), data); err != nil {
		return "", err
	}
	return name, nil
}

// SaveBlob writes a blob named after its CID, with an extension sniffed from
// its content. It returns the file name relative to the blob directory.
func (s *Store) SaveBlob(cid string, data []byte) (string, error) {
	name := state.SanitizeName(cid) + ExtensionFor(data)
	if err := writeFileAtomic(filepath.Join(s.dir, blobDir, name), data); err != nil {
		return "", err
	}

	s.mu.Lock()
	s.blobs[cid] = name
	s.mu.Unlock()
	return name, nil
}

// SaveManifest writes the manifest of a snapshot and returns its name
func (s *Store) SaveManifest(snapshot string, data []byte) (string, error) {
	name := ManifestFileName(snapshot)
	if err := writeFileAtomic(filepath.Join(s.dir, name), data); err != nil {
		return "", err
	}
	return name, nil
}

// ExtensionFor picks a file extension from the sniffed content type
func ExtensionFor(data []byte) string {
	contentType := http.DetectContentType(data)
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	if ext, ok := blobExtensions[contentType]; ok {
		return ext
	}
	return ".bin"
}

// writeFileAtomic writes to a temporary file and renames it into place
func writeFileAtomic(path string, data []byte) error {
	tempFile := path + ".tmp"
	out, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	_, err = out.Write(data)
	if err == nil {
		err = out.Sync()
	}
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if closeErr != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Rename(tempFile, path); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}
