// Package state saves and resumes the traversal position of an account.
//
// A state file records the last likes cursor and the last posts cursor that
// were fully processed, so the next run continues where the previous one
// stopped. It is written after every completed page.
//
// State files are stored per handle in platform-specific data directories:
//   - Linux: ~/.local/share/skeeterdeleter/state/
//   - macOS: ~/Library/Application Support/skeeterdeleter/state/
//   - Windows: %APPDATA%/skeeterdeleter/state/
//
// Files are written atomically (temp file, fsync, rename) and carry a version
// number. A file written by a newer version is refused rather than guessed at.
package state
