// Package fstore provides per-session file storage rooted under a single
// output directory. Each session owns an isolated subtree, and every path is
// validated so that generated code can never write outside its own sandbox.
package fstore

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Iron-Ham/codeloom/internal/errors"
)

// FileInfo describes a single stored file.
type FileInfo struct {
	// Path is the session-relative path using forward slashes.
	Path string `json:"path"`
	// Size is the file size in bytes.
	Size int64 `json:"size"`
	// ModTime is the last modification time.
	ModTime time.Time `json:"mod_time"`
}

// Store provides sandboxed per-session file storage. It is safe for
// concurrent use without internal locking: atomic temp-and-rename writes
// mean readers always see a complete file, writes to distinct sessions
// never contend, and writes within a session are serialized by the
// pipeline's sequential stage execution.
type Store struct {
	rootDir string
}

// NewStore creates a Store rooted at the given directory.
// The directory will be created if it doesn't exist.
func NewStore(rootDir string) (*Store, error) {
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create output root")
	}
	abs, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve output root")
	}
	return &Store{rootDir: abs}, nil
}

// RootDir returns the absolute output root directory.
func (s *Store) RootDir() string {
	return s.rootDir
}

// SessionDir returns the absolute directory for the given session.
// The directory is not created by this call.
func (s *Store) SessionDir(sessionID string) (string, error) {
	if err := validateSessionID(sessionID); err != nil {
		return "", err
	}
	return filepath.Join(s.rootDir, sessionID), nil
}

// Write stores content at the given session-relative path using an atomic
// temp-file-and-rename write. Parent directories are created as needed.
// Writing to an existing path replaces the previous content entirely.
func (s *Store) Write(sessionID, relPath string, content []byte) error {
	target, err := s.resolve(sessionID, relPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return errors.NewFileError("failed to create parent directory", err).WithPath(relPath)
	}
	if err := atomicWriteFile(target, content, 0644); err != nil {
		return errors.NewFileError("failed to write file", err).WithPath(relPath)
	}
	return nil
}

// Read returns the content stored at the given session-relative path.
func (s *Store) Read(sessionID, relPath string) ([]byte, error) {
	target, err := s.resolve(sessionID, relPath)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFileError("file does not exist", errors.ErrFileNotFound).WithPath(relPath)
		}
		return nil, errors.NewFileError("failed to read file", err).WithPath(relPath)
	}
	return data, nil
}

// Stat returns metadata for the file at the given session-relative path.
func (s *Store) Stat(sessionID, relPath string) (FileInfo, error) {
	target, err := s.resolve(sessionID, relPath)
	if err != nil {
		return FileInfo{}, err
	}

	info, err := os.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return FileInfo{}, errors.NewFileError("file does not exist", errors.ErrFileNotFound).WithPath(relPath)
		}
		return FileInfo{}, errors.NewFileError("failed to stat file", err).WithPath(relPath)
	}
	if info.IsDir() {
		return FileInfo{}, errors.NewFileError("path is a directory", errors.ErrFileNotFound).WithPath(relPath)
	}

	normalized, _ := normalizePath(relPath)
	return FileInfo{Path: normalized, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// List returns every file in the session's subtree as session-relative
// paths with forward slashes, sorted lexicographically. A session with no
// files (or no directory yet) yields an empty list.
func (s *Store) List(sessionID string) ([]FileInfo, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}

	sessionDir := filepath.Join(s.rootDir, sessionID)
	if _, err := os.Stat(sessionDir); os.IsNotExist(err) {
		return []FileInfo{}, nil
	}

	files := make([]FileInfo, 0)
	err := filepath.WalkDir(sessionDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		// Skip temp files left behind by an interrupted atomic write
		if strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(sessionDir, p)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, FileInfo{
			Path:    filepath.ToSlash(rel),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list session files")
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// DeleteSession removes the session's entire subtree. Deleting a session
// that has no directory is not an error.
func (s *Store) DeleteSession(sessionID string) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}

	sessionDir := filepath.Join(s.rootDir, sessionID)
	if err := os.RemoveAll(sessionDir); err != nil {
		return errors.Wrap(err, "failed to delete session files")
	}
	return nil
}

// resolve validates the session ID and relative path, returning the
// absolute on-disk path for the file.
func (s *Store) resolve(sessionID, relPath string) (string, error) {
	if err := validateSessionID(sessionID); err != nil {
		return "", err
	}
	normalized, err := normalizePath(relPath)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.rootDir, sessionID, filepath.FromSlash(normalized)), nil
}

// normalizePath cleans a session-relative path and rejects anything that
// would escape the session root: absolute paths, empty paths, and paths
// whose cleaned form starts with "..".
func normalizePath(relPath string) (string, error) {
	if relPath == "" {
		return "", errors.NewFileError("path must not be empty", errors.ErrInvalidPath).WithPath(relPath)
	}

	// Normalize to forward slashes before cleaning so Windows-style
	// separators cannot smuggle traversal segments through.
	normalized := strings.ReplaceAll(relPath, "\\", "/")
	if strings.HasPrefix(normalized, "/") {
		return "", errors.NewFileError("path must be relative", errors.ErrInvalidPath).WithPath(relPath)
	}

	cleaned := path.Clean(normalized)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.NewFileError("path escapes session root", errors.ErrInvalidPath).WithPath(relPath)
	}
	return cleaned, nil
}

// validateSessionID rejects session IDs that could address another
// session's subtree or the root itself.
func validateSessionID(sessionID string) error {
	if sessionID == "" || strings.ContainsAny(sessionID, "/\\") || sessionID == "." || sessionID == ".." {
		return errors.NewFileError("invalid session id", errors.ErrInvalidPath).WithPath(sessionID)
	}
	return nil
}

// atomicWriteFile writes data to path atomically by writing to a temp file
// in the same directory and renaming it into place.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	// Create temp file in same directory to ensure atomic rename
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}
	tmpPath := tmpFile.Name()

	// Clean up temp file on any error
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	// Write data
	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return errors.Wrap(err, "failed to write temp file")
	}

	// Sync to disk
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return errors.Wrap(err, "failed to sync temp file")
	}

	if err := tmpFile.Close(); err != nil {
		return errors.Wrap(err, "failed to close temp file")
	}

	// Set permissions
	if err := os.Chmod(tmpPath, perm); err != nil {
		return errors.Wrap(err, "failed to set permissions")
	}

	// Atomic rename
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.Wrap(err, "failed to rename temp file")
	}

	success = true
	return nil
}
