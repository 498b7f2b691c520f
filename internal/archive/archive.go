// Package archive packages a session's generated files into a downloadable
// ZIP archive.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/Iron-Ham/codeloom/internal/errors"
	"github.com/Iron-Ham/codeloom/internal/fstore"
)

// maxNameLength caps how much of the prompt contributes to the archive
// filename.
const maxNameLength = 50

// WriteZip streams a ZIP of every file in the session's subtree to w.
// Entry names are the session-relative paths, so unpacking reproduces the
// generated project layout. A session with no files produces an empty but
// valid archive.
func WriteZip(w io.Writer, store *fstore.Store, sessionID string) error {
	files, err := store.List(sessionID)
	if err != nil {
		return errors.Wrap(err, "failed to list session files")
	}

	zw := zip.NewWriter(w)
	for _, f := range files {
		content, err := store.Read(sessionID, f.Path)
		if err != nil {
			return errors.Wrapf(err, "failed to read %s", f.Path)
		}
		entry, err := zw.Create(f.Path)
		if err != nil {
			return errors.Wrapf(err, "failed to create zip entry %s", f.Path)
		}
		if _, err := entry.Write(content); err != nil {
			return errors.Wrapf(err, "failed to write zip entry %s", f.Path)
		}
	}
	return zw.Close()
}

// Filename derives a download filename from the session's prompt and ID,
// e.g. "Create a todo app" becomes "Create a todo app_1a2b3c4d.zip".
// Characters outside letters, digits, spaces, hyphens, and underscores are
// dropped; an empty result falls back to "generated_project".
func Filename(prompt, sessionID string) string {
	name := prompt
	if len(name) > maxNameLength {
		name = name[:maxNameLength]
	}

	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	clean := strings.TrimSpace(b.String())
	if clean == "" {
		clean = "generated_project"
	}

	shortID := sessionID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}
	return fmt.Sprintf("%s_%s.zip", clean, shortID)
}
