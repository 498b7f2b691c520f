package archive

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"

	"github.com/Iron-Ham/codeloom/internal/fstore"
)

func TestWriteZip(t *testing.T) {
	store, err := fstore.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	written := map[string]string{
		"app.py":        "print('hello')",
		"static/app.js": "console.log('hi')",
	}
	for path, content := range written {
		if err := store.Write("sess-1", path, []byte(content)); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	var buf bytes.Buffer
	if err := WriteZip(&buf, store, "sess-1"); err != nil {
		t.Fatalf("WriteZip failed: %v", err)
	}

	r, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("zip is not readable: %v", err)
	}
	if len(r.File) != len(written) {
		t.Fatalf("zip has %d entries, want %d", len(r.File), len(written))
	}

	for _, f := range r.File {
		want, ok := written[f.Name]
		if !ok {
			t.Errorf("unexpected zip entry %q", f.Name)
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("failed to open entry %q: %v", f.Name, err)
		}
		got, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("failed to read entry %q: %v", f.Name, err)
		}
		if string(got) != want {
			t.Errorf("entry %q = %q, want %q", f.Name, got, want)
		}
	}
}

func TestWriteZipEmptySession(t *testing.T) {
	store, err := fstore.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteZip(&buf, store, "never-written"); err != nil {
		t.Fatalf("WriteZip failed: %v", err)
	}

	r, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("empty zip should still be valid: %v", err)
	}
	if len(r.File) != 0 {
		t.Errorf("zip has %d entries, want 0", len(r.File))
	}
}

func TestFilename(t *testing.T) {
	tests := []struct {
		name      string
		prompt    string
		sessionID string
		expected  string
	}{
		{
			name:      "plain prompt",
			prompt:    "Create a todo app",
			sessionID: "1a2b3c4d-5e6f",
			expected:  "Create a todo app_1a2b3c4d.zip",
		},
		{
			name:      "special characters dropped",
			prompt:    "build: an app! (v2)",
			sessionID: "abcdefgh1234",
			expected:  "build an app v2_abcdefgh.zip",
		},
		{
			name:      "empty prompt falls back",
			prompt:    "!!!",
			sessionID: "abcdefgh",
			expected:  "generated_project_abcdefgh.zip",
		},
		{
			name:      "short session id",
			prompt:    "app",
			sessionID: "ab",
			expected:  "app_ab.zip",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Filename(tt.prompt, tt.sessionID); got != tt.expected {
				t.Errorf("Filename = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestFilenameTruncatesLongPrompts(t *testing.T) {
	long := ""
	for i := 0; i < 20; i++ {
		long += "abcdefghij"
	}

	got := Filename(long, "12345678")
	want := long[:50] + "_12345678.zip"
	if got != want {
		t.Errorf("Filename = %q, want %q", got, want)
	}
}
