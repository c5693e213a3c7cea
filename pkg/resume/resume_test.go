package resume

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		data     string
		want     string
		wantErr  error
	}{
		{"text", "cv.txt", "Jane Doe\nGo developer\n", "Jane Doe\nGo developer", nil},
		{"markdown", "CV.MD", "# Jane Doe\n\n\n\n\n- Go\t\t and  SQL  ", "# Jane Doe\n\n- Go and SQL", nil},
		{"no extension", "resume", "Jane Doe", "Jane Doe", nil},
		{"empty", "cv.txt", " \n\t\n ", "", ErrEmpty},
		{"docx", "cv.docx", "PK...", "", ErrUnsupported},
		{"pdf extension without header", "cv.pdf", "Jane Doe", "", ErrNotPDF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract(tt.filename, []byte(tt.data))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Extract() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Extract() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Extract() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractMalformedPDF(t *testing.T) {
	for _, name := range []string{"cv.pdf", "upload"} {
		_, err := Extract(name, []byte("%PDF-1.4\nthis is not really a pdf"))
		if err == nil {
			t.Errorf("%s: expected error for malformed PDF", name)
		}
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cv.md")
	if err := os.WriteFile(path, []byte("Jane Doe"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil || got != "Jane Doe" {
		t.Errorf("Load() = %q, %v", got, err)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.pdf")); err == nil {
		t.Error("expected error for missing file")
	}
}
