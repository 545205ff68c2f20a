package database

import (
	"context"
	"errors"
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/nikhilbhutani/speech2text/internal/config"
)

func TestEmbeddedMigrations(t *testing.T) {
	files, err := migrationFiles(Migrations())
	if err != nil {
		t.Fatal(err)
	}
	if len(files) == 0 || files[0] != "001_transcription_audit.sql" {
		t.Fatalf("unexpected migrations %v", files)
	}
	body, err := fs.ReadFile(Migrations(), files[0])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), "CREATE TABLE IF NOT EXISTS transcription_audit") {
		t.Fatal("audit table migration missing")
	}
}

func TestMigrationFilesOrder(t *testing.T) {
	fsys := fstest.MapFS{
		"010_b.sql": {Data: []byte("SELECT 1")},
		"002_a.sql": {Data: []byte("SELECT 1")},
		"README.md": {Data: []byte("docs")},
		"001_0.sql": {Data: []byte("SELECT 1")},
	}
	files, err := migrationFiles(fsys)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"001_0.sql", "002_a.sql", "010_b.sql"}
	if strings.Join(files, ",") != strings.Join(want, ",") {
		t.Fatalf("expected %v, got %v", want, files)
	}
}

func TestNewPoolNotConfigured(t *testing.T) {
	_, err := NewPool(context.Background(), config.DatabaseConfig{})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
