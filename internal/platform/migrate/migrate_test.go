package migrate

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestListSQLFiles_SortedAndFiltered(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"002_qr_events.sql", "001_polls.sql", "README.md", "003_X.SQL"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("-- noop"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "nested", "000_skip.sql"), []byte("-- noop"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := listSQLFiles(dir)
	if err != nil {
		t.Fatalf("listSQLFiles: %v", err)
	}
	want := []string{"001_polls.sql", "002_qr_events.sql", "003_X.SQL"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestResolveDir_Explicit(t *testing.T) {
	dir := t.TempDir()
	got, err := resolveDir(dir)
	if err != nil {
		t.Fatalf("resolveDir: %v", err)
	}
	if got != filepath.Clean(dir) {
		t.Fatalf("got %q, want %q", got, dir)
	}

	_, err = resolveDir(filepath.Join(dir, "missing"))
	if !errors.Is(err, ErrDirNotFound) {
		t.Fatalf("expected ErrDirNotFound, got %v", err)
	}
}

func TestRepositoryMigrationsPresent(t *testing.T) {
	files, err := listSQLFiles(filepath.Join("..", "..", "..", "migrations"))
	if err != nil {
		t.Fatalf("listSQLFiles: %v", err)
	}
	if len(files) < 2 || files[0] != "001_polls.sql" {
		t.Fatalf("unexpected migrations: %v", files)
	}
}
