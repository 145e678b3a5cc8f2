package extract

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRead(t *testing.T) {
	in := strings.NewReader("product_id,category,price,color\n1,Books,9.99,red\n2,Food,,\n")
	rows, err := Read(in)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("want 2 rows, got %d", len(rows))
	}
	if rows[0].Get("product_id") != "1" || rows[0].Get("category") != "Books" {
		t.Fatalf("unexpected row: %+v", rows[0])
	}
	if rows[0].Get("color") != "red" {
		t.Fatalf("extra columns must pass through: %+v", rows[0])
	}
	if rows[1].Get("price") != "" {
		t.Fatalf("empty field must read empty, got %q", rows[1].Get("price"))
	}
	if rows[0].Line != 2 || rows[1].Line != 3 {
		t.Fatalf("line numbers must count from the file start: %d, %d", rows[0].Line, rows[1].Line)
	}
}

func TestRead_RaggedRowsTolerated(t *testing.T) {
	in := strings.NewReader("a,b,c\n1,2\n1,2,3,4\n")
	rows, err := Read(in)
	if err != nil {
		t.Fatalf("ragged rows must not fail extraction: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("want 2 rows, got %d", len(rows))
	}
	if rows[0].Get("c") != "" {
		t.Fatalf("short row must leave missing fields empty")
	}
}

func TestRead_EmptyInput(t *testing.T) {
	if _, err := Read(strings.NewReader("")); err == nil {
		t.Fatalf("empty input must error")
	}
}

func TestReadFile_Missing(t *testing.T) {
	if _, err := ReadFile(filepath.Join(t.TempDir(), "nope.csv")); err == nil {
		t.Fatalf("missing file must error")
	}
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.csv")
	if err := os.WriteFile(path, []byte("k,v\nx,1\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	rows, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(rows) != 1 || rows[0].Get("k") != "x" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}
