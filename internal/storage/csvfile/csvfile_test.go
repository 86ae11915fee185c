package csvfile

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestNewWriterCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "results")
	if _, err := NewWriter(dir); err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		t.Fatalf("results dir not created: %v", err)
	}
}

func TestNewWriterEmptyDir(t *testing.T) {
	if _, err := NewWriter(""); err == nil {
		t.Fatal("NewWriter(\"\") returned nil error")
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open artifact: %v", err)
	}
	defer f.Close()
	recs, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("parse artifact: %v", err)
	}
	return recs
}

/*
TestWriteArtifact verifies the on-disk shape of an artifact: header first,
then one record per row with missing cells empty, floats in shortest
round-trip form, and booleans as true/false.
*/
func TestWriteArtifact(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	cols := []string{"patient_id", "wbc", "wbc_z", "wbc_sig"}
	rows := [][]any{
		{"p1", 1.25, -0.5, false},
		{"p2", nil, 2.0, true},
	}
	n, err := w.WriteArtifact(context.Background(), "GEO_processed", cols, rows)
	if err != nil {
		t.Fatalf("WriteArtifact: %v", err)
	}
	if n != 2 {
		t.Fatalf("n=%d; want 2", n)
	}

	got := readCSV(t, filepath.Join(dir, "GEO_processed.csv"))
	want := [][]string{
		cols,
		{"p1", "1.25", "-0.5", "false"},
		{"p2", "", "2", "true"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("artifact content:\n got %v\nwant %v", got, want)
	}
}

func TestWriteArtifactHeaderOnly(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	n, err := w.WriteArtifact(context.Background(), "empty_processed", []string{"a", "b"}, nil)
	if err != nil {
		t.Fatalf("WriteArtifact: %v", err)
	}
	if n != 0 {
		t.Fatalf("n=%d; want 0", n)
	}

	got := readCSV(t, filepath.Join(dir, "empty_processed.csv"))
	if len(got) != 1 || got[0][0] != "a" {
		t.Fatalf("artifact content = %v; want header only", got)
	}
}

func TestWriteArtifactOverwrites(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	ctx := context.Background()
	if _, err := w.WriteArtifact(ctx, "x", []string{"a"}, [][]any{{"old1"}, {"old2"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := w.WriteArtifact(ctx, "x", []string{"a"}, [][]any{{"new"}}); err != nil {
		t.Fatal(err)
	}

	got := readCSV(t, filepath.Join(dir, "x.csv"))
	if len(got) != 2 || got[1][0] != "new" {
		t.Fatalf("artifact content = %v; want the rewritten rows only", got)
	}
}

func TestWriteArtifactRowLengthMismatch(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	_, err = w.WriteArtifact(context.Background(), "bad", []string{"a", "b"}, [][]any{{"only-one"}})
	if err == nil {
		t.Fatal("WriteArtifact accepted a misaligned row")
	}
}

func TestFormatCell(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"s", "s"},
		{1.5, "1.5"},
		{float64(3), "3"},
		{0.1, "0.1"},
		{true, "true"},
		{false, "false"},
		{int64(7), "7"},
	}
	for _, tc := range tests {
		if got := formatCell(tc.in); got != tc.want {
			t.Errorf("formatCell(%v)=%q; want %q", tc.in, got, tc.want)
		}
	}
}
