package fsutil

import (
	"errors"
	"io/fs"
	"path/filepath"
	"testing"
)

func TestMemoryFileSystem_CreateTruncates(t *testing.T) {
	m := NewMemoryFileSystem()
	if err := m.WriteFile("a.csv", []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}

	w, err := m.Create("a.csv")
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte("new"))

	data, _ := m.ReadFile("a.csv")
	if string(data) != "new" {
		t.Errorf("got %q, want %q", data, "new")
	}
}

func TestMemoryFileSystem_OpenAppend(t *testing.T) {
	m := NewMemoryFileSystem()
	m.WriteFile("log.csv", []byte("header\n"), 0644)

	w, err := m.OpenAppend("log.csv")
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte("row1\n"))

	// Visible before Close.
	data, _ := m.ReadFile("log.csv")
	if string(data) != "header\nrow1\n" {
		t.Errorf("got %q", data)
	}

	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("late")); !errors.Is(err, fs.ErrClosed) {
		t.Errorf("write after close: got %v, want ErrClosed", err)
	}
	if err := w.Close(); !errors.Is(err, fs.ErrClosed) {
		t.Errorf("double close: got %v", err)
	}
}

func TestMemoryFileSystem_OpenAppendCreates(t *testing.T) {
	m := NewMemoryFileSystem()
	w, _ := m.OpenAppend("new.csv")
	w.Write([]byte("x"))
	if !m.Exists("new.csv") {
		t.Error("OpenAppend should create the file")
	}
}

func TestMemoryFileSystem_ReadNonExistent(t *testing.T) {
	m := NewMemoryFileSystem()
	if _, err := m.ReadFile("missing"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("got %v, want ErrNotExist", err)
	}
}

func TestMemoryFileSystem_Glob(t *testing.T) {
	m := NewMemoryFileSystem()
	for _, name := range []string{"data_2.csv", "data_10.csv", "other.csv", "logs/data_1.csv"} {
		m.WriteFile(name, nil, 0644)
	}

	got, err := m.Glob("data_*.csv")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"data_10.csv", "data_2.csv"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Glob = %v, want %v", got, want)
	}

	got, _ = m.Glob("logs/*.csv")
	if len(got) != 1 || got[0] != "logs/data_1.csv" {
		t.Errorf("Glob(logs) = %v", got)
	}

	if _, err := m.Glob("[bad"); err == nil {
		t.Error("expected pattern error")
	}
}

func TestMemoryFileSystem_MkdirAllAndRemove(t *testing.T) {
	m := NewMemoryFileSystem()
	m.MkdirAll("a/b/c", 0755)
	for _, d := range []string{"a", "a/b", "a/b/c"} {
		if !m.Exists(d) {
			t.Errorf("dir %q missing", d)
		}
	}

	m.WriteFile("a/f", nil, 0644)
	if err := m.Remove("a/f"); err != nil {
		t.Fatal(err)
	}
	if err := m.Remove("a/b/c"); err != nil {
		t.Fatal(err)
	}
	if m.Exists("a/f") || m.Exists("a/b/c") {
		t.Error("removed paths still exist")
	}
	if err := m.Remove("nope"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("got %v, want ErrNotExist", err)
	}
}

func TestMemoryFileSystem_PathCleaning(t *testing.T) {
	m := NewMemoryFileSystem()
	m.WriteFile("./dir/../file.csv", []byte("x"), 0644)
	if !m.Exists("file.csv") {
		t.Error("path should be cleaned")
	}
}

func TestOSFileSystem(t *testing.T) {
	dir := t.TempDir()
	var osfs OSFileSystem
	path := filepath.Join(dir, "sub", "data_1.csv")

	if err := osfs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	w, err := osfs.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte("a\n"))
	w.Close()

	w, err = osfs.OpenAppend(path)
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte("b\n"))
	w.Close()

	data, err := osfs.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "a\nb\n" {
		t.Errorf("got %q", data)
	}

	matches, err := osfs.Glob(filepath.Join(dir, "sub", "data_*.csv"))
	if err != nil || len(matches) != 1 {
		t.Errorf("Glob = %v, %v", matches, err)
	}

	if !osfs.Exists(path) {
		t.Error("file should exist")
	}
	if err := osfs.Remove(path); err != nil {
		t.Fatal(err)
	}
	if osfs.Exists(path) {
		t.Error("file should be removed")
	}
}
