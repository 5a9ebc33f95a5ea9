package iox

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type spyCloser struct{ closed bool }

func (s *spyCloser) Close() error { s.closed = true; return errors.New("ignored") }

func TestDiscardClose(t *testing.T) {
	s := &spyCloser{}
	DiscardClose(s)
	if !s.closed {
		t.Fatal("Close was not called")
	}
}

func TestCloseFunc(t *testing.T) {
	s := &spyCloser{}
	fn := CloseFunc(s)
	if s.closed {
		t.Fatal("Close called before invoking returned func")
	}
	fn()
	if !s.closed {
		t.Fatal("Close was not called")
	}
}

func TestDiscardErr(t *testing.T) {
	called := false
	DiscardErr(func() error {
		called = true
		return errors.New("ignored")
	})
	if !called {
		t.Fatal("fn was not called")
	}
}

func TestReadInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	if err := os.WriteFile(path, []byte(`{"streams":[]}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	data, err := ReadInput(path)
	if err != nil {
		t.Fatalf("ReadInput: %v", err)
	}
	if string(data) != `{"streams":[]}` {
		t.Errorf("data = %q", data)
	}

	if _, err := ReadInput(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestOpenInput_StdinIsNotClosed(t *testing.T) {
	r, err := OpenInput("-")
	if err != nil {
		t.Fatalf("OpenInput: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if _, err := os.Stdin.Stat(); err != nil {
		t.Errorf("stdin closed: %v", err)
	}
}
