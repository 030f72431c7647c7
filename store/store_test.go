package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/chazu/weft/bundle"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "bundles.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGet(t *testing.T) {
	s := newTestStore(t)
	b := bundle.New("alpha", []byte("bytecode alpha"))

	if err := s.Put(b); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get(b.HashString())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "alpha" || got.ID != b.ID {
		t.Errorf("got %+v, want original metadata", got)
	}
	if err := got.Verify(); err != nil {
		t.Errorf("stored bundle fails Verify: %v", err)
	}
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get("no such hash")
	if !errors.Is(err, ErrBundleNotFound) {
		t.Errorf("Get = %v, want ErrBundleNotFound", err)
	}
}

func TestPutIdempotent(t *testing.T) {
	s := newTestStore(t)
	b := bundle.New("alpha", []byte("same content"))

	if err := s.Put(b); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(b); err != nil {
		t.Fatalf("second Put: %v", err)
	}
	entries, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("List has %d entries, want 1", len(entries))
	}
}

func TestHasListDelete(t *testing.T) {
	s := newTestStore(t)
	a := bundle.New("a", []byte("payload a"))
	b := bundle.New("b", []byte("payload b"))

	for _, x := range []*bundle.Bundle{a, b} {
		if err := s.Put(x); err != nil {
			t.Fatal(err)
		}
	}

	ok, err := s.Has(a.HashString())
	if err != nil || !ok {
		t.Errorf("Has(a) = %v, %v", ok, err)
	}

	entries, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Name != "a" || entries[1].Name != "b" {
		t.Errorf("List = %+v", entries)
	}

	if err := s.Delete(a.HashString()); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok, _ := s.Has(a.HashString()); ok {
		t.Error("bundle still present after Delete")
	}
	if err := s.Delete(a.HashString()); !errors.Is(err, ErrBundleNotFound) {
		t.Errorf("second Delete = %v, want ErrBundleNotFound", err)
	}
}
