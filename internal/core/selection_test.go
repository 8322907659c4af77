package core

import "testing"

func TestSelection(t *testing.T) {
	s := NewSelection()
	if !s.Toggle("a") || s.Toggle("a") || s.Len() != 0 {
		t.Fatal("toggle should add then remove")
	}

	s.SelectAll([]ID{"b", "c", "d"})
	if s.Len() != 3 || !s.Has("c") {
		t.Fatalf("select all: %v", s.IDs())
	}

	if dropped := s.Retain([]ID{"c", "z"}); dropped != 2 {
		t.Fatalf("expected 2 dropped, got %d", dropped)
	}
	if ids := s.IDs(); len(ids) != 1 || ids[0] != "c" {
		t.Fatalf("unexpected ids after retain: %v", ids)
	}

	s.Clear()
	if s.Len() != 0 || s.Has("c") {
		t.Fatal("clear should empty the set")
	}
}
