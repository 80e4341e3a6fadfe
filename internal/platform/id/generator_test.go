package id

import "testing"

func TestRandomGenerator_NewID(t *testing.T) {
	gen := NewRandomGenerator()

	first, err := gen.NewID()
	if err != nil {
		t.Fatalf("generate id: %v", err)
	}
	if len(first) != 24 {
		t.Fatalf("unexpected id length: %d", len(first))
	}

	second, err := gen.NewID()
	if err != nil {
		t.Fatalf("generate second id: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct ids, got %q twice", first)
	}
}
