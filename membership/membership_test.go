package membership

import "testing"

func TestMergeConsistent(t *testing.T) {
	a := None.With("arr", 0)
	b := None.With("arr", 0).With("arr.sub", 1)

	merged, ok := Merge(a, b)
	if !ok {
		t.Fatal("expected consistent merge")
	}
	if idx, ok := merged.Index("arr"); !ok || idx != 0 {
		t.Errorf("arr index = %d, %v, want 0, true", idx, ok)
	}
	if idx, ok := merged.Index("arr.sub"); !ok || idx != 1 {
		t.Errorf("arr.sub index = %d, %v, want 1, true", idx, ok)
	}
}

func TestMergeInconsistent(t *testing.T) {
	a := None.With("arr", 0)
	b := None.With("arr", 1)

	if _, ok := Merge(a, b); ok {
		t.Fatal("expected inconsistent merge to fail")
	}
}

func TestMergeEmpty(t *testing.T) {
	a := None
	b := None.With("arr", 2)

	merged, ok := Merge(a, b)
	if !ok {
		t.Fatal("expected merge with empty side to succeed")
	}
	if idx, ok := merged.Index("arr"); !ok || idx != 2 {
		t.Errorf("arr index = %d, %v, want 2, true", idx, ok)
	}
}
