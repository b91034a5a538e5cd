package db

import "testing"

func TestIndexBasics(t *testing.T) {
	idx := NewIndex[string, int](0)

	if _, ok := idx.Get("a"); ok {
		t.Fatalf("expected empty index to miss")
	}

	idx.Insert("a", 1)
	idx.Insert("b", 2)
	if v, ok := idx.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %d, %v; want 1, true", v, ok)
	}
	if idx.Len() != 2 {
		t.Errorf("Len() = %d, want 2", idx.Len())
	}

	idx.Delete("a")
	if _, ok := idx.Get("a"); ok {
		t.Errorf("expected a to be deleted")
	}
	if idx.Len() != 1 {
		t.Errorf("Len() after delete = %d, want 1", idx.Len())
	}

	seen := make(map[string]int)
	idx.ForEach(func(k string, v int) { seen[k] = v })
	if len(seen) != 1 || seen["b"] != 2 {
		t.Errorf("ForEach produced %v, want map[b:2]", seen)
	}

	idx.Clear()
	if idx.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", idx.Len())
	}
}

func TestIndexChecksumKey(t *testing.T) {
	idx := NewIndex[Checksum, string](0)
	var c1, c2 Checksum
	c1[0] = 1
	c2[0] = 2

	idx.Insert(c1, "one")
	idx.Insert(c2, "two")

	if v, _ := idx.Get(c1); v != "one" {
		t.Errorf("Get(c1) = %q, want one", v)
	}
	if v, _ := idx.Get(c2); v != "two" {
		t.Errorf("Get(c2) = %q, want two", v)
	}
}
