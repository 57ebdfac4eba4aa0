package slotmap

import (
	"math/rand"
	"testing"
)

type entry struct {
	name string
}

func TestMap(t *testing.T) {
	m := &Map[*entry]{}

	if _, ok := m.Get(1); ok {
		t.Error("Expected miss on empty map")
	}

	e1 := &entry{"a"}
	e2 := &entry{"b"}
	m.Set(1, e1)
	m.Set(2, e2)

	if v, _ := m.Get(1); v != e1 {
		t.Error("Get(1) failed")
	}
	if v, _ := m.Get(2); v != e2 {
		t.Error("Get(2) failed")
	}
	if _, ok := m.Get(3); ok {
		t.Error("Get(3) should miss")
	}

	e3 := &entry{"c"}
	m.Set(1, e3)
	if v, _ := m.Get(1); v != e3 {
		t.Error("Update failed")
	}

	if m.Len() != 2 {
		t.Errorf("Expected len=2, got %d", m.Len())
	}

	m.Clear()
	if m.Len() != 0 {
		t.Error("Clear failed")
	}
	if _, ok := m.Get(1); ok {
		t.Error("Get after clear should miss")
	}
}

func TestMapZeroKey(t *testing.T) {
	m := &Map[*entry]{}

	e := &entry{"zero"}
	m.Set(0, e)

	if v, ok := m.Get(0); !ok || v != e {
		t.Error("Zero key failed")
	}
	if m.Len() != 1 {
		t.Error("Len should be 1")
	}
}

func TestMapInsertIDs(t *testing.T) {
	m := &Map[string]{}

	a := m.Insert("a")
	b := m.Insert("b")
	if a == b {
		t.Fatalf("Insert reused id %d", a)
	}
	m.Delete(a)
	c := m.Insert("c")
	if c == a || c == b {
		t.Fatalf("Insert returned live or recently freed id %d", c)
	}
	if v, _ := m.Get(b); v != "b" {
		t.Errorf("Get(%d) = %q, want b", b, v)
	}
}

func TestMapDelete(t *testing.T) {
	m := &Map[int]{}
	for i := 0; i < 100; i++ {
		m.Set(uint32(i), i)
	}
	for i := 0; i < 100; i += 2 {
		if !m.Delete(uint32(i)) {
			t.Fatalf("Delete(%d) missed", i)
		}
	}
	if m.Delete(0) {
		t.Error("second Delete(0) should miss")
	}
	if m.Len() != 50 {
		t.Fatalf("Expected len=50, got %d", m.Len())
	}
	for i := 0; i < 100; i++ {
		v, ok := m.Get(uint32(i))
		if ok != (i%2 == 1) {
			t.Fatalf("Get(%d) presence = %v", i, ok)
		}
		if ok && v != i {
			t.Fatalf("Get(%d) = %d", i, v)
		}
	}
}

// Random operations checked against a Go map, with a small key space so
// probe chains collide and wrap.
func TestMapRandomOps(t *testing.T) {
	m := &Map[uint32]{}
	ref := make(map[uint32]uint32)
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 200000; i++ {
		k := uint32(rng.Intn(512))
		switch rng.Intn(3) {
		case 0, 1:
			m.Set(k, k*7)
			ref[k] = k * 7
		case 2:
			_, want := ref[k]
			if got := m.Delete(k); got != want {
				t.Fatalf("op %d: Delete(%d) = %v, want %v", i, k, got, want)
			}
			delete(ref, k)
		}
	}

	if m.Len() != len(ref) {
		t.Fatalf("len = %d, want %d", m.Len(), len(ref))
	}
	for k, want := range ref {
		if got, ok := m.Get(k); !ok || got != want {
			t.Fatalf("Get(%d) = %d,%v want %d", k, got, ok, want)
		}
	}
	seen := 0
	m.ForEach(func(k, v uint32) bool {
		if ref[k] != v {
			t.Fatalf("ForEach(%d) = %d, want %d", k, v, ref[k])
		}
		seen++
		return true
	})
	if seen != len(ref) {
		t.Fatalf("ForEach visited %d, want %d", seen, len(ref))
	}
}

func BenchmarkMapGet(b *testing.B) {
	m := &Map[*entry]{}
	for i := 0; i < 64; i++ {
		m.Set(uint32(i), &entry{})
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = m.Get(uint32(i % 64))
	}
}

func BenchmarkGoMapGet(b *testing.B) {
	m := make(map[uint32]*entry)
	for i := 0; i < 64; i++ {
		m[uint32(i)] = &entry{}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = m[uint32(i%64)]
	}
}
