package ring

import (
	"reflect"
	"testing"
)

func TestPushEvictsOldest(t *testing.T) {
	r := New[int](3)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}
	if r.Len() != 3 {
		t.Fatalf("expected len 3, got %d", r.Len())
	}
	if got := r.Items(); !reflect.DeepEqual(got, []int{3, 4, 5}) {
		t.Fatalf("unexpected items %v", got)
	}
	if r.At(0) != 3 || r.At(2) != 5 {
		t.Fatalf("unexpected At values %d %d", r.At(0), r.At(2))
	}
}

func TestPushReportsEviction(t *testing.T) {
	r := New[string](2)
	if r.Push("a") || r.Push("b") {
		t.Fatal("expected no eviction while filling")
	}
	if !r.Push("c") {
		t.Fatal("expected eviction on full ring")
	}
}

func TestLast(t *testing.T) {
	r := New[int](5)
	for i := 1; i <= 7; i++ {
		r.Push(i)
	}
	tests := []struct {
		n    int
		want []int
	}{
		{n: 0, want: nil},
		{n: 2, want: []int{6, 7}},
		{n: 5, want: []int{3, 4, 5, 6, 7}},
		{n: 10, want: []int{3, 4, 5, 6, 7}},
	}
	for _, tt := range tests {
		if got := r.Last(tt.n); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Last(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestRemoveFuncKeepsOrderAcrossWrap(t *testing.T) {
	r := New[string](4)
	for _, v := range []string{"a", "b", "c", "d", "b", "e"} {
		r.Push(v)
	}
	// contents: c d b e (head wrapped)
	removed := r.RemoveFunc(func(s string) bool { return s == "b" || s == "d" })
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	if got := r.Items(); !reflect.DeepEqual(got, []string{"c", "e"}) {
		t.Fatalf("unexpected items %v", got)
	}
	r.Push("f")
	r.Push("g")
	r.Push("h")
	if got := r.Items(); !reflect.DeepEqual(got, []string{"e", "f", "g", "h"}) {
		t.Fatalf("unexpected items after refill %v", got)
	}
}

func TestClear(t *testing.T) {
	r := New[int](2)
	r.Push(1)
	r.Push(2)
	r.Clear()
	if r.Len() != 0 || len(r.Items()) != 0 {
		t.Fatal("expected empty ring after clear")
	}
}
