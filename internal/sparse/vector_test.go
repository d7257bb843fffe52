package sparse

import (
	"math"
	"testing"
)

func TestGetAbsentIsZero(t *testing.T) {
	v := New()
	if got := v.Get(42); got != 0 {
		t.Errorf("Get on absent bucket = %v, want 0", got)
	}
}

func TestAddAccumulates(t *testing.T) {
	v := New()
	v.Add(7, 1)
	v.Add(7, 2.5)
	if got := v.Get(7); got != 3.5 {
		t.Errorf("Get(7) = %v, want 3.5", got)
	}
}

func TestBucketsSorted(t *testing.T) {
	v := Vector{9: 1, 1: 1, 5: 1}
	got := v.Buckets()
	want := []uint64{1, 5, 9}
	if len(got) != len(want) {
		t.Fatalf("Buckets() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Buckets() = %v, want %v", got, want)
		}
	}
}

func TestScaleDropsZeroProducts(t *testing.T) {
	tf := Vector{1: 2, 2: 3, 3: 1}
	idf := Vector{1: 1.5, 3: 0} // bucket 2 absent, bucket 3 explicit zero
	out := tf.Scale(idf)

	if got := out.Get(1); got != 3 {
		t.Errorf("out[1] = %v, want 3", got)
	}
	if _, ok := out[2]; ok {
		t.Error("bucket 2 scaled by absent weight should be dropped, not stored")
	}
	if _, ok := out[3]; ok {
		t.Error("bucket 3 scaled by zero weight should be dropped, not stored")
	}
	if len(out) != 1 {
		t.Errorf("scaled vector has %d entries, want 1", len(out))
	}
}

func TestScaleDoesNotMutateReceiver(t *testing.T) {
	tf := Vector{1: 2}
	_ = tf.Scale(Vector{1: 10})
	if got := tf.Get(1); got != 2 {
		t.Errorf("receiver mutated: tf[1] = %v, want 2", got)
	}
}

func TestDotRestrictedToReceiverBuckets(t *testing.T) {
	q := Vector{1: 2, 4: 1}
	doc := Vector{1: 3, 2: 100, 3: 100}
	if got, want := q.Dot(doc), 6.0; got != want {
		t.Errorf("Dot = %v, want %v (buckets outside the query must not contribute)", got, want)
	}
}

func TestDotEmpty(t *testing.T) {
	if got := New().Dot(Vector{1: 5}); got != 0 {
		t.Errorf("empty.Dot = %v, want 0", got)
	}
	if got := (Vector{1: 5}).Dot(New()); got != 0 {
		t.Errorf("Dot(empty) = %v, want 0", got)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	v := Vector{1: 1}
	c := v.Clone()
	c.Add(1, 1)
	c.Add(2, 1)
	if v.Get(1) != 1 || v.Get(2) != 0 {
		t.Errorf("clone mutation leaked into original: %v", v)
	}
}

func TestDotCommutesOnSharedSupport(t *testing.T) {
	a := Vector{1: 2, 2: 3}
	b := Vector{1: 5, 2: 7}
	if d1, d2 := a.Dot(b), b.Dot(a); math.Abs(d1-d2) > 1e-12 {
		t.Errorf("Dot not symmetric on shared support: %v vs %v", d1, d2)
	}
}
