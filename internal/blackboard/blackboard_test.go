package blackboard

import "testing"

type forwardLightingData struct {
	HDRImage   int
	DepthImage int
}

func TestPutGetRoundTrip(t *testing.T) {
	b := New(nil)
	Put(b, forwardLightingData{HDRImage: 1, DepthImage: 2})

	got, ok := Get[forwardLightingData](b)
	if !ok {
		t.Fatal("Get did not find a value that was Put")
	}
	if got.HDRImage != 1 || got.DepthImage != 2 {
		t.Fatalf("got = %+v, want HDRImage=1 DepthImage=2", got)
	}
}

func TestGetMissingReturnsFalse(t *testing.T) {
	b := New(nil)
	_, ok := Get[forwardLightingData](b)
	if ok {
		t.Fatal("Get found a value that was never Put")
	}
}

func TestGetFallsBackToParent(t *testing.T) {
	parent := New(nil)
	Put(parent, forwardLightingData{HDRImage: 9})
	child := New(parent)

	got, ok := Get[forwardLightingData](child)
	if !ok || got.HDRImage != 9 {
		t.Fatalf("child did not fall back to parent, got=%+v ok=%v", got, ok)
	}
	if !child.HasNext() {
		t.Fatal("HasNext() = false, want true for a child with a parent")
	}
}

func TestChildOverridesParent(t *testing.T) {
	parent := New(nil)
	Put(parent, forwardLightingData{HDRImage: 1})
	child := New(parent)
	Put(child, forwardLightingData{HDRImage: 2})

	got, _ := Get[forwardLightingData](child)
	if got.HDRImage != 2 {
		t.Fatalf("child value = %d, want 2 (child should shadow parent)", got.HDRImage)
	}
}
