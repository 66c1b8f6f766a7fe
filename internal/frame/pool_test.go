package frame

import "testing"

func TestIsOutOfDateSentinel(t *testing.T) {
	if !IsOutOfDate(errOutOfDate) {
		t.Fatal("IsOutOfDate(errOutOfDate) = false, want true")
	}
	if IsOutOfDate(nil) {
		t.Fatal("IsOutOfDate(nil) = true, want false")
	}
}

func TestPoolDepthDefault(t *testing.T) {
	p := &Pool{depth: DefaultDepth}
	if got := p.Depth(); got != DefaultDepth {
		t.Fatalf("Depth() = %d, want %d", got, DefaultDepth)
	}
}

func TestVirtualSlotWraps(t *testing.T) {
	p := &Pool{depth: 3}
	for i, want := range []int{0, 1, 2, 0, 1, 2, 0} {
		p.counter = uint64(i)
		got := int(p.counter % uint64(p.depth))
		if got != want {
			t.Fatalf("frame %d: virtual slot = %d, want %d", i, got, want)
		}
	}
}
