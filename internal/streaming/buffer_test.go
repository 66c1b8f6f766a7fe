package streaming

import (
	"testing"

	vk "github.com/vulkan-go/vulkan"
)

func TestDynamicOffset(t *testing.T) {
	b := &Buffer{perFrameRegion: vk.DeviceSize(256)}
	for v := 0; v < 4; v++ {
		want := uint32(v * 256)
		if got := b.DynamicOffset(v); got != want {
			t.Fatalf("DynamicOffset(%d) = %d, want %d", v, got, want)
		}
	}
}

func TestUpdateStagingRejectsOversizedWrite(t *testing.T) {
	b := &Buffer{perFrameRegion: vk.DeviceSize(16), staging: nil}
	err := b.UpdateStaging(make([]byte, 32), 0)
	if err == nil {
		t.Fatal("UpdateStaging accepted a write larger than the per-frame region")
	}
}

func TestRegistryRegisterUnregister(t *testing.T) {
	r := NewRegistry()
	b := &Buffer{}
	r.Register(b)
	if _, ok := r.buffers[b]; !ok {
		t.Fatal("Register did not add buffer")
	}
	r.Unregister(b)
	if _, ok := r.buffers[b]; ok {
		t.Fatal("Unregister did not remove buffer")
	}
}
