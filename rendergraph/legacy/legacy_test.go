package legacy

import (
	"testing"

	vk "github.com/vulkan-go/vulkan"
)

func TestExecuteCommandListsRunsInDependencyOrder(t *testing.T) {
	g := New(nil)
	g.AddRenderPass("depthPrepass")
	g.AddRenderPass("lighting")
	g.AddRenderPass("tonemap")

	var order []string
	mustAddDependency(t, g, "depthPrepass", "lighting", func(vk.CommandBuffer, uint32) { order = append(order, "depthPrepass->lighting") })
	mustAddDependency(t, g, "lighting", "tonemap", func(vk.CommandBuffer, uint32) { order = append(order, "lighting->tonemap") })

	if err := g.ExecuteCommandLists(nil, 0); err != nil {
		t.Fatalf("ExecuteCommandLists() error: %v", err)
	}

	want := []string{"depthPrepass->lighting", "lighting->tonemap"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestExecuteCommandListsSkipsDisabledNodes(t *testing.T) {
	g := New(nil)
	g.AddRenderPass("a")
	b := g.AddRenderPass("b")
	b.SetEnabled(false)

	ran := false
	mustAddDependency(t, g, "a", "b", func(vk.CommandBuffer, uint32) { ran = true })

	if err := g.ExecuteCommandLists(nil, 0); err != nil {
		t.Fatalf("ExecuteCommandLists() error: %v", err)
	}
	if ran {
		t.Fatal("dependency callback ran for a disabled destination node")
	}
}

func TestAddDependencyRejectsUnknownPass(t *testing.T) {
	g := New(nil)
	g.AddRenderPass("a")
	if err := g.AddDependency("a", "missing", nil); err == nil {
		t.Fatal("AddDependency accepted an unregistered destination pass")
	}
}

func mustAddDependency(t *testing.T, g *Graph, src, dst string, cb DependencyCallback) {
	t.Helper()
	if err := g.AddDependency(src, dst, cb); err != nil {
		t.Fatalf("AddDependency(%q, %q) error: %v", src, dst, err)
	}
}
