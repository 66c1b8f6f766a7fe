package vkcore

import (
	"reflect"
	"testing"
)

func TestNegotiate(t *testing.T) {
	actual := []string{"VK_KHR_swapchain\x00", "VK_KHR_surface\x00"}
	wanted := []string{"VK_KHR_swapchain", "VK_KHR_missing"}

	negotiated, missing := Negotiate(actual, wanted)

	if missing != 1 {
		t.Fatalf("missing = %d, want 1", missing)
	}
	want := []string{"VK_KHR_swapchain\x00"}
	if !reflect.DeepEqual(negotiated, want) {
		t.Fatalf("negotiated = %v, want %v", negotiated, want)
	}
}

func TestNegotiateDedupes(t *testing.T) {
	actual := []string{"VK_KHR_swapchain\x00"}
	wanted := []string{"VK_KHR_swapchain\x00", "VK_KHR_swapchain"}

	negotiated, missing := Negotiate(actual, wanted)

	if missing != 0 {
		t.Fatalf("missing = %d, want 0", missing)
	}
	if len(negotiated) != 1 {
		t.Fatalf("negotiated = %v, want exactly one entry", negotiated)
	}
}

func TestUnionDedupesPreservingOrder(t *testing.T) {
	required := []string{"a", "b"}
	wanted := []string{"b", "c"}

	got := Union(required, wanted)

	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Union = %v, want %v", got, want)
	}
}
