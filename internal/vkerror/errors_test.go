package vkerror

import (
	"errors"
	"testing"

	vk "github.com/vulkan-go/vulkan"
)

func TestNewSuccessIsNil(t *testing.T) {
	if err := New(vk.Success); err != nil {
		t.Fatalf("New(Success) = %v, want nil", err)
	}
}

func TestNewWrapsFailure(t *testing.T) {
	err := New(vk.ErrorDeviceLost)
	if err == nil {
		t.Fatal("New(ErrorDeviceLost) = nil, want error")
	}
	if !errors.Is(err, err) {
		t.Fatal("error does not compare equal to itself")
	}
}

func TestFatalPanicsOnlyWhenNonNil(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Fatal(non-nil) did not panic")
		}
	}()
	Fatal(New(vk.ErrorDeviceLost))
}

func TestFatalNoopOnNil(t *testing.T) {
	Fatal(nil)
}

func TestCheckErrRecovers(t *testing.T) {
	var err error
	func() {
		defer CheckErr(&err)
		panic(errors.New("boom"))
	}()
	if err == nil || err.Error() != "boom" {
		t.Fatalf("CheckErr did not capture panic, got %v", err)
	}
}

func TestRecoverable(t *testing.T) {
	cases := map[vk.Result]bool{
		vk.ErrorOutOfDateKhr:   true,
		vk.Suboptimal:          true,
		vk.ErrorDeviceLost:     false,
		vk.ErrorSurfaceLostKhr: false,
	}
	for ret, want := range cases {
		if got := Recoverable(ret); got != want {
			t.Errorf("Recoverable(%v) = %v, want %v", ret, got, want)
		}
	}
}
