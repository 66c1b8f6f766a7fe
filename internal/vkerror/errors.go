// Package vkerror implements the error protocol used across the renderer
// core: Vulkan results are wrapped into plain errors, configuration errors
// are returned normally and unwrapped (panicked) only at module boundaries,
// and runtime-fatal conditions go through Fatal so the top of the frame
// loop can recover, log, and terminate with context.
package vkerror

import (
	"fmt"
	"runtime"

	vk "github.com/vulkan-go/vulkan"
)

// resultError wraps a non-success vk.Result with the call site that
// observed it.
type resultError struct {
	ret   vk.Result
	frame runtime.Frame
}

func (e *resultError) Error() string {
	return fmt.Sprintf("vulkan error: %s (%s:%d)", resultString(e.ret), e.frame.File, e.frame.Line)
}

// New wraps ret into an error, capturing the caller's stack frame. It
// returns nil when ret is vk.Success.
func New(ret vk.Result) error {
	if ret == vk.Success {
		return nil
	}
	pc := make([]uintptr, 1)
	n := runtime.Callers(2, pc)
	var frame runtime.Frame
	if n > 0 {
		frames := runtime.CallersFrames(pc[:n])
		frame, _ = frames.Next()
	}
	return &resultError{ret: ret, frame: frame}
}

// IsError reports whether ret represents a Vulkan failure.
func IsError(ret vk.Result) bool {
	return ret != vk.Success
}

func resultString(ret vk.Result) string {
	switch ret {
	case vk.ErrorOutOfHostMemory:
		return "out of host memory"
	case vk.ErrorOutOfDeviceMemory:
		return "out of device memory"
	case vk.ErrorDeviceLost:
		return "device lost"
	case vk.ErrorOutOfDateKhr:
		return "swapchain out of date"
	case vk.Suboptimal:
		return "swapchain suboptimal"
	case vk.ErrorSurfaceLostKhr:
		return "surface lost"
	default:
		return fmt.Sprintf("result code %d", int32(ret))
	}
}

// Fatal panics with err if it is non-nil. It is the boundary used by
// configuration-time call sites (spec: "Configuration errors ... the
// immediate unwrap at call sites treats them as fatal"). Callers that can
// recover (swap-chain out-of-date) must check the error themselves instead
// of calling Fatal.
func Fatal(err error) {
	if err != nil {
		panic(err)
	}
}

// CheckErr recovers a panic into *err, for use in a deferred call at a
// module boundary such as the top of the per-frame loop.
func CheckErr(err *error) {
	if r := recover(); r != nil {
		if e, ok := r.(error); ok {
			*err = e
			return
		}
		*err = fmt.Errorf("%v", r)
	}
}

// Recoverable reports whether ret is a swap-chain condition the frame pool
// can recover from by recreating the swap chain, rather than a condition
// that must be treated as fatal.
func Recoverable(ret vk.Result) bool {
	return ret == vk.ErrorOutOfDateKhr || ret == vk.Suboptimal
}
