package frame

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/crispgfx/crisp/internal/vkerror"
)

// Swapchain owns the presentable images for a surface and can be recreated
// in place when it goes out of date or the surface is resized. Grounded on
// the teacher's CoreSwapchain (swapchain.go), generalized so recreation
// chains through OldSwapchain rather than being folded into the
// constructor only.
type Swapchain struct {
	device      vk.Device
	gpu         vk.PhysicalDevice
	surface     vk.Surface
	handle      vk.Swapchain
	Format      vk.Format
	Extent      vk.Extent2D
	Images      []vk.Image
	ImageViews  []vk.ImageView
}

// Handle returns the underlying vk.Swapchain.
func (s *Swapchain) Handle() vk.Swapchain { return s.handle }

// Create builds a new swapchain for surface, selecting a format (falling
// back to FormatB8g8r8a8Srgb when the surface reports undefined), the FIFO
// present mode (always supported per spec), and negotiating a composite
// alpha mode and pre-transform from the surface's reported capabilities.
// old is chained in as OldSwapchain and destroyed once the new one exists,
// matching CoreSwapchain's recreation sequence.
func Create(device vk.Device, gpu vk.PhysicalDevice, surface vk.Surface, desiredImages uint32, old vk.Swapchain) (*Swapchain, error) {
	var caps vk.SurfaceCapabilities
	if ret := vk.GetPhysicalDeviceSurfaceCapabilities(gpu, surface, &caps); ret != vk.Success {
		return nil, fmt.Errorf("frame: surface capabilities: %w", vkerror.New(ret))
	}
	caps.Deref()
	caps.CurrentExtent.Deref()

	var formatCount uint32
	vk.GetPhysicalDeviceSurfaceFormats(gpu, surface, &formatCount, nil)
	if formatCount == 0 {
		return nil, fmt.Errorf("frame: surface exposes no formats")
	}
	formats := make([]vk.SurfaceFormat, formatCount)
	vk.GetPhysicalDeviceSurfaceFormats(gpu, surface, &formatCount, formats)
	formats[0].Deref()
	format := formats[0]
	if format.Format == vk.FormatUndefined {
		format.Format = vk.FormatB8g8r8a8Srgb
	}

	extent := caps.CurrentExtent
	if extent.Width == vk.MaxUint32 {
		return nil, fmt.Errorf("frame: surface reports indeterminate extent")
	}

	imageCount := desiredImages
	if caps.MaxImageCount > 0 && imageCount > caps.MaxImageCount {
		imageCount = caps.MaxImageCount
	}
	if imageCount < caps.MinImageCount {
		imageCount = caps.MinImageCount
	}

	preTransform := caps.CurrentTransform
	if vk.SurfaceTransformFlagBits(caps.SupportedTransforms)&vk.SurfaceTransformIdentityBit != 0 {
		preTransform = vk.SurfaceTransformIdentityBit
	}

	compositeAlpha := vk.CompositeAlphaOpaqueBit
	for _, candidate := range []vk.CompositeAlphaFlagBits{
		vk.CompositeAlphaOpaqueBit,
		vk.CompositeAlphaPreMultipliedBit,
		vk.CompositeAlphaPostMultipliedBit,
		vk.CompositeAlphaInheritBit,
	} {
		if caps.SupportedCompositeAlpha&vk.CompositeAlphaFlags(candidate) != 0 {
			compositeAlpha = candidate
			break
		}
	}

	var handle vk.Swapchain
	ret := vk.CreateSwapchain(device, &vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          surface,
		MinImageCount:    imageCount,
		ImageFormat:      format.Format,
		ImageColorSpace:  format.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     preTransform,
		CompositeAlpha:   compositeAlpha,
		PresentMode:      vk.PresentModeFifo,
		OldSwapchain:     old,
		Clipped:          vk.True,
	}, nil, &handle)
	if ret != vk.Success {
		return nil, fmt.Errorf("frame: create swapchain: %w", vkerror.New(ret))
	}

	if old != vk.NullSwapchain {
		vk.DestroySwapchain(device, old, nil)
	}

	var count uint32
	vk.GetSwapchainImages(device, handle, &count, nil)
	images := make([]vk.Image, count)
	vk.GetSwapchainImages(device, handle, &count, images)

	views := make([]vk.ImageView, count)
	for i := range images {
		ret := vk.CreateImageView(device, &vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    images[i],
			ViewType: vk.ImageViewType2d,
			Format:   format.Format,
			Components: vk.ComponentMapping{
				R: vk.ComponentSwizzleIdentity,
				G: vk.ComponentSwizzleIdentity,
				B: vk.ComponentSwizzleIdentity,
				A: vk.ComponentSwizzleIdentity,
			},
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LevelCount: 1,
				LayerCount: 1,
			},
		}, nil, &views[i])
		if ret != vk.Success {
			return nil, fmt.Errorf("frame: create swapchain image view %d: %w", i, vkerror.New(ret))
		}
	}

	return &Swapchain{
		device:     device,
		gpu:        gpu,
		surface:    surface,
		handle:     handle,
		Format:     format.Format,
		Extent:     extent,
		Images:     images,
		ImageViews: views,
	}, nil
}

// Recreate tears down sc's image views (but not the swapchain itself, which
// is chained as OldSwapchain) and returns a freshly built Swapchain for the
// current surface extent.
func (sc *Swapchain) Recreate(desiredImages uint32) (*Swapchain, error) {
	for _, v := range sc.ImageViews {
		vk.DestroyImageView(sc.device, v, nil)
	}
	return Create(sc.device, sc.gpu, sc.surface, desiredImages, sc.handle)
}

// Destroy releases the swapchain's image views and the swapchain itself.
func (sc *Swapchain) Destroy() {
	for _, v := range sc.ImageViews {
		vk.DestroyImageView(sc.device, v, nil)
	}
	if sc.handle != vk.NullSwapchain {
		vk.DestroySwapchain(sc.device, sc.handle, nil)
		sc.handle = vk.NullSwapchain
	}
}
