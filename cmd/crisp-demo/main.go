// Command crisp-demo opens a window, stands up a Vulkan device, and runs
// a single-pass render graph that clears a swapchain-sized color
// attachment to a solid color every frame. The attachment is owned by the
// render graph; it is not copied or blitted into the presented swapchain
// image. Grounded on the teacher's platform.go bootstrap sequence
// (InstanceExtensions -> CreateInstance -> pick GPU -> select queue
// families -> CreateDevice) and application.go's window/surface wiring,
// generalized from the BaseVulkanApp/Platform interface pair into a
// single linear main for this demo.
package main

import (
	"log"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/vulkan-go/vulkan"

	"github.com/crispgfx/crisp/internal/frame"
	"github.com/crispgfx/crisp/internal/vkcore"
	"github.com/crispgfx/crisp/internal/vkerror"
	"github.com/crispgfx/crisp/rendergraph"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
		log.Fatalf("crisp-demo: vulkan loader: %v", err)
	}
	vk.Init()

	if err := glfw.Init(); err != nil {
		log.Fatalf("crisp-demo: glfw init: %v", err)
	}
	defer glfw.Terminate()

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	window, err := glfw.CreateWindow(1280, 720, "crisp-demo", nil, nil)
	if err != nil {
		log.Fatalf("crisp-demo: create window: %v", err)
	}
	defer window.Destroy()

	instance, err := createInstance(window)
	if err != nil {
		log.Fatalf("crisp-demo: %v", err)
	}
	defer vk.DestroyInstance(instance, nil)

	surfacePtr, err := window.CreateWindowSurface(instance, nil)
	if err != nil {
		log.Fatalf("crisp-demo: create window surface: %v", err)
	}
	surface := vk.SurfaceFromPointer(surfacePtr)
	defer vk.DestroySurface(instance, surface, nil)

	gpu, err := vkcore.PickPhysicalDevice(instance, func(vk.PhysicalDevice) bool { return true })
	if err != nil {
		log.Fatalf("crisp-demo: pick gpu: %v", err)
	}

	queueFamilies, err := vkcore.SelectQueueFamilies(gpu, surface)
	if err != nil {
		log.Fatalf("crisp-demo: select queue families: %v", err)
	}

	device, graphicsQueue, err := createDevice(gpu, queueFamilies)
	if err != nil {
		log.Fatalf("crisp-demo: create device: %v", err)
	}
	defer vk.DeviceWaitIdle(device)
	defer vk.DestroyDevice(device, nil)

	var memProps vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(gpu, &memProps)
	memProps.Deref()

	swapchain, err := frame.Create(device, gpu, surface, 3, vk.NullSwapchain)
	if err != nil {
		log.Fatalf("crisp-demo: create swapchain: %v", err)
	}
	defer swapchain.Destroy()

	pool, err := frame.New(device, graphicsQueue, queueFamilies.Graphics, swapchain.Handle(), frame.DefaultDepth)
	if err != nil {
		log.Fatalf("crisp-demo: create frame pool: %v", err)
	}
	pool.Logf = log.Printf
	defer pool.Destroy()

	graph := rendergraph.New(device, gpu, memProps, swapchain.Extent)
	graph.AddPass("clearToColor", func(b *rendergraph.Builder) {
		attachment := b.CreateAttachment("sceneColor", rendergraph.ImageDescription{
			Format:         swapchain.Format,
			SampleCount:    vk.SampleCountFlagBits(vk.SampleCount1Bit),
			LayerCount:     1,
			MipLevelCount:  1,
			SizePolicy:     rendergraph.SizeSwapChainRelative,
			RelativeFactor: 1,
			HasClear:       true,
			ClearValue: vk.ClearValue{
				Color: vk.NewClearValue([]float32{0.02, 0.02, 0.05, 1.0}).Color,
			},
		})
		b.ExportTexture(attachment)
	})

	if err := graph.Compile(); err != nil {
		log.Fatalf("crisp-demo: compile render graph: %v", err)
	}

	for !window.ShouldClose() {
		glfw.PollEvents()

		ctx, err := pool.BeginFrame()
		if frame.IsOutOfDate(err) {
			continue
		}
		if err != nil {
			vkerror.Fatal(err)
		}

		if err := graph.Execute(ctx.CommandBuffer); err != nil {
			vkerror.Fatal(err)
		}

		if err := pool.EndFrame(ctx); err != nil && !frame.IsOutOfDate(err) {
			vkerror.Fatal(err)
		}
	}
}

func createInstance(window *glfw.Window) (vk.Instance, error) {
	requiredExtensions := window.GetRequiredInstanceExtensions()
	actualExtensions, err := vkcore.InstanceExtensions()
	if err != nil {
		return nil, err
	}
	extensions := vkcore.Union(requiredExtensions, actualExtensions)

	var instance vk.Instance
	ret := vk.CreateInstance(&vk.InstanceCreateInfo{
		SType: vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &vk.ApplicationInfo{
			SType:              vk.StructureTypeApplicationInfo,
			ApiVersion:         vk.MakeVersion(1, 1, 0),
			ApplicationVersion: vk.MakeVersion(1, 0, 0),
			PApplicationName:   "crisp-demo\x00",
			PEngineName:        "crisp\x00",
		},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
	}, nil, &instance)
	if err := vkerror.New(ret); err != nil {
		return nil, err
	}
	vk.InitInstance(instance)
	return instance, nil
}

func createDevice(gpu vk.PhysicalDevice, families vkcore.QueueFamilies) (vk.Device, vk.Queue, error) {
	actualExtensions, err := vkcore.DeviceExtensions(gpu)
	if err != nil {
		return nil, nil, err
	}
	required := []string{"VK_KHR_swapchain\x00"}
	extensions := vkcore.Union(required, actualExtensions)

	queueInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: families.Graphics,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}
	if families.HasSeparate {
		queueInfos = append(queueInfos, vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: families.Present,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		})
	}

	var device vk.Device
	ret := vk.CreateDevice(gpu, &vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
	}, nil, &device)
	if err := vkerror.New(ret); err != nil {
		return nil, nil, err
	}

	var queue vk.Queue
	vk.GetDeviceQueue(device, families.Graphics, 0, &queue)
	return device, queue, nil
}
