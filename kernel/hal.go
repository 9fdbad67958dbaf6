package kernel

import "github.com/gogpu/wgpu/hal"

// halProvider is the duck-typed interface used to pull a hal.Device and
// hal.Queue out of a gpucontext.DeviceProvider implementation.
// gpucontext.Device itself is an opaque handle; the host application's
// DeviceHandle implementation additionally exposes HalDevice/HalQueue
// when direct pass and pipeline construction is needed, which
// rendergraph.CreatePipelines and the graph_runner system require.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// HalDevice extracts the hal.Device and hal.Queue backing h, or false if h
// does not expose them (e.g. NullDeviceHandle, used for headless runs with
// no GPU pass construction).
func HalDevice(h DeviceHandle) (hal.Device, hal.Queue, bool) {
	hp, ok := h.(halProvider)
	if !ok {
		return nil, nil, false
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, nil, false
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, nil, false
	}
	return device, queue, true
}
