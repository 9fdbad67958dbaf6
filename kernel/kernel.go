// Package kernel owns the process-wide resources every frame shares: the
// APC worker pool, the tile source client and its on-disk cache, and the
// GPU device handle, constructed once at startup and torn down in
// reverse order.
package kernel

import (
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/maptile/apc"
	"github.com/gogpu/maptile/internal/logging"
	"github.com/gogpu/maptile/source"
)

// DeviceHandle provides GPU device access from the host application: the
// kernel receives a device from its host rather than creating one, so the
// same GPU context can be shared with whatever windowing/compute code
// embeds maptile.
type DeviceHandle = gpucontext.DeviceProvider

// NullDeviceHandle is a DeviceHandle with nil GPU objects and no hal
// device, for runs that construct no GPU passes (HalDevice reports false
// for it).
type NullDeviceHandle struct{}

func (NullDeviceHandle) Device() gpucontext.Device   { return nil }
func (NullDeviceHandle) Queue() gpucontext.Queue     { return nil }
func (NullDeviceHandle) Adapter() gpucontext.Adapter { return nil }
func (NullDeviceHandle) SurfaceFormat() gputypes.TextureFormat {
	return gputypes.TextureFormatUndefined
}

var _ DeviceHandle = NullDeviceHandle{}

// Config bundles the construction-time parameters a Kernel needs.
type Config struct {
	Workers           int
	RequestsPerSecond float64
	CacheDir          string
	CacheMaxBytes     int64
	Device            DeviceHandle
}

// Kernel is the top-level owner of the worker pool, the tile fetch
// client (with its disk cache), and the GPU device handle. One Kernel is
// constructed per process; plugins and systems reach its fields through
// the World's resources rather than holding a direct reference where
// possible, but the schedule's Render stage and the demo binary's setup
// need it directly.
type Kernel struct {
	APC    *apc.APC
	Client *source.Client
	Device DeviceHandle
}

// New constructs a Kernel: an on-disk cache (if cfg.CacheDir is set), a
// rate-limited source client wrapping it, and an APC worker pool bound to
// that client.
func New(cfg Config) (*Kernel, error) {
	var cache *source.DiskCache
	if cfg.CacheDir != "" {
		c, err := source.NewDiskCache(cfg.CacheDir, cfg.CacheMaxBytes)
		if err != nil {
			return nil, err
		}
		cache = c
	}

	client := source.NewClient(cfg.RequestsPerSecond, cache)
	env := apc.KernelEnvironment{CacheDir: cfg.CacheDir}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}

	a := apc.New(workers, client, env)
	logging.Logger().Info("kernel: started", "workers", workers, "cache_dir", cfg.CacheDir)

	return &Kernel{APC: a, Client: client, Device: cfg.Device}, nil
}

// Close stops the APC worker pool. The source client and its disk cache
// hold nothing that needs closing, so Close does nothing further with
// them.
func (k *Kernel) Close() {
	if k.APC != nil {
		k.APC.Close()
	}
	logging.Logger().Info("kernel: stopped")
}
