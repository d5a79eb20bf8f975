//go:build !linux

package audio

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

type malgoContext struct {
	ctx *malgo.AllocatedContext
}

func NewContext() (Context, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, err
	}
	return &malgoContext{ctx: ctx}, nil
}

func (m *malgoContext) Devices() ([]DeviceInfo, error) {
	devices, err := m.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("malgo devices: %w", err)
	}
	var result []DeviceInfo
	for _, d := range devices {
		result = append(result, DeviceInfo{
			ID:   hex.EncodeToString(d.ID.Pointer()[:]),
			Name: d.Name(),
		})
	}
	return result, nil
}

func (m *malgoContext) NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error) {
	return &malgoCapture{ctx: m.ctx, device: device, config: config}, nil
}

func (m *malgoContext) Close() {
	m.ctx.Uninit()
	m.ctx.Free()
}

type malgoCapture struct {
	ctx      *malgo.AllocatedContext
	device   *DeviceInfo
	config   CaptureConfig
	callback atomic.Pointer[DataCallback]

	mu  sync.Mutex
	dev *malgo.Device
}

func (c *malgoCapture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dev != nil {
		return nil
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = c.config.Channels
	deviceConfig.SampleRate = c.config.SampleRate

	if c.device != nil {
		idBytes, err := hex.DecodeString(c.device.ID)
		if err != nil {
			return fmt.Errorf("invalid device ID: %w", err)
		}
		var devID malgo.DeviceID
		copy(devID[:], idBytes)
		deviceConfig.Capture.DeviceID = devID.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, data []byte, frameCount uint32) {
			cb := c.callback.Load()
			if cb != nil {
				(*cb)(data, frameCount)
			}
		},
	}

	dev, err := malgo.InitDevice(c.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return fmt.Errorf("malgo capture init: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return fmt.Errorf("malgo capture start: %w", err)
	}
	c.dev = dev
	return nil
}

func (c *malgoCapture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dev != nil {
		c.dev.Uninit()
		c.dev = nil
	}
}

func (c *malgoCapture) Close() {
	c.Stop()
}

func (c *malgoCapture) SetCallback(cb DataCallback) {
	c.callback.Store(&cb)
}

func (c *malgoCapture) ClearCallback() {
	c.callback.Store(nil)
}

func (c *malgoCapture) DeviceName() string {
	if c.device != nil {
		return c.device.Name
	}
	return "system default"
}

func (m *malgoContext) NewOutput(config OutputConfig) (OutputStream, error) {
	return &malgoOutput{ctx: m.ctx, config: config}, nil
}

type malgoOutput struct {
	ctx    *malgo.AllocatedContext
	config OutputConfig

	mu   sync.Mutex
	dev  *malgo.Device
	done chan struct{}
	once sync.Once
}

func (o *malgoOutput) Start(source SampleSource) error {
	o.mu.Lock()
	if o.dev != nil {
		o.mu.Unlock()
		return fmt.Errorf("output already started")
	}
	done := make(chan struct{})
	o.done = done

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = o.config.Channels
	deviceConfig.SampleRate = o.config.SampleRate

	samples := make([]int16, 0, 4096)
	callbacks := malgo.DeviceCallbacks{
		Data: func(out, _ []byte, frameCount uint32) {
			need := int(frameCount * o.config.Channels)
			if cap(samples) < need {
				samples = make([]int16, need)
			}
			samples = samples[:need]
			n := source(samples)
			if n == 0 {
				o.once.Do(func() { close(done) })
			}
			for i := 0; i < need; i++ {
				var s int16
				if i < n {
					s = samples[i]
				}
				binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
			}
		},
	}

	dev, err := malgo.InitDevice(o.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		o.mu.Unlock()
		return fmt.Errorf("malgo playback init: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		o.mu.Unlock()
		return fmt.Errorf("malgo playback start: %w", err)
	}
	o.dev = dev
	o.mu.Unlock()

	// Blocks until the source is exhausted or Close tears the device
	// down.
	<-done

	o.mu.Lock()
	if o.dev == dev {
		dev.Uninit()
		o.dev = nil
	}
	o.mu.Unlock()
	return nil
}

func (o *malgoOutput) Close() {
	o.mu.Lock()
	dev := o.dev
	done := o.done
	o.dev = nil
	o.mu.Unlock()

	if dev != nil {
		dev.Uninit()
	}
	if done != nil {
		o.once.Do(func() { close(done) })
	}
}
