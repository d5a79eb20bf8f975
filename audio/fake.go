package audio

import (
	"sync"
)

// FakeContext is an in-memory backend for tests: capture data is
// pushed explicitly and playback drains synchronously.
type FakeContext struct {
	mu         sync.Mutex
	captures   []*FakeCapture
	outputs    []*FakeOutput
	CaptureErr error // returned by CaptureDevice.Start when set
	OutputErr  error // returned by NewOutput while set
}

// SetOutputErr installs or clears the error NewOutput returns.
func (f *FakeContext) SetOutputErr(err error) {
	f.mu.Lock()
	f.OutputErr = err
	f.mu.Unlock()
}

func NewFakeContext() *FakeContext {
	return &FakeContext{}
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake"}}, nil
}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &FakeCapture{startErr: f.CaptureErr}
	f.captures = append(f.captures, c)
	return c, nil
}

func (f *FakeContext) NewOutput(config OutputConfig) (OutputStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.OutputErr != nil {
		return nil, f.OutputErr
	}
	o := &FakeOutput{}
	f.outputs = append(f.outputs, o)
	return o, nil
}

func (f *FakeContext) Close() {}

func (f *FakeContext) LastOutput() *FakeOutput {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.outputs) == 0 {
		return nil
	}
	return f.outputs[len(f.outputs)-1]
}

func (f *FakeContext) LastCapture() *FakeCapture {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.captures) == 0 {
		return nil
	}
	return f.captures[len(f.captures)-1]
}

type FakeCapture struct {
	mu       sync.Mutex
	cb       DataCallback
	running  bool
	released bool
	startErr error
}

func (f *FakeCapture) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	f.released = false
	return nil
}

func (f *FakeCapture) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
	f.released = true
}

func (f *FakeCapture) Close() {
	f.Stop()
}

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) DeviceName() string { return "fake" }

// Push delivers PCM to the registered callback as if the hardware
// produced it. No-op while stopped.
func (f *FakeCapture) Push(pcm []byte) {
	f.mu.Lock()
	cb := f.cb
	running := f.running
	f.mu.Unlock()
	if cb != nil && running {
		cb(pcm, uint32(len(pcm)/2))
	}
}

func (f *FakeCapture) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// Released reports whether the device has been torn down since it last
// ran; the OS recording indicator analogue.
func (f *FakeCapture) Released() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released
}

// FakeOutput drains the sample source synchronously on Start.
type FakeOutput struct {
	mu     sync.Mutex
	Played []int16
	closed bool
}

func (o *FakeOutput) Start(source SampleSource) error {
	buf := make([]int16, 1024)
	for {
		o.mu.Lock()
		closed := o.closed
		o.mu.Unlock()
		if closed {
			return nil
		}
		n := source(buf)
		if n == 0 {
			return nil
		}
		o.mu.Lock()
		o.Played = append(o.Played, buf[:n]...)
		o.mu.Unlock()
	}
}

func (o *FakeOutput) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
}
