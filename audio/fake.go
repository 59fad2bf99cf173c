package audio

import (
	"sync"
	"time"
)

const fakeBytesPerFrame = 2 // 16-bit mono

// FakeContext stands in for a sound server. With realtime set, started
// captures loop pcm at the capture cadence; otherwise data arrives only
// through FakeCapture.Feed.
type FakeContext struct {
	devices  []DeviceInfo
	pcm      []byte
	realtime bool

	mu       sync.Mutex
	captures []*FakeCapture
}

func NewFakeContext(devices ...DeviceInfo) *FakeContext {
	return &FakeContext{devices: devices}
}

// NewFakeContextFromWAV loops the samples of a 16 kHz mono wave file.
func NewFakeContextFromWAV(path string) (*FakeContext, error) {
	w, err := LoadWAV(path)
	if err != nil {
		return nil, err
	}
	return &FakeContext{pcm: w.Data, realtime: true}, nil
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) { return f.devices, nil }
func (f *FakeContext) Close()                         {}

func (f *FakeContext) NewCapture(device *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	c := &FakeCapture{device: device, pcm: f.pcm, realtime: f.realtime}
	f.mu.Lock()
	f.captures = append(f.captures, c)
	f.mu.Unlock()
	return c, nil
}

// Captures returns every capture opened so far.
func (f *FakeContext) Captures() []*FakeCapture {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeCapture(nil), f.captures...)
}

type FakeCapture struct {
	device   *DeviceInfo
	pcm      []byte
	realtime bool

	mu       sync.Mutex
	cb       DataCallback
	started  bool
	stopCh   chan struct{}
	feedDone chan struct{}
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

func (f *FakeCapture) DeviceName() string {
	if f.device != nil {
		return f.device.Name
	}
	return "fake"
}

// Device is the device the capture was opened with, nil for the default.
func (f *FakeCapture) Device() *DeviceInfo { return f.device }

// Feed delivers one buffer to the callback if the capture is running.
func (f *FakeCapture) Feed(pcm []byte) {
	f.mu.Lock()
	cb, started := f.cb, f.started
	f.mu.Unlock()
	if cb != nil && started {
		cb(pcm, uint32(len(pcm)/fakeBytesPerFrame))
	}
}

func (f *FakeCapture) Start() error {
	f.mu.Lock()
	f.started = true
	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})
	f.mu.Unlock()

	if !f.realtime || len(f.pcm) == 0 {
		close(f.feedDone)
		return nil
	}

	chunkBytes := SampleRate * BufferMillis / 1000 * fakeBytesPerFrame
	interval := time.Duration(BufferMillis) * time.Millisecond
	go func() {
		defer close(f.feedDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		pos := 0
		for {
			select {
			case <-f.stopCh:
				return
			case <-ticker.C:
			}
			end := min(pos+chunkBytes, len(f.pcm))
			chunk := make([]byte, end-pos)
			copy(chunk, f.pcm[pos:end])
			f.Feed(chunk)
			pos = end
			if pos >= len(f.pcm) {
				pos = 0
			}
		}
	}()
	return nil
}

func (f *FakeCapture) Stop() {
	f.mu.Lock()
	if !f.started {
		f.mu.Unlock()
		return
	}
	f.started = false
	close(f.stopCh)
	done := f.feedDone
	f.mu.Unlock()
	<-done
}

func (f *FakeCapture) Close() { f.Stop() }
