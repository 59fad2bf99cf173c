// Package audio captures the local microphone and reduces each buffer to a
// peak level.
package audio

import "strings"

const (
	SampleRate = 16000
	Channels   = 1

	// BufferMillis is the capture period; each callback carries about this much audio.
	BufferMillis = 50
)

type DataCallback func(data []byte, frameCount uint32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
}

// DefaultCaptureConfig is 16 kHz mono S16.
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{SampleRate: SampleRate, Channels: Channels}
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
	DeviceName() string
}

// MatchDevice returns the first device whose name starts with prefix.
// The match is case-sensitive. An empty prefix or no match returns nil,
// which selects the system default device.
func MatchDevice(devices []DeviceInfo, prefix string) *DeviceInfo {
	if prefix == "" {
		return nil
	}
	for i := range devices {
		if strings.HasPrefix(devices[i].Name, prefix) {
			return &devices[i]
		}
	}
	return nil
}
