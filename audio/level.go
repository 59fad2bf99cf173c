package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync/atomic"
)

// PeakLevel returns the largest absolute S16LE sample in pcm scaled to [0,1].
// A trailing odd byte is ignored.
func PeakLevel(pcm []byte) float64 {
	var peak int32
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int32(int16(binary.LittleEndian.Uint16(pcm[i:])))
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	// -32768 would map slightly above 1.
	return math.Min(float64(peak)/32767, 1)
}

// Meter holds the most recent peak level. The capture callback writes it and
// the main loop reads it; only the latest value matters.
type Meter struct {
	bits atomic.Uint64
}

func (m *Meter) Store(level float64) {
	m.bits.Store(math.Float64bits(level))
}

func (m *Meter) Level() float64 {
	return math.Float64frombits(m.bits.Load())
}

// StartSampler opens a capture on device (nil for the default) and keeps
// meter updated with each buffer's peak until the returned device is closed.
func StartSampler(ctx Context, device *DeviceInfo, meter *Meter) (CaptureDevice, error) {
	capture, err := ctx.NewCapture(device, DefaultCaptureConfig())
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	capture.SetCallback(func(data []byte, _ uint32) {
		meter.Store(PeakLevel(data))
	})
	if err := capture.Start(); err != nil {
		capture.Close()
		return nil, fmt.Errorf("start capture: %w", err)
	}
	return capture, nil
}
