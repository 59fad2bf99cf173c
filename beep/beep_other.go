//go:build !linux

package beep

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"micoverlay/log"
)

var (
	malgoCtx *malgo.AllocatedContext
	ctxOnce  sync.Once

	playMu     sync.Mutex
	device     *malgo.Device
	deviceRate int
	deviceChan int

	// Playback state, read from the audio callback.
	playBuf atomic.Pointer[[]byte]
	playPos atomic.Uint32
)

func initContext() {
	var err error
	malgoCtx, err = malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		log.Warnf("sound cue: malgo: %v", err)
		malgoCtx = nil
	}
}

func dataCallback(pOutput, _ []byte, frameCount uint32) {
	buf := playBuf.Load()
	if buf == nil {
		clear(pOutput)
		return
	}

	pos := playPos.Load()
	remaining := uint32(len(*buf)) - pos
	n := min(uint32(len(pOutput)), remaining)
	copy(pOutput[:n], (*buf)[pos:pos+n])
	clear(pOutput[n:])
	playPos.Store(pos + n)
	if pos+n >= uint32(len(*buf)) {
		playBuf.Store(nil)
	}
}

// ensureDevice reopens the playback device when the clip format differs.
func ensureDevice(rate, channels int) error {
	if device != nil && deviceRate == rate && deviceChan == channels {
		return nil
	}
	if device != nil {
		device.Uninit()
		device = nil
	}
	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = uint32(channels)
	cfg.SampleRate = uint32(rate)

	d, err := malgo.InitDevice(malgoCtx.Context, cfg, malgo.DeviceCallbacks{Data: dataCallback})
	if err != nil {
		return err
	}
	device, deviceRate, deviceChan = d, rate, channels
	return nil
}

func play(c *Clip) {
	ctxOnce.Do(initContext)
	if malgoCtx == nil {
		return
	}

	buf := make([]byte, len(c.Samples)*2)
	for i, s := range c.Samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}

	playMu.Lock()
	defer playMu.Unlock()

	if err := ensureDevice(c.SampleRate, c.Channels); err != nil {
		log.Warnf("sound cue: device: %v", err)
		return
	}
	_ = device.Stop()
	playPos.Store(0)
	playBuf.Store(&buf)

	if err := device.Start(); err != nil {
		// Devices can go stale across sleep/wake; reopen once.
		device.Uninit()
		device = nil
		if err := ensureDevice(c.SampleRate, c.Channels); err != nil {
			playBuf.Store(nil)
			return
		}
		if err := device.Start(); err != nil {
			playBuf.Store(nil)
			log.Warnf("sound cue: start: %v", err)
		}
	}
}
