//go:build linux

package beep

import (
	"github.com/jfreymuth/pulse"

	"micoverlay/log"
)

func play(c *Clip) {
	go playSamples(c)
}

func playSamples(c *Clip) {
	client, err := pulse.NewClient(pulse.ClientApplicationName("micoverlay"))
	if err != nil {
		log.Warnf("sound cue: pulse: %v", err)
		return
	}
	defer client.Close()

	pos := 0
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		if pos >= len(c.Samples) {
			return 0, pulse.EndOfData
		}
		n := copy(buf, c.Samples[pos:])
		pos += n
		return n, nil
	})

	layout := pulse.PlaybackMono
	if c.Channels == 2 {
		layout = pulse.PlaybackStereo
	}
	stream, err := client.NewPlayback(reader,
		layout,
		pulse.PlaybackSampleRate(c.SampleRate),
		pulse.PlaybackLatency(0.1),
		pulse.PlaybackMediaName("mic cue"),
	)
	if err != nil {
		log.Warnf("sound cue: playback: %v", err)
		return
	}
	stream.Start()
	stream.Drain()
	stream.Stop()
	stream.Close()
}
