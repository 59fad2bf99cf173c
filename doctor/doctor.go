package doctor

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"micoverlay/audio"
	"micoverlay/config"
	"micoverlay/presence"
	"micoverlay/remote"
	"micoverlay/shutdown"
)

const (
	micSampleTime = 3 * time.Second
	oscWaitTime   = 20 * time.Second
)

// Run executes diagnostic checks and returns an exit code (0=all pass, 1=any fail).
func Run(settingsPath string) int {
	resetTerminal()
	setupInterruptHandler()

	w := os.Stdout
	fmt.Fprintln(w, "micoverlay doctor - system diagnostics")
	fmt.Fprintln(w, "======================================")

	allPass := true

	cfg, ok := checkSettings(w, settingsPath)
	if !ok {
		allPass = false
	}

	actx, err := audio.NewContext()
	if err != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "[2/4] Microphone")
		fmt.Fprintf(w, "  FAIL: cannot connect to audio: %v\n", err)
		allPass = false
	} else {
		if !checkMicrophone(w, actx, &cfg, micSampleTime) {
			allPass = false
		}
		actx.Close()
	}

	if !checkOSC(w, &cfg, oscWaitTime) {
		allPass = false
	}
	if !checkHost(w, presence.New(cfg.HostProcessName, presence.DefaultInterval)) {
		allPass = false
	}

	fmt.Fprintln(w)
	if allPass {
		fmt.Fprintln(w, "All checks passed!")
		return 0
	}
	fmt.Fprintln(w, "Some checks failed. See details above.")
	return 1
}

func setupInterruptHandler() {
	ctx, _ := shutdown.Context(context.Background())
	go func() {
		<-ctx.Done()
		println("\nInterrupted")
		os.Exit(1)
	}()
}

func checkSettings(w io.Writer, path string) (config.Config, bool) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "[1/4] Settings")
	fmt.Fprintf(w, "  file: %s\n", path)

	cfg, res, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(w, "  FAIL: %v\n", err)
		fmt.Fprintln(w, "  (running with defaults until the file is fixed)")
		return cfg, false
	}
	if res.Created {
		fmt.Fprintln(w, "  created with defaults")
	}
	for _, a := range res.Adjusted {
		fmt.Fprintf(w, "  adjusted: %s\n", a)
	}
	fmt.Fprintln(w, "  PASS: settings loaded")
	return cfg, true
}

func checkMicrophone(w io.Writer, actx audio.Context, cfg *config.Config, sample time.Duration) bool {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "[2/4] Microphone")

	devices, err := actx.Devices()
	if err != nil {
		fmt.Fprintf(w, "  FAIL: cannot list devices: %v\n", err)
		return false
	}
	dev := audio.MatchDevice(devices, cfg.AudioDeviceStartsWith)
	switch {
	case dev != nil:
		fmt.Fprintf(w, "  device: %s\n", dev.Name)
	case cfg.AudioDeviceStartsWith != "":
		fmt.Fprintf(w, "  no device starts with %q, using system default\n", cfg.AudioDeviceStartsWith)
	default:
		fmt.Fprintln(w, "  device: system default")
	}

	var meter audio.Meter
	capture, err := audio.StartSampler(actx, dev, &meter)
	if err != nil {
		fmt.Fprintf(w, "  FAIL: %v\n", err)
		return false
	}
	defer capture.Close()

	fmt.Fprintf(w, "  Speak for %.0f seconds", sample.Seconds())
	peak := 0.0
	deadline := time.Now().Add(sample)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for n := 0; time.Now().Before(deadline); n++ {
		<-ticker.C
		peak = max(peak, meter.Level())
		if n%5 == 4 {
			fmt.Fprint(w, ".")
		}
	}
	fmt.Fprintf(w, " peak %.3f\n", peak)

	if peak == 0 {
		fmt.Fprintln(w, "  FAIL: no signal from the microphone")
		return false
	}
	if peak < cfg.MutedMicThreshold {
		fmt.Fprintf(w, "  FAIL: peak below MUTED_MIC_THRESHOLD (%.3f); the muted icon will not react to speech\n", cfg.MutedMicThreshold)
		return false
	}
	fmt.Fprintln(w, "  PASS: microphone level crosses the muted threshold")
	return true
}

func checkOSC(w io.Writer, cfg *config.Config, wait time.Duration) bool {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "[3/4] OSC feed")

	addr := "127.0.0.1:0"
	if cfg.UseLegacyOSC {
		addr = fmt.Sprintf("127.0.0.1:%d", cfg.LegacyOSCListenPort)
	}
	l, err := remote.Listen(addr)
	if err != nil {
		fmt.Fprintf(w, "  FAIL: %v\n", err)
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	go l.Run(ctx)

	if !cfg.UseLegacyOSC {
		q := remote.NewQueryService(config.OverlayName, l.Port())
		if err := q.Start(); err != nil {
			fmt.Fprintf(w, "  FAIL: %v\n", err)
			return false
		}
		defer q.Close(context.Background())
		fmt.Fprintf(w, "  advertised as %s (oscquery http %d)\n", q.Name(), q.Port())
	}
	fmt.Fprintf(w, "  listening on %s; toggle mute in VRChat...\n", l.Addr())

	var events []remote.Event
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for len(events) == 0 {
		select {
		case <-ctx.Done():
			if l.Received() > 0 {
				fmt.Fprintf(w, "  FAIL: %d packets arrived but none carried MuteSelf or Voice\n", l.Received())
			} else {
				fmt.Fprintln(w, "  FAIL: no OSC traffic received")
			}
			return false
		case <-ticker.C:
			events = l.Drain(events)
		}
	}

	kinds := make([]string, 0, len(events))
	for _, ev := range events {
		kinds = append(kinds, ev.Kind.String())
	}
	fmt.Fprintf(w, "  PASS: received %s\n", strings.Join(kinds, ", "))
	return true
}

func checkHost(w io.Writer, t *presence.Tracker) bool {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "[4/4] Host process")

	if !t.IsRunning() {
		fmt.Fprintf(w, "  FAIL: %s is not running; the icon stays hidden until it starts\n", t.Name())
		return false
	}
	fmt.Fprintf(w, "  PASS: %s is running\n", t.Name())
	return true
}
