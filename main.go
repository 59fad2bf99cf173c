package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"micoverlay/audio"
	"micoverlay/beep"
	"micoverlay/config"
	"micoverlay/doctor"
	"micoverlay/engine"
	"micoverlay/log"
	"micoverlay/metrics"
	"micoverlay/overlay"
	"micoverlay/presence"
	"micoverlay/remote"
	"micoverlay/shutdown"
	"micoverlay/status"
)

var version = "dev"

const manifestDescription = "Shows the VRChat microphone state as a head-locked icon"

var (
	shutdownOnce sync.Once
	startedAt    = time.Now()
)

func main() {
	os.Exit(run())
}

func initCrashLog() {
	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
	debug.SetCrashOutput(crashFile, debug.CrashOptions{})
}

func defaultSettingsPath() string {
	exe, err := os.Executable()
	if err != nil {
		return config.SettingsFilename
	}
	return filepath.Join(filepath.Dir(exe), config.SettingsFilename)
}

func deviceLineText(dev *audio.DeviceInfo) string {
	if dev == nil {
		return "mic: system default"
	}
	return "mic: " + dev.Name
}

func gracefulShutdown() {
	shutdownOnce.Do(func() {
		c := metrics.Snapshot()
		log.SessionEnd(log.SessionStats{
			Uptime:      time.Since(startedAt),
			Ticks:       c.Ticks,
			MuteChanges: c.MuteChanges,
			Malformed:   c.Malformed,
		})
		log.Close()
		tuiMu.Lock()
		p := tuiProgram
		tuiMu.Unlock()
		if p != nil {
			p.Quit()
		}
	})
}

func run() int {
	settingsFlag := flag.String("settings", "", "Settings file (default: settings.json next to the executable)")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	logLevelFlag := flag.String("loglevel", "", "Override LOG_LEVEL (debug, info, warn, error)")
	tuiFlag := flag.Bool("tui", true, "Run with terminal UI")
	alwaysShowFlag := flag.Bool("always-show", false, "Show the icon even when the host process is not running")
	setupFlag := flag.Bool("setup", false, "Select microphone device and save it to the settings file")
	doctorFlag := flag.Bool("doctor", false, "Run system diagnostics and exit")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	micWAVFlag := flag.String("mic-wav", "", "Loop a 16 kHz mono WAV file instead of capturing the microphone")
	profileFlag := flag.String("profile", "", "Enable pprof profiling server (e.g., :6060 or localhost:6060)")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("micoverlay %s\n", version)
		return 0
	}

	// Resolve log directory early
	logPath, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		return 1
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}
	initCrashLog()

	settingsPath := *settingsFlag
	if settingsPath == "" {
		settingsPath = defaultSettingsPath()
	}
	if abs, err := filepath.Abs(settingsPath); err == nil {
		settingsPath = abs
	}
	baseDir := filepath.Dir(settingsPath)

	if *doctorFlag {
		return doctor.Run(settingsPath)
	}

	if *profileFlag != "" {
		go func() {
			fmt.Fprintf(os.Stderr, "pprof server listening on http://%s/debug/pprof/\n", *profileFlag)
			if err := http.ListenAndServe(*profileFlag, nil); err != nil {
				fmt.Fprintf(os.Stderr, "pprof server error: %v\n", err)
			}
		}()
	}

	cfg, loaded, cfgErr := config.Load(settingsPath)
	if cfgErr != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", cfgErr)
	}

	level := cfg.LogLevel
	if *logLevelFlag != "" {
		level = *logLevelFlag
	}
	var console io.Writer
	if !*tuiFlag {
		console = os.Stderr
	}
	if err := log.Init(level, console); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	log.SessionStart(version, settingsPath, *tuiFlag)
	if cfgErr != nil {
		log.Errorf("settings unusable, running with defaults: %v", cfgErr)
	} else {
		log.SettingsLoaded(settingsPath, loaded.Created, loaded.Rewrote, loaded.Adjusted)
	}

	ctx, stop := shutdown.Context(context.Background())
	defer stop()
	defer gracefulShutdown()

	writeAssets(&cfg, baseDir)

	// Microphone
	var actx audio.Context
	if *micWAVFlag != "" {
		var fake *audio.FakeContext
		if fake, err = audio.NewFakeContextFromWAV(*micWAVFlag); err == nil {
			actx = fake
		}
	} else {
		actx, err = audio.NewContext()
	}
	if err != nil {
		log.Errorf("audio context init error: %v", err)
		fmt.Printf("Warning: no microphone access (%v); muted activity will not show\n", err)
	}

	meter := &audio.Meter{}
	deviceLine := "mic: unavailable"
	if actx != nil {
		defer actx.Close()
		if *setupFlag {
			setupDevice(actx, &cfg, settingsPath)
		}
		capture, dev := startMic(actx, &cfg, meter)
		if capture != nil {
			defer capture.Close()
			deviceLine = deviceLineText(dev)
		}
	}

	// OSC feed
	listenAddr := "127.0.0.1:0"
	if cfg.UseLegacyOSC {
		listenAddr = fmt.Sprintf("127.0.0.1:%d", cfg.LegacyOSCListenPort)
	}
	listener, err := remote.Listen(listenAddr)
	if err != nil {
		log.Errorf("osc listen error: %v", err)
		fmt.Printf("Error: cannot receive OSC: %v\n", err)
		return 1
	}
	defer listener.Close()
	go func() {
		if err := listener.Run(ctx); err != nil {
			log.Errorf("osc receiver stopped: %v", err)
		}
	}()

	modeLine := fmt.Sprintf("osc: legacy on %s", listener.Addr())
	if cfg.UseLegacyOSC {
		log.OSCEndpoint("legacy", listener.Port())
	} else {
		query := remote.NewQueryService(config.OverlayName, listener.Port())
		if err := query.Start(); err != nil {
			log.Warnf("oscquery unavailable: %v", err)
		} else {
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				query.Close(closeCtx)
			}()
		}
		log.OSCEndpoint("oscquery", listener.Port())
		modeLine = fmt.Sprintf("osc: oscquery %s on %s", query.Name(), listener.Addr())
	}

	// Host presence
	tracker := presence.New(cfg.HostProcessName, time.Duration(cfg.ProcessCheckInterval*float64(time.Second)))
	tracker.OnChange(metrics.HostRunning)

	icon, err := newIcon(&cfg, baseDir)
	if err != nil {
		log.Errorf("overlay init error: %v", err)
		fmt.Printf("Error initializing overlay: %v\n", err)
		return 1
	}

	cues := beep.NewPlayer(
		config.AssetPath(baseDir, cfg.FilenameSFXMicMuted),
		config.AssetPath(baseDir, cfg.FilenameSFXMicUnmuted),
		cfg.CustomMicSFXVolume,
		cfg.UseCustomMicSFX,
	)

	d := &driver{
		cfg:        &cfg,
		engine:     engine.New(&cfg),
		icon:       icon,
		events:     listener,
		level:      meter,
		host:       tracker,
		cues:       cues,
		alwaysShow: *alwaysShowFlag,
		oscPort:    listener.Port(),
	}

	var publishers []func(status.Snapshot)
	if cfg.StatusListenAddr != "" {
		srv := status.NewServer(log.Component("status"))
		go func() {
			if err := srv.ListenAndServe(ctx, cfg.StatusListenAddr); err != nil {
				log.Errorf("status server: %v", err)
			}
		}()
		publishers = append(publishers, srv.Publish)
	}

	var tuiDone chan struct{}
	if *tuiFlag {
		tuiMu.Lock()
		tuiProgram = NewTUIProgram(cfg.HostProcessName)
		tuiMu.Unlock()

		tuiCtx, cancel := context.WithCancel(ctx)
		ctx = tuiCtx
		tuiDone = make(chan struct{})
		go func() {
			defer close(tuiDone)
			if _, err := tuiProgram.Run(); err != nil {
				log.Errorf("TUI error: %v", err)
			}
			cancel()
		}()
		sendTUI(DeviceLineMsg{Text: deviceLine})
		sendTUI(ModeLineMsg{Text: modeLine})
		publishers = append(publishers, throttle(tuiFrameInterval, func(s status.Snapshot) {
			sendTUI(SnapshotMsg{Snapshot: s})
		}))
	} else {
		fmt.Println(deviceLine)
		fmt.Println(modeLine)
		d.title = os.Stdout
	}
	if len(publishers) > 0 {
		d.publish = func(s status.Snapshot) {
			for _, p := range publishers {
				p(s)
			}
		}
	}

	log.Info("main loop started")
	d.run(ctx)
	log.Info("main loop stopped")

	if tuiDone != nil {
		tuiProgram.Quit()
		<-tuiDone
	}
	return 0
}

// writeAssets drops the built-in icons and the VR manifest next to the
// settings file so a fresh install has something to show.
func writeAssets(cfg *config.Config, baseDir string) {
	def := config.Default()
	for _, a := range []struct {
		name  string
		muted bool
	}{
		{cfg.FilenameImgMicMuted, true},
		{cfg.FilenameImgMicUnmuted, false},
	} {
		if a.name != def.FilenameImgMicMuted && a.name != def.FilenameImgMicUnmuted {
			continue
		}
		path := config.AssetPath(baseDir, a.name)
		written, err := overlay.WriteDefaultIcon(path, a.muted)
		if err != nil {
			log.Warnf("default icon %s: %v", path, err)
		} else if written {
			log.Infof("wrote default icon %s", path)
		}
	}

	exe, err := os.Executable()
	if err != nil {
		log.Warnf("manifest skipped: %v", err)
		return
	}
	m := overlay.NewManifest(config.ApplicationKey, config.OverlayName, manifestDescription, exe, runtime.GOOS)
	if err := overlay.WriteManifest(config.AssetPath(baseDir, config.ManifestFilename), m); err != nil {
		log.Warnf("manifest: %v", err)
	}
}

func setupDevice(actx audio.Context, cfg *config.Config, settingsPath string) {
	dev, err := audio.SelectDevice(actx, cfg.AudioDeviceStartsWith)
	if errors.Is(err, audio.ErrSelectionCancelled) {
		fmt.Println("Keeping current device")
		return
	}
	if err != nil {
		log.Warnf("device selection failed: %v", err)
		fmt.Printf("Warning: device selection failed: %v\n", err)
		return
	}

	cfg.AudioDeviceStartsWith = ""
	if dev != nil {
		cfg.AudioDeviceStartsWith = dev.Name
	}
	if err := config.Save(settingsPath, *cfg); err != nil {
		log.Warnf("saving device choice: %v", err)
		fmt.Printf("Warning: could not save device choice: %v\n", err)
	}
}

// startMic prints the device list, opens the configured device and falls
// back to the system default when that fails.
func startMic(actx audio.Context, cfg *config.Config, meter *audio.Meter) (audio.CaptureDevice, *audio.DeviceInfo) {
	devices, err := actx.Devices()
	if err != nil {
		log.Warnf("listing devices: %v", err)
	}
	dev := audio.MatchDevice(devices, cfg.AudioDeviceStartsWith)
	if len(devices) > 0 {
		fmt.Println("Input devices:")
		for i := range devices {
			mark := " "
			if dev != nil && devices[i].ID == dev.ID {
				mark = "✓"
			}
			fmt.Printf("  %s %s\n", mark, devices[i].Name)
		}
	}
	name := "system default"
	if dev != nil {
		name = dev.Name
	}
	log.DeviceSelected(name, cfg.AudioDeviceStartsWith, dev != nil)

	capture, err := audio.StartSampler(actx, dev, meter)
	if err != nil && dev != nil {
		log.Warnf("capture on %s failed, using default: %v", dev.Name, err)
		dev = nil
		capture, err = audio.StartSampler(actx, nil, meter)
	}
	if err != nil {
		log.Errorf("capture device init error: %v", err)
		fmt.Printf("Warning: microphone capture failed: %v\n", err)
		return nil, nil
	}
	return capture, dev
}

func newIcon(cfg *config.Config, baseDir string) (*overlay.Icon, error) {
	tint := func(key, hex string) overlay.Color {
		c, err := overlay.ParseTint(hex)
		if err != nil {
			log.Warnf("%s: %v", key, err)
		}
		return c
	}

	offset := overlay.Vec3{X: cfg.IconOffsetX, Y: cfg.IconOffsetY, Z: cfg.IconOffsetZ}
	if cfg.IconRandomizedOffset {
		offset = overlay.RandomizeOffset(offset, cfg.IconSize, rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())))
	}

	presenter := overlay.NewLogPresenter(log.Component("overlay"))
	return overlay.NewIcon(presenter, overlay.IconConfig{
		Key:            config.OverlayKey,
		Name:           config.OverlayName,
		Offset:         offset,
		Width:          cfg.IconSize,
		AlwaysOnTop:    cfg.IconAlwaysOnTop,
		MutedTexture:   config.AssetPath(baseDir, cfg.FilenameImgMicMuted),
		UnmutedTexture: config.AssetPath(baseDir, cfg.FilenameImgMicUnmuted),
		MutedTint:      tint("ICON_TINT_MUTED", cfg.IconTintMuted),
		UnmutedTint:    tint("ICON_TINT_UNMUTED", cfg.IconTintUnmuted),
	}, log.Component("overlay"))
}
