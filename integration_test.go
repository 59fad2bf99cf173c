//go:build integration && !windows

package main_test

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hypebeast/go-osc/osc"

	"micoverlay/audio"
	"micoverlay/config"
	"micoverlay/log"
	"micoverlay/remote"
	"micoverlay/status"
)

var testBinary string

func TestMain(m *testing.M) {
	testBinary = os.Getenv("MICOVERLAY_TEST_BIN")
	if testBinary == "" {
		fmt.Fprintln(os.Stderr, "MICOVERLAY_TEST_BIN not set; build the binary and point the variable at it")
		os.Exit(1)
	}
	os.Exit(m.Run())
}

func writeSilenceWAV(t *testing.T, dir string) string {
	t.Helper()
	pcm := make([]byte, audio.SampleRate*2)
	path := filepath.Join(dir, "silence.wav")
	if err := os.WriteFile(path, audio.EncodeWAV(pcm, audio.SampleRate, 1), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func freePort(t *testing.T, network string) int {
	t.Helper()
	switch network {
	case "udp":
		c, err := net.ListenPacket("udp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		defer c.Close()
		return c.LocalAddr().(*net.UDPAddr).Port
	default:
		l, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		defer l.Close()
		return l.Addr().(*net.TCPAddr).Port
	}
}

type instance struct {
	cmd        *exec.Cmd
	logDir     string
	dir        string
	oscPort    int
	statusAddr string
	out        strings.Builder
}

func startOverlay(t *testing.T) *instance {
	t.Helper()
	dir := t.TempDir()
	in := &instance{
		dir:        dir,
		logDir:     filepath.Join(dir, "logs"),
		oscPort:    freePort(t, "udp"),
		statusAddr: fmt.Sprintf("127.0.0.1:%d", freePort(t, "tcp")),
	}

	cfg := config.Default()
	cfg.UseLegacyOSC = true
	cfg.LegacyOSCListenPort = in.oscPort
	cfg.StatusListenAddr = in.statusAddr
	cfg.HostProcessName = "micoverlay-integration-host"
	settings := filepath.Join(dir, config.SettingsFilename)
	if err := config.Save(settings, cfg); err != nil {
		t.Fatal(err)
	}

	in.cmd = exec.Command(testBinary,
		"-tui=false",
		"-always-show",
		"-logpath", in.logDir,
		"-settings", settings,
		"-mic-wav", writeSilenceWAV(t, dir),
	)
	in.cmd.Stdout = &in.out
	in.cmd.Stderr = &in.out
	if err := in.cmd.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if in.cmd.ProcessState == nil {
			in.cmd.Process.Kill()
			in.cmd.Wait()
		}
	})
	return in
}

func (in *instance) status(t *testing.T) (status.Snapshot, bool) {
	t.Helper()
	resp, err := http.Get("http://" + in.statusAddr + "/status")
	if err != nil {
		return status.Snapshot{}, false
	}
	defer resp.Body.Close()
	var snap status.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return status.Snapshot{}, false
	}
	return snap, snap.State != ""
}

func (in *instance) waitStatus(t *testing.T, what string, ok func(status.Snapshot) bool) status.Snapshot {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if snap, got := in.status(t); got && ok(snap) {
			return snap
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s\noutput:\n%s", what, in.out.String())
	return status.Snapshot{}
}

func (in *instance) stop(t *testing.T) string {
	t.Helper()
	if err := in.cmd.Process.Signal(os.Interrupt); err != nil {
		t.Fatal(err)
	}
	if err := in.cmd.Wait(); err != nil {
		t.Fatalf("micoverlay exited with error: %v\noutput: %s", err, in.out.String())
	}
	data, err := os.ReadFile(filepath.Join(in.logDir, log.DiagnosticsFile))
	if err != nil {
		t.Fatalf("reading diagnostics: %v", err)
	}
	return string(data)
}

func TestStartsMutedAndWritesAssets(t *testing.T) {
	in := startOverlay(t)

	snap := in.waitStatus(t, "first snapshot", func(s status.Snapshot) bool { return s.Alpha > 0 })
	if !snap.Muted || snap.HostRunning || snap.OSCPort != in.oscPort {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	for _, name := range []string{"microphone-muted.png", "microphone-unmuted.png", config.ManifestFilename} {
		if _, err := os.Stat(filepath.Join(in.dir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}

	diag := in.stop(t)
	for _, want := range []string{"session_start", "settings_loaded", "osc_endpoint", "host_presence", "session_end"} {
		if !strings.Contains(diag, want) {
			t.Errorf("diagnostics missing %q", want)
		}
	}
}

func TestMuteToggleOverOSC(t *testing.T) {
	in := startOverlay(t)
	in.waitStatus(t, "startup", func(s status.Snapshot) bool { return true })

	client := osc.NewClient("127.0.0.1", in.oscPort)
	if err := client.Send(osc.NewMessage(remote.MuteSelfAddress, false)); err != nil {
		t.Fatal(err)
	}
	if err := client.Send(osc.NewMessage(remote.VoiceAddress, float32(0.5))); err != nil {
		t.Fatal(err)
	}
	snap := in.waitStatus(t, "unmute", func(s status.Snapshot) bool { return !s.Muted && s.VRCMicLevel == 0.5 })
	if snap.State != "UNMUTED" || snap.Scale < 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	if err := client.Send(osc.NewMessage(remote.MuteSelfAddress, true)); err != nil {
		t.Fatal(err)
	}
	in.waitStatus(t, "mute", func(s status.Snapshot) bool { return s.Muted })

	diag := in.stop(t)
	if strings.Count(diag, "mute_changed") < 2 {
		t.Errorf("expected two mute_changed entries:\n%s", diag)
	}
}
