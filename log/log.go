// Package log writes the diagnostics log and hands out component loggers.
package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	appName = "micoverlay"

	DiagnosticsFile = "diagnostics_log.txt"
	EnvLogPath      = "MICOVERLAY_LOG_PATH"
)

var (
	diagLog  = zerolog.Nop()
	diagFile *os.File
	logMu    sync.Mutex
	logReady bool
	pid      int
	dir      string
)

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -logpath flag
	if flagPath != "" {
		return absolute(flagPath)
	}

	// Priority 2: MICOVERLAY_LOG_PATH environment variable
	if envPath := os.Getenv(EnvLogPath); envPath != "" {
		return absolute(envPath)
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func absolute(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

// ParseLevel maps a settings/flag level name to zerolog, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Init opens the diagnostics file. When console is non-nil every line is
// also written there in color.
func Init(level string, console io.Writer) error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error
	diagPath := filepath.Join(dir, DiagnosticsFile)
	diagFile, err = os.OpenFile(diagPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	var out io.Writer = zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	if console != nil {
		out = zerolog.MultiLevelWriter(out, zerolog.ConsoleWriter{
			Out:        console,
			TimeFormat: "15:04:05",
		})
	}
	diagLog = zerolog.New(out).Level(ParseLevel(level)).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	diagLog = zerolog.Nop()
	logReady = false
}

// Logger returns the diagnostics logger, a no-op before Init.
func Logger() zerolog.Logger {
	return diagLog
}

// Component returns a sub-logger tagged with the component name.
func Component(name string) zerolog.Logger {
	return diagLog.With().Str("component", name).Logger()
}

func Debugf(format string, args ...any) {
	if logReady {
		diagLog.Debug().Msg(fmt.Sprintf(format, args...))
	}
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if logReady {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

func SessionStart(version, settingsPath string, tui bool) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("version", version).
		Str("settings", settingsPath).
		Bool("tui", tui).
		Msg("session_start")
}

// SessionStats summarizes one run for the session_end line.
type SessionStats struct {
	Uptime      time.Duration
	Ticks       uint64
	MuteChanges uint64
	Malformed   uint64
}

func SessionEnd(s SessionStats) {
	if !logReady {
		return
	}
	diagLog.Info().
		Dur("uptime", s.Uptime).
		Uint64("ticks", s.Ticks).
		Uint64("mute_changes", s.MuteChanges).
		Uint64("malformed", s.Malformed).
		Msg("session_end")
}

func SettingsLoaded(path string, created, rewrote bool, adjusted []string) {
	if !logReady {
		return
	}
	ev := diagLog.Info().
		Str("path", path).
		Bool("created", created).
		Bool("rewrote", rewrote)
	if len(adjusted) > 0 {
		ev = ev.Strs("adjusted", adjusted)
	}
	ev.Msg("settings_loaded")
}

func DeviceSelected(name, prefix string, matched bool) {
	if !logReady {
		return
	}
	ev := diagLog.Info()
	if prefix != "" && !matched {
		ev = diagLog.Warn()
	}
	ev.Str("device", name).
		Str("prefix", prefix).
		Bool("matched", matched).
		Msg("device_selected")
}

func MuteChanged(state string, changed bool) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("state", state).
		Bool("changed", changed).
		Msg("mute_changed")
}

func HostPresence(name string, running bool) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("process", name).
		Bool("running", running).
		Msg("host_presence")
}

func OSCEndpoint(mode string, port int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("mode", mode).
		Int("port", port).
		Msg("osc_endpoint")
}
