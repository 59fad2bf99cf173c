// Package config holds the overlay's tunables and the settings file that stores them.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	SettingsFilename = "settings.json"
	ManifestFilename = "micoverlay.vrmanifest"

	ApplicationKey = "one.raz.vrcmicoverlay"
	OverlayKey     = "one.raz.vrcmicoverlay.mic"
	OverlayName    = "VRCMicOverlay"

	MuteSelfParameterPath = "/avatar/parameters/MuteSelf"
	VoiceParameterPath    = "/avatar/parameters/Voice"

	DefaultTint = "#FFFFFF"
)

var tintPattern = regexp.MustCompile(`^#([0-9A-Fa-f]{3}|[0-9A-Fa-f]{6})$`)

// Config is the flat settings record. Keys keep the upper-snake names used by
// existing settings files.
type Config struct {
	IconMutedMaxAlpha   float64 `json:"ICON_MUTED_MAX_ALPHA" yaml:"ICON_MUTED_MAX_ALPHA" validate:"gte=0,lte=1"`
	IconMutedMinAlpha   float64 `json:"ICON_MUTED_MIN_ALPHA" yaml:"ICON_MUTED_MIN_ALPHA" validate:"gte=0,lte=1"`
	IconUnmutedMaxAlpha float64 `json:"ICON_UNMUTED_MAX_ALPHA" yaml:"ICON_UNMUTED_MAX_ALPHA" validate:"gte=0,lte=1"`
	IconUnmutedMinAlpha float64 `json:"ICON_UNMUTED_MIN_ALPHA" yaml:"ICON_UNMUTED_MIN_ALPHA" validate:"gte=0,lte=1"`

	UseCustomMicSFX    bool    `json:"USE_CUSTOM_MIC_SFX" yaml:"USE_CUSTOM_MIC_SFX"`
	CustomMicSFXVolume float64 `json:"CUSTOM_MIC_SFX_VOLUME" yaml:"CUSTOM_MIC_SFX_VOLUME" validate:"gte=0,lte=1"`

	// The remote application stops sending its voice parameter while muted,
	// so muted activity is read from a local device instead.
	AudioDeviceStartsWith string  `json:"AUDIO_DEVICE_STARTS_WITH" yaml:"AUDIO_DEVICE_STARTS_WITH"`
	MutedMicThreshold     float64 `json:"MUTED_MIC_THRESHOLD" yaml:"MUTED_MIC_THRESHOLD" validate:"gte=0,lte=1"`

	IconChangeScaleFactor float64 `json:"ICON_CHANGE_SCALE_FACTOR" yaml:"ICON_CHANGE_SCALE_FACTOR" validate:"gte=0.1,lte=10"`

	IconSize             float64 `json:"ICON_SIZE" yaml:"ICON_SIZE" validate:"gte=0.001,lte=10"`
	IconOffsetX          float64 `json:"ICON_OFFSET_X" yaml:"ICON_OFFSET_X" validate:"gte=-10,lte=10"`
	IconOffsetY          float64 `json:"ICON_OFFSET_Y" yaml:"ICON_OFFSET_Y" validate:"gte=-10,lte=10"`
	IconOffsetZ          float64 `json:"ICON_OFFSET_Z" yaml:"ICON_OFFSET_Z" validate:"gte=-10,lte=10"`
	IconRandomizedOffset bool    `json:"ICON_RANDOMIZED_OFFSET" yaml:"ICON_RANDOMIZED_OFFSET"`
	IconAlwaysOnTop      bool    `json:"ICON_ALWAYS_ON_TOP" yaml:"ICON_ALWAYS_ON_TOP"`
	IconTintMuted        string  `json:"ICON_TINT_MUTED" yaml:"ICON_TINT_MUTED" validate:"tint"`
	IconTintUnmuted      string  `json:"ICON_TINT_UNMUTED" yaml:"ICON_TINT_UNMUTED" validate:"tint"`

	RestartFadeTimerOnStateChange bool    `json:"RESTART_FADE_TIMER_ON_STATE_CHANGE" yaml:"RESTART_FADE_TIMER_ON_STATE_CHANGE"`
	MicMutedFadeStart             float64 `json:"MIC_MUTED_FADE_START" yaml:"MIC_MUTED_FADE_START" validate:"gte=0,lte=3600"`
	MicMutedFadePeriod            float64 `json:"MIC_MUTED_FADE_PERIOD" yaml:"MIC_MUTED_FADE_PERIOD" validate:"gte=0.001,lte=3600"`
	MicUnmutedFadeStart           float64 `json:"MIC_UNMUTED_FADE_START" yaml:"MIC_UNMUTED_FADE_START" validate:"gte=0,lte=3600"`
	MicUnmutedFadePeriod          float64 `json:"MIC_UNMUTED_FADE_PERIOD" yaml:"MIC_UNMUTED_FADE_PERIOD" validate:"gte=0.001,lte=3600"`
	IconUnfadeTime                float64 `json:"ICON_UNFADE_TIME" yaml:"ICON_UNFADE_TIME" validate:"gte=0.001,lte=3600"`

	FilenameSFXMicUnmuted string `json:"FILENAME_SFX_MIC_UNMUTED" yaml:"FILENAME_SFX_MIC_UNMUTED"`
	FilenameSFXMicMuted   string `json:"FILENAME_SFX_MIC_MUTED" yaml:"FILENAME_SFX_MIC_MUTED"`
	FilenameImgMicUnmuted string `json:"FILENAME_IMG_MIC_UNMUTED" yaml:"FILENAME_IMG_MIC_UNMUTED"`
	FilenameImgMicMuted   string `json:"FILENAME_IMG_MIC_MUTED" yaml:"FILENAME_IMG_MIC_MUTED"`

	UseLegacyOSC        bool `json:"USE_LEGACY_OSC" yaml:"USE_LEGACY_OSC"`
	LegacyOSCListenPort int  `json:"LEGACY_OSC_LISTEN_PORT" yaml:"LEGACY_OSC_LISTEN_PORT" validate:"gte=1,lte=65535"`

	HostProcessName      string  `json:"HOST_PROCESS_NAME" yaml:"HOST_PROCESS_NAME" validate:"required"`
	ProcessCheckInterval float64 `json:"PROCESS_CHECK_INTERVAL" yaml:"PROCESS_CHECK_INTERVAL" validate:"gte=0.5,lte=600"`
	DisplayFrequency     float64 `json:"DISPLAY_FREQUENCY" yaml:"DISPLAY_FREQUENCY" validate:"gte=10,lte=1000"`
	StatusListenAddr     string  `json:"STATUS_LISTEN_ADDR" yaml:"STATUS_LISTEN_ADDR" validate:"omitempty,hostname_port"`
	LogLevel             string  `json:"LOG_LEVEL" yaml:"LOG_LEVEL" validate:"oneof=debug info warn error"`
}

// Default returns a fully-populated Config.
func Default() Config {
	return Config{
		IconMutedMaxAlpha:   0.50,
		IconMutedMinAlpha:   0.00,
		IconUnmutedMaxAlpha: 0.75,
		IconUnmutedMinAlpha: 0.05,

		UseCustomMicSFX:    false,
		CustomMicSFXVolume: 0.65,

		AudioDeviceStartsWith: "",
		MutedMicThreshold:     0.1,

		IconChangeScaleFactor: 1.25,

		IconSize:        0.05,
		IconOffsetX:     -0.37,
		IconOffsetY:     -0.26,
		IconOffsetZ:     -0.92,
		IconTintMuted:   DefaultTint,
		IconTintUnmuted: DefaultTint,

		RestartFadeTimerOnStateChange: true,
		MicMutedFadeStart:             1.0,
		MicMutedFadePeriod:            2.0,
		MicUnmutedFadeStart:           0.3,
		MicUnmutedFadePeriod:          1.0,
		IconUnfadeTime:                0.05,

		FilenameSFXMicUnmuted: "sfx-unmute.wav",
		FilenameSFXMicMuted:   "sfx-mute.wav",
		FilenameImgMicUnmuted: "microphone-unmuted.png",
		FilenameImgMicMuted:   "microphone-muted.png",

		UseLegacyOSC:        false,
		LegacyOSCListenPort: 9001,

		HostProcessName:      "VRChat",
		ProcessCheckInterval: 5.0,
		DisplayFrequency:     90,
		StatusListenAddr:     "",
		LogLevel:             "info",
	}
}

// LoadResult describes what Load had to do besides decoding.
type LoadResult struct {
	Created  bool     // no file existed; defaults were written
	Rewrote  bool     // file was valid but re-saved to add missing keys
	Adjusted []string // fields clamped or replaced by defaults
}

// Load reads the settings file at path. A missing file is created with
// defaults. A file that cannot be read or decoded yields Default() together
// with the error; the file is left untouched so the user can fix it.
func Load(path string) (Config, LoadResult, error) {
	var res LoadResult
	if path == "" {
		return Default(), res, errors.New("settings path is empty")
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		if err := Save(path, cfg); err != nil {
			return cfg, res, err
		}
		res.Created = true
		return cfg, res, nil
	}
	if err != nil {
		return Default(), res, fmt.Errorf("read settings: %w", err)
	}

	cfg := Default()
	if err := decode(path, data, &cfg); err != nil {
		return Default(), res, err
	}

	res.Adjusted = cfg.Sanitize()
	res.Adjusted = append(res.Adjusted, cfg.ResolveAssets(filepath.Dir(path))...)

	encoded, err := encode(path, cfg)
	if err == nil && !bytes.Equal(bytes.TrimSpace(encoded), bytes.TrimSpace(data)) {
		if err := os.WriteFile(path, encoded, 0o644); err != nil {
			return cfg, res, fmt.Errorf("write settings: %w", err)
		}
		res.Rewrote = true
	}

	return cfg, res, nil
}

// Save writes cfg to path, creating parent directories as needed.
func Save(path string, cfg Config) error {
	data, err := encode(path, cfg)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create settings directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func decode(path string, data []byte, cfg *Config) error {
	if isYAML(path) {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return fmt.Errorf("decode settings yaml: %w", err)
		}
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("decode settings json: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("decode settings json: trailing data after settings object")
	}
	return nil
}

func encode(path string, cfg Config) ([]byte, error) {
	if isYAML(path) {
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("encode settings yaml: %w", err)
		}
		return data, nil
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode settings json: %w", err)
	}
	return append(data, '\n'), nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("tint", func(fl validator.FieldLevel) bool {
		return tintPattern.MatchString(fl.Field().String())
	})
	return v
}

// Sanitize clamps bounded fields into range and replaces malformed values
// with their defaults. It returns one line per adjusted field.
func (c *Config) Sanitize() []string {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}

	def := Default()
	rv := reflect.ValueOf(c).Elem()
	dv := reflect.ValueOf(&def).Elem()

	var adjusted []string
	for _, fe := range verrs {
		field := rv.FieldByName(fe.StructField())
		if !field.IsValid() || !field.CanSet() {
			continue
		}
		switch fe.Tag() {
		case "gte", "lte":
			bound, perr := strconv.ParseFloat(fe.Param(), 64)
			if perr != nil {
				field.Set(dv.FieldByName(fe.StructField()))
				break
			}
			switch field.Kind() {
			case reflect.Float32, reflect.Float64:
				field.SetFloat(bound)
			case reflect.Int, reflect.Int64:
				field.SetInt(int64(bound))
			}
		default:
			field.Set(dv.FieldByName(fe.StructField()))
		}
		adjusted = append(adjusted, fmt.Sprintf("%s: %v %s, using %v", fe.Field(), fe.Value(), describe(fe), field.Interface()))
	}
	return adjusted
}

func describe(e validator.FieldError) string {
	switch e.Tag() {
	case "gte":
		return "is below " + e.Param()
	case "lte":
		return "is above " + e.Param()
	case "tint":
		return "is not a #RRGGBB color"
	case "oneof":
		return "must be one of " + e.Param()
	case "required":
		return "is required"
	case "hostname_port":
		return "is not host:port"
	default:
		return fmt.Sprintf("failed %q", e.Tag())
	}
}

// ResolveAssets replaces asset file names that do not exist under baseDir
// with the built-in default names.
func (c *Config) ResolveAssets(baseDir string) []string {
	def := Default()
	assets := []struct {
		key   string
		value *string
		def   string
	}{
		{"FILENAME_SFX_MIC_UNMUTED", &c.FilenameSFXMicUnmuted, def.FilenameSFXMicUnmuted},
		{"FILENAME_SFX_MIC_MUTED", &c.FilenameSFXMicMuted, def.FilenameSFXMicMuted},
		{"FILENAME_IMG_MIC_UNMUTED", &c.FilenameImgMicUnmuted, def.FilenameImgMicUnmuted},
		{"FILENAME_IMG_MIC_MUTED", &c.FilenameImgMicMuted, def.FilenameImgMicMuted},
	}

	var adjusted []string
	for _, a := range assets {
		if *a.value == a.def {
			continue
		}
		if _, err := os.Stat(AssetPath(baseDir, *a.value)); err != nil {
			adjusted = append(adjusted, fmt.Sprintf("%s: %q not found, using %q", a.key, *a.value, a.def))
			*a.value = a.def
		}
	}
	return adjusted
}

// AssetPath resolves name relative to baseDir unless it is already absolute.
func AssetPath(baseDir, name string) string {
	if filepath.IsAbs(name) || baseDir == "" {
		return name
	}
	return filepath.Join(baseDir, name)
}

// ValidTint reports whether s is an accepted tint color string.
func ValidTint(s string) bool {
	return tintPattern.MatchString(s)
}

// UpdateInterval is the main loop's target tick spacing in seconds.
func (c *Config) UpdateInterval() float64 {
	return 1 / c.DisplayFrequency
}
