package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMissingWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), SettingsFilename)

	cfg, res, err := Load(path)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, Default(), cfg)

	_, err = os.Stat(path)
	require.NoError(t, err, "defaults should be written")
}

func TestLoadMalformedUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, SettingsFilename, `{"ICON_SIZE": 0.1,`)

	cfg, _, err := Load(path)
	require.Error(t, err)
	assert.Equal(t, Default(), cfg)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"ICON_SIZE": 0.1,`, string(data), "malformed file must be left untouched")
}

func TestLoadPartialKeepsDefaultsAndRewrites(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, SettingsFilename, `{"ICON_SIZE": 0.08}`)

	cfg, res, err := Load(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.08, cfg.IconSize, 1e-12)
	assert.InDelta(t, Default().MicMutedFadeStart, cfg.MicMutedFadeStart, 1e-12)
	assert.True(t, res.Rewrote)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "MIC_MUTED_FADE_START")
}

func TestSanitizeClampsBoundedFields(t *testing.T) {
	cfg := Default()
	cfg.IconMutedMaxAlpha = 1.7
	cfg.IconUnmutedMinAlpha = -0.2
	cfg.MutedMicThreshold = 4
	cfg.MicMutedFadePeriod = 0
	cfg.LegacyOSCListenPort = 70000

	adjusted := cfg.Sanitize()

	assert.Len(t, adjusted, 5)
	assert.Equal(t, 1.0, cfg.IconMutedMaxAlpha)
	assert.Equal(t, 0.0, cfg.IconUnmutedMinAlpha)
	assert.Equal(t, 1.0, cfg.MutedMicThreshold)
	assert.Equal(t, 0.001, cfg.MicMutedFadePeriod)
	assert.Equal(t, 65535, cfg.LegacyOSCListenPort)
}

func TestSanitizeReplacesMalformedTint(t *testing.T) {
	cfg := Default()
	cfg.IconTintMuted = "red"
	cfg.IconTintUnmuted = "#00FF00"

	adjusted := cfg.Sanitize()

	require.Len(t, adjusted, 1)
	assert.True(t, strings.HasPrefix(adjusted[0], "ICON_TINT_MUTED"), adjusted[0])
	assert.Equal(t, DefaultTint, cfg.IconTintMuted)
	assert.Equal(t, "#00FF00", cfg.IconTintUnmuted)
}

func TestSanitizeDefaultsUntouched(t *testing.T) {
	cfg := Default()
	assert.Empty(t, cfg.Sanitize())
	assert.Equal(t, Default(), cfg)
}

func TestSanitizeLogLevel(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "verbose"
	cfg.Sanitize()
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestResolveAssetsFallsBack(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "custom-muted.png", "png")

	cfg := Default()
	cfg.FilenameImgMicMuted = "custom-muted.png"
	cfg.FilenameImgMicUnmuted = "missing.png"
	cfg.FilenameSFXMicMuted = filepath.Join(dir, "nope.wav")

	adjusted := cfg.ResolveAssets(dir)

	assert.Len(t, adjusted, 2)
	assert.Equal(t, "custom-muted.png", cfg.FilenameImgMicMuted)
	assert.Equal(t, Default().FilenameImgMicUnmuted, cfg.FilenameImgMicUnmuted)
	assert.Equal(t, Default().FilenameSFXMicMuted, cfg.FilenameSFXMicMuted)
}

func TestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "m.png", "png")

	want := Default()
	want.IconMutedMaxAlpha = 0.6
	want.IconUnmutedMinAlpha = 0.1
	want.MutedMicThreshold = 0.25
	want.RestartFadeTimerOnStateChange = false
	want.IconTintMuted = "#FF3B30"
	want.AudioDeviceStartsWith = "Microphone (Index"
	want.FilenameImgMicMuted = "m.png"
	want.UseLegacyOSC = true
	want.LegacyOSCListenPort = 9101

	for _, name := range []string{"settings.json", "settings.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, Save(path, want))

			got, res, err := Load(path)
			require.NoError(t, err)
			assert.Empty(t, res.Adjusted)
			assert.False(t, res.Rewrote)
			assert.Equal(t, want, got)
		})
	}
}

func TestYAMLRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "settings.yml", "ICON_SIZE: 0.1\nICON_SIZZE: 0.2\n")

	cfg, _, err := Load(path)
	require.Error(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestJSONRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	content := `{"ICON_SIZE": 0.1, "ICON_SIZZE": 0.2}`
	path := writeFile(t, dir, SettingsFilename, content)

	cfg, _, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ICON_SIZZE")
	assert.Equal(t, Default(), cfg)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
}

func TestJSONRejectsTrailingData(t *testing.T) {
	path := writeFile(t, t.TempDir(), SettingsFilename, `{"ICON_SIZE": 0.1} {}`)

	_, _, err := Load(path)
	require.Error(t, err)
}

func TestUpdateInterval(t *testing.T) {
	cfg := Default()
	cfg.DisplayFrequency = 120
	assert.InDelta(t, 1.0/120, cfg.UpdateInterval(), 1e-12)
}
