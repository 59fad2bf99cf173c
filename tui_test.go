package main

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"micoverlay/status"
)

func countPixels(pixels [][]int, kind int) int {
	n := 0
	for _, row := range pixels {
		for _, p := range row {
			if p == kind {
				n++
			}
		}
	}
	return n
}

func TestMicPixelsSlashOnlyWhenMuted(t *testing.T) {
	if n := countPixels(micPixels(false, 1), pixSlash); n != 0 {
		t.Fatalf("unmuted glyph has %d slash pixels", n)
	}
	if n := countPixels(micPixels(true, 1), pixSlash); n == 0 {
		t.Fatal("muted glyph has no slash")
	}
}

func TestMicPixelsGrowWithScale(t *testing.T) {
	small := countPixels(micPixels(false, 1), pixBody)
	big := countPixels(micPixels(false, 1.25), pixBody)
	if small == 0 || big <= small {
		t.Fatalf("body pixels: scale 1 = %d, scale 1.25 = %d", small, big)
	}
}

func TestRenderMicGlyphSize(t *testing.T) {
	for _, alpha := range []float64{0, 0.3, 1} {
		lines := strings.Split(renderMicGlyph(true, alpha, 1), "\n")
		if len(lines) != glyphCharsH {
			t.Fatalf("alpha %v: %d lines, want %d", alpha, len(lines), glyphCharsH)
		}
	}
}

func TestTUIModelSnapshotAndQuit(t *testing.T) {
	var m tea.Model = tuiModel{hostName: "VRChat"}
	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	if got := m.View(); !strings.Contains(got, "Waiting") {
		t.Fatalf("view before first snapshot = %q", got)
	}

	m, _ = m.Update(SnapshotMsg{Snapshot: status.Snapshot{State: "MUTED", Muted: true, Alpha: 0.5, Scale: 1}})
	m, _ = m.Update(DeviceLineMsg{Text: "mic: Headset"})
	view := m.View()
	for _, want := range []string{"MUTED", "waiting for VRChat", "mic: Headset"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("ctrl+c should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("ctrl+c should return tea.Quit")
	}
}
