package main

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"micoverlay/status"
)

// TUI message types
type SnapshotMsg struct{ Snapshot status.Snapshot }
type ModeLineMsg struct{ Text string }   // OSC endpoint info
type DeviceLineMsg struct{ Text string } // Microphone device name
type tickMsg time.Time

type tuiModel struct {
	frame         int
	snap          status.Snapshot
	haveSnap      bool
	micLevel      float64 // smoothed device level
	voiceLevel    float64 // smoothed remote voice level
	width, height int
	hostName      string
	modeLine      string // "osc: oscquery VRCMicOverlay-1A2B on :54321"
	deviceLine    string // microphone device name
}

var (
	tuiProgram *tea.Program
	tuiMu      sync.Mutex
)

const (
	glyphCharsW = 24
	glyphCharsH = 12
	glyphPixW   = glyphCharsW
	glyphPixH   = glyphCharsH * 2

	pixBody  = 1
	pixSlash = 2
	pixDim   = 3
	pixCount = 4

	alphaBuckets = 5
)

// Pre-computed pixel styles to avoid allocations in render loop.
// Indexed by [muted][alpha bucket][pixel kind].
var (
	bodyColors = [2][alphaBuckets]string{
		{"22", "28", "34", "40", "46"},   // unmuted
		{"52", "88", "124", "160", "196"}, // muted
	}
	slashColor = "231"
	dimColor   = "236"

	pixelStyles [2][alphaBuckets][pixCount]lipgloss.Style
	pixelBg     [2][alphaBuckets][pixCount][pixCount]lipgloss.Style
)

func init() {
	for m := range bodyColors {
		for b, body := range bodyColors[m] {
			colors := [pixCount]string{"", body, slashColor, dimColor}
			for i, fg := range colors {
				if fg == "" {
					continue
				}
				pixelStyles[m][b][i] = lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
				for j, bg := range colors {
					if bg != "" {
						pixelBg[m][b][i][j] = lipgloss.NewStyle().Foreground(lipgloss.Color(fg)).Background(lipgloss.Color(bg))
					}
				}
			}
		}
	}
}

func NewTUIProgram(hostName string) *tea.Program {
	m := tuiModel{hostName: hostName}
	return tea.NewProgram(m, tea.WithAltScreen())
}

// sendTUI forwards msg to the running program, if any.
func sendTUI(msg tea.Msg) {
	tuiMu.Lock()
	p := tuiProgram
	tuiMu.Unlock()

	if p != nil {
		p.Send(msg)
	}
}

func tuiTick() tea.Cmd {
	return tea.Tick(60*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}

	case tickMsg:
		m.frame++
		return m, tuiTick()

	case SnapshotMsg:
		m.snap = msg.Snapshot
		m.haveSnap = true
		m.micLevel = m.micLevel*0.6 + msg.Snapshot.DeviceMicLevel*0.4
		m.voiceLevel = m.voiceLevel*0.6 + msg.Snapshot.VRCMicLevel*0.4

	case ModeLineMsg:
		m.modeLine = msg.Text

	case DeviceLineMsg:
		m.deviceLine = msg.Text
	}
	return m, nil
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}
	if !m.haveSnap {
		return "Waiting for first tick..."
	}

	glyph := renderMicGlyph(m.snap.Muted, m.snap.Alpha, m.snap.Scale)

	gray := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	label := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	var infoLines []string

	// Status line
	stateColor := "46"
	if m.snap.Muted {
		stateColor = "196"
	}
	state := lipgloss.NewStyle().
		Foreground(lipgloss.Color(stateColor)).
		Bold(true).
		Render("● " + m.snap.State)
	if !m.snap.HostRunning {
		state += gray.Render(fmt.Sprintf("  waiting for %s", m.hostName))
	}
	infoLines = append(infoLines, state, "")

	const barWidth = 20
	infoLines = append(infoLines,
		label.Render("alpha ")+levelBar(m.snap.Alpha, barWidth)+gray.Render(fmt.Sprintf(" %.2f", m.snap.Alpha)),
		label.Render("mic   ")+levelBar(m.micLevel, barWidth)+gray.Render(fmt.Sprintf(" %.2f", m.snap.DeviceMicLevel)),
		label.Render("voice ")+levelBar(m.voiceLevel, barWidth)+gray.Render(fmt.Sprintf(" %.2f", m.snap.VRCMicLevel)),
	)

	quiet := m.snap.UnmutedTimer
	if m.snap.Muted {
		quiet = m.snap.MutedTimer
	}
	infoLines = append(infoLines, label.Render("quiet ")+gray.Render(fmt.Sprintf("%.1fs", quiet)), "")

	if m.deviceLine != "" {
		infoLines = append(infoLines, gray.Render(m.deviceLine))
	}
	if m.modeLine != "" {
		infoLines = append(infoLines, gray.Render(m.modeLine))
	}
	infoLines = append(infoLines, "")

	// Help line with version
	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	boldStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	infoLines = append(infoLines, boldStyle.Render("q")+helpStyle.Render(" to quit"))
	infoLines = append(infoLines, helpStyle.Render("micoverlay "+version))

	glyphPanel := lipgloss.NewStyle().
		Width(glyphCharsW + 2).
		PaddingTop(1).
		PaddingLeft(1).
		Render(glyph)

	infoWidth := m.width - glyphCharsW - 3
	if infoWidth < 20 {
		infoWidth = 20
	}
	infoPanel := lipgloss.NewStyle().
		Width(infoWidth).
		PaddingTop(1).
		PaddingLeft(1).
		Render(strings.Join(infoLines, "\n"))

	return lipgloss.JoinHorizontal(lipgloss.Top, glyphPanel, infoPanel)
}

func levelBar(v float64, width int) string {
	v = math.Min(math.Max(v, 0), 1)
	filled := int(math.Round(v * float64(width)))
	on := lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	off := lipgloss.NewStyle().Foreground(lipgloss.Color("237"))
	return on.Render(strings.Repeat("█", filled)) + off.Render(strings.Repeat("░", width-filled))
}

// micPixels rasterizes a microphone (capsule, cradle, stem and base) at the
// given scale, with a diagonal slash when muted.
func micPixels(muted bool, scale float64) [][]int {
	pixels := make([][]int, glyphPixH)
	for i := range pixels {
		pixels[i] = make([]int, glyphPixW)
	}

	s := math.Min(math.Max(scale, 0.5), 1.5)
	cx := float64(glyphPixW-1) / 2
	capR := 3.2 * s
	capTop := 11.0 - 8.0*s + capR
	capBot := capTop + 5.0*s
	cradleR := capR + 2.2*s
	stemTop := capBot + cradleR
	baseY := math.Min(stemTop+3*s, float64(glyphPixH-1))

	for y := 0; y < glyphPixH; y++ {
		for x := 0; x < glyphPixW; x++ {
			dx := float64(x) - cx
			fy := float64(y)

			// Capsule: a vertical segment swept by capR.
			cyClamped := math.Min(math.Max(fy, capTop), capBot)
			dy := fy - cyClamped
			if dx*dx+dy*dy <= capR*capR {
				pixels[y][x] = pixBody
				continue
			}

			// Cradle: lower half ring around the capsule's bottom.
			if fy >= capBot {
				dy := fy - capBot
				d := math.Sqrt(dx*dx + dy*dy)
				if d >= cradleR-0.9 && d <= cradleR+0.6 {
					pixels[y][x] = pixBody
					continue
				}
			}

			if fy > stemTop-0.5 && fy < baseY && math.Abs(dx) < 0.8 {
				pixels[y][x] = pixBody
				continue
			}
			if math.Abs(fy-baseY) < 0.6 && math.Abs(dx) < 3.5*s {
				pixels[y][x] = pixBody
			}
		}
	}

	if muted {
		top := capTop - capR
		for y := 0; y < glyphPixH; y++ {
			fy := float64(y)
			if fy < top || fy > baseY {
				continue
			}
			for x := 0; x < glyphPixW; x++ {
				// Line from upper right to lower left across the glyph.
				t := (fy - top) / (baseY - top)
				lx := cx + (1-2*t)*(cradleR+1)
				if math.Abs(float64(x)-lx) < 0.9 {
					pixels[y][x] = pixSlash
				}
			}
		}
	}
	return pixels
}

func renderMicGlyph(muted bool, alpha, scale float64) string {
	pixels := micPixels(muted, scale)

	m := 0
	if muted {
		m = 1
	}
	bucket := int(math.Min(math.Max(alpha, 0), 1) * (alphaBuckets - 1))

	// A fully faded icon still shows its outline.
	if alpha <= 0 {
		for y := range pixels {
			for x, p := range pixels[y] {
				if p != 0 {
					pixels[y][x] = pixDim
				}
			}
		}
	}

	styles := &pixelStyles[m][bucket]
	bgStyles := &pixelBg[m][bucket]

	var result strings.Builder
	for cy := 0; cy < glyphCharsH; cy++ {
		for cx := 0; cx < glyphCharsW; cx++ {
			top := pixels[cy*2][cx]
			bot := pixels[cy*2+1][cx]
			if top == 0 && bot == 0 {
				result.WriteString(" ")
			} else if top == bot {
				result.WriteString(styles[top].Render("█"))
			} else if top != 0 && bot == 0 {
				result.WriteString(styles[top].Render("▀"))
			} else if top == 0 && bot != 0 {
				result.WriteString(styles[bot].Render("▄"))
			} else {
				result.WriteString(bgStyles[top][bot].Render("▀"))
			}
		}
		if cy < glyphCharsH-1 {
			result.WriteString("\n")
		}
	}
	return result.String()
}
