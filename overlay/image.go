package overlay

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
)

const defaultIconSize = 256

// RenderDefaultIcon draws the built-in microphone glyph. The muted variant
// adds a diagonal slash. Shapes are white so the configured tint shows.
func RenderDefaultIcon(muted bool) []byte {
	size := defaultIconSize
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	s := float64(size)

	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	backdrop := color.RGBA{R: 24, G: 24, B: 24, A: 200}

	cx, cy := s/2, s/2
	r := s/2 - 1

	// Capsule: vertical segment with round caps.
	capTop, capBot, capR := s*0.24, s*0.50, s*0.12
	// Stand: half ring below the capsule, a stem and a base.
	ringCY, ringR, ringW := s*0.50, s*0.22, s*0.035
	stemW, stemTop, stemBot := s*0.035, s*0.72, s*0.82
	baseHW, baseY := s*0.14, s*0.82

	for y := range size {
		for x := range size {
			fx, fy := float64(x)+0.5, float64(y)+0.5
			if math.Hypot(fx-cx, fy-cy) > r {
				continue
			}
			on := false

			ny := math.Min(math.Max(fy, capTop), capBot)
			if math.Hypot(fx-cx, fy-ny) <= capR {
				on = true
			}
			if d := math.Hypot(fx-cx, fy-ringCY); fy >= ringCY && math.Abs(d-ringR) <= ringW {
				on = true
			}
			if math.Abs(fx-cx) <= stemW && fy >= stemTop && fy <= stemBot {
				on = true
			}
			if math.Abs(fx-cx) <= baseHW && math.Abs(fy-baseY) <= stemW {
				on = true
			}
			if muted && math.Abs((fx-cx)-(fy-cy))/math.Sqrt2 <= s*0.04 && math.Hypot(fx-cx, fy-cy) <= r*0.8 {
				on = true
			}

			if on {
				img.Set(x, y, white)
			} else {
				img.Set(x, y, backdrop)
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic("encodePNG: " + err.Error())
	}
	return buf.Bytes()
}

// WriteDefaultIcon writes the built-in icon to path unless a file is
// already there.
func WriteDefaultIcon(path string, muted bool) (written bool, err error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("icon dir: %w", err)
	}
	if err := os.WriteFile(path, RenderDefaultIcon(muted), 0644); err != nil {
		return false, fmt.Errorf("write icon: %w", err)
	}
	return true, nil
}
