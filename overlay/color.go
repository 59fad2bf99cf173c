package overlay

import (
	"fmt"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

const tintGamma = 2.2

// ParseTint reads "#RRGGBB" or "#RGB" and gamma-expands each channel with
// c^2.2 so the compositor's linear multiply matches the sRGB swatch.
func ParseTint(hex string) (Color, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return White, fmt.Errorf("tint %q: %w", hex, err)
	}
	return Color{
		R: float32(math.Pow(c.R, tintGamma)),
		G: float32(math.Pow(c.G, tintGamma)),
		B: float32(math.Pow(c.B, tintGamma)),
	}, nil
}
