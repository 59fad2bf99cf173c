package overlay

import (
	"fmt"

	"github.com/rs/zerolog"

	"micoverlay/metrics"
)

// IconConfig is everything needed to place and style the icon.
type IconConfig struct {
	Key, Name      string
	Offset         Vec3
	Width          float64 // meters at scale 1
	AlwaysOnTop    bool
	MutedTexture   string
	UnmutedTexture string
	MutedTint      Color
	UnmutedTint    Color
}

// Icon drives one overlay through a Presenter. Failed calls are logged and
// counted; the overlay keeps whatever state it last accepted.
type Icon struct {
	p      Presenter
	h      Handle
	cfg    IconConfig
	logger zerolog.Logger
	muted  bool
}

// NewIcon creates the overlay and applies the static setup: pose, muted
// texture and tint, width, sort order. Only a failed CreateOverlay is
// returned as an error.
func NewIcon(p Presenter, cfg IconConfig, logger zerolog.Logger) (*Icon, error) {
	h, err := p.CreateOverlay(cfg.Key, cfg.Name)
	if err != nil {
		metrics.OverlayError("CreateOverlay")
		return nil, fmt.Errorf("create overlay %s: %w", cfg.Key, err)
	}
	i := &Icon{p: p, h: h, cfg: cfg, logger: logger, muted: true}

	// The pose is set once; the compositor keeps it relative to the head.
	i.check("SetTransform", p.SetTransform(h, IconTransform(cfg.Offset)))
	i.check("SetTexture", p.SetTexture(h, cfg.MutedTexture))
	i.check("Show", p.Show(h))
	i.check("SetWidth", p.SetWidth(h, cfg.Width))
	i.check("SetAlpha", p.SetAlpha(h, 0))
	if cfg.AlwaysOnTop {
		i.check("SetSortOrder", p.SetSortOrder(h, SortOrderTop))
	}
	i.check("SetColor", p.SetColor(h, cfg.MutedTint))
	return i, nil
}

func (i *Icon) Handle() Handle { return i.h }

// Muted reports which texture set is showing.
func (i *Icon) Muted() bool { return i.muted }

// SetMuted switches texture and tint to the given state.
func (i *Icon) SetMuted(muted bool) {
	i.muted = muted
	tex, tint := i.cfg.UnmutedTexture, i.cfg.UnmutedTint
	if muted {
		tex, tint = i.cfg.MutedTexture, i.cfg.MutedTint
	}
	i.check("SetTexture", i.p.SetTexture(i.h, tex))
	i.check("SetColor", i.p.SetColor(i.h, tint))
}

// Present applies one tick's opacity and bounce scale.
func (i *Icon) Present(alpha, scale float64) {
	i.check("SetWidth", i.p.SetWidth(i.h, i.cfg.Width*scale))
	i.check("SetAlpha", i.p.SetAlpha(i.h, alpha))
}

func (i *Icon) check(op string, err error) {
	if err == nil {
		return
	}
	metrics.OverlayError(op)
	i.logger.Error().Err(err).Str("op", op).Uint64("handle", uint64(i.h)).Msg("overlay call failed")
}
