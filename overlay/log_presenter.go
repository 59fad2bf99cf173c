package overlay

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// OverlayState is what a LogPresenter remembers about one overlay.
type OverlayState struct {
	Key, Name string
	Transform Matrix34
	Texture   string
	Color     Color
	Width     float64
	Alpha     float64
	SortOrder uint32
	Visible   bool
}

// LogPresenter keeps overlay state in memory and logs changes. It stands in
// for the compositor when none is reachable.
type LogPresenter struct {
	logger zerolog.Logger

	mu       sync.Mutex
	next     Handle
	overlays map[Handle]*OverlayState
	fail     map[string]error
}

func NewLogPresenter(logger zerolog.Logger) *LogPresenter {
	return &LogPresenter{
		logger:   logger,
		overlays: map[Handle]*OverlayState{},
		fail:     map[string]error{},
	}
}

// FailOn makes every later call of op return err; nil clears it.
func (p *LogPresenter) FailOn(op string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.fail, op)
		return
	}
	p.fail[op] = err
}

// State returns a copy of the overlay's current state.
func (p *LogPresenter) State(h Handle) (OverlayState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.overlays[h]
	if !ok {
		return OverlayState{}, false
	}
	return *s, true
}

func (p *LogPresenter) CreateOverlay(key, name string) (Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail["CreateOverlay"]; err != nil {
		return 0, err
	}
	for h, s := range p.overlays {
		if s.Key == key {
			return h, fmt.Errorf("overlay %q already exists", key)
		}
	}
	p.next++
	p.overlays[p.next] = &OverlayState{Key: key, Name: name, Color: White, Alpha: 1}
	p.logger.Info().Str("key", key).Str("name", name).Uint64("handle", uint64(p.next)).Msg("overlay created")
	return p.next, nil
}

// update runs fn on the overlay's state under the lock.
func (p *LogPresenter) update(op string, h Handle, fn func(s *OverlayState) bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail[op]; err != nil {
		return err
	}
	s, ok := p.overlays[h]
	if !ok {
		return fmt.Errorf("%s: unknown overlay handle %d", op, h)
	}
	if fn(s) {
		p.logger.Debug().Str("op", op).Uint64("handle", uint64(h)).Msg("overlay updated")
	}
	return nil
}

func (p *LogPresenter) SetTransform(h Handle, m Matrix34) error {
	return p.update("SetTransform", h, func(s *OverlayState) bool {
		changed := s.Transform != m
		s.Transform = m
		return changed
	})
}

func (p *LogPresenter) SetTexture(h Handle, path string) error {
	return p.update("SetTexture", h, func(s *OverlayState) bool {
		changed := s.Texture != path
		s.Texture = path
		return changed
	})
}

func (p *LogPresenter) SetColor(h Handle, c Color) error {
	return p.update("SetColor", h, func(s *OverlayState) bool {
		changed := s.Color != c
		s.Color = c
		return changed
	})
}

func (p *LogPresenter) SetWidth(h Handle, meters float64) error {
	if meters <= 0 {
		return fmt.Errorf("SetWidth: invalid width %v", meters)
	}
	return p.update("SetWidth", h, func(s *OverlayState) bool {
		changed := s.Width != meters
		s.Width = meters
		return changed
	})
}

func (p *LogPresenter) SetAlpha(h Handle, alpha float64) error {
	if alpha < 0 || alpha > 1 {
		return fmt.Errorf("SetAlpha: alpha %v out of range", alpha)
	}
	return p.update("SetAlpha", h, func(s *OverlayState) bool {
		changed := s.Alpha != alpha
		s.Alpha = alpha
		return changed
	})
}

func (p *LogPresenter) SetSortOrder(h Handle, order uint32) error {
	return p.update("SetSortOrder", h, func(s *OverlayState) bool {
		changed := s.SortOrder != order
		s.SortOrder = order
		return changed
	})
}

func (p *LogPresenter) Show(h Handle) error {
	return p.update("Show", h, func(s *OverlayState) bool {
		changed := !s.Visible
		s.Visible = true
		return changed
	})
}
