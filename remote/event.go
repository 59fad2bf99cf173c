// Package remote receives the VRChat avatar parameters that report mute and
// voice activity, and advertises the receiving port over OSCQuery.
package remote

import (
	"errors"
	"fmt"
	"math"

	"github.com/hypebeast/go-osc/osc"
)

const (
	MuteSelfAddress = "/avatar/parameters/MuteSelf"
	VoiceAddress    = "/avatar/parameters/Voice"
)

type Kind int

const (
	MuteEvent Kind = iota
	VoiceEvent
)

func (k Kind) String() string {
	if k == VoiceEvent {
		return "Voice"
	}
	return "MuteSelf"
}

// Event is one decoded parameter update.
type Event struct {
	Kind  Kind
	Muted bool    // MuteEvent
	Level float64 // VoiceEvent, in [0,1]
}

var (
	ErrArgCount = errors.New("expected exactly one argument")
	ErrArgType  = errors.New("unexpected argument type")
)

// Decode converts a message into an Event. ok is false for addresses this
// package does not consume; err is set when a consumed address carries the
// wrong payload.
func Decode(msg *osc.Message) (ev Event, ok bool, err error) {
	switch msg.Address {
	case MuteSelfAddress:
		if len(msg.Arguments) != 1 {
			return Event{}, true, fmt.Errorf("%s: %w (got %d)", msg.Address, ErrArgCount, len(msg.Arguments))
		}
		muted, isBool := msg.Arguments[0].(bool)
		if !isBool {
			return Event{}, true, fmt.Errorf("%s: %w %T, want bool", msg.Address, ErrArgType, msg.Arguments[0])
		}
		return Event{Kind: MuteEvent, Muted: muted}, true, nil

	case VoiceAddress:
		if len(msg.Arguments) != 1 {
			return Event{}, true, fmt.Errorf("%s: %w (got %d)", msg.Address, ErrArgCount, len(msg.Arguments))
		}
		var level float64
		switch v := msg.Arguments[0].(type) {
		case float32:
			level = float64(v)
		case float64:
			level = v
		default:
			return Event{}, true, fmt.Errorf("%s: %w %T, want float", msg.Address, ErrArgType, v)
		}
		if math.IsNaN(level) {
			return Event{}, true, fmt.Errorf("%s: %w NaN", msg.Address, ErrArgType)
		}
		return Event{Kind: VoiceEvent, Level: level}, true, nil
	}
	return Event{}, false, nil
}

// flatten appends every message in p, recursing into bundles.
func flatten(p osc.Packet, dst []*osc.Message) []*osc.Message {
	switch v := p.(type) {
	case *osc.Message:
		dst = append(dst, v)
	case *osc.Bundle:
		dst = append(dst, v.Messages...)
		for _, b := range v.Bundles {
			dst = flatten(b, dst)
		}
	}
	return dst
}
