package soundboard

import (
	"context"
	"time"

	"ambush/internal/repo"
)

// State tracks where the current playback cycle is.
type State int

const (
	StateIdle State = iota
	StateSelectingChannel
	StateConnecting
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateSelectingChannel:
		return "selecting_channel"
	case StateConnecting:
		return "connecting"
	case StatePlaying:
		return "playing"
	default:
		return "idle"
	}
}

// Options tune the scheduler.
//
// LeaveAfterEmpty disconnects the voice session after that many consecutive
// cycles found no populated channel; 0 means stay connected indefinitely.
type Options struct {
	MaxPlayDuration time.Duration // cap on a single playback, default 2m
	LeaveAfterEmpty int
}

func (o Options) withDefaults() Options {
	if o.MaxPlayDuration <= 0 {
		o.MaxPlayDuration = 2 * time.Minute
	}
	if o.LeaveAfterEmpty < 0 {
		o.LeaveAfterEmpty = 0
	}
	return o
}

// settings is the slice of the config repository the scheduler reads.
type settings interface {
	Interval(ctx context.Context) (int, error)
	Volume(ctx context.Context) (int, error)
}

// library is the slice of the sound repository the scheduler reads.
type library interface {
	RandomPick(ctx context.Context) (repo.Sound, bool, error)
}
