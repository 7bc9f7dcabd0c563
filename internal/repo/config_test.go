package repo

import (
	"context"
	"testing"

	"ambush/internal/eventbus"
)

func TestSeedDefaults(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	iv, err := env.conf.Interval(ctx)
	if err != nil {
		t.Fatalf("Interval: %v", err)
	}
	if iv != 30 {
		t.Fatalf("interval = %d, want 30", iv)
	}
	vol, err := env.conf.Volume(ctx)
	if err != nil {
		t.Fatalf("Volume: %v", err)
	}
	if vol != 100 {
		t.Fatalf("volume = %d, want 100", vol)
	}
}

func TestSetIntervalBounds(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		value   int
		wantErr bool
	}{
		{name: "below range", value: 29, wantErr: true},
		{name: "lower bound", value: 30},
		{name: "upper bound", value: 3600},
		{name: "above range", value: 3601, wantErr: true},
		{name: "negative", value: -1, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before, err := env.conf.Interval(ctx)
			if err != nil {
				t.Fatalf("Interval: %v", err)
			}
			err = env.conf.SetInterval(ctx, tt.value, eventbus.SourceWeb)
			if tt.wantErr {
				if !IsValidation(err) {
					t.Fatalf("SetInterval(%d) = %v, want ValidationError", tt.value, err)
				}
				after, err := env.conf.Interval(ctx)
				if err != nil {
					t.Fatalf("Interval: %v", err)
				}
				if after != before {
					t.Fatalf("rejected write changed stored interval: %d -> %d", before, after)
				}
				return
			}
			if err != nil {
				t.Fatalf("SetInterval(%d): %v", tt.value, err)
			}
			after, err := env.conf.Interval(ctx)
			if err != nil {
				t.Fatalf("Interval: %v", err)
			}
			if after != tt.value {
				t.Fatalf("stored interval = %d, want %d", after, tt.value)
			}
		})
	}
}

func TestSetVolumeBounds(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	for _, bad := range []int{-1, 101, 500} {
		if err := env.conf.SetVolume(ctx, bad, eventbus.SourceCommand); !IsValidation(err) {
			t.Fatalf("SetVolume(%d) = %v, want ValidationError", bad, err)
		}
	}
	vol, err := env.conf.Volume(ctx)
	if err != nil {
		t.Fatalf("Volume: %v", err)
	}
	if vol != 100 {
		t.Fatalf("volume after rejected writes = %d, want 100", vol)
	}

	if err := env.conf.SetVolume(ctx, 0, eventbus.SourceCommand); err != nil {
		t.Fatalf("SetVolume(0): %v", err)
	}
	vol, err = env.conf.Volume(ctx)
	if err != nil {
		t.Fatalf("Volume: %v", err)
	}
	if vol != 0 {
		t.Fatalf("volume = %d, want 0", vol)
	}
}

func TestIntervalChangeEventCarriesOldAndNew(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.conf.SetInterval(ctx, 45, eventbus.SourceWeb); err != nil {
		t.Fatalf("SetInterval: %v", err)
	}

	evs := waitForEvents(t, env.rec, 1)
	e := evs[0]
	if e.Type != eventbus.IntervalChanged {
		t.Fatalf("event type = %v, want IntervalChanged", e.Type)
	}
	if e.Config.Old != 30 || e.Config.New != 45 || e.Source != eventbus.SourceWeb {
		t.Fatalf("unexpected payload: %+v source=%v", e.Config, e.Source)
	}
}

func TestNotifyChannelRoundTrip(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.conf.SetNotifyChannel(ctx, "123456", eventbus.SourceCommand); err != nil {
		t.Fatalf("SetNotifyChannel: %v", err)
	}
	got, err := env.conf.NotifyChannel(ctx)
	if err != nil {
		t.Fatalf("NotifyChannel: %v", err)
	}
	if got != "123456" {
		t.Fatalf("notify channel = %q, want %q", got, "123456")
	}
}
