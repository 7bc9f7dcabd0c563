package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"ambush/internal/eventbus"
	"ambush/internal/storage"
	"ambush/pkg/logx"
)

// Interval and volume bounds. Writes outside these ranges are rejected
// before anything reaches storage.
const (
	MinInterval = 30
	MaxInterval = 3600
	MinVolume   = 0
	MaxVolume   = 100
)

const (
	keyInterval      = "interval"
	keyVolume        = "volume"
	keyNotifyChannel = "notify_channel"
)

// Defaults seed the config table at first run.
type Defaults struct {
	Interval      int
	Volume        int
	NotifyChannel string
}

// Config is the settings repository. Entries are seeded once and then only
// ever updated; a successful interval or volume write publishes a change
// event after the commit.
type Config struct {
	gw       *storage.Gateway
	bus      *eventbus.Bus
	log      logx.Logger
	defaults Defaults
}

func NewConfig(gw *storage.Gateway, bus *eventbus.Bus, log logx.Logger, defaults Defaults) *Config {
	if log.IsZero() {
		log = logx.Nop()
	}
	if defaults.Interval < MinInterval || defaults.Interval > MaxInterval {
		defaults.Interval = MinInterval
	}
	if defaults.Volume < MinVolume || defaults.Volume > MaxVolume {
		defaults.Volume = MaxVolume
	}
	return &Config{gw: gw, bus: bus, log: log, defaults: defaults}
}

// Seed inserts defaults for any missing key. Existing values win.
func (c *Config) Seed(ctx context.Context) error {
	return c.gw.Write(ctx, func(ctx context.Context, tx *sql.Tx) error {
		seed := map[string]string{
			keyInterval:      strconv.Itoa(c.defaults.Interval),
			keyVolume:        strconv.Itoa(c.defaults.Volume),
			keyNotifyChannel: c.defaults.NotifyChannel,
		}
		for k, v := range seed {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO config(key, value) VALUES(?,?) ON CONFLICT(key) DO NOTHING`, k, v,
			); err != nil {
				return fmt.Errorf("seeding %s: %w", k, err)
			}
		}
		return nil
	})
}

// Interval returns the playback interval in seconds.
func (c *Config) Interval(ctx context.Context) (int, error) {
	return c.intValue(ctx, keyInterval, c.defaults.Interval)
}

// SetInterval persists a new interval and publishes IntervalChanged.
func (c *Config) SetInterval(ctx context.Context, seconds int, src eventbus.Source) error {
	if seconds < MinInterval || seconds > MaxInterval {
		return validationErr("interval", "must be between %d and %d seconds, got %d", MinInterval, MaxInterval, seconds)
	}
	old, err := c.setInt(ctx, keyInterval, seconds, src)
	if err != nil {
		return err
	}
	c.bus.Publish(eventbus.NewIntervalChanged(src, old, seconds))
	return nil
}

// Volume returns the playback volume as a percentage.
func (c *Config) Volume(ctx context.Context) (int, error) {
	return c.intValue(ctx, keyVolume, c.defaults.Volume)
}

// SetVolume persists a new volume and publishes VolumeChanged.
func (c *Config) SetVolume(ctx context.Context, percent int, src eventbus.Source) error {
	if percent < MinVolume || percent > MaxVolume {
		return validationErr("volume", "must be between %d and %d percent, got %d", MinVolume, MaxVolume, percent)
	}
	old, err := c.setInt(ctx, keyVolume, percent, src)
	if err != nil {
		return err
	}
	c.bus.Publish(eventbus.NewVolumeChanged(src, old, percent))
	return nil
}

// NotifyChannel returns the channel id notifications go to; empty disables them.
func (c *Config) NotifyChannel(ctx context.Context) (string, error) {
	var v string
	err := c.gw.Read(ctx, func(ctx context.Context, q storage.Querier) error {
		err := q.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, keyNotifyChannel).Scan(&v)
		if errors.Is(err, sql.ErrNoRows) {
			v = c.defaults.NotifyChannel
			return nil
		}
		return err
	})
	return v, err
}

// SetNotifyChannel persists a new notification target.
func (c *Config) SetNotifyChannel(ctx context.Context, id string, src eventbus.Source) error {
	return c.gw.Write(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO config(key, value) VALUES(?,?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
			keyNotifyChannel, id,
		); err != nil {
			return err
		}
		return appendAudit(ctx, tx, "notify_channel_change", id, "", src)
	})
}

func (c *Config) intValue(ctx context.Context, key string, def int) (int, error) {
	var raw string
	err := c.gw.Read(ctx, func(ctx context.Context, q storage.Querier) error {
		err := q.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			raw = strconv.Itoa(def)
			return nil
		}
		return err
	})
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		c.log.Warn("malformed config value; using default", logx.String("key", key), logx.String("value", raw))
		return def, nil
	}
	return n, nil
}

// setInt writes key inside one transaction and returns the previous value.
func (c *Config) setInt(ctx context.Context, key string, val int, src eventbus.Source) (old int, err error) {
	err = c.gw.Write(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var raw string
		qerr := tx.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&raw)
		switch {
		case errors.Is(qerr, sql.ErrNoRows):
			old = 0
		case qerr != nil:
			return qerr
		default:
			old, _ = strconv.Atoi(raw)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO config(key, value) VALUES(?,?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
			key, strconv.Itoa(val),
		); err != nil {
			return err
		}
		return appendAudit(ctx, tx, key+"_change", strconv.Itoa(val), strconv.Itoa(old), src)
	})
	return old, err
}
