package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ambush/internal/eventbus"
	"ambush/internal/storage"
	"ambush/pkg/logx"
)

// Sound is one clip in the library. The payload is immutable once created;
// a rename changes the name and nothing else.
type Sound struct {
	ID        int64
	Name      string
	Data      []byte
	CreatedAt time.Time
}

// SoundInfo is the blob-free listing shape.
type SoundInfo struct {
	ID        int64
	Name      string
	Size      int
	CreatedAt time.Time
}

// Sounds is the library repository. Every successful mutation writes an
// audit row in the same transaction and publishes exactly one event after
// the commit, never before.
type Sounds struct {
	gw  *storage.Gateway
	bus *eventbus.Bus
	log logx.Logger
}

func NewSounds(gw *storage.Gateway, bus *eventbus.Bus, log logx.Logger) *Sounds {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sounds{gw: gw, bus: bus, log: log}
}

// Create inserts a new sound. Name collisions are case-insensitive.
func (s *Sounds) Create(ctx context.Context, name string, data []byte, src eventbus.Source) (Sound, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Sound{}, validationErr("name", "must not be empty")
	}
	if len(data) == 0 {
		return Sound{}, validationErr("data", "must not be empty")
	}

	var snd Sound
	err := s.gw.Write(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var existing int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM sounds WHERE name = ?`, name).Scan(&existing)
		switch {
		case err == nil:
			return validationErr("name", "%q already exists", name)
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("checking name: %w", err)
		}

		now := time.Now()
		res, err := tx.ExecContext(ctx,
			`INSERT INTO sounds(name, data, created_at) VALUES(?,?,?)`,
			name, data, now.Unix(),
		)
		if err != nil {
			return fmt.Errorf("inserting sound: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		snd = Sound{ID: id, Name: name, Data: data, CreatedAt: now}
		return appendAudit(ctx, tx, "upload", name, "", src)
	})
	if err != nil {
		return Sound{}, err
	}

	s.bus.Publish(eventbus.NewSoundUploaded(src, snd.ID, snd.Name))
	return snd, nil
}

// Rename changes a sound's name. Payload and id are untouched.
func (s *Sounds) Rename(ctx context.Context, id int64, newName string, src eventbus.Source) error {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return validationErr("name", "must not be empty")
	}

	var oldName string
	err := s.gw.Write(ctx, func(ctx context.Context, tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `SELECT name FROM sounds WHERE id = ?`, id).Scan(&oldName)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("loading sound: %w", err)
		}

		var clash int64
		err = tx.QueryRowContext(ctx, `SELECT id FROM sounds WHERE name = ? AND id != ?`, newName, id).Scan(&clash)
		switch {
		case err == nil:
			return validationErr("name", "%q already exists", newName)
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("checking name: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `UPDATE sounds SET name = ? WHERE id = ?`, newName, id); err != nil {
			return fmt.Errorf("renaming sound: %w", err)
		}
		return appendAudit(ctx, tx, "rename", oldName, newName, src)
	})
	if err != nil {
		return err
	}

	s.bus.Publish(eventbus.NewSoundRenamed(src, id, oldName, newName))
	return nil
}

// Delete removes a sound by id.
func (s *Sounds) Delete(ctx context.Context, id int64, src eventbus.Source) error {
	var name string
	err := s.gw.Write(ctx, func(ctx context.Context, tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `SELECT name FROM sounds WHERE id = ?`, id).Scan(&name)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("loading sound: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM sounds WHERE id = ?`, id); err != nil {
			return fmt.Errorf("deleting sound: %w", err)
		}
		return appendAudit(ctx, tx, "delete", name, "", src)
	})
	if err != nil {
		return err
	}

	s.bus.Publish(eventbus.NewSoundDeleted(src, id, name))
	return nil
}

// Get returns a sound with its payload.
func (s *Sounds) Get(ctx context.Context, id int64) (Sound, error) {
	var snd Sound
	err := s.gw.Read(ctx, func(ctx context.Context, q storage.Querier) error {
		var created int64
		err := q.QueryRowContext(ctx,
			`SELECT id, name, data, created_at FROM sounds WHERE id = ?`, id,
		).Scan(&snd.ID, &snd.Name, &snd.Data, &created)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		snd.CreatedAt = time.Unix(created, 0)
		return nil
	})
	return snd, err
}

// List returns all sounds without payloads, ordered by name.
func (s *Sounds) List(ctx context.Context) ([]SoundInfo, error) {
	var out []SoundInfo
	err := s.gw.Read(ctx, func(ctx context.Context, q storage.Querier) error {
		rows, err := q.QueryContext(ctx,
			`SELECT id, name, length(data), created_at FROM sounds ORDER BY name`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var info SoundInfo
			var created int64
			if err := rows.Scan(&info.ID, &info.Name, &info.Size, &created); err != nil {
				return err
			}
			info.CreatedAt = time.Unix(created, 0)
			out = append(out, info)
		}
		return rows.Err()
	})
	return out, err
}

// Count returns the number of stored sounds.
func (s *Sounds) Count(ctx context.Context) (int, error) {
	var n int
	err := s.gw.Read(ctx, func(ctx context.Context, q storage.Querier) error {
		return q.QueryRowContext(ctx, `SELECT COUNT(*) FROM sounds`).Scan(&n)
	})
	return n, err
}

// RandomPick returns a uniformly chosen sound. ok is false when the library
// is empty; that is a normal outcome, not an error.
func (s *Sounds) RandomPick(ctx context.Context) (snd Sound, ok bool, err error) {
	err = s.gw.Read(ctx, func(ctx context.Context, q storage.Querier) error {
		var created int64
		err := q.QueryRowContext(ctx,
			`SELECT id, name, data, created_at FROM sounds ORDER BY RANDOM() LIMIT 1`,
		).Scan(&snd.ID, &snd.Name, &snd.Data, &created)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		snd.CreatedAt = time.Unix(created, 0)
		ok = true
		return nil
	})
	return snd, ok, err
}
