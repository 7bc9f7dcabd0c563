package eventbus

import "time"

// Type enumerates every event the bus can carry. The catalogue is closed:
// events are built through the typed constructors below, so a tag can never
// travel with the wrong payload shape.
type Type int

const (
	SoundUploaded Type = iota
	SoundDeleted
	SoundRenamed
	IntervalChanged
	VolumeChanged
	BotReady
	Shutdown
)

func (t Type) String() string {
	switch t {
	case SoundUploaded:
		return "sound.uploaded"
	case SoundDeleted:
		return "sound.deleted"
	case SoundRenamed:
		return "sound.renamed"
	case IntervalChanged:
		return "config.interval_changed"
	case VolumeChanged:
		return "config.volume_changed"
	case BotReady:
		return "system.ready"
	case Shutdown:
		return "system.shutdown"
	default:
		return "unknown"
	}
}

// Source marks which adapter triggered the mutation behind an event.
type Source int

const (
	SourceSystem Source = iota
	SourceWeb
	SourceCommand
)

func (s Source) String() string {
	switch s {
	case SourceWeb:
		return "web"
	case SourceCommand:
		return "command"
	default:
		return "system"
	}
}

// SoundPayload describes a library mutation. OldName is set for renames only.
type SoundPayload struct {
	ID      int64
	Name    string
	OldName string
}

// ConfigPayload describes a setting change.
type ConfigPayload struct {
	Key string
	Old int
	New int
}

// Event is an immutable in-process signal. Exactly one of Sound/Config is
// non-nil for domain events; both are nil for system events.
type Event struct {
	Type   Type
	Source Source
	Time   time.Time

	Sound  *SoundPayload
	Config *ConfigPayload
}

func NewSoundUploaded(src Source, id int64, name string) Event {
	return Event{Type: SoundUploaded, Source: src, Time: time.Now(), Sound: &SoundPayload{ID: id, Name: name}}
}

func NewSoundDeleted(src Source, id int64, name string) Event {
	return Event{Type: SoundDeleted, Source: src, Time: time.Now(), Sound: &SoundPayload{ID: id, Name: name}}
}

func NewSoundRenamed(src Source, id int64, oldName, newName string) Event {
	return Event{Type: SoundRenamed, Source: src, Time: time.Now(), Sound: &SoundPayload{ID: id, Name: newName, OldName: oldName}}
}

func NewIntervalChanged(src Source, old, new int) Event {
	return Event{Type: IntervalChanged, Source: src, Time: time.Now(), Config: &ConfigPayload{Key: "interval", Old: old, New: new}}
}

func NewVolumeChanged(src Source, old, new int) Event {
	return Event{Type: VolumeChanged, Source: src, Time: time.Now(), Config: &ConfigPayload{Key: "volume", Old: old, New: new}}
}

func NewBotReady() Event {
	return Event{Type: BotReady, Source: SourceSystem, Time: time.Now()}
}

func NewShutdown() Event {
	return Event{Type: Shutdown, Source: SourceSystem, Time: time.Now()}
}
