package notify

import (
	"fmt"

	"ambush/internal/eventbus"
)

// Format renders the fixed human-readable template for one event,
// including the source tag. Unknown types render empty.
func Format(e eventbus.Event) string {
	switch e.Type {
	case eventbus.SoundUploaded:
		return fmt.Sprintf("📥 Sound uploaded: **%s** (via %s)", e.Sound.Name, e.Source)
	case eventbus.SoundDeleted:
		return fmt.Sprintf("🗑️ Sound deleted: **%s** (via %s)", e.Sound.Name, e.Source)
	case eventbus.SoundRenamed:
		return fmt.Sprintf("✏️ Sound renamed: **%s** → **%s** (via %s)", e.Sound.OldName, e.Sound.Name, e.Source)
	case eventbus.IntervalChanged:
		return fmt.Sprintf("⏱️ Playback interval changed: %ds → %ds (via %s)", e.Config.Old, e.Config.New, e.Source)
	case eventbus.VolumeChanged:
		return fmt.Sprintf("🔊 Volume changed: %d%% → %d%% (via %s)", e.Config.Old, e.Config.New, e.Source)
	default:
		return ""
	}
}
