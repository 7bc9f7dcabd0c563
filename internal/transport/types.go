package transport

import "context"

// The Discord client, the command adapter and the audio codec all live
// outside the core. These are the only seams the core talks through.

// Messenger delivers a text message to a channel.
type Messenger interface {
	SendText(ctx context.Context, channelID, text string) error
}

// VoiceChannel is one voice channel with its current occupancy.
type VoiceChannel struct {
	ID      string
	Name    string
	Members int
}

// ChannelBrowser enumerates the voice channels of the configured guild.
type ChannelBrowser interface {
	VoiceChannels(ctx context.Context) ([]VoiceChannel, error)
}

// Session is an active connection to one voice channel. The scheduler holds
// at most one per guild.
type Session interface {
	ChannelID() string
	MoveTo(ctx context.Context, channelID string) error
	// Play streams the payload at the given volume (0-100) and returns when
	// playback finishes or ctx is done.
	Play(ctx context.Context, name string, data []byte, volume int) error
	Disconnect(ctx context.Context) error
}

// Connector opens voice sessions.
type Connector interface {
	Join(ctx context.Context, channelID string) (Session, error)
}
