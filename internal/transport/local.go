package transport

import (
	"context"
	"errors"

	"ambush/pkg/logx"
)

// Local implementations used when the process runs without a gateway
// adapter wired in (and by tests). Messages go to the log, voice is off.

// LogMessenger writes outbound messages to the log instead of a channel.
type LogMessenger struct {
	Log logx.Logger
}

func (m LogMessenger) SendText(ctx context.Context, channelID, text string) error {
	m.Log.Info("outbound message", logx.String("channel", channelID), logx.String("text", text))
	return nil
}

// EmptyBrowser reports no voice channels, so playback cycles always skip.
type EmptyBrowser struct{}

func (EmptyBrowser) VoiceChannels(ctx context.Context) ([]VoiceChannel, error) {
	return nil, nil
}

// NoConnector refuses to open voice sessions.
type NoConnector struct{}

func (NoConnector) Join(ctx context.Context, channelID string) (Session, error) {
	return nil, errors.New("no voice adapter configured")
}
