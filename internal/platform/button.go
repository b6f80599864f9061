package platform

import (
	"context"

	"go.uber.org/zap"

	"github.com/kuretru/Xiaozhi-HASS-Gateway/internal/xiaozhi"
)

type ButtonCommand int

const (
	ButtonIdle ButtonCommand = iota
	ButtonStopMusic
	ButtonResumeMusic
	ButtonNextTrack
	ButtonPreviousTrack
)

type ButtonDescription struct {
	Description
	Command ButtonCommand
}

var ButtonDescriptions = []ButtonDescription{
	{Description{Key: "idle", Name: "Idle", Icon: "mdi:sleep"}, ButtonIdle},
	{Description{Key: "stop_music", Name: "Stop music", Icon: "mdi:stop"}, ButtonStopMusic},
	{Description{Key: "resume_music", Name: "Resume music", Icon: "mdi:play"}, ButtonResumeMusic},
	{Description{Key: "next_track", Name: "Next track", Icon: "mdi:skip-next"}, ButtonNextTrack},
	{Description{Key: "previous_track", Name: "Previous track", Icon: "mdi:skip-previous"}, ButtonPreviousTrack},
}

func buttonActions(client Client) map[ButtonCommand]func(ctx context.Context) xiaozhi.Result {
	return map[ButtonCommand]func(ctx context.Context) xiaozhi.Result{
		ButtonIdle:          client.SendIdle,
		ButtonStopMusic:     client.StopMusic,
		ButtonResumeMusic:   client.ResumeMusic,
		ButtonNextTrack:     client.NextTrack,
		ButtonPreviousTrack: client.PreviousTrack,
	}
}

// Button is a stateless press action.
type Button struct {
	ButtonDescription
	UniqueID string

	device *Device
	press  func(ctx context.Context) xiaozhi.Result
}

func newButton(device *Device, client Client, description ButtonDescription) *Button {
	return &Button{
		ButtonDescription: description,
		UniqueID:          device.UniqueID(description.Key),
		device:            device,
		press:             buttonActions(client)[description.Command],
	}
}

func (b *Button) Press(ctx context.Context) xiaozhi.Result {
	b.device.logger.Debug("Platform.Button: pressed", zap.String("key", b.Key))
	return b.press(ctx)
}
