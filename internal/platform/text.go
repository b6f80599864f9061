package platform

import (
	"context"
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/kuretru/Xiaozhi-HASS-Gateway/internal/xiaozhi"
)

type TextCommand int

const (
	TextChatMessage TextCommand = iota
	TextPlayMusic
)

const (
	TextModeText  = "text"
	TextMaxLength = 500
)

type TextDescription struct {
	Description
	Command TextCommand
}

var TextDescriptions = []TextDescription{
	{Description{Key: "chat_message", Name: "Chat message", Icon: "mdi:message-text"}, TextChatMessage},
	{Description{Key: "play_music", Name: "Play music", Icon: "mdi:music-box-outline"}, TextPlayMusic},
}

type Text struct {
	TextDescription
	UniqueID string

	device *Device
	send   func(ctx context.Context, value string) xiaozhi.Result
	value  string
}

func newText(device *Device, client Client, description TextDescription) *Text {
	send := client.SendChatMessage
	if description.Command == TextPlayMusic {
		send = client.PlayMusic
	}
	return &Text{
		TextDescription: description,
		UniqueID:        device.UniqueID(description.Key),
		device:          device,
		send:            send,
	}
}

func (t *Text) SetValue(ctx context.Context, value string) (xiaozhi.Result, error) {
	if utf8.RuneCountInString(value) > TextMaxLength {
		return xiaozhi.Result{}, fmt.Errorf("%w: %v is longer than %v characters", ErrInvalidValue, t.Key, TextMaxLength)
	}
	t.device.logger.Debug("Platform.Text: set", zap.String("key", t.Key))

	result := t.send(ctx, value)
	t.device.mirror(func() { t.value = value })
	return result, nil
}

func (t *Text) Value() string {
	t.device.mu.Lock()
	defer t.device.mu.Unlock()
	return t.value
}
