package platform

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/kuretru/Xiaozhi-HASS-Gateway/internal/xiaozhi"
)

type SelectCommand int

const (
	SelectPlayerMode SelectCommand = iota
	SelectTheme
)

type SelectDescription struct {
	Description
	Command SelectCommand
	Options []string
}

var SelectDescriptions = []SelectDescription{
	{Description{Key: "player_mode", Name: "Player mode", Icon: "mdi:playlist-play"}, SelectPlayerMode, xiaozhi.PlayerModeOptions},
	{Description{Key: "theme", Name: "Theme", Icon: "mdi:theme-light-dark"}, SelectTheme, xiaozhi.ThemeOptions},
}

type Select struct {
	SelectDescription
	UniqueID string

	device  *Device
	apply   func(ctx context.Context, option string) xiaozhi.Result
	current string
}

func newSelect(device *Device, client Client, description SelectDescription) *Select {
	var apply func(ctx context.Context, option string) xiaozhi.Result
	switch description.Command {
	case SelectPlayerMode:
		apply = func(ctx context.Context, option string) xiaozhi.Result {
			return client.SetPlayerMode(ctx, xiaozhi.PlayerModeValue(option))
		}
	case SelectTheme:
		apply = func(ctx context.Context, option string) xiaozhi.Result {
			return client.SetTheme(ctx, xiaozhi.ThemeValue(option))
		}
	}

	var current string
	if len(description.Options) > 0 {
		current = description.Options[0]
	}
	return &Select{
		SelectDescription: description,
		UniqueID:          device.UniqueID(description.Key),
		device:            device,
		apply:             apply,
		current:           current,
	}
}

// SelectOption sends the wire value for option and mirrors the option label locally.
func (s *Select) SelectOption(ctx context.Context, option string) (xiaozhi.Result, error) {
	if !slices.Contains(s.Options, option) {
		return xiaozhi.Result{}, fmt.Errorf("%w: %q is not an option of %v", ErrInvalidValue, option, s.Key)
	}
	s.device.logger.Debug("Platform.Select: select", zap.String("key", s.Key), zap.String("option", option))

	result := s.apply(ctx, option)
	s.device.mirror(func() { s.current = option })
	return result, nil
}

func (s *Select) Current() string {
	s.device.mu.Lock()
	defer s.device.mu.Unlock()
	return s.current
}
