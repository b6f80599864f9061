package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/kuretru/Xiaozhi-HASS-Gateway/internal/database"
	"github.com/kuretru/Xiaozhi-HASS-Gateway/internal/utils"
	"github.com/kuretru/Xiaozhi-HASS-Gateway/internal/xiaozhi"
)

const Domain = "xiaozhi_api"

const (
	SendChatMessage = "send_chat_message"
	PlayMusic       = "play_music"
	SetVolume       = "set_volume"
	SetBrightness   = "set_brightness"
	SetPlayerMode   = "set_player_mode"
	SetTheme        = "set_theme"
)

var (
	ErrUnknownService = errors.New("unknown service")
	ErrDeviceNotFound = errors.New("device not found")
	ErrInvalidCall    = errors.New("invalid service call")
)

type handler func(ctx context.Context, client *xiaozhi.Client, data map[string]any) (xiaozhi.Result, error)

// Dispatcher maps named services to client operations on the device named by device_id.
type Dispatcher struct {
	registry *database.Registry
	logger   *zap.Logger
	handlers map[string]handler
}

func NewDispatcher(registry *database.Registry, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		registry: registry,
		logger:   logger,
		handlers: map[string]handler{
			SendChatMessage: func(ctx context.Context, client *xiaozhi.Client, data map[string]any) (xiaozhi.Result, error) {
				message, err := stringField(data, "message")
				if err != nil {
					return xiaozhi.Result{}, err
				}
				return client.SendChatMessage(ctx, message), nil
			},
			PlayMusic: func(ctx context.Context, client *xiaozhi.Client, data map[string]any) (xiaozhi.Result, error) {
				keywords, err := stringField(data, "keywords")
				if err != nil {
					return xiaozhi.Result{}, err
				}
				return client.PlayMusic(ctx, keywords), nil
			},
			SetVolume: func(ctx context.Context, client *xiaozhi.Client, data map[string]any) (xiaozhi.Result, error) {
				volume, err := intField(data, "volume")
				if err != nil {
					return xiaozhi.Result{}, err
				}
				return client.SetVolume(ctx, volume), nil
			},
			SetBrightness: func(ctx context.Context, client *xiaozhi.Client, data map[string]any) (xiaozhi.Result, error) {
				brightness, err := intField(data, "brightness")
				if err != nil {
					return xiaozhi.Result{}, err
				}
				return client.SetBrightness(ctx, brightness), nil
			},
			SetPlayerMode: func(ctx context.Context, client *xiaozhi.Client, data map[string]any) (xiaozhi.Result, error) {
				mode, err := stringField(data, "mode")
				if err != nil {
					return xiaozhi.Result{}, err
				}
				return client.SetPlayerMode(ctx, xiaozhi.PlayerModeValue(mode)), nil
			},
			SetTheme: func(ctx context.Context, client *xiaozhi.Client, data map[string]any) (xiaozhi.Result, error) {
				theme, err := stringField(data, "theme")
				if err != nil {
					return xiaozhi.Result{}, err
				}
				return client.SetTheme(ctx, theme), nil
			},
		},
	}
}

func (d *Dispatcher) Services() []string {
	result := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

// Call runs service against the device named by data["device_id"]. Errors are only
// returned for calls that never reached the client; API failures live in the Result.
func (d *Dispatcher) Call(ctx context.Context, service string, data map[string]any) (xiaozhi.Result, error) {
	h, ok := d.handlers[service]
	if !ok {
		return xiaozhi.Result{}, fmt.Errorf("%w: %v", ErrUnknownService, service)
	}

	deviceID, _ := utils.ToString(data["device_id"])
	cell, ok := d.registry.Get(ctx, deviceID)
	if !ok {
		d.logger.Error("Service: device not found", zap.String("service", service), zap.String("deviceId", deviceID))
		return xiaozhi.Result{}, fmt.Errorf("%w: %v", ErrDeviceNotFound, deviceID)
	}
	d.registry.Touch(ctx, deviceID)

	result, err := h(ctx, cell.Client, data)
	if err != nil {
		d.logger.Warn("Service: invalid call", zap.String("service", service), zap.Error(err))
		return xiaozhi.Result{}, err
	}
	return result, nil
}

func stringField(data map[string]any, key string) (string, error) {
	value, ok := utils.ToString(data[key])
	if !ok {
		return "", fmt.Errorf("%w: %v is required", ErrInvalidCall, key)
	}
	return value, nil
}

func intField(data map[string]any, key string) (int, error) {
	value, ok := utils.ToInt(data[key])
	if !ok {
		return 0, fmt.Errorf("%w: %v must be a number", ErrInvalidCall, key)
	}
	return value, nil
}
