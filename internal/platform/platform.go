// Package platform holds the Home Assistant entities of a Xiaozhi device:
// buttons, numbers, selects and text fields. Every user action runs exactly
// one client operation and mirrors the value into the cached display state.
package platform

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/kuretru/Xiaozhi-HASS-Gateway/entity"
	"github.com/kuretru/Xiaozhi-HASS-Gateway/internal/utils"
	"github.com/kuretru/Xiaozhi-HASS-Gateway/internal/xiaozhi"
)

const (
	Manufacturer = "Xiaozhi"
	Model        = "Smart Device"
)

var (
	ErrUnknownEntity = errors.New("unknown entity")
	ErrInvalidValue  = errors.New("invalid value")
)

// Client is the subset of *xiaozhi.Client the entities drive.
type Client interface {
	SendChatMessage(ctx context.Context, message string) xiaozhi.Result
	SendIdle(ctx context.Context) xiaozhi.Result
	PlayMusic(ctx context.Context, keywords string) xiaozhi.Result
	StopMusic(ctx context.Context) xiaozhi.Result
	ResumeMusic(ctx context.Context) xiaozhi.Result
	NextTrack(ctx context.Context) xiaozhi.Result
	PreviousTrack(ctx context.Context) xiaozhi.Result
	SetPlayerMode(ctx context.Context, mode string) xiaozhi.Result
	SetVolume(ctx context.Context, volume int) xiaozhi.Result
	SetBrightness(ctx context.Context, brightness int) xiaozhi.Result
	SetTheme(ctx context.Context, theme string) xiaozhi.Result
}

// Description is the static part shared by every entity kind.
type Description struct {
	Key  string
	Name string
	Icon string
}

// Device is the entity set of one configured device.
type Device struct {
	ID   string
	Name string

	Buttons []*Button
	Numbers []*Number
	Selects []*Select
	Texts   []*Text

	logger *zap.Logger

	mu       sync.Mutex
	listener func(state map[string]any)
	handlers map[string]func(ctx context.Context, value any) (xiaozhi.Result, error)
}

func NewDevice(client Client, config entity.DeviceConfig, logger *zap.Logger) *Device {
	if logger == nil {
		logger = zap.NewNop()
	}
	device := &Device{
		ID:       config.DeviceID,
		Name:     config.Title(),
		logger:   logger.With(zap.String("deviceId", config.DeviceID)),
		handlers: make(map[string]func(ctx context.Context, value any) (xiaozhi.Result, error)),
	}

	for _, description := range ButtonDescriptions {
		button := newButton(device, client, description)
		device.Buttons = append(device.Buttons, button)
		device.handlers[description.Key] = func(ctx context.Context, _ any) (xiaozhi.Result, error) {
			return button.Press(ctx), nil
		}
	}
	for _, description := range NumberDescriptions {
		number := newNumber(device, client, description)
		device.Numbers = append(device.Numbers, number)
		device.handlers[description.Key] = func(ctx context.Context, value any) (xiaozhi.Result, error) {
			f, err := toFloat(value)
			if err != nil {
				return xiaozhi.Result{}, err
			}
			return number.SetValue(ctx, f)
		}
	}
	for _, description := range SelectDescriptions {
		sel := newSelect(device, client, description)
		device.Selects = append(device.Selects, sel)
		device.handlers[description.Key] = func(ctx context.Context, value any) (xiaozhi.Result, error) {
			s, err := toString(value)
			if err != nil {
				return xiaozhi.Result{}, err
			}
			return sel.SelectOption(ctx, s)
		}
	}
	for _, description := range TextDescriptions {
		text := newText(device, client, description)
		device.Texts = append(device.Texts, text)
		device.handlers[description.Key] = func(ctx context.Context, value any) (xiaozhi.Result, error) {
			s, err := toString(value)
			if err != nil {
				return xiaozhi.Result{}, err
			}
			return text.SetValue(ctx, s)
		}
	}
	return device
}

// UniqueID is the stable id Home Assistant uses for an entity of this device.
func (d *Device) UniqueID(key string) string {
	return fmt.Sprintf("%v_%v", d.ID, key)
}

// Handle routes a command addressed by entity key. Buttons ignore value.
func (d *Device) Handle(ctx context.Context, key string, value any) (xiaozhi.Result, error) {
	handler, ok := d.handlers[key]
	if !ok {
		return xiaozhi.Result{}, fmt.Errorf("%w: %v", ErrUnknownEntity, key)
	}
	return handler(ctx, value)
}

// SetListener registers the single callback fired after every state change.
func (d *Device) SetListener(listener func(state map[string]any)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listener = listener
}

// State is a snapshot of the cached display values keyed by entity key.
func (d *Device) State() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stateLocked()
}

func (d *Device) stateLocked() map[string]any {
	state := make(map[string]any, len(d.Numbers)+len(d.Selects)+len(d.Texts))
	for _, number := range d.Numbers {
		state[number.Key] = number.value
	}
	for _, sel := range d.Selects {
		state[sel.Key] = sel.current
	}
	for _, text := range d.Texts {
		state[text.Key] = text.value
	}
	return state
}

// mirror applies update under the device lock and notifies the listener.
func (d *Device) mirror(update func()) {
	d.mu.Lock()
	update()
	listener := d.listener
	state := d.stateLocked()
	d.mu.Unlock()

	if listener != nil {
		listener(state)
	}
}

func toFloat(value any) (float64, error) {
	f, ok := utils.ToFloat64(value)
	if !ok {
		return 0, fmt.Errorf("%w: %v is not a number", ErrInvalidValue, value)
	}
	return f, nil
}

func toString(value any) (string, error) {
	s, ok := utils.ToString(value)
	if !ok {
		return "", fmt.Errorf("%w: %v is not a string", ErrInvalidValue, value)
	}
	return s, nil
}
