package platform

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kuretru/Xiaozhi-HASS-Gateway/internal/xiaozhi"
)

type NumberCommand int

const (
	NumberVolume NumberCommand = iota
	NumberBrightness
)

type NumberDescription struct {
	Description
	Command NumberCommand
	Min     float64
	Max     float64
	Step    float64
	Initial int
}

var NumberDescriptions = []NumberDescription{
	{Description{Key: "volume", Name: "Volume", Icon: "mdi:volume-high"}, NumberVolume, 0, 100, 1, 50},
	{Description{Key: "brightness", Name: "Brightness", Icon: "mdi:brightness-6"}, NumberBrightness, 0, 100, 1, 50},
}

// NumberModeSlider is the only display mode used by the gateway.
const NumberModeSlider = "slider"

// Number is a slider whose value is only known locally; the device never reports it back.
type Number struct {
	NumberDescription
	UniqueID string

	device *Device
	set    func(ctx context.Context, value int) xiaozhi.Result
	value  int
}

func newNumber(device *Device, client Client, description NumberDescription) *Number {
	set := client.SetVolume
	if description.Command == NumberBrightness {
		set = client.SetBrightness
	}
	return &Number{
		NumberDescription: description,
		UniqueID:          device.UniqueID(description.Key),
		device:            device,
		set:               set,
		value:             description.Initial,
	}
}

// SetValue truncates value to an integer, sends it and mirrors it locally.
// The value is mirrored even when the device rejects it.
func (n *Number) SetValue(ctx context.Context, value float64) (xiaozhi.Result, error) {
	if !(value >= n.Min && value <= n.Max) {
		return xiaozhi.Result{}, fmt.Errorf("%w: %v must be between %v and %v", ErrInvalidValue, n.Key, n.Min, n.Max)
	}
	intValue := int(value)
	n.device.logger.Debug("Platform.Number: set", zap.String("key", n.Key), zap.Int("value", intValue))

	result := n.set(ctx, intValue)
	n.device.mirror(func() { n.value = intValue })
	return result, nil
}

func (n *Number) Value() int {
	n.device.mu.Lock()
	defer n.device.mu.Unlock()
	return n.value
}
