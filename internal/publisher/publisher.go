package publisher

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kuretru/Xiaozhi-HASS-Gateway/entity"
	"github.com/kuretru/Xiaozhi-HASS-Gateway/internal/database"
	"github.com/kuretru/Xiaozhi-HASS-Gateway/internal/service"
)

var (
	publishers []XiaozhiPublisher
)

type XiaozhiPublisher interface {
	Run(ctx context.Context, config *entity.PublisherConfig) error
	Stop(ctx context.Context)
	Announce(ctx context.Context, cell *database.DeviceCell)
	Withdraw(ctx context.Context, cell *database.DeviceCell)
	PublishState(ctx context.Context, cell *database.DeviceCell, state map[string]any)
}

// Environment carries what publishers need to resolve and drive devices.
type Environment struct {
	Registry   *database.Registry
	Dispatcher *service.Dispatcher
	Logger     *zap.Logger
}

func Init(ctx context.Context, configs []*entity.PublisherConfig, env Environment) error {
	if len(configs) == 0 {
		return fmt.Errorf("publisher config is empty")
	}
	if env.Logger == nil {
		env.Logger = zap.NewNop()
	}

	publishers = make([]XiaozhiPublisher, 0, len(configs))
	for _, config := range configs {
		var publisher XiaozhiPublisher
		switch config.Type {
		case "hass_mqtt":
			publisher = NewHomeAssistantMQTTPublisher(env)
		default:
			return fmt.Errorf("unknown publisher type %v", config.Type)
		}

		if err := publisher.Run(ctx, config); err != nil {
			return fmt.Errorf("publisher: run %v publisher failed, %w", config.Type, err)
		}
		publishers = append(publishers, publisher)
	}
	return nil
}

func Stop(ctx context.Context) {
	for _, publisher := range publishers {
		publisher.Stop(ctx)
	}
}

// Broadcaster fans device lifecycle events out to every running publisher.
type Broadcaster struct{}

func (Broadcaster) Announce(ctx context.Context, cell *database.DeviceCell) {
	cell.Device.SetListener(func(state map[string]any) {
		for _, publisher := range publishers {
			publisher.PublishState(context.Background(), cell, state)
		}
	})
	for _, publisher := range publishers {
		publisher.Announce(ctx, cell)
	}
}

func (Broadcaster) Withdraw(ctx context.Context, cell *database.DeviceCell) {
	cell.Device.SetListener(nil)
	for _, publisher := range publishers {
		publisher.Withdraw(ctx, cell)
	}
}
