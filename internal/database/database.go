package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kuretru/Xiaozhi-HASS-Gateway/entity"
	"github.com/kuretru/Xiaozhi-HASS-Gateway/internal/metrics"
	"github.com/kuretru/Xiaozhi-HASS-Gateway/internal/platform"
	"github.com/kuretru/Xiaozhi-HASS-Gateway/internal/xiaozhi"
)

// DeviceCell is everything the gateway keeps at runtime for one configured device.
type DeviceCell struct {
	LastSeen time.Time
	Config   entity.DeviceConfig
	Client   *xiaozhi.Client
	Device   *platform.Device
}

// Registry maps device ids to their runtime cell. It is created once in main
// and handed to every component that resolves a device id.
type Registry struct {
	lock    sync.RWMutex
	devices map[string]*DeviceCell
	logger  *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		devices: make(map[string]*DeviceCell),
		logger:  logger,
	}
}

// Set stores cell under its device id and reports whether an older cell was replaced.
func (r *Registry) Set(_ context.Context, cell *DeviceCell) bool {
	deviceID := cell.Config.DeviceID
	now := time.Now()
	r.lock.Lock()
	defer r.lock.Unlock()

	_, replaced := r.devices[deviceID]
	cell.LastSeen = now
	r.devices[deviceID] = cell
	metrics.SetRegisteredDevices(len(r.devices))
	if replaced {
		r.logger.Info("Database: device replaced", zap.String("deviceId", deviceID))
	} else {
		r.logger.Info("Database: device registered", zap.String("deviceId", deviceID))
	}
	return replaced
}

// SetIfAbsent stores cell only when its device id is not registered yet.
func (r *Registry) SetIfAbsent(_ context.Context, cell *DeviceCell) bool {
	deviceID := cell.Config.DeviceID
	now := time.Now()
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.devices[deviceID]; ok {
		return false
	}
	cell.LastSeen = now
	r.devices[deviceID] = cell
	metrics.SetRegisteredDevices(len(r.devices))
	r.logger.Info("Database: device registered", zap.String("deviceId", deviceID))
	return true
}

func (r *Registry) Get(_ context.Context, deviceID string) (*DeviceCell, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	cell, ok := r.devices[deviceID]
	return cell, ok
}

func (r *Registry) Contains(ctx context.Context, deviceID string) bool {
	_, ok := r.Get(ctx, deviceID)
	return ok
}

func (r *Registry) Remove(_ context.Context, deviceID string) (*DeviceCell, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	cell, ok := r.devices[deviceID]
	if !ok {
		return nil, false
	}
	delete(r.devices, deviceID)
	metrics.SetRegisteredDevices(len(r.devices))
	r.logger.Info("Database: device removed", zap.String("deviceId", deviceID))
	return cell, true
}

// Touch records that a command was just routed to the device.
func (r *Registry) Touch(_ context.Context, deviceID string) {
	now := time.Now()
	r.lock.Lock()
	defer r.lock.Unlock()
	if cell, ok := r.devices[deviceID]; ok {
		cell.LastSeen = now
	}
}

func (r *Registry) LastSeen(_ context.Context, deviceID string) (time.Time, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	cell, ok := r.devices[deviceID]
	if !ok {
		return time.Time{}, false
	}
	return cell.LastSeen, true
}

// All returns the registered cells ordered by device id.
func (r *Registry) All(_ context.Context) []*DeviceCell {
	r.lock.RLock()
	defer r.lock.RUnlock()
	result := make([]*DeviceCell, 0, len(r.devices))
	for _, cell := range r.devices {
		result = append(result, cell)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Config.DeviceID < result[j].Config.DeviceID
	})
	return result
}
