package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kuretru/Xiaozhi-HASS-Gateway/entity"
	"github.com/kuretru/Xiaozhi-HASS-Gateway/internal/database"
	"github.com/kuretru/Xiaozhi-HASS-Gateway/internal/xiaozhi"
)

type received struct {
	Path string
	Body map[string]any
}

func newDispatcher(t *testing.T) (*Dispatcher, func() []received) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []received
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		mu.Lock()
		calls = append(calls, received{Path: r.URL.Path, Body: body})
		mu.Unlock()
		_, _ = io.WriteString(w, `{"code":200}`)
	}))
	t.Cleanup(server.Close)

	logger := zaptest.NewLogger(t)
	registry := database.NewRegistry(logger)
	config := entity.DeviceConfig{APIURL: server.URL, APIKey: "k", DeviceID: "dev1"}
	registry.Set(context.Background(), &database.DeviceCell{
		Config: config,
		Client: xiaozhi.NewClient(server.Client(), config.APIURL, config.APIKey, config.DeviceID, logger),
	})

	return NewDispatcher(registry, logger), func() []received {
		mu.Lock()
		defer mu.Unlock()
		return append([]received(nil), calls...)
	}
}

func TestDispatcher_Services(t *testing.T) {
	dispatcher, _ := newDispatcher(t)
	assert.Equal(t, []string{
		PlayMusic, SendChatMessage, SetBrightness, SetPlayerMode, SetTheme, SetVolume,
	}, dispatcher.Services())
}

func TestDispatcher_Call(t *testing.T) {
	tests := []struct {
		service string
		data    map[string]any
		path    string
		body    map[string]any
	}{
		{SendChatMessage, map[string]any{"message": "hi"},
			xiaozhi.EndpointSendChat, map[string]any{"deviceId": "dev1", "message": "hi"}},
		{PlayMusic, map[string]any{"keywords": "jazz"},
			xiaozhi.EndpointPlayMusic, map[string]any{"deviceId": "dev1", "keywords": "jazz"}},
		{SetVolume, map[string]any{"volume": float64(40)},
			xiaozhi.EndpointVolume, map[string]any{"deviceId": "dev1", "value": float64(40)}},
		{SetBrightness, map[string]any{"brightness": "60"},
			xiaozhi.EndpointBrightness, map[string]any{"deviceId": "dev1", "value": float64(60)}},
		{SetPlayerMode, map[string]any{"mode": "single_loop"},
			xiaozhi.EndpointPlayerMode, map[string]any{"deviceId": "dev1", "playerMode": "SINGLE_LOOP"}},
		{SetPlayerMode, map[string]any{"mode": "SHUFFLE"},
			xiaozhi.EndpointPlayerMode, map[string]any{"deviceId": "dev1", "playerMode": "SHUFFLE"}},
		{SetTheme, map[string]any{"theme": "dark"},
			xiaozhi.EndpointTheme, map[string]any{"deviceId": "dev1", "value": "dark"}},
	}
	for _, tt := range tests {
		t.Run(tt.service, func(t *testing.T) {
			dispatcher, calls := newDispatcher(t)
			tt.data["device_id"] = "dev1"

			result, err := dispatcher.Call(context.Background(), tt.service, tt.data)
			require.NoError(t, err)
			assert.True(t, result.OK())

			got := calls()
			require.Len(t, got, 1)
			assert.Equal(t, tt.path, got[0].Path)
			assert.Equal(t, tt.body, got[0].Body)
		})
	}
}

func TestDispatcher_DeviceNotFound(t *testing.T) {
	dispatcher, calls := newDispatcher(t)

	_, err := dispatcher.Call(context.Background(), SetVolume, map[string]any{"device_id": "ghost", "volume": 10})
	assert.ErrorIs(t, err, ErrDeviceNotFound)
	assert.Empty(t, calls())
}

func TestDispatcher_UnknownService(t *testing.T) {
	dispatcher, calls := newDispatcher(t)

	_, err := dispatcher.Call(context.Background(), "reboot", map[string]any{"device_id": "dev1"})
	assert.ErrorIs(t, err, ErrUnknownService)
	assert.Empty(t, calls())
}

func TestDispatcher_InvalidCall(t *testing.T) {
	dispatcher, calls := newDispatcher(t)

	_, err := dispatcher.Call(context.Background(), SetVolume, map[string]any{"device_id": "dev1", "volume": "loud"})
	assert.ErrorIs(t, err, ErrInvalidCall)
	for _, volume := range []any{"NaN", "Inf", float64(1e300)} {
		_, err = dispatcher.Call(context.Background(), SetVolume, map[string]any{"device_id": "dev1", "volume": volume})
		assert.ErrorIs(t, err, ErrInvalidCall, "volume %v", volume)
	}
	_, err = dispatcher.Call(context.Background(), SendChatMessage, map[string]any{"device_id": "dev1"})
	assert.ErrorIs(t, err, ErrInvalidCall)
	assert.Empty(t, calls())
}
