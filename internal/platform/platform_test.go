package platform

import (
	"context"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kuretru/Xiaozhi-HASS-Gateway/entity"
	"github.com/kuretru/Xiaozhi-HASS-Gateway/internal/xiaozhi"
)

type call struct {
	Method string
	Arg    any
}

// fakeClient records calls and answers every one of them with result.
type fakeClient struct {
	mu     sync.Mutex
	calls  []call
	result xiaozhi.Result
}

func (f *fakeClient) record(method string, arg any) xiaozhi.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{Method: method, Arg: arg})
	return f.result
}

func (f *fakeClient) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakeClient) SendChatMessage(_ context.Context, message string) xiaozhi.Result {
	return f.record("SendChatMessage", message)
}
func (f *fakeClient) SendIdle(context.Context) xiaozhi.Result { return f.record("SendIdle", nil) }
func (f *fakeClient) PlayMusic(_ context.Context, keywords string) xiaozhi.Result {
	return f.record("PlayMusic", keywords)
}
func (f *fakeClient) StopMusic(context.Context) xiaozhi.Result     { return f.record("StopMusic", nil) }
func (f *fakeClient) ResumeMusic(context.Context) xiaozhi.Result   { return f.record("ResumeMusic", nil) }
func (f *fakeClient) NextTrack(context.Context) xiaozhi.Result     { return f.record("NextTrack", nil) }
func (f *fakeClient) PreviousTrack(context.Context) xiaozhi.Result { return f.record("PreviousTrack", nil) }
func (f *fakeClient) SetPlayerMode(_ context.Context, mode string) xiaozhi.Result {
	return f.record("SetPlayerMode", mode)
}
func (f *fakeClient) SetVolume(_ context.Context, volume int) xiaozhi.Result {
	return f.record("SetVolume", volume)
}
func (f *fakeClient) SetBrightness(_ context.Context, brightness int) xiaozhi.Result {
	return f.record("SetBrightness", brightness)
}
func (f *fakeClient) SetTheme(_ context.Context, theme string) xiaozhi.Result {
	return f.record("SetTheme", theme)
}

func newTestDevice(t *testing.T) (*Device, *fakeClient) {
	client := &fakeClient{result: xiaozhi.Result{Code: 200}}
	device := NewDevice(client, entity.DeviceConfig{DeviceID: "dev1", DeviceName: "Kitchen"}, zaptest.NewLogger(t))
	return device, client
}

func TestNewDevice_Entities(t *testing.T) {
	device, _ := newTestDevice(t)

	assert.Equal(t, "dev1", device.ID)
	assert.Equal(t, "Kitchen", device.Name)
	assert.Len(t, device.Buttons, 5)
	assert.Len(t, device.Numbers, 2)
	assert.Len(t, device.Selects, 2)
	assert.Len(t, device.Texts, 2)
	assert.Equal(t, "dev1_idle", device.Buttons[0].UniqueID)
	assert.Equal(t, "dev1_volume", device.Numbers[0].UniqueID)

	assert.Equal(t, map[string]any{
		"volume":       50,
		"brightness":   50,
		"player_mode":  "sequence",
		"theme":        "light",
		"chat_message": "",
		"play_music":   "",
	}, device.State())
}

func TestNewDevice_NameFallsBackToID(t *testing.T) {
	device := NewDevice(&fakeClient{}, entity.DeviceConfig{DeviceID: "dev2"}, nil)
	assert.Equal(t, "dev2", device.Name)
}

func TestButton_Press(t *testing.T) {
	expected := map[string]string{
		"idle":           "SendIdle",
		"stop_music":     "StopMusic",
		"resume_music":   "ResumeMusic",
		"next_track":     "NextTrack",
		"previous_track": "PreviousTrack",
	}
	for _, description := range ButtonDescriptions {
		t.Run(description.Key, func(t *testing.T) {
			device, client := newTestDevice(t)
			_, err := device.Handle(context.Background(), description.Key, "PRESS")
			require.NoError(t, err)

			calls := client.Calls()
			require.Len(t, calls, 1)
			assert.Equal(t, expected[description.Key], calls[0].Method)
		})
	}
}

func TestNumber_SetValue(t *testing.T) {
	device, client := newTestDevice(t)

	var notified map[string]any
	device.SetListener(func(state map[string]any) { notified = state })

	result, err := device.Numbers[0].SetValue(context.Background(), 75.8)
	require.NoError(t, err)
	assert.True(t, result.OK())
	assert.Equal(t, 75, device.Numbers[0].Value())

	_, err = device.Handle(context.Background(), "brightness", "20")
	require.NoError(t, err)

	assert.Equal(t, []call{{"SetVolume", 75}, {"SetBrightness", 20}}, client.Calls())
	assert.Equal(t, 20, notified["brightness"])
	assert.Equal(t, 75, notified["volume"])
}

func TestNumber_OutOfRange(t *testing.T) {
	device, client := newTestDevice(t)

	_, err := device.Handle(context.Background(), "volume", 101)
	assert.ErrorIs(t, err, ErrInvalidValue)
	_, err = device.Handle(context.Background(), "volume", "loud")
	assert.ErrorIs(t, err, ErrInvalidValue)
	for _, value := range []any{"NaN", "Inf", "-Inf", "1e300", float64(1e300)} {
		_, err = device.Handle(context.Background(), "volume", value)
		assert.ErrorIs(t, err, ErrInvalidValue, "value %v", value)
	}
	_, err = device.Numbers[1].SetValue(context.Background(), math.NaN())
	assert.ErrorIs(t, err, ErrInvalidValue)

	assert.Empty(t, client.Calls())
	assert.Equal(t, 50, device.Numbers[0].Value())
}

func TestNumber_MirrorsOnFailure(t *testing.T) {
	device, client := newTestDevice(t)
	client.result = xiaozhi.Result{Code: -1, Message: "connection refused"}

	result, err := device.Handle(context.Background(), "volume", float64(10))
	require.NoError(t, err)
	assert.False(t, result.OK())
	assert.Equal(t, 10, device.Numbers[0].Value())
}

func TestSelect_SelectOption(t *testing.T) {
	device, client := newTestDevice(t)

	_, err := device.Handle(context.Background(), "player_mode", "random")
	require.NoError(t, err)
	_, err = device.Handle(context.Background(), "theme", "dark")
	require.NoError(t, err)

	assert.Equal(t, []call{{"SetPlayerMode", "RANDOM"}, {"SetTheme", "dark"}}, client.Calls())
	assert.Equal(t, "random", device.Selects[0].Current())
	assert.Equal(t, "dark", device.Selects[1].Current())
}

func TestSelect_InvalidOption(t *testing.T) {
	device, client := newTestDevice(t)

	_, err := device.Handle(context.Background(), "theme", "sepia")
	assert.ErrorIs(t, err, ErrInvalidValue)
	assert.Empty(t, client.Calls())
	assert.Equal(t, "light", device.Selects[1].Current())
}

func TestText_SetValue(t *testing.T) {
	device, client := newTestDevice(t)

	_, err := device.Handle(context.Background(), "chat_message", "你好")
	require.NoError(t, err)
	_, err = device.Handle(context.Background(), "play_music", "jazz")
	require.NoError(t, err)

	assert.Equal(t, []call{{"SendChatMessage", "你好"}, {"PlayMusic", "jazz"}}, client.Calls())
	assert.Equal(t, "你好", device.Texts[0].Value())
	assert.Equal(t, "jazz", device.State()["play_music"])
}

func TestText_TooLong(t *testing.T) {
	device, client := newTestDevice(t)

	_, err := device.Handle(context.Background(), "chat_message", strings.Repeat("a", TextMaxLength+1))
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, err = device.Handle(context.Background(), "chat_message", strings.Repeat("字", TextMaxLength))
	assert.NoError(t, err)
	assert.Len(t, client.Calls(), 1)
}

func TestDevice_UnknownEntity(t *testing.T) {
	device, client := newTestDevice(t)

	_, err := device.Handle(context.Background(), "power", "ON")
	assert.ErrorIs(t, err, ErrUnknownEntity)
	assert.Empty(t, client.Calls())
}
