// Package setup is the configuration flow of the gateway: it validates new
// devices with a connectivity probe, persists them and brings their entities up.
package setup

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/kuretru/Xiaozhi-HASS-Gateway/entity"
	"github.com/kuretru/Xiaozhi-HASS-Gateway/internal/database"
	"github.com/kuretru/Xiaozhi-HASS-Gateway/internal/platform"
	"github.com/kuretru/Xiaozhi-HASS-Gateway/internal/xiaozhi"
)

const (
	ErrorBase          = "base"
	ErrorCannotConnect = "cannot_connect"
	ErrorUnknown       = "unknown"
	ErrorRequired      = "required"
	ErrorInvalidURL    = "invalid_url"

	AbortAlreadyConfigured = "already_configured"
	AbortNotFound          = "not_found"
)

// Announcer makes a device visible to, or removes it from, Home Assistant.
type Announcer interface {
	Announce(ctx context.Context, cell *database.DeviceCell)
	Withdraw(ctx context.Context, cell *database.DeviceCell)
}

type Input struct {
	APIURL     string `json:"api_url"`
	APIKey     string `json:"api_key"`
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
}

// Options are the fields the options step may change. Empty fields keep the current value.
type Options struct {
	APIURL string `json:"api_url"`
	APIKey string `json:"api_key"`
}

// Outcome is what a form submission produced: an entry, form errors or an abort reason.
type Outcome struct {
	Entry  *entity.DeviceConfig `json:"entry,omitempty"`
	Errors map[string]string    `json:"errors,omitempty"`
	Abort  string               `json:"reason,omitempty"`
}

func (o Outcome) Created() bool {
	return o.Entry != nil
}

type Flow struct {
	httpClient *http.Client
	registry   *database.Registry
	store      *database.Store
	announcer  Announcer
	logger     *zap.Logger
}

// NewFlow builds the flow. announcer may be nil when no publisher is configured.
func NewFlow(httpClient *http.Client, registry *database.Registry, store *database.Store, announcer Announcer, logger *zap.Logger) *Flow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Flow{
		httpClient: httpClient,
		registry:   registry,
		store:      store,
		announcer:  announcer,
		logger:     logger,
	}
}

// Submit runs the user step: validate the form, probe the device, then persist and set it up.
func (f *Flow) Submit(ctx context.Context, input Input) (outcome Outcome) {
	input = normalize(input)
	if errors := validate(input); len(errors) > 0 {
		return Outcome{Errors: errors}
	}
	if f.registry.Contains(ctx, input.DeviceID) {
		return Outcome{Abort: AbortAlreadyConfigured}
	}

	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("Setup: unexpected exception", zap.String("deviceId", input.DeviceID), zap.Any("panic", r))
			outcome = Outcome{Errors: map[string]string{ErrorBase: ErrorUnknown}}
		}
	}()

	client := xiaozhi.NewClient(f.httpClient, input.APIURL, input.APIKey, input.DeviceID, f.logger)
	if !client.TestConnection(ctx) {
		f.logger.Warn("Setup: connectivity probe failed", zap.String("deviceId", input.DeviceID))
		return Outcome{Errors: map[string]string{ErrorBase: ErrorCannotConnect}}
	}

	entry := entity.DeviceConfig{
		APIURL:     input.APIURL,
		APIKey:     input.APIKey,
		DeviceID:   input.DeviceID,
		DeviceName: input.DeviceName,
	}
	// Another submission may have registered the id during the probe.
	cell := f.newCell(entry, client)
	if !f.registry.SetIfAbsent(ctx, cell) {
		return Outcome{Abort: AbortAlreadyConfigured}
	}
	if err := f.store.Upsert(entry); err != nil {
		f.logger.Error("Setup: persist entry failed", zap.String("deviceId", entry.DeviceID), zap.Error(err))
		f.registry.Remove(ctx, entry.DeviceID)
		return Outcome{Errors: map[string]string{ErrorBase: ErrorUnknown}}
	}
	f.announce(ctx, cell)

	redacted := entry.Redacted()
	return Outcome{Entry: &redacted}
}

// SetupEntry brings up an already accepted entry without probing it.
func (f *Flow) SetupEntry(ctx context.Context, entry entity.DeviceConfig) *database.DeviceCell {
	if entry.APIURL == "" {
		entry.APIURL = entity.DefaultAPIURL
	}
	client := xiaozhi.NewClient(f.httpClient, entry.APIURL, entry.APIKey, entry.DeviceID, f.logger)
	cell := f.newCell(entry, client)
	f.registry.Set(ctx, cell)
	f.announce(ctx, cell)
	return cell
}

func (f *Flow) newCell(entry entity.DeviceConfig, client *xiaozhi.Client) *database.DeviceCell {
	return &database.DeviceCell{
		Config: entry,
		Client: client,
		Device: platform.NewDevice(client, entry, f.logger),
	}
}

func (f *Flow) announce(ctx context.Context, cell *database.DeviceCell) {
	if f.announcer != nil {
		f.announcer.Announce(ctx, cell)
	}
	f.logger.Info("Setup: device set up", zap.String("deviceId", cell.Config.DeviceID), zap.String("apiUrl", cell.Client.APIURL()))
}

// UpdateOptions runs the options step and reloads the entry with the new connection parameters.
func (f *Flow) UpdateOptions(ctx context.Context, deviceID string, options Options) Outcome {
	cell, ok := f.registry.Get(ctx, deviceID)
	if !ok {
		return Outcome{Abort: AbortNotFound}
	}

	entry := cell.Config
	if apiURL := strings.TrimSpace(options.APIURL); apiURL != "" {
		if !validURL(apiURL) {
			return Outcome{Errors: map[string]string{"api_url": ErrorInvalidURL}}
		}
		entry.APIURL = apiURL
	}
	if apiKey := strings.TrimSpace(options.APIKey); apiKey != "" {
		entry.APIKey = apiKey
	}

	if err := f.store.Upsert(entry); err != nil {
		f.logger.Error("Setup: persist options failed", zap.String("deviceId", deviceID), zap.Error(err))
		return Outcome{Errors: map[string]string{ErrorBase: ErrorUnknown}}
	}
	f.SetupEntry(ctx, entry)

	redacted := entry.Redacted()
	return Outcome{Entry: &redacted}
}

// UnloadEntry tears a device down and forgets its entry.
func (f *Flow) UnloadEntry(ctx context.Context, deviceID string) bool {
	cell, ok := f.registry.Remove(ctx, deviceID)
	if !ok {
		return false
	}
	if err := f.store.Delete(deviceID); err != nil {
		f.logger.Error("Setup: delete entry failed", zap.String("deviceId", deviceID), zap.Error(err))
	}
	if f.announcer != nil {
		f.announcer.Withdraw(ctx, cell)
	}
	f.logger.Info("Setup: device unloaded", zap.String("deviceId", deviceID))
	return true
}

func normalize(input Input) Input {
	input.APIURL = strings.TrimSpace(input.APIURL)
	input.APIKey = strings.TrimSpace(input.APIKey)
	input.DeviceID = strings.TrimSpace(input.DeviceID)
	input.DeviceName = strings.TrimSpace(input.DeviceName)
	if input.APIURL == "" {
		input.APIURL = entity.DefaultAPIURL
	}
	return input
}

func validate(input Input) map[string]string {
	errors := make(map[string]string)
	if input.APIKey == "" {
		errors["api_key"] = ErrorRequired
	}
	if input.DeviceID == "" {
		errors["device_id"] = ErrorRequired
	}
	if !validURL(input.APIURL) {
		errors["api_url"] = ErrorInvalidURL
	}
	return errors
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
