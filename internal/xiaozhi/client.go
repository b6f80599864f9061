// Package xiaozhi is the HTTP client for the Xiaozhi device control API.
//
// Every call returns a Result. Transport failures are folded into a Result with
// code -1, so callers only ever inspect the code.
package xiaozhi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kuretru/Xiaozhi-HASS-Gateway/internal/metrics"
)

// Client talks to the API on behalf of a single device. It holds no mutable
// state and is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	apiURL     string
	apiKey     string
	deviceID   string
	logger     *zap.Logger
}

// NewClient builds a client on top of a shared http.Client, which stays owned by the caller.
func NewClient(httpClient *http.Client, apiURL, apiKey, deviceID string, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpClient: httpClient,
		apiURL:     strings.TrimRight(apiURL, "/"),
		apiKey:     apiKey,
		deviceID:   deviceID,
		logger:     logger,
	}
}

func (c *Client) DeviceID() string {
	return c.deviceID
}

func (c *Client) APIURL() string {
	return c.apiURL
}

// Request posts payload as JSON to endpoint. The HTTP status is ignored, the
// in-body code decides success.
func (c *Client) Request(ctx context.Context, endpoint string, payload map[string]any) Result {
	start := time.Now()
	result := c.do(ctx, endpoint, payload)
	kind := result.Kind()
	metrics.ObserveRequest(c.deviceID, endpoint, kind.String(), result.Code, time.Since(start))

	switch kind {
	case KindTransportError:
		c.logger.Error("Xiaozhi.API: request error",
			zap.String("deviceId", c.deviceID),
			zap.String("endpoint", endpoint),
			zap.String("err", result.Message))
	case KindApplicationError:
		c.logger.Error("Xiaozhi.API: request failed",
			zap.String("deviceId", c.deviceID),
			zap.String("endpoint", endpoint),
			zap.Int("code", result.Code),
			zap.String("message", result.Message))
	}
	return result
}

func (c *Client) do(ctx context.Context, endpoint string, payload map[string]any) Result {
	body, err := json.Marshal(payload)
	if err != nil {
		return transportFailure(fmt.Errorf("encode payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return transportFailure(err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportFailure(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportFailure(fmt.Errorf("read response: %w", err))
	}
	return decodeResult(raw)
}

// TestConnection sends an idle command and reports whether the API accepted it.
// The idle command really reaches the device.
func (c *Client) TestConnection(ctx context.Context) bool {
	return c.SendIdle(ctx).OK()
}

func (c *Client) SendChatMessage(ctx context.Context, message string) Result {
	return c.Request(ctx, EndpointSendChat, map[string]any{"deviceId": c.deviceID, "message": message})
}

func (c *Client) SendIdle(ctx context.Context) Result {
	return c.Request(ctx, EndpointSendIdle, map[string]any{"deviceId": c.deviceID})
}

func (c *Client) PlayMusic(ctx context.Context, keywords string) Result {
	return c.Request(ctx, EndpointPlayMusic, map[string]any{"deviceId": c.deviceID, "keywords": keywords})
}

func (c *Client) StopMusic(ctx context.Context) Result {
	return c.Request(ctx, EndpointStopMusic, map[string]any{"deviceId": c.deviceID})
}

func (c *Client) ResumeMusic(ctx context.Context) Result {
	return c.Request(ctx, EndpointResumeMusic, map[string]any{"deviceId": c.deviceID})
}

func (c *Client) NextTrack(ctx context.Context) Result {
	return c.Request(ctx, EndpointNextMusic, map[string]any{"deviceId": c.deviceID})
}

func (c *Client) PreviousTrack(ctx context.Context) Result {
	return c.Request(ctx, EndpointPrevMusic, map[string]any{"deviceId": c.deviceID})
}

// SetPlayerMode accepts either a label such as "random" or a wire value such as "RANDOM".
func (c *Client) SetPlayerMode(ctx context.Context, mode string) Result {
	return c.Request(ctx, EndpointPlayerMode, map[string]any{"deviceId": c.deviceID, "playerMode": PlayerModeValue(mode)})
}

// SetVolume sends volume as is, range checks belong to the caller.
func (c *Client) SetVolume(ctx context.Context, volume int) Result {
	return c.Request(ctx, EndpointVolume, map[string]any{"deviceId": c.deviceID, "value": volume})
}

func (c *Client) SetBrightness(ctx context.Context, brightness int) Result {
	return c.Request(ctx, EndpointBrightness, map[string]any{"deviceId": c.deviceID, "value": brightness})
}

func (c *Client) SetTheme(ctx context.Context, theme string) Result {
	return c.Request(ctx, EndpointTheme, map[string]any{"deviceId": c.deviceID, "value": theme})
}
