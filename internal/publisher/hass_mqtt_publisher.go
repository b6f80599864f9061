package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kuretru/Xiaozhi-HASS-Gateway/entity"
	"github.com/kuretru/Xiaozhi-HASS-Gateway/entity/hass"
	"github.com/kuretru/Xiaozhi-HASS-Gateway/internal/database"
	"github.com/kuretru/Xiaozhi-HASS-Gateway/internal/platform"
	"github.com/kuretru/Xiaozhi-HASS-Gateway/internal/service"
)

const (
	devicePrefix = "xiaozhi_"

	commandTopicFilter = "homeassistant/device/+/set"
	serviceTopicFilter = service.Domain + "/service/+"
	statusTopic        = "homeassistant/status"

	configInterval = 5 * time.Minute
	stateInterval  = 15 * time.Second
)

var unsafeTopicChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

type HomeAssistantMQTTPublisher struct {
	config            *entity.PublisherConfig
	connectionManager *autopaho.ConnectionManager

	registry   *database.Registry
	dispatcher *service.Dispatcher
	logger     *zap.Logger
}

func NewHomeAssistantMQTTPublisher(env Environment) *HomeAssistantMQTTPublisher {
	return &HomeAssistantMQTTPublisher{
		registry:   env.Registry,
		dispatcher: env.Dispatcher,
		logger:     env.Logger,
	}
}

func (publisher *HomeAssistantMQTTPublisher) Run(ctx context.Context, config *entity.PublisherConfig) error {
	if config.MQTT == nil {
		return fmt.Errorf("Publisher.HASS_MQTT: mqtt config is missing")
	}
	publisher.config = config
	u, err := url.Parse(config.MQTT.URL)
	if err != nil {
		return fmt.Errorf("Publisher.HASS_MQTT: parse mqtt url failed: %v, %w", config.MQTT.URL, err)
	}
	clientID := config.MQTT.ClientID
	if clientID == "" {
		clientID = "xiaozhi-gateway-" + uuid.NewString()[:8]
	}

	router := paho.NewStandardRouter()
	router.DefaultHandler(func(publish *paho.Publish) {
		publisher.logger.Info("Publisher.HASS_MQTT: message received without hit any route", zap.String("topic", publish.Topic))
	})
	router.RegisterHandler(commandTopicFilter, func(publish *paho.Publish) {
		publisher.handleCommand(context.Background(), publish.Topic, publish.Payload)
	})
	router.RegisterHandler(serviceTopicFilter, func(publish *paho.Publish) {
		publisher.handleService(context.Background(), publish.Topic, publish.Payload)
	})
	router.RegisterHandler(statusTopic, func(publish *paho.Publish) {
		if string(publish.Payload) == "online" {
			publisher.logger.Info("Publisher.HASS_MQTT: home assistant came online")
			publisher.publishConfigTopic(context.Background())
			publisher.publishStateTopic(context.Background())
		}
	})

	clientConfig := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{u},
		KeepAlive:       config.MQTT.Keepalive,
		ConnectUsername: config.MQTT.Username,
		ConnectPassword: []byte(config.MQTT.Password),
		// Keep the session for a minute so commands sent during a reconnect are not lost.
		CleanStartOnInitialConnection: false,
		SessionExpiryInterval:         60,
		OnConnectionUp: func(connectionManager *autopaho.ConnectionManager, connAck *paho.Connack) {
			publisher.logger.Info("Publisher.HASS_MQTT: connected to server")
			if _, err := connectionManager.Subscribe(context.Background(), &paho.Subscribe{
				Subscriptions: []paho.SubscribeOptions{
					{Topic: commandTopicFilter, QoS: 1},
					{Topic: serviceTopicFilter, QoS: 1},
					{Topic: statusTopic, QoS: 1},
				},
			}); err != nil {
				publisher.logger.Error("Publisher.HASS_MQTT: subscribe failed", zap.Error(err))
				return
			}
			publisher.logger.Info("Publisher.HASS_MQTT: subscribed",
				zap.Strings("topics", []string{commandTopicFilter, serviceTopicFilter, statusTopic}))
		},
		OnConnectError: func(err error) {
			publisher.logger.Error("Publisher.HASS_MQTT: connect failed", zap.Error(err))
		},
		ClientConfig: paho.ClientConfig{
			ClientID: clientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(publishReceived paho.PublishReceived) (bool, error) {
					router.Route(publishReceived.Packet.Packet())
					return true, nil
				}},
			OnClientError: func(err error) {
				publisher.logger.Info("Publisher.HASS_MQTT: client error", zap.Error(err))
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				if d.Properties != nil && d.Properties.ReasonString != "" {
					publisher.logger.Error("Publisher.HASS_MQTT: server requested disconnect", zap.String("reason", d.Properties.ReasonString))
				} else {
					publisher.logger.Error("Publisher.HASS_MQTT: server requested disconnect", zap.Uint8("reasonCode", d.ReasonCode))
				}
			},
		},
	}

	publisher.connectionManager, err = autopaho.NewConnection(ctx, clientConfig)
	if err != nil {
		return fmt.Errorf("Publisher.HASS_MQTT: NewConnection failed, %w", err)
	}
	if err = publisher.connectionManager.AwaitConnection(ctx); err != nil {
		return fmt.Errorf("Publisher.HASS_MQTT: AwaitConnection failed, %w", err)
	}
	publisher.logger.Info("Publisher.HASS_MQTT: initialized", zap.String("server", config.MQTT.URL), zap.String("clientId", clientID))

	go publisher.runConfigTopic(ctx)
	go publisher.runStateTopic(ctx)
	return nil
}

func (publisher *HomeAssistantMQTTPublisher) Stop(ctx context.Context) {
	if publisher.connectionManager != nil {
		if err := publisher.connectionManager.Disconnect(ctx); err != nil {
			publisher.logger.Warn("Publisher.HASS_MQTT: disconnect failed", zap.Error(err))
		}
	}
	publisher.logger.Info("Publisher.HASS_MQTT: stopped")
}

func (publisher *HomeAssistantMQTTPublisher) Announce(ctx context.Context, cell *database.DeviceCell) {
	publisher.publishConfig(ctx, cell, "normal")
	publisher.PublishState(ctx, cell, cell.Device.State())
}

// Withdraw publishes components carrying only their platform, which makes
// Home Assistant drop them, then clears the retained state.
func (publisher *HomeAssistantMQTTPublisher) Withdraw(ctx context.Context, cell *database.DeviceCell) {
	publisher.publishConfig(ctx, cell, "delete")
	publisher.publish(ctx, stateTopic(cell.Config.DeviceID), nil)
}

func (publisher *HomeAssistantMQTTPublisher) PublishState(ctx context.Context, cell *database.DeviceCell, state map[string]any) {
	payloadBytes, err := json.Marshal(state)
	if err != nil {
		publisher.logger.Error("Publisher.HASS_MQTT: marshal state failed", zap.Error(err))
		return
	}
	publisher.publish(ctx, stateTopic(cell.Config.DeviceID), payloadBytes)
}

func (publisher *HomeAssistantMQTTPublisher) runConfigTopic(ctx context.Context) {
	publisher.publishConfigTopic(context.Background())

	configTopicTicker := time.NewTicker(configInterval)
	defer configTopicTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-configTopicTicker.C:
			publisher.publishConfigTopic(context.Background())
		}
	}
}

func (publisher *HomeAssistantMQTTPublisher) runStateTopic(ctx context.Context) {
	stateTopicTicker := time.NewTicker(stateInterval)
	defer stateTopicTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stateTopicTicker.C:
			publisher.publishStateTopic(context.Background())
		}
	}
}

func (publisher *HomeAssistantMQTTPublisher) publishConfigTopic(ctx context.Context) {
	cells := publisher.registry.All(ctx)
	for _, cell := range cells {
		publisher.publishConfig(ctx, cell, "normal")
	}
	publisher.logger.Debug("Publisher.HASS_MQTT: published config topic", zap.Int("devices", len(cells)))
}

func (publisher *HomeAssistantMQTTPublisher) publishStateTopic(ctx context.Context) {
	cells := publisher.registry.All(ctx)
	for _, cell := range cells {
		publisher.PublishState(ctx, cell, cell.Device.State())
	}
	publisher.logger.Debug("Publisher.HASS_MQTT: published state topic", zap.Int("devices", len(cells)))
}

func (publisher *HomeAssistantMQTTPublisher) publishConfig(ctx context.Context, cell *database.DeviceCell, mode string) {
	payloadBytes, err := json.Marshal(buildDiscoveryMessage(cell, mode))
	if err != nil {
		publisher.logger.Error("Publisher.HASS_MQTT: marshal config failed", zap.Error(err))
		return
	}
	publisher.publish(ctx, configTopic(cell.Config.DeviceID), payloadBytes)
}

func (publisher *HomeAssistantMQTTPublisher) publish(ctx context.Context, topic string, payload []byte) {
	if publisher.connectionManager == nil {
		return
	}
	if _, err := publisher.connectionManager.Publish(ctx, &paho.Publish{
		QoS:     0,
		Retain:  true,
		Topic:   topic,
		Payload: payload,
	}); err != nil {
		publisher.logger.Warn("Publisher.HASS_MQTT: publish failed", zap.String("topic", topic), zap.Error(err))
	}
}

// handleCommand applies {"<entity key>": value} pairs to the device named in the topic.
func (publisher *HomeAssistantMQTTPublisher) handleCommand(ctx context.Context, topic string, payload []byte) {
	nodeID, ok := parseCommandTopic(topic)
	if !ok {
		publisher.logger.Info("Publisher.HASS_MQTT: received not my topic", zap.String("topic", topic))
		return
	}
	cell := publisher.findCell(ctx, nodeID)
	if cell == nil {
		publisher.logger.Warn("Publisher.HASS_MQTT: command for unknown device", zap.String("nodeId", nodeID))
		return
	}

	var commands map[string]any
	if err := json.Unmarshal(payload, &commands); err != nil {
		publisher.logger.Info("Publisher.HASS_MQTT: unmarshal payload failed", zap.Error(err))
		return
	}
	publisher.registry.Touch(ctx, cell.Config.DeviceID)

	for key, value := range commands {
		result, err := cell.Device.Handle(ctx, key, value)
		if err != nil {
			publisher.logger.Warn("Publisher.HASS_MQTT: command rejected",
				zap.String("deviceId", cell.Config.DeviceID), zap.String("key", key), zap.Error(err))
			continue
		}
		publisher.logger.Debug("Publisher.HASS_MQTT: command handled",
			zap.String("deviceId", cell.Config.DeviceID), zap.String("key", key), zap.Stringer("outcome", result.Kind()))
	}
}

func (publisher *HomeAssistantMQTTPublisher) handleService(ctx context.Context, topic string, payload []byte) {
	name := topic[strings.LastIndex(topic, "/")+1:]
	var data map[string]any
	if err := json.Unmarshal(payload, &data); err != nil {
		publisher.logger.Info("Publisher.HASS_MQTT: unmarshal service data failed", zap.String("service", name), zap.Error(err))
		return
	}
	result, err := publisher.dispatcher.Call(ctx, name, data)
	if err != nil {
		publisher.logger.Warn("Publisher.HASS_MQTT: service call failed", zap.String("service", name), zap.Error(err))
		return
	}
	publisher.logger.Debug("Publisher.HASS_MQTT: service called", zap.String("service", name), zap.Stringer("outcome", result.Kind()))
}

func (publisher *HomeAssistantMQTTPublisher) findCell(ctx context.Context, nodeID string) *database.DeviceCell {
	for _, cell := range publisher.registry.All(ctx) {
		if objectID(cell.Config.DeviceID) == nodeID {
			return cell
		}
	}
	return nil
}

// objectID makes a device id usable as an MQTT topic level and entity id.
// Ids that needed sanitizing get a suffix derived from the raw id, so "a:b" and "a_b" stay apart.
func objectID(deviceID string) string {
	sanitized := unsafeTopicChars.ReplaceAllString(deviceID, "_")
	if sanitized == deviceID {
		return deviceID
	}
	return sanitized + "_" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(deviceID)).String()[:8]
}

func configTopic(deviceID string) string {
	return fmt.Sprintf("homeassistant/device/%v%v/config", devicePrefix, objectID(deviceID))
}

func stateTopic(deviceID string) string {
	return fmt.Sprintf("homeassistant/device/%v%v/state", devicePrefix, objectID(deviceID))
}

func commandTopic(deviceID string) string {
	return fmt.Sprintf("homeassistant/device/%v%v/set", devicePrefix, objectID(deviceID))
}

func parseCommandTopic(topic string) (string, bool) {
	topicSeg := strings.Split(topic, "/")
	if len(topicSeg) != 4 || topicSeg[3] != "set" || !strings.HasPrefix(topicSeg[2], devicePrefix) {
		return "", false
	}
	return strings.TrimPrefix(topicSeg[2], devicePrefix), true
}

func buildDiscoveryMessage(cell *database.DeviceCell, mode string) hass.MQTTDiscoveryMessage {
	deviceID := cell.Config.DeviceID
	return hass.MQTTDiscoveryMessage{
		Device: hass.DeviceInfo{
			ConfigurationUrl: cell.Config.APIURL,
			Identifiers:      devicePrefix + objectID(deviceID),
			Name:             cell.Device.Name,
			Manufacturer:     platform.Manufacturer,
			Model:            platform.Model,
		},
		Origin: hass.OriginInfo{
			Name:            "xiaozhi-hass-gateway",
			SoftwareVersion: entity.Version,
		},
		Components:   buildConfigPayload(cell.Device, mode),
		CommandTopic: commandTopic(deviceID),
		StateTopic:   stateTopic(deviceID),
		QOS:          0,
	}
}

// buildConfigPayload mode=normal for a full definition, mode=delete for a removal
func buildConfigPayload(device *platform.Device, mode string) map[string]hass.Component {
	result := make(map[string]hass.Component)
	add := func(component hass.Component, description platform.Description) {
		if mode != "delete" {
			component.Name = description.Name
			component.Icon = description.Icon
			component.ObjectID = fmt.Sprintf("%v%v_%v", devicePrefix, objectID(device.ID), description.Key)
			component.UniqueID = device.UniqueID(description.Key)
		} else {
			component = hass.Component{Platform: component.Platform}
		}
		result[description.Key] = component
	}

	for _, button := range device.Buttons {
		add(hass.Component{
			Platform:     "button",
			PayloadPress: fmt.Sprintf(`{"%v":"PRESS"}`, button.Key),
		}, button.Description)
	}
	for _, number := range device.Numbers {
		add(hass.Component{
			Platform:        "number",
			ValueTemplate:   valueTemplate(number.Key),
			CommandTemplate: fmt.Sprintf(`{"%v": {{ value }}}`, number.Key),
			Min:             &number.Min,
			Max:             &number.Max,
			Step:            number.Step,
			Mode:            platform.NumberModeSlider,
		}, number.Description)
	}
	for _, sel := range device.Selects {
		add(hass.Component{
			Platform:        "select",
			ValueTemplate:   valueTemplate(sel.Key),
			CommandTemplate: fmt.Sprintf(`{"%v": {{ value | tojson }}}`, sel.Key),
			Options:         sel.Options,
		}, sel.Description)
	}
	textMin, textMax := float64(0), float64(platform.TextMaxLength)
	for _, text := range device.Texts {
		add(hass.Component{
			Platform:        "text",
			ValueTemplate:   valueTemplate(text.Key),
			CommandTemplate: fmt.Sprintf(`{"%v": {{ value | tojson }}}`, text.Key),
			Min:             &textMin,
			Max:             &textMax,
			Mode:            platform.TextModeText,
		}, text.Description)
	}
	return result
}

func valueTemplate(key string) string {
	return fmt.Sprintf("{{ value_json.%v }}", key)
}
