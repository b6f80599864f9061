package hass

type MQTTDiscoveryMessage struct {
	Device       DeviceInfo           `json:"device"`
	Origin       OriginInfo           `json:"origin"`
	Components   map[string]Component `json:"components"`
	CommandTopic string               `json:"command_topic,omitempty"`
	StateTopic   string               `json:"state_topic,omitempty"`
	QOS          int                  `json:"qos"`
}

type DeviceInfo struct {
	ConfigurationUrl string `json:"configuration_url,omitempty"`
	Identifiers      string `json:"identifiers"`
	Name             string `json:"name"`
	Manufacturer     string `json:"manufacturer"`
	Model            string `json:"model"`
	SoftwareVersion  string `json:"sw_version,omitempty"`
}

type OriginInfo struct {
	Name            string `json:"name"`
	SoftwareVersion string `json:"sw_version,omitempty"`
}

type Component struct {
	Platform      string `json:"platform"`
	Name          string `json:"name,omitempty"`
	Icon          string `json:"icon,omitempty"`
	ObjectID      string `json:"object_id,omitempty"`
	UniqueID      string `json:"unique_id,omitempty"`
	ValueTemplate string `json:"value_template,omitempty"`

	// button
	PayloadPress string `json:"payload_press,omitempty"`

	// number, select, text
	CommandTemplate string `json:"command_template,omitempty"`

	// number, text (for text min/max bound the length)
	Min  *float64 `json:"min,omitempty"`
	Max  *float64 `json:"max,omitempty"`
	Step float64  `json:"step,omitempty"`
	Mode string   `json:"mode,omitempty"`

	// select
	Options []string `json:"options,omitempty"`
}
