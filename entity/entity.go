package entity

import "time"

const Version = "1.0.0"

const (
	DefaultAPIURL = "http://101.35.234.159/Xiaozhi"

	DefaultHTTPTimeout = 10 * time.Second
	DefaultListenAddr  = ":8080"
	DefaultStorePath   = "./configs/devices.yaml"
)

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type HTTPClientConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type ServerConfig struct {
	Listen string `yaml:"listen"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type MQTTConfig struct {
	URL       string `yaml:"url"`
	Keepalive uint16 `yaml:"keepalive"`
	ClientID  string `yaml:"client_id"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
}

type PublisherConfig struct {
	Type string      `yaml:"type"`
	MQTT *MQTTConfig `yaml:"mqtt"`
}

// DeviceConfig is one configured Xiaozhi device, the unit persisted by the entry store.
type DeviceConfig struct {
	APIURL     string `yaml:"api_url" json:"api_url"`
	APIKey     string `yaml:"api_key" json:"api_key,omitempty"`
	DeviceID   string `yaml:"device_id" json:"device_id"`
	DeviceName string `yaml:"device_name,omitempty" json:"device_name,omitempty"`
}

// Title is the display name of the device, falling back to its id.
func (d *DeviceConfig) Title() string {
	if d.DeviceName != "" {
		return d.DeviceName
	}
	return d.DeviceID
}

// Redacted returns a copy without the credential, safe to hand out over the admin API.
func (d DeviceConfig) Redacted() DeviceConfig {
	d.APIKey = ""
	return d
}
