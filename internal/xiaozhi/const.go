package xiaozhi

const (
	EndpointSendChat     = "/api/xiaozhi/SendChatMessage"
	EndpointSendIdle     = "/api/xiaozhi/SendIdleMessage"
	EndpointPlayMusic    = "/api/xiaozhi/SendPlayMusicMessage"
	EndpointStopMusic    = "/api/xiaozhi/SendStopMusicMessage"
	EndpointResumeMusic  = "/api/xiaozhi/SendResumeMusicMessage"
	EndpointNextMusic    = "/api/xiaozhi/SendPlayNextMusicMessage"
	EndpointPrevMusic    = "/api/xiaozhi/SendPlayPrevMusicMessage"
	EndpointPlayerMode   = "/api/xiaozhi/SendPlayerModeMessage"
	EndpointVolume       = "/api/xiaozhi/SendVolumeMessage"
	EndpointBrightness   = "/api/xiaozhi/SendBrightnessMessage"
	EndpointTheme        = "/api/xiaozhi/SendThemeMessage"
	CodeSuccess          = 200
	CodeTransportFailure = -1
)

// Player mode labels as shown to users, in display order.
var PlayerModeOptions = []string{"sequence", "random", "list_loop", "single_loop"}

var playerModes = map[string]string{
	"sequence":    "SEQUENCE",
	"random":      "RANDOM",
	"list_loop":   "LIST_LOOP",
	"single_loop": "SINGLE_LOOP",
}

var ThemeOptions = []string{"light", "dark"}

var themes = map[string]string{
	"light": "light",
	"dark":  "dark",
}

// PlayerModeValue maps a player mode label to its wire value. Unknown values pass through.
func PlayerModeValue(label string) string {
	if value, ok := playerModes[label]; ok {
		return value
	}
	return label
}

// ThemeValue maps a theme label to its wire value. Unknown values pass through.
func ThemeValue(label string) string {
	if value, ok := themes[label]; ok {
		return value
	}
	return label
}
