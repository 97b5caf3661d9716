package mqtt

import "strings"

// defaultPrefix matches identity.DefaultPrefix.
const defaultPrefix = "espdisplay"

// Topics builds the broker-level topics that sit outside the per-device
// RPC pair: connection status and monitoring wildcards.
//
// The zero value uses the "espdisplay" prefix.
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return defaultPrefix
	}
	return strings.TrimSuffix(t.Prefix, "/")
}

// Status returns the retained online/offline topic for a client.
//
// Example: Topics{}.Status("esp32client") returns "espdisplay/status/esp32client".
func (t Topics) Status(clientID string) string {
	return t.prefix() + "/status/" + clientID
}

// AllStatus matches every client's status topic.
func (t Topics) AllStatus() string {
	return t.prefix() + "/status/+"
}

// AllDeviceInbound matches the inbound topic of every device.
func (t Topics) AllDeviceInbound() string {
	return t.prefix() + "/+/server"
}

// AllDeviceOutbound matches the outbound topic of every device.
func (t Topics) AllDeviceOutbound() string {
	return t.prefix() + "/+/client"
}

// AllTopics matches everything under the prefix.
func (t Topics) AllTopics() string {
	return t.prefix() + "/#"
}
