package identity

import "strings"

// Topic defaults shared by devices and the authority.
const (
	DefaultPrefix = "espdisplay"

	// RoleServer suffixes the topic the remote side publishes on.
	RoleServer = "server"

	// RoleClient suffixes the topic the device publishes on.
	RoleClient = "client"
)

// Topics is the per-identity topic pair, seen from the device.
type Topics struct {
	// Inbound carries requests and replies addressed to the device.
	Inbound string

	// Outbound carries the device's requests and replies.
	Outbound string
}

// TopicsFor derives the topic pair for id under prefix. An empty prefix
// means DefaultPrefix. Derivation is pure: the same input always yields the
// same pair.
//
// Example: TopicsFor("espdisplay", 42) returns
// {Inbound: "espdisplay/42/server", Outbound: "espdisplay/42/client"}.
func TopicsFor(prefix string, id Identity) (Topics, error) {
	if !id.Valid() {
		return Topics{}, ErrUnassigned
	}
	base := strings.TrimSuffix(prefixOrDefault(prefix), "/") + "/" + id.String() + "/"
	return Topics{
		Inbound:  base + RoleServer,
		Outbound: base + RoleClient,
	}, nil
}

// Reverse swaps the roles, giving the pair as seen by the controller that
// talks to the device.
func (t Topics) Reverse() Topics {
	return Topics{Inbound: t.Outbound, Outbound: t.Inbound}
}

// ProvisioningTopics names the two handshake topics.
type ProvisioningTopics struct {
	// Subscribe receives handshake requests from devices.
	Subscribe string

	// Broadcast carries handshake replies to all listening devices.
	Broadcast string
}

// DefaultProvisioningTopics returns the handshake topics under prefix.
func DefaultProvisioningTopics(prefix string) ProvisioningTopics {
	p := strings.TrimSuffix(prefixOrDefault(prefix), "/")
	return ProvisioningTopics{
		Subscribe: p + "/subscribe",
		Broadcast: p + "/broadcast",
	}
}

func prefixOrDefault(prefix string) string {
	if prefix == "" {
		return DefaultPrefix
	}
	return prefix
}
