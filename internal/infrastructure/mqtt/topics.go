package mqtt

import (
	"strings"

	"github.com/nerrad567/knxnet-core/internal/knxnet/address"
)

// DefaultPrefix is the topic root when none is configured.
const DefaultPrefix = "knxnet"

// Topics builds the knxnetd topic tree under a prefix:
//
//	{prefix}/system/status         online/offline, retained, also the LWT
//	{prefix}/connection/state      client state changes, retained
//	{prefix}/telegram/{address}    one message per bus telegram
//	{prefix}/error                 client and socket errors
//	{prefix}/stats                 periodic statistics snapshots
//
// Group addresses keep their slashes, so "1/2/3" becomes three topic levels
// and subscribers can filter with + and #.
type Topics struct {
	Prefix string
}

func (t Topics) root() string {
	p := strings.TrimSuffix(t.Prefix, "/")
	if p == "" {
		return DefaultPrefix
	}
	return p
}

// SystemStatus returns the daemon status topic.
//
// Example: knxnet/system/status
func (t Topics) SystemStatus() string {
	return t.root() + "/system/status"
}

// ConnectionState returns the client state topic.
//
// Example: knxnet/connection/state
func (t Topics) ConnectionState() string {
	return t.root() + "/connection/state"
}

// Telegram returns the topic for telegrams addressed to addr.
//
// Example: knxnet/telegram/1/2/3
func (t Topics) Telegram(addr address.Address) string {
	return t.root() + "/telegram/" + addr.String()
}

// Error returns the error topic.
func (t Topics) Error() string {
	return t.root() + "/error"
}

// Stats returns the statistics topic.
func (t Topics) Stats() string {
	return t.root() + "/stats"
}

// AllTelegrams returns a pattern matching every telegram topic.
//
// Pattern: knxnet/telegram/#
func (t Topics) AllTelegrams() string {
	return t.root() + "/telegram/#"
}
