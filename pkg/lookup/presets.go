package lookup

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bsv-blockchain/go-sdk/overlay"
)

// LocalHost is the overlay every lookup goes to under the local preset.
const LocalHost = "http://localhost:8080"

// TrackerTimeout bounds how long tracker discovery waits for each tracker.
const TrackerTimeout = 5 * time.Second

// DefaultMainnetTrackers are the SLAP trackers used on mainnet when none are configured.
func DefaultMainnetTrackers() []string {
	return []string{
		"https://overlay-us-1.bsvb.tech",
		"https://overlay-eu-1.bsvb.tech",
		"https://overlay-ap-1.bsvb.tech",
		"https://users.bapp.dev",
	}
}

// DefaultTestnetTrackers are the SLAP trackers used on testnet when none are configured.
func DefaultTestnetTrackers() []string {
	return []string{"https://testnet-users.bapp.dev"}
}

// DefaultTrackers returns the trackers for network.
func DefaultTrackers(network overlay.Network) []string {
	switch network {
	case overlay.NetworkTestnet:
		return DefaultTestnetTrackers()
	case overlay.NetworkLocal:
		return []string{LocalHost}
	default:
		return DefaultMainnetTrackers()
	}
}

// ErrUnknownNetwork is returned by ParseNetwork for names other than mainnet, testnet and local.
var ErrUnknownNetwork = errors.New("unknown network preset")

// NetworkName returns the preset name used in messages and configuration.
func NetworkName(network overlay.Network) string {
	switch network {
	case overlay.NetworkTestnet:
		return "testnet"
	case overlay.NetworkLocal:
		return "local"
	default:
		return "mainnet"
	}
}

// ParseNetwork maps a preset name to its network. "main" and "test" are accepted as aliases.
func ParseNetwork(name string) (overlay.Network, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "mainnet", "main":
		return overlay.NetworkMainnet, nil
	case "testnet", "test":
		return overlay.NetworkTestnet, nil
	case "local":
		return overlay.NetworkLocal, nil
	default:
		return overlay.NetworkMainnet, fmt.Errorf("%w: %q", ErrUnknownNetwork, name)
	}
}
