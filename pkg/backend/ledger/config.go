package ledger

import (
	"fmt"
	"net/url"
)

// Supported ledger networks.
const (
	NetworkEthereum    = "ethereum"
	NetworkHedera      = "hedera"
	NetworkHyperledger = "hyperledger"
)

const (
	defaultChannel  = "mychannel"
	defaultContract = "sqlContract"
)

// Config configures a ledger adapter.
type Config struct {
	Network string

	// GatewayURL is the base URL of the JSON gateway that signs and relays
	// contract calls to the network.
	GatewayURL string

	// Contract is the contract address or chaincode name.
	Contract string

	// Channel is the hyperledger channel. Other networks ignore it.
	Channel string

	// Token is sent as a bearer token when set.
	Token string
}

// ParseConfig parses a ledger adapter configuration from a map.
func ParseConfig(cfg map[string]any) (Config, error) {
	c := Config{
		Network:    getString(cfg, "network"),
		GatewayURL: getString(cfg, "gateway_url"),
		Contract:   getString(cfg, "contract"),
		Channel:    getString(cfg, "channel"),
		Token:      getString(cfg, "token"),
	}

	switch c.Network {
	case NetworkEthereum, NetworkHedera:
		if c.Contract == "" {
			return Config{}, fmt.Errorf("contract is required for %s", c.Network)
		}
	case NetworkHyperledger:
		if c.Contract == "" {
			c.Contract = defaultContract
		}
		if c.Channel == "" {
			c.Channel = defaultChannel
		}
	default:
		return Config{}, fmt.Errorf("unsupported network %q", c.Network)
	}

	if c.GatewayURL == "" {
		return Config{}, fmt.Errorf("gateway_url is required")
	}
	if u, err := url.Parse(c.GatewayURL); err != nil || u.Scheme == "" || u.Host == "" {
		return Config{}, fmt.Errorf("invalid gateway_url %q", c.GatewayURL)
	}
	return c, nil
}

func getString(cfg map[string]any, key string) string {
	if v, ok := cfg[key].(string); ok {
		return v
	}
	return ""
}
