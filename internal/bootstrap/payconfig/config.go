// Package payconfig loads the daemon's settings from an optional YAML file
// merged over built-in defaults, with environment overrides applied last.
// Wallet secrets normally arrive through the environment rather than the file.
package payconfig

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"clearpay/go-backend/internal/clearing"
	"clearpay/go-backend/internal/session"
)

type Settings struct {
	Clearing clearing.Config
	Session  session.Config
	Wallet   Wallet
	Channel  Channel
	RPC      RPC
}

type Wallet struct {
	PrivateKeyHex string
	Mnemonic      string
	Passphrase    string
}

type Channel struct {
	Asset        string
	EventSlug    string
	DataDir      string
	RecordSecret string
}

type RPC struct {
	Addr  string
	Token string
}

func Defaults() Settings {
	return Settings{
		Clearing: clearing.DefaultConfig(),
		Session:  session.Config{Protocol: session.DefaultProtocol, Timeout: session.DefaultTimeout},
		Channel:  Channel{Asset: "usdc", EventSlug: "default"},
		RPC:      RPC{Addr: "127.0.0.1:8787"},
	}
}

type DaemonConfig struct {
	Clearing clearing.Config `yaml:"clearing"`
	Session  session.Config  `yaml:"session"`
	Wallet   WalletSection   `yaml:"wallet"`
	Channel  ChannelSection  `yaml:"channel"`
	RPC      RPCSection      `yaml:"rpc"`
}

type WalletSection struct {
	PrivateKeyHex string `yaml:"privateKeyHex"`
	Mnemonic      string `yaml:"mnemonic"`
	Passphrase    string `yaml:"passphrase"`
}

type ChannelSection struct {
	Asset        string `yaml:"asset"`
	EventSlug    string `yaml:"eventSlug"`
	DataDir      string `yaml:"dataDir"`
	RecordSecret string `yaml:"recordSecret"`
}

type RPCSection struct {
	Addr  string `yaml:"addr"`
	Token string `yaml:"token"`
}

func LoadFromPath(configPath string) Settings {
	cfg := Defaults()

	candidates := make([]string, 0, 2)
	if configPath != "" {
		candidates = append(candidates, configPath)
	} else {
		candidates = append(candidates,
			"go-backend/configs/clearpay.yaml",
			"configs/clearpay.yaml",
		)
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		var parsed DaemonConfig
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			continue
		}

		merged := cfg
		Merge(&merged, parsed)
		ApplyEnvOverrides(&merged)
		return merged
	}

	ApplyEnvOverrides(&cfg)
	return cfg
}

func Merge(dst *Settings, src DaemonConfig) {
	if src.Clearing.Endpoint != "" {
		dst.Clearing.Endpoint = src.Clearing.Endpoint
	}
	if src.Clearing.HandshakeTimeout != 0 {
		dst.Clearing.HandshakeTimeout = src.Clearing.HandshakeTimeout
	}
	if src.Clearing.RequestTimeout != 0 {
		dst.Clearing.RequestTimeout = src.Clearing.RequestTimeout
	}
	if src.Clearing.ReconnectInterval != 0 {
		dst.Clearing.ReconnectInterval = src.Clearing.ReconnectInterval
	}
	if src.Clearing.ReconnectBackoffMax != 0 {
		dst.Clearing.ReconnectBackoffMax = src.Clearing.ReconnectBackoffMax
	}
	if src.Clearing.RequestsPerSecond != 0 {
		dst.Clearing.RequestsPerSecond = src.Clearing.RequestsPerSecond
	}
	if src.Clearing.RequestBurst != 0 {
		dst.Clearing.RequestBurst = src.Clearing.RequestBurst
	}
	if src.Session.Protocol != "" {
		dst.Session.Protocol = src.Session.Protocol
	}
	if src.Session.Timeout != 0 {
		dst.Session.Timeout = src.Session.Timeout
	}
	if src.Wallet.PrivateKeyHex != "" {
		dst.Wallet.PrivateKeyHex = src.Wallet.PrivateKeyHex
	}
	if src.Wallet.Mnemonic != "" {
		dst.Wallet.Mnemonic = src.Wallet.Mnemonic
	}
	if src.Wallet.Passphrase != "" {
		dst.Wallet.Passphrase = src.Wallet.Passphrase
	}
	if src.Channel.Asset != "" {
		dst.Channel.Asset = src.Channel.Asset
	}
	if src.Channel.EventSlug != "" {
		dst.Channel.EventSlug = src.Channel.EventSlug
	}
	if src.Channel.DataDir != "" {
		dst.Channel.DataDir = src.Channel.DataDir
	}
	if src.Channel.RecordSecret != "" {
		dst.Channel.RecordSecret = src.Channel.RecordSecret
	}
	if src.RPC.Addr != "" {
		dst.RPC.Addr = src.RPC.Addr
	}
	if src.RPC.Token != "" {
		dst.RPC.Token = src.RPC.Token
	}
}

func ApplyEnvOverrides(cfg *Settings) {
	if v := envString("CLEARPAY_CLEARING_ENDPOINT"); v != "" {
		cfg.Clearing.Endpoint = v
	}
	if v := envDuration("CLEARPAY_REQUEST_TIMEOUT"); v != 0 {
		cfg.Clearing.RequestTimeout = v
	}
	if v := envString("CLEARPAY_WALLET_KEY"); v != "" {
		cfg.Wallet.PrivateKeyHex = v
	}
	if v := envString("CLEARPAY_WALLET_MNEMONIC"); v != "" {
		cfg.Wallet.Mnemonic = v
	}
	if v := envString("CLEARPAY_WALLET_PASSPHRASE"); v != "" {
		cfg.Wallet.Passphrase = v
	}
	if v := envString("CLEARPAY_ASSET"); v != "" {
		cfg.Channel.Asset = v
	}
	if v := envString("CLEARPAY_EVENT"); v != "" {
		cfg.Channel.EventSlug = v
	}
	if v := envString("CLEARPAY_DATA_DIR"); v != "" {
		cfg.Channel.DataDir = v
	}
	if v := envString("CLEARPAY_RECORD_SECRET"); v != "" {
		cfg.Channel.RecordSecret = v
	}
	if v := envString("CLEARPAY_RPC_ADDR"); v != "" {
		cfg.RPC.Addr = v
	}
	if v := envString("CLEARPAY_RPC_TOKEN"); v != "" {
		cfg.RPC.Token = v
	}
}

func envString(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envDuration(key string) time.Duration {
	raw := envString(key)
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0
	}
	return d
}
