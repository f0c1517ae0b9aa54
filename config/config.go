// Copyright 2025 The whalewatch Authors
// This file is part of the whalewatch library.
//
// The whalewatch library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The whalewatch library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the whalewatch library. If not, see <http://www.gnu.org/licenses/>.

// Package config loads and normalizes the monitor configuration. Chain
// topology, token targets and intervals come from a TOML file; secrets
// (provider key, Telegram credentials, RPC URL overrides) come from the
// environment.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/naoina/toml"

	"github.com/tos-network/whalewatch/params"
)

// ChainDescriptor is the immutable per-chain topology record.
type ChainDescriptor struct {
	Name        string // human display name
	ChainID     uint64
	RPCURL      string
	Explorer    string // block explorer base URL
	PricePrefix string // DeFiLlama coin key prefix
}

// TokenSpec is one normalized monitoring target.
type TokenSpec struct {
	Address      common.Address
	Chain        string
	TopN         int
	ThresholdUSD float64
}

// Config is the fully resolved runtime configuration.
type Config struct {
	Chains map[string]ChainDescriptor
	Tokens []TokenSpec

	BlockPollInterval    time.Duration
	WhaleRefreshInterval time.Duration
	PriceRefreshInterval time.Duration
	StatusPrintInterval  time.Duration

	CacheDir string
	// CacheMaxAge is the freshness horizon of the holder cache: 0 disables
	// the prefer-cache fast path, a negative value means cached documents
	// never expire.
	CacheMaxAge time.Duration

	TxCacheSize          int
	MaxRetries           int
	BaseRetryDelay       time.Duration
	MaxConsecutiveErrors int

	RPCTimeout  time.Duration
	HTTPTimeout time.Duration

	ChainbaseKey   string
	TelegramToken  string
	TelegramChatID string
}

// DefaultChains mirrors the chains the monitor was originally deployed
// against. A config file may override RPC endpoints or add chains.
func DefaultChains() map[string]ChainDescriptor {
	return map[string]ChainDescriptor{
		"ethereum": {Name: "Ethereum", ChainID: 1, RPCURL: "https://rpc.ankr.com/eth", Explorer: "https://etherscan.io", PricePrefix: "ethereum"},
		"bsc":      {Name: "BNB Chain", ChainID: 56, RPCURL: "https://rpc.ankr.com/bsc", Explorer: "https://bscscan.com", PricePrefix: "bsc"},
		"polygon":  {Name: "Polygon", ChainID: 137, RPCURL: "https://rpc.ankr.com/polygon", Explorer: "https://polygonscan.com", PricePrefix: "polygon"},
		"arbitrum": {Name: "Arbitrum One", ChainID: 42161, RPCURL: "https://rpc.ankr.com/arbitrum", Explorer: "https://arbiscan.io", PricePrefix: "arbitrum"},
		"base":     {Name: "Base", ChainID: 8453, RPCURL: "https://rpc.ankr.com/base", Explorer: "https://basescan.org", PricePrefix: "base"},
	}
}

// Defaults returns a Config with every knob at its shipped value and no
// tokens configured.
func Defaults() *Config {
	return &Config{
		Chains:               DefaultChains(),
		BlockPollInterval:    params.DefaultBlockPollInterval,
		WhaleRefreshInterval: params.DefaultWhaleRefreshInterval,
		PriceRefreshInterval: params.DefaultPriceRefreshInterval,
		StatusPrintInterval:  params.DefaultStatusPrintInterval,
		CacheDir:             "cache",
		CacheMaxAge:          5 * time.Hour,
		TxCacheSize:          params.DefaultTxCacheSize,
		MaxRetries:           params.DefaultMaxRetries,
		BaseRetryDelay:       params.DefaultBaseRetryDelay,
		MaxConsecutiveErrors: params.DefaultMaxConsecutiveErrors,
		RPCTimeout:           params.DefaultRPCTimeout,
		HTTPTimeout:          params.DefaultHTTPTimeout,
	}
}

// File shapes. Intervals are plain seconds in the file; token targets
// come in three accepted shapes (bare address, address+chain, full
// record) and are normalized here at the boundary.

type tomlToken struct {
	Address      string
	Chain        string
	TopN         *int
	ThresholdUSD *float64
}

type tomlChain struct {
	Name        string
	ChainID     *uint64
	RPCURL      string
	Explorer    string
	PricePrefix string
}

type tomlFile struct {
	// Watch is the shorthand shape: bare addresses monitored on ethereum
	// with the default TopN and threshold.
	Watch  []string
	Tokens []tomlToken
	Chains map[string]tomlChain

	BlockPollIntervalSec    *int
	WhaleRefreshIntervalSec *int
	PriceRefreshIntervalSec *int
	StatusPrintIntervalSec  *int

	CacheDir       string
	CacheMaxAgeSec *int

	TxCacheSize          *int
	MaxRetries           *int
	BaseRetryDelaySec    *float64
	MaxConsecutiveErrors *int

	RPCTimeoutSec  *int
	HTTPTimeoutSec *int
}

// tomlSettings rejects unknown fields so a typo fails loudly at startup
// instead of silently running with defaults.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		return fmt.Errorf("field '%s' is not defined in %s", field, rt.String())
	},
}

// Load reads path (optional, "" means defaults only), applies the file
// over the defaults, pulls secrets from the environment and validates
// the result.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()
		var file tomlFile
		if err := tomlSettings.NewDecoder(f).Decode(&file); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		if err := cfg.apply(&file); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) apply(file *tomlFile) error {
	for name, ch := range file.Chains {
		desc, ok := c.Chains[name]
		if !ok {
			if ch.ChainID == nil {
				return fmt.Errorf("chain %q: new chains need a ChainID", name)
			}
			desc = ChainDescriptor{Name: name, PricePrefix: name}
		}
		if ch.Name != "" {
			desc.Name = ch.Name
		}
		if ch.ChainID != nil {
			desc.ChainID = *ch.ChainID
		}
		if ch.RPCURL != "" {
			desc.RPCURL = ch.RPCURL
		}
		if ch.Explorer != "" {
			desc.Explorer = ch.Explorer
		}
		if ch.PricePrefix != "" {
			desc.PricePrefix = ch.PricePrefix
		}
		c.Chains[name] = desc
	}

	for _, addr := range file.Watch {
		spec, err := c.normalizeToken(tomlToken{Address: addr})
		if err != nil {
			return err
		}
		c.Tokens = append(c.Tokens, spec)
	}
	for _, tok := range file.Tokens {
		spec, err := c.normalizeToken(tok)
		if err != nil {
			return err
		}
		c.Tokens = append(c.Tokens, spec)
	}

	seconds := func(dst *time.Duration, src *int) {
		if src != nil {
			*dst = time.Duration(*src) * time.Second
		}
	}
	seconds(&c.BlockPollInterval, file.BlockPollIntervalSec)
	seconds(&c.WhaleRefreshInterval, file.WhaleRefreshIntervalSec)
	seconds(&c.PriceRefreshInterval, file.PriceRefreshIntervalSec)
	seconds(&c.StatusPrintInterval, file.StatusPrintIntervalSec)
	seconds(&c.RPCTimeout, file.RPCTimeoutSec)
	seconds(&c.HTTPTimeout, file.HTTPTimeoutSec)
	if file.CacheMaxAgeSec != nil {
		c.CacheMaxAge = time.Duration(*file.CacheMaxAgeSec) * time.Second
	}
	if file.CacheDir != "" {
		c.CacheDir = file.CacheDir
	}
	if file.TxCacheSize != nil {
		c.TxCacheSize = *file.TxCacheSize
	}
	if file.MaxRetries != nil {
		c.MaxRetries = *file.MaxRetries
	}
	if file.BaseRetryDelaySec != nil {
		c.BaseRetryDelay = time.Duration(*file.BaseRetryDelaySec * float64(time.Second))
	}
	if file.MaxConsecutiveErrors != nil {
		c.MaxConsecutiveErrors = *file.MaxConsecutiveErrors
	}
	return nil
}

// normalizeToken folds the three accepted token shapes into a TokenSpec.
func (c *Config) normalizeToken(tok tomlToken) (TokenSpec, error) {
	if !common.IsHexAddress(tok.Address) {
		return TokenSpec{}, fmt.Errorf("invalid token address %q", tok.Address)
	}
	chain := tok.Chain
	if chain == "" {
		chain = "ethereum"
	}
	if _, ok := c.Chains[chain]; !ok {
		return TokenSpec{}, fmt.Errorf("token %s references unknown chain %q", tok.Address, chain)
	}
	spec := TokenSpec{
		Address:      common.HexToAddress(tok.Address),
		Chain:        chain,
		TopN:         params.DefaultTopN,
		ThresholdUSD: params.DefaultThresholdUSD,
	}
	if tok.TopN != nil {
		spec.TopN = *tok.TopN
	}
	if tok.ThresholdUSD != nil {
		spec.ThresholdUSD = *tok.ThresholdUSD
	}
	return spec, nil
}

// applyEnv pulls secrets and per-chain RPC overrides from the
// environment: CHAINBASE_API_KEY, TG_BOT_TOKEN, TG_CHAT_ID and
// <CHAIN>_RPC_URL (e.g. ETH_RPC_URL, BSC_RPC_URL).
func (c *Config) applyEnv() {
	if v := os.Getenv("CHAINBASE_API_KEY"); v != "" {
		c.ChainbaseKey = v
	}
	if v := os.Getenv("TG_BOT_TOKEN"); v != "" {
		c.TelegramToken = v
	}
	if v := os.Getenv("TG_CHAT_ID"); v != "" {
		c.TelegramChatID = v
	}
	for name, desc := range c.Chains {
		env := rpcEnvName(name)
		if v := os.Getenv(env); v != "" {
			desc.RPCURL = v
			c.Chains[name] = desc
		}
	}
}

// rpcEnvName maps a chain key to its RPC override variable, keeping the
// historical ETH_RPC_URL spelling for ethereum.
func rpcEnvName(chain string) string {
	if chain == "ethereum" {
		return "ETH_RPC_URL"
	}
	return strings.ToUpper(chain) + "_RPC_URL"
}

// Validate rejects configurations the monitor cannot start with.
func (c *Config) Validate() error {
	if len(c.Tokens) == 0 {
		return fmt.Errorf("no tokens configured")
	}
	for _, spec := range c.Tokens {
		desc, ok := c.Chains[spec.Chain]
		if !ok {
			return fmt.Errorf("token %s references unknown chain %q", spec.Address.Hex(), spec.Chain)
		}
		if desc.RPCURL == "" {
			return fmt.Errorf("chain %q has no RPC endpoint", spec.Chain)
		}
		if spec.TopN < 0 || spec.TopN > params.ProviderPageMax {
			return fmt.Errorf("token %s: TopN %d out of range [0, %d]", spec.Address.Hex(), spec.TopN, params.ProviderPageMax)
		}
		if spec.ThresholdUSD < 0 {
			return fmt.Errorf("token %s: negative ThresholdUSD", spec.Address.Hex())
		}
	}
	if c.TxCacheSize <= 0 {
		return fmt.Errorf("TxCacheSize must be positive")
	}
	if c.BlockPollInterval <= 0 || c.WhaleRefreshInterval <= 0 || c.PriceRefreshInterval <= 0 {
		return fmt.Errorf("intervals must be positive")
	}
	return nil
}

// TokensByChain groups the token specs per chain key.
func (c *Config) TokensByChain() map[string][]TokenSpec {
	out := make(map[string][]TokenSpec)
	for _, spec := range c.Tokens {
		out[spec.Chain] = append(out[spec.Chain], spec)
	}
	return out
}

// MaskURL hides the credential part of an RPC URL for display.
func MaskURL(raw string) string {
	if raw == "" {
		return "(unset)"
	}
	if i := strings.Index(raw, "://"); i >= 0 {
		rest := raw[i+3:]
		if j := strings.IndexByte(rest, '/'); j >= 0 {
			return raw[:i+3] + rest[:j] + "/..."
		}
	}
	return raw
}
