package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "whalewatch.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadNormalizesTokenShapes(t *testing.T) {
	path := writeConfig(t, `
Watch = ["0x6982508145454Ce325dDbE47a25d4ec3d2311933"]

[[Tokens]]
Address = "0x2170Ed0880ac9A755fd29B2688956BD959F933F8"
Chain = "bsc"

[[Tokens]]
Address = "0xdAC17F958D2ee523a2206206994597C13D831ec7"
Chain = "ethereum"
TopN = 50
ThresholdUSD = 5000.0
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(cfg.Tokens) != 3 {
		t.Fatalf("token count mismatch: have %d want 3", len(cfg.Tokens))
	}

	bare := cfg.Tokens[0]
	if bare.Chain != "ethereum" || bare.TopN != 100 || bare.ThresholdUSD != 100 {
		t.Fatalf("bare shape defaults wrong: %+v", bare)
	}
	pair := cfg.Tokens[1]
	if pair.Chain != "bsc" || pair.TopN != 100 {
		t.Fatalf("address+chain shape wrong: %+v", pair)
	}
	full := cfg.Tokens[2]
	if full.TopN != 50 || full.ThresholdUSD != 5000 {
		t.Fatalf("full record shape wrong: %+v", full)
	}
	if full.Address != common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7") {
		t.Fatalf("address not checksum-parsed: %v", full.Address)
	}
}

func TestLoadRejectsUnknownChain(t *testing.T) {
	path := writeConfig(t, `
[[Tokens]]
Address = "0x6982508145454Ce325dDbE47a25d4ec3d2311933"
Chain = "dogechain"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected unknown-chain error")
	}
}

func TestLoadRejectsMalformedAddress(t *testing.T) {
	path := writeConfig(t, `Watch = ["not-an-address"]`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected invalid-address error")
	}
}

func TestLoadRejectsUnknownField(t *testing.T) {
	path := writeConfig(t, `
Watch = ["0x6982508145454Ce325dDbE47a25d4ec3d2311933"]
BlockPolInterval = 3
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected unknown-field error")
	}
}

func TestLoadIntervalsAndLimits(t *testing.T) {
	path := writeConfig(t, `
Watch = ["0x6982508145454Ce325dDbE47a25d4ec3d2311933"]
BlockPollIntervalSec = 5
WhaleRefreshIntervalSec = 600
CacheMaxAgeSec = -1
TxCacheSize = 500
BaseRetryDelaySec = 0.5
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.BlockPollInterval != 5*time.Second {
		t.Fatalf("block poll interval mismatch: %v", cfg.BlockPollInterval)
	}
	if cfg.WhaleRefreshInterval != 10*time.Minute {
		t.Fatalf("refresh interval mismatch: %v", cfg.WhaleRefreshInterval)
	}
	if cfg.CacheMaxAge >= 0 {
		t.Fatalf("never-expire horizon lost: %v", cfg.CacheMaxAge)
	}
	if cfg.TxCacheSize != 500 || cfg.BaseRetryDelay != 500*time.Millisecond {
		t.Fatalf("limits mismatch: %+v", cfg)
	}
}

func TestLoadRejectsOversizedTopN(t *testing.T) {
	path := writeConfig(t, `
[[Tokens]]
Address = "0x6982508145454Ce325dDbE47a25d4ec3d2311933"
TopN = 500
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected TopN range error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CHAINBASE_API_KEY", "cb-key")
	t.Setenv("TG_BOT_TOKEN", "tg-token")
	t.Setenv("TG_CHAT_ID", "42")
	t.Setenv("BSC_RPC_URL", "https://example.org/bsc")
	t.Setenv("ETH_RPC_URL", "https://example.org/eth")

	path := writeConfig(t, `Watch = ["0x6982508145454Ce325dDbE47a25d4ec3d2311933"]`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.ChainbaseKey != "cb-key" || cfg.TelegramToken != "tg-token" || cfg.TelegramChatID != "42" {
		t.Fatalf("secret overrides lost: %+v", cfg)
	}
	if cfg.Chains["bsc"].RPCURL != "https://example.org/bsc" {
		t.Fatalf("bsc rpc override lost: %s", cfg.Chains["bsc"].RPCURL)
	}
	if cfg.Chains["ethereum"].RPCURL != "https://example.org/eth" {
		t.Fatalf("eth rpc override lost: %s", cfg.Chains["ethereum"].RPCURL)
	}
}

func TestTokensByChain(t *testing.T) {
	path := writeConfig(t, `
Watch = ["0x6982508145454Ce325dDbE47a25d4ec3d2311933"]

[[Tokens]]
Address = "0x2170Ed0880ac9A755fd29B2688956BD959F933F8"
Chain = "bsc"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	grouped := cfg.TokensByChain()
	if len(grouped) != 2 || len(grouped["ethereum"]) != 1 || len(grouped["bsc"]) != 1 {
		t.Fatalf("grouping mismatch: %v", grouped)
	}
}

func TestCustomChainDefinition(t *testing.T) {
	path := writeConfig(t, `
[Chains.sonic]
ChainID = 146
RPCURL = "https://rpc.soniclabs.com"
Explorer = "https://sonicscan.org"

[[Tokens]]
Address = "0x6982508145454Ce325dDbE47a25d4ec3d2311933"
Chain = "sonic"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	desc := cfg.Chains["sonic"]
	if desc.ChainID != 146 || desc.PricePrefix != "sonic" {
		t.Fatalf("custom chain descriptor wrong: %+v", desc)
	}
}

func TestMaskURL(t *testing.T) {
	if have := MaskURL("https://mainnet.infura.io/v3/secret-key"); have != "https://mainnet.infura.io/..." {
		t.Fatalf("mask mismatch: %s", have)
	}
	if have := MaskURL(""); have != "(unset)" {
		t.Fatalf("empty mask mismatch: %s", have)
	}
}
