package sdk

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/kelseyhightower/envconfig"

	"github.com/breez/breez-sdk-liquid-core/chain/hybrid"
	"github.com/breez/breez-sdk-liquid-core/errs"
)

// Config is the single source of runtime configuration for an Orchestrator,
// loaded from the environment rather than threaded in piecemeal: every
// constructor below takes Config or something built from it, nothing
// reaches for a package-level global.
type Config struct {
	// Network selects the chain parameters every address/key derivation
	// uses: "mainnet", "testnet", or "regtest".
	Network string `envconfig:"NETWORK" default:"mainnet"`
	// DataDir holds the sqlite persistence DB and the encrypted wallet
	// scan cache.
	DataDir string `envconfig:"DATA_DIR" default:"."`

	Mnemonic           string `envconfig:"MNEMONIC" required:"true"`
	MnemonicPassphrase string `envconfig:"MNEMONIC_PASSPHRASE"`

	SwapperBaseURL string `envconfig:"SWAPPER_BASE_URL" required:"true"`
	SwapperWSURL   string `envconfig:"SWAPPER_WS_URL" required:"true"`
	SwapperAPIKey  string `envconfig:"SWAPPER_API_KEY"`

	BitcoinElectrumURL string `envconfig:"BITCOIN_ELECTRUM_URL"`
	BitcoinEsploraURL  string `envconfig:"BITCOIN_ESPLORA_URL"`
	LiquidElectrumURL  string `envconfig:"LIQUID_ELECTRUM_URL"`
	LiquidEsploraURL   string `envconfig:"LIQUID_ESPLORA_URL"`

	// RecoveryIntervalSeconds is how often the Orchestrator's tick loop
	// runs Recoverer.RecoverFromOnchain as a backstop alongside the live
	// status-stream event handlers.
	RecoveryIntervalSeconds int `envconfig:"RECOVERY_INTERVAL_SECONDS" default:"60"`
}

// LoadConfig reads a Config from environment variables prefixed
// SWAPENGINE_ (e.g. SWAPENGINE_MNEMONIC).
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("swapengine", &cfg); err != nil {
		return nil, fmt.Errorf("%w: loading config: %s", errs.ErrGeneric, err)
	}
	return &cfg, nil
}

// chainParams resolves Network to the btcd chain parameters used for both
// wallet key derivation and address rendering, on both the Bitcoin and
// Liquid side (this module has no separate Elements chaincfg dependency,
// so one parameter set is shared across both chains' address formats).
func (c *Config) chainParams() (*chaincfg.Params, error) {
	switch c.Network {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, fmt.Errorf("%w: unknown network %q", errs.ErrGeneric, c.Network)
	}
}

// bitcoinExplorers and liquidExplorers build the ordered hybrid.Service
// failover list for each chain. TLS/domain validation is only relaxed for
// regtest.
func (c *Config) bitcoinExplorers() []hybrid.BlockchainExplorer {
	insecure := c.Network == "regtest"
	var explorers []hybrid.BlockchainExplorer
	if c.BitcoinElectrumURL != "" {
		explorers = append(explorers, hybrid.BlockchainExplorer{
			Kind: hybrid.KindElectrum, URL: c.BitcoinElectrumURL, UseTLS: !insecure, InsecureSkipVerify: insecure,
		})
	}
	if c.BitcoinEsploraURL != "" {
		explorers = append(explorers, hybrid.BlockchainExplorer{Kind: hybrid.KindEsplora, URL: c.BitcoinEsploraURL})
	}
	return explorers
}

func (c *Config) liquidExplorers() []hybrid.BlockchainExplorer {
	insecure := c.Network == "regtest"
	var explorers []hybrid.BlockchainExplorer
	if c.LiquidElectrumURL != "" {
		explorers = append(explorers, hybrid.BlockchainExplorer{
			Kind: hybrid.KindElectrum, URL: c.LiquidElectrumURL, UseTLS: !insecure, InsecureSkipVerify: insecure,
		})
	}
	if c.LiquidEsploraURL != "" {
		explorers = append(explorers, hybrid.BlockchainExplorer{Kind: hybrid.KindEsplora, URL: c.LiquidEsploraURL})
	}
	return explorers
}
