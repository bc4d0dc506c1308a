package advertiser

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/bsv-blockchain/go-wallet-toolbox/pkg/defs"
	"github.com/bsv-blockchain/go-wallet-toolbox/pkg/infra"
	"github.com/bsv-blockchain/go-wallet-toolbox/pkg/services"
	"github.com/bsv-blockchain/go-wallet-toolbox/pkg/storage"
	toolboxWallet "github.com/bsv-blockchain/go-wallet-toolbox/pkg/wallet"
	"github.com/bsv-blockchain/go-wallet-toolbox/pkg/wdk"
)

// Static error variables for err113 compliance
var (
	errPrivateKeyRequired            = errors.New("privateKey parameter is required and cannot be empty")
	errPrivateKeyAllZeros            = errors.New("private key cannot be all zeros")
	errPrivateKeyInsufficientLength  = errors.New("private key must be exactly 32 bytes (64 hex characters)")
	errPrivateKeyInsufficientEntropy = errors.New("private key appears to have insufficient entropy")
)

const minDistinctKeyBytes = 4

// NewToolboxWallet creates a wallet-toolbox wallet for privateKeyHex, backed by the
// toolbox's default local storage. chain "test" or "testnet" selects testnet.
func NewToolboxWallet(ctx context.Context, chain, privateKeyHex string, logger *slog.Logger) (Wallet, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := screenPrivateKey(privateKeyHex); err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	privKey, err := ec.PrivateKeyFromHex(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	network := toolboxNetwork(chain)
	cfg := infra.Defaults()
	cfg.BSVNetwork = network
	cfg.ServerPrivateKey = privateKeyHex

	storageManager, err := storage.NewGORMProvider(
		network,
		services.New(logger, cfg.Services),
		storage.WithDBConfig(cfg.DBConfig),
		storage.WithFeeModel(cfg.FeeModel),
		storage.WithCommission(cfg.Commission),
		storage.WithSynchronizeTxStatuses(cfg.SynchronizeTxStatuses),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage manager: %w", err)
	}

	storageIdentityKey, err := wdk.IdentityKey(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage identity key: %w", err)
	}
	if _, err := storageManager.Migrate(ctx, "overlay-advertiser", storageIdentityKey); err != nil {
		return nil, fmt.Errorf("failed to migrate storage: %w", err)
	}

	wlt, err := toolboxWallet.New(network, privKey, storageManager)
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}
	logger.Debug("Toolbox wallet ready", "network", network, "identityKey", storageIdentityKey)
	return wlt, nil
}

func toolboxNetwork(chain string) defs.BSVNetwork {
	switch strings.ToLower(strings.TrimSpace(chain)) {
	case "test", "testnet":
		return defs.NetworkTestnet
	default:
		return defs.NetworkMainnet
	}
}

// screenPrivateKey rejects keys that are malformed or obviously unsafe. The distinct byte
// count is a cheap heuristic, not an entropy measure.
func screenPrivateKey(privateKeyHex string) error {
	if strings.TrimSpace(privateKeyHex) == "" {
		return errPrivateKeyRequired
	}
	raw, err := hex.DecodeString(privateKeyHex)
	if err != nil {
		return fmt.Errorf("private key is not valid hex: %w", err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("%w, got %d bytes", errPrivateKeyInsufficientLength, len(raw))
	}

	var seen [256]bool
	distinct := 0
	for _, b := range raw {
		if !seen[b] {
			seen[b] = true
			distinct++
		}
	}
	switch {
	case distinct == 1 && raw[0] == 0:
		return errPrivateKeyAllZeros
	case distinct < minDistinctKeyBytes:
		return errPrivateKeyInsufficientEntropy
	}
	return nil
}
