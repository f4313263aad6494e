package publisher

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/bsv-blockchain/go-sdk/wallet"
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

// storageName identifies the wallet storage created for publishing.
const storageName = "dlm1-publisher"

// Network maps a chain name to the wallet network. Anything other than
// "test" selects mainnet.
func Network(chain string) defs.BSVNetwork {
	if strings.TrimSpace(chain) == "test" {
		return defs.NetworkTestnet
	}
	return defs.NetworkMainnet
}

// NewToolboxWallet builds a wallet-toolbox wallet for privateKeyHex backed by
// the toolbox's default GORM storage, migrating the storage on first use.
func NewToolboxWallet(ctx context.Context, chain, privateKeyHex string, logger *slog.Logger) (wallet.Interface, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := ValidatePrivateKey(privateKeyHex); err != nil {
		return nil, err
	}
	privKey, err := ec.PrivateKeyFromHex(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("failed to create private key object: %w", err)
	}

	cfg := infra.Defaults()
	cfg.ServerPrivateKey = privateKeyHex
	activeServices := services.New(logger, cfg.Services)

	storageManager, err := storage.NewGORMProvider(
		cfg.BSVNetwork,
		activeServices,
		storage.WithDBConfig(cfg.DBConfig),
		storage.WithFeeModel(cfg.FeeModel),
		storage.WithCommission(cfg.Commission),
		storage.WithSynchronizeTxStatuses(cfg.SynchronizeTxStatuses),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage manager: %w", err)
	}

	storageIdentityKey, err := wdk.IdentityKey(cfg.ServerPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage identity key: %w", err)
	}
	if _, err := storageManager.Migrate(ctx, storageName, storageIdentityKey); err != nil {
		return nil, fmt.Errorf("failed to migrate storage: %w", err)
	}

	wlt, err := toolboxWallet.New(Network(chain), privKey, storageManager)
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}
	return wlt, nil
}

// ValidatePrivateKey checks that privateKeyHex is a usable 32-byte key.
func ValidatePrivateKey(privateKeyHex string) error {
	if strings.TrimSpace(privateKeyHex) == "" {
		return errPrivateKeyRequired
	}
	privateKeyBytes, err := hex.DecodeString(privateKeyHex)
	if err != nil {
		return fmt.Errorf("private key is not valid hex: %w", err)
	}
	if len(privateKeyBytes) != 32 {
		return fmt.Errorf("%w, got %d bytes", errPrivateKeyInsufficientLength, len(privateKeyBytes))
	}

	allZeros := true
	uniqueBytes := make(map[byte]bool)
	for _, b := range privateKeyBytes {
		if b != 0 {
			allZeros = false
		}
		uniqueBytes[b] = true
	}
	if allZeros {
		return errPrivateKeyAllZeros
	}
	// Simple heuristic, not a randomness test
	if len(uniqueBytes) < 4 {
		return errPrivateKeyInsufficientEntropy
	}
	return nil
}
