package anchors

import (
	"context"

	"github.com/bsv-blockchain/go-overlay-dataset-anchors/pkg/types"
)

// StorageInterface defines the storage operations the DLM1 lookup service needs.
type StorageInterface interface {
	// EnsureIndexes ensures the necessary indexes are created for the collections
	EnsureIndexes(ctx context.Context) error

	// StoreAnchorRecord stores an admitted anchor output. Storing the same
	// outpoint twice leaves one record.
	StoreAnchorRecord(ctx context.Context, record types.AnchorRecord) error

	// DeleteAnchorRecord removes the record for an outpoint
	DeleteAnchorRecord(ctx context.Context, txid string, outputIndex uint32) error

	// UpdateBlockHeight records the block height of every output of txid
	UpdateBlockHeight(ctx context.Context, txid string, blockHeight uint32) error

	// FindRecord finds anchors matching the query filters
	FindRecord(ctx context.Context, query types.AnchorQuery) ([]types.AnchorLookupResult, error)

	// FindAll returns all anchors with optional pagination
	FindAll(ctx context.Context, limit, skip *int, sortOrder *types.SortOrder) ([]types.AnchorLookupResult, error)
}
