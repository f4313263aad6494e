// Package types holds the records exchanged between the anchoring services
// and their storage: manifest rows, on-chain declarations, admitted anchor
// outputs and the query shapes used to find them.
package types

import (
	"time"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	"github.com/bsv-blockchain/go-sdk/transaction"
)

// SortOrder orders query results by creation time.
type SortOrder string

const (
	SortOrderAsc  SortOrder = "asc"
	SortOrderDesc SortOrder = "desc"
)

// AnchorTag is the record kind of a declaration.
type AnchorTag string

const (
	AnchorTagDLM1    AnchorTag = "DLM1"
	AnchorTagTRN1    AnchorTag = "TRN1"
	AnchorTagUnknown AnchorTag = "UNKNOWN"
)

// DeclarationStatus tracks whether the anchoring transaction is mined.
type DeclarationStatus string

const (
	DeclarationStatusPending   DeclarationStatus = "pending"
	DeclarationStatusConfirmed DeclarationStatus = "confirmed"
)

// ManifestRecord is a validated manifest keyed by its version id.
type ManifestRecord struct {
	VersionID      string    `json:"versionId" bson:"versionId"`
	ManifestHash   string    `json:"manifestHash" bson:"manifestHash"`
	DatasetID      string    `json:"datasetId,omitempty" bson:"datasetId,omitempty"`
	ContentHash    string    `json:"contentHash,omitempty" bson:"contentHash,omitempty"`
	License        string    `json:"license,omitempty" bson:"license,omitempty"`
	Classification string    `json:"classification,omitempty" bson:"classification,omitempty"`
	Parents        []string  `json:"parents" bson:"parents"`
	CID            string    `json:"cid" bson:"cid"`
	ManifestJSON   string    `json:"manifestJson" bson:"manifestJson"`
	CreatedAt      time.Time `json:"createdAt" bson:"createdAt"`
}

// Declaration links a manifest version to the transaction that anchors it.
// OpretVout is nil when the transaction carried no OP_RETURN output.
type Declaration struct {
	ID          string            `json:"id" bson:"_id"`
	VersionID   string            `json:"versionId" bson:"versionId"`
	Txid        string            `json:"txid" bson:"txid"`
	Type        AnchorTag         `json:"type" bson:"type"`
	Status      DeclarationStatus `json:"status" bson:"status"`
	OpretVout   *uint32           `json:"opretVout" bson:"opretVout"`
	RawTx       string            `json:"rawTx,omitempty" bson:"rawTx,omitempty"`
	BlockHash   string            `json:"blockHash,omitempty" bson:"blockHash,omitempty"`
	BlockHeight *uint32           `json:"height,omitempty" bson:"height,omitempty"`
	CreatedAt   time.Time         `json:"createdAt" bson:"createdAt"`
}

// AnchorRecord is a DLM1 output admitted by the overlay topic manager.
type AnchorRecord struct {
	Txid         string    `json:"txid" bson:"txid"`
	OutputIndex  uint32    `json:"outputIndex" bson:"outputIndex"`
	ManifestHash string    `json:"manifestHash" bson:"manifestHash"`
	Parents      []string  `json:"parents" bson:"parents"`
	BlockHeight  *uint32   `json:"blockHeight,omitempty" bson:"blockHeight,omitempty"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
}

// Outpoint returns the record's transaction.Outpoint.
func (r *AnchorRecord) Outpoint() (*transaction.Outpoint, error) {
	txid, err := chainhash.NewHashFromHex(r.Txid)
	if err != nil {
		return nil, err
	}
	return &transaction.Outpoint{Txid: *txid, Index: r.OutputIndex}, nil
}

// UTXOReference identifies an admitted output in lookup answers.
type UTXOReference struct {
	Txid        string `json:"txid" bson:"txid"`
	OutputIndex uint32 `json:"outputIndex" bson:"outputIndex"`
}

// AnchorLookupResult is one entry of a lookup answer.
type AnchorLookupResult struct {
	UTXOReference `bson:",inline"`
	ManifestHash  string   `json:"manifestHash" bson:"manifestHash"`
	Parents       []string `json:"parents" bson:"parents"`
}

// AnchorQuery filters admitted anchors. Filters combine with AND.
type AnchorQuery struct {
	VersionID *string    `json:"versionId,omitempty"`
	Txid      *string    `json:"txid,omitempty"`
	Parent    *string    `json:"parent,omitempty"`
	FindAll   *bool      `json:"findAll,omitempty"`
	Limit     *int       `json:"limit,omitempty"`
	Skip      *int       `json:"skip,omitempty"`
	SortOrder *SortOrder `json:"sortOrder,omitempty"`
}
