// Package anchors connects DLM1 anchors to a BSV overlay: a topic manager that
// admits outputs carrying a decodable anchor, a lookup service that indexes
// them, and the MongoDB storage behind both.
package anchors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bsv-blockchain/go-overlay-services/pkg/core/engine"
	"github.com/bsv-blockchain/go-sdk/overlay"
	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/bsv-blockchain/go-sdk/transaction"

	"github.com/bsv-blockchain/go-overlay-dataset-anchors/pkg/dlm1"
	"github.com/bsv-blockchain/go-overlay-dataset-anchors/pkg/opreturn"
)

// Constants for DLM1 overlay configuration
const (
	// Topic is the topic manager topic for DLM1 anchors
	Topic = "tm_dlm1"
	// Service is the lookup service identifier for DLM1 anchors
	Service = "ls_dlm1"
)

// Static error variables for err113 compliance
var (
	errNotOpReturn      = errors.New("locking script is not an OP_RETURN script")
	errNoDLM1Tag        = errors.New("OP_RETURN pushes carry no DLM1 tag")
	errNilLockingScript = errors.New("locking script is nil")
)

// DecodeAnchorScript extracts the DLM1 anchor carried by an OP_RETURN locking
// script, in either the single-push or the two-push layout.
func DecodeAnchorScript(s *script.Script) (dlm1.Anchor, error) {
	if s == nil {
		return dlm1.Anchor{}, errNilLockingScript
	}
	_, pushes, ok := opreturn.ParseScript(*s)
	if !ok {
		return dlm1.Anchor{}, errNotOpReturn
	}
	payload, ok := dlm1.SplitTag(dlm1.TagDLM1, pushes)
	if !ok {
		return dlm1.Anchor{}, errNoDLM1Tag
	}
	return dlm1.DecodeAnchor(payload)
}

// TopicManager implements engine.TopicManager for DLM1 anchors. An output is
// admitted when its locking script is an OP_RETURN carrying a strictly
// decodable DLM1 anchor.
type TopicManager struct {
	logger *slog.Logger
}

// NewTopicManager creates a new DLM1 topic manager. A nil logger uses slog.Default().
func NewTopicManager(logger *slog.Logger) *TopicManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &TopicManager{logger: logger}
}

// IdentifyAdmissibleOutputs identifies which outputs of the BEEF-encoded
// transaction carry a DLM1 anchor. Anchor outputs spend nothing of interest,
// so no previous coins are retained.
func (tm *TopicManager) IdentifyAdmissibleOutputs(_ context.Context, beef []byte, _ map[uint32]*transaction.TransactionOutput) (overlay.AdmittanceInstructions, error) {
	tx, err := transaction.NewTransactionFromBEEF(beef)
	if err != nil {
		return overlay.AdmittanceInstructions{}, fmt.Errorf("failed to parse BEEF: %w", err)
	}

	var outputsToAdmit []uint32
	for i, output := range tx.Outputs {
		anchor, err := DecodeAnchorScript(output.LockingScript)
		if err != nil {
			if errors.Is(err, dlm1.ErrAnchorDecode) {
				tm.logger.Warn("Skipping malformed DLM1 anchor", "txid", tx.TxID().String(), "vout", i, "error", err)
			}
			continue
		}
		tm.logger.Info("Admitting DLM1 anchor", "txid", tx.TxID().String(), "vout", i,
			"manifestHash", anchor.ManifestHash.String(), "parents", len(anchor.Parents))
		outputsToAdmit = append(outputsToAdmit, uint32(i)) //nolint:gosec // output count fits in uint32
	}

	return overlay.AdmittanceInstructions{
		OutputsToAdmit: outputsToAdmit,
	}, nil
}

// IdentifyNeededInputs returns nil: admission depends only on the outputs.
func (tm *TopicManager) IdentifyNeededInputs(_ context.Context, _ []byte) ([]*transaction.Outpoint, error) {
	return nil, nil
}

// GetDocumentation returns documentation specific to the DLM1 topic manager
func (tm *TopicManager) GetDocumentation() string {
	return TopicManagerDocumentation
}

// GetMetaData returns metadata associated with this topic manager
func (tm *TopicManager) GetMetaData() *overlay.MetaData {
	return &overlay.MetaData{
		Name:        "DLM1 Topic Manager",
		Description: "Admits OP_RETURN outputs anchoring DLM1 dataset manifests.",
	}
}

// Verify that TopicManager implements engine.TopicManager
var _ engine.TopicManager = (*TopicManager)(nil)
