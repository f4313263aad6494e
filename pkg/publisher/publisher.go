// Package publisher turns a prepared DLM1 submission into a broadcast
// transaction using a BRC-100 wallet. The wallet funds the zero-value anchor
// output, signs and broadcasts; the publisher returns what ingestion and the
// overlay need: the txid, the raw transaction and a BEEF tagged for tm_dlm1.
package publisher

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bsv-blockchain/go-sdk/overlay"
	"github.com/bsv-blockchain/go-sdk/transaction"
	"github.com/bsv-blockchain/go-sdk/wallet"

	"github.com/bsv-blockchain/go-overlay-dataset-anchors/pkg/anchors"
	"github.com/bsv-blockchain/go-overlay-dataset-anchors/pkg/ingest"
	"github.com/bsv-blockchain/go-overlay-dataset-anchors/pkg/opreturn"
)

// Static error variables for err113 compliance
var (
	errNilSubmission      = errors.New("submission is required")
	errNoOutputs          = errors.New("submission has no outputs")
	errNotAnchorOutput    = errors.New("output is not a zero-value OP_RETURN anchor")
	errEmptyTransaction   = errors.New("wallet returned no transaction")
	errAnchorOutputAbsent = errors.New("anchor output not found in created transaction")
)

// ActionCreator is the part of wallet.Interface the publisher uses.
type ActionCreator interface {
	CreateAction(ctx context.Context, args wallet.CreateActionArgs, originator string) (*wallet.CreateActionResult, error)
}

// Compile-time verification that any BRC-100 wallet can publish anchors
var _ ActionCreator = (wallet.Interface)(nil)

// Publisher creates anchor transactions through a wallet.
type Publisher struct {
	wallet     ActionCreator
	originator string
	logger     *slog.Logger
}

// New creates a publisher. originator is passed to CreateAction and may be
// empty. A nil logger uses slog.Default().
func New(w ActionCreator, originator string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{wallet: w, originator: originator, logger: logger}
}

// Result is a published anchor transaction.
type Result struct {
	Txid  string
	RawTx string
	// Vout is the index of the first anchor output.
	Vout uint32
	// Tagged is the transaction as BEEF, addressed to the DLM1 topic. Beef
	// is nil when the wallet returned a raw transaction lacking ancestry.
	Tagged overlay.TaggedBEEF
}

// Publish asks the wallet to create a transaction carrying the submission's
// outputs. Every output must be a zero-value OP_RETURN script.
func (p *Publisher) Publish(ctx context.Context, sub *ingest.Submission) (*Result, error) {
	if sub == nil {
		return nil, errNilSubmission
	}
	if len(sub.Outputs) == 0 {
		return nil, errNoOutputs
	}

	outputs := make([]wallet.CreateActionOutput, 0, len(sub.Outputs))
	var anchorScript []byte
	for i, out := range sub.Outputs {
		lockingScript, err := hex.DecodeString(out.ScriptHex)
		if err != nil {
			return nil, fmt.Errorf("output %d: invalid script hex: %w", i, err)
		}
		if _, _, ok := opreturn.ParseScript(lockingScript); !ok || out.Satoshis != 0 {
			return nil, fmt.Errorf("%w: output %d", errNotAnchorOutput, i)
		}
		if anchorScript == nil {
			anchorScript = lockingScript
		}
		outputs = append(outputs, wallet.CreateActionOutput{
			OutputDescription: "DLM1 anchor for " + sub.VersionID,
			Satoshis:          0,
			LockingScript:     lockingScript,
		})
	}

	createActionResult, err := p.wallet.CreateAction(ctx, wallet.CreateActionArgs{
		Outputs:     outputs,
		Description: "DLM1 dataset version anchor",
		Labels:      []string{"dlm1"},
	}, p.originator)
	if err != nil {
		return nil, fmt.Errorf("failed to create action for anchor: %w", err)
	}
	if createActionResult == nil || len(createActionResult.Tx) == 0 {
		return nil, errEmptyTransaction
	}

	tx, beefBytes, err := decodeCreatedTx(createActionResult.Tx)
	if tx == nil {
		return nil, err
	}
	if err != nil {
		// Raw transactions without source ancestry cannot be wrapped as BEEF.
		p.logger.Warn("Published anchor has no BEEF", "txid", tx.TxID().String(), "error", err)
	}

	vout, ok := findOutput(tx, anchorScript)
	if !ok {
		return nil, errAnchorOutputAbsent
	}

	result := &Result{
		Txid:  tx.TxID().String(),
		RawTx: tx.Hex(),
		Vout:  vout,
		Tagged: overlay.TaggedBEEF{
			Beef:   beefBytes,
			Topics: []string{anchors.Topic},
		},
	}
	p.logger.Info("Published DLM1 anchor", "txid", result.Txid, "vout", vout, "versionId", sub.VersionID)
	return result, nil
}

// decodeCreatedTx accepts the wallet's transaction as BEEF or as raw bytes
// and returns it together with a BEEF encoding. A raw transaction whose BEEF
// cannot be built is returned with a nil encoding and the error.
func decodeCreatedTx(data []byte) (*transaction.Transaction, []byte, error) {
	if tx, err := transaction.NewTransactionFromBEEF(data); err == nil {
		return tx, data, nil
	}

	tx, err := transaction.NewTransactionFromBytes(data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create transaction from tx: %w", err)
	}
	beef, err := transaction.NewBeefFromTransaction(tx)
	if err != nil {
		return tx, nil, fmt.Errorf("failed to create BEEF from transaction: %w", err)
	}
	beefBytes, err := beef.Bytes()
	if err != nil {
		return tx, nil, fmt.Errorf("failed to encode BEEF: %w", err)
	}
	return tx, beefBytes, nil
}

func findOutput(tx *transaction.Transaction, lockingScript []byte) (uint32, bool) {
	for i, out := range tx.Outputs {
		if out.LockingScript != nil && bytes.Equal(*out.LockingScript, lockingScript) {
			return uint32(i), true //nolint:gosec // output count fits in uint32
		}
	}
	return 0, false
}
