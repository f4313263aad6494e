// Package ingest prepares DLM1 submissions and validates the transactions
// that claim to anchor them.
//
// BuildSubmission derives a manifest's identifiers and returns the OP_RETURN
// output a wallet must include. IngestSubmission later re-derives those
// identifiers from the manifest alone and checks them against the anchor
// found in the submitted raw transaction.
package ingest

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bsv-blockchain/go-sdk/transaction"
	"github.com/google/uuid"

	"github.com/bsv-blockchain/go-overlay-dataset-anchors/pkg/dlm1"
	"github.com/bsv-blockchain/go-overlay-dataset-anchors/pkg/opreturn"
	"github.com/bsv-blockchain/go-overlay-dataset-anchors/pkg/types"
	"github.com/bsv-blockchain/go-overlay-dataset-anchors/pkg/utils"
)

// DefaultMaxRawTxBytes caps the decoded size of a submitted raw transaction.
const DefaultMaxRawTxBytes = 1 << 20

// Repository persists the records produced by the service.
type Repository interface {
	// UpsertManifest stores a manifest keyed by version id; an existing
	// record is left unchanged.
	UpsertManifest(ctx context.Context, record types.ManifestRecord) error

	// CreateOrGetDeclaration stores decl unless a declaration for the same
	// txid exists, returning the stored one and whether decl was inserted.
	CreateOrGetDeclaration(ctx context.Context, decl types.Declaration) (types.Declaration, bool, error)
}

// Config holds the service limits.
type Config struct {
	// MaxOpReturnBytes caps the bytes pushed into the anchor script.
	MaxOpReturnBytes int
	// MaxRawTxBytes caps the decoded size of a submitted raw transaction.
	MaxRawTxBytes int
	// Headers verifies envelopes. Submissions carrying an envelope are
	// rejected when it is nil.
	Headers HeaderSource
	// MinConfirmations is the depth an envelope's block must have.
	MinConfirmations uint32
}

// Service builds and ingests DLM1 submissions.
type Service struct {
	builder          *opreturn.Builder
	maxRawTxBytes    int
	headers          HeaderSource
	minConfirmations uint32
	repo             Repository
	logger           *slog.Logger
}

// NewService creates a submission service. repo may be nil, in which case
// nothing is persisted. A nil logger uses slog.Default().
func NewService(cfg Config, repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxRawTxBytes <= 0 {
		cfg.MaxRawTxBytes = DefaultMaxRawTxBytes
	}
	return &Service{
		builder:          opreturn.NewBuilder(cfg.MaxOpReturnBytes),
		maxRawTxBytes:    cfg.MaxRawTxBytes,
		headers:          cfg.Headers,
		minConfirmations: cfg.MinConfirmations,
		repo:             repo,
		logger:           logger,
	}
}

// OutputTemplate is an output the caller's wallet must add to the anchoring
// transaction.
type OutputTemplate struct {
	ScriptHex string `json:"scriptHex"`
	Satoshis  uint64 `json:"satoshis"`
}

// Submission is the response to a successful BuildSubmission.
type Submission struct {
	Status              string           `json:"status"`
	VersionID           string           `json:"versionId"`
	ManifestHash        string           `json:"manifestHash"`
	Parents             []string         `json:"parents"`
	Outputs             []OutputTemplate `json:"outputs"`
	OpReturnScriptHex   string           `json:"opReturnScriptHex"`
	OpReturnOutputBytes int              `json:"opReturnOutputBytes"`
	CID                 string           `json:"cid"`
}

// BuildSubmission derives the manifest's identifiers, encodes its anchor
// and returns the zero-value OP_RETURN output carrying it. When a repository
// is configured the manifest is stored under its version id.
func (s *Service) BuildSubmission(ctx context.Context, m *dlm1.Manifest) (*Submission, error) {
	if m == nil {
		return nil, newError(KindInvalidInput, "manifest is required", ErrInvalidInput)
	}

	anchor, ids, err := dlm1.AnchorFromManifest(m)
	if err != nil {
		return nil, classify(err)
	}
	payload, err := dlm1.EncodeAnchor(anchor)
	if err != nil {
		return nil, classify(err)
	}
	blob, err := dlm1.ComposeTag(dlm1.TagDLM1, payload)
	if err != nil {
		return nil, classify(err)
	}
	lockingScript, err := s.builder.Script(blob)
	if err != nil {
		return nil, classify(err)
	}
	manifestCID, err := dlm1.ManifestCID(m)
	if err != nil {
		return nil, classify(err)
	}

	parents := anchor.ParentStrings()
	if s.repo != nil {
		record, err := manifestRecord(m, ids, parents, manifestCID.String())
		if err != nil {
			return nil, classify(err)
		}
		if err := s.repo.UpsertManifest(ctx, record); err != nil {
			return nil, newError(KindStorageFailed, "", err)
		}
	}

	scriptHex := lockingScript.String()
	return &Submission{
		Status:              "ok",
		VersionID:           ids.VersionID,
		ManifestHash:        ids.ManifestHash,
		Parents:             parents,
		Outputs:             []OutputTemplate{{ScriptHex: scriptHex, Satoshis: 0}},
		OpReturnScriptHex:   scriptHex,
		OpReturnOutputBytes: opreturn.OpReturnOutputSize(len(blob)),
		CID:                 manifestCID.String(),
	}, nil
}

// Ingestion is a manifest together with the transaction claiming to anchor it.
type Ingestion struct {
	Manifest *dlm1.Manifest
	// Txid is optional; it is derived from RawTx when empty and must match
	// it otherwise.
	Txid  string
	RawTx string
	// Envelope, when set, must prove the transaction was mined.
	Envelope *Envelope
}

// IngestResult describes an accepted ingestion.
type IngestResult struct {
	VersionID     string          `json:"versionId"`
	Txid          string          `json:"txid"`
	OpretVout     *uint32         `json:"opretVout"`
	Tag           types.AnchorTag `json:"tag"`
	DeclarationID string          `json:"id"`
	Created       bool            `json:"created"`
	// BlockHeight and Confirmations are set when an envelope was verified.
	BlockHeight   *uint32 `json:"blockHeight,omitempty"`
	Confirmations uint32  `json:"confirmations,omitempty"`
}

// IngestSubmission validates that in.RawTx anchors in.Manifest and records
// the declaration. Identifiers are derived from the manifest only. A
// transaction without an OP_RETURN output, or with an unrecognised tag, is
// accepted with tag UNKNOWN; a DLM1 anchor naming another manifest hash fails
// with ErrOnchainHashMismatch. A supplied envelope that does not verify fails
// with ErrSPVVerification; a verified one records the declaration as
// confirmed.
func (s *Service) IngestSubmission(ctx context.Context, in Ingestion) (*IngestResult, error) {
	if in.Manifest == nil {
		return nil, newError(KindInvalidInput, "manifest is required", ErrInvalidInput)
	}
	ids, err := dlm1.DeriveManifestIDs(in.Manifest)
	if err != nil {
		return nil, classify(err)
	}

	rawTx, txid, err := s.checkTransaction(in.RawTx, in.Txid)
	if err != nil {
		return nil, err
	}

	result := &IngestResult{VersionID: ids.VersionID, Txid: txid, Tag: types.AnchorTagUnknown}
	if out, ok := opreturn.FindFirstOpReturn(rawTx); ok {
		vout := out.Vout
		result.OpretVout = &vout
		switch out.Tag() {
		case dlm1.TagDLM1:
			result.Tag = types.AnchorTagDLM1
			if err := s.compareAnchor(out, txid, ids.ManifestHash); err != nil {
				return nil, err
			}
		case dlm1.TagTRN1:
			result.Tag = types.AnchorTagTRN1
		}
	}

	decl := types.Declaration{
		ID:        uuid.NewString(),
		VersionID: ids.VersionID,
		Txid:      txid,
		Type:      result.Tag,
		Status:    types.DeclarationStatusPending,
		OpretVout: result.OpretVout,
		RawTx:     rawTx,
	}
	if in.Envelope != nil {
		p, err := s.verifyEnvelope(ctx, in.Envelope, txid)
		if err != nil {
			s.logger.Warn("SPV verification failed", "txid", txid, "error", err)
			return nil, err
		}
		height := p.blockHeight
		decl.Status = types.DeclarationStatusConfirmed
		decl.BlockHeight = &height
		result.BlockHeight = &height
		result.Confirmations = p.confirmations
	}
	result.DeclarationID = decl.ID
	result.Created = true

	if s.repo != nil {
		parents, err := dlm1.ExtractParents(in.Manifest)
		if err != nil {
			return nil, classify(err)
		}
		manifestCID, err := dlm1.ManifestCID(in.Manifest)
		if err != nil {
			return nil, classify(err)
		}
		record, err := manifestRecord(in.Manifest, ids, parents, manifestCID.String())
		if err != nil {
			return nil, classify(err)
		}
		if err := s.repo.UpsertManifest(ctx, record); err != nil {
			return nil, newError(KindStorageFailed, "", err)
		}
		stored, created, err := s.repo.CreateOrGetDeclaration(ctx, decl)
		if err != nil {
			return nil, newError(KindStorageFailed, "", err)
		}
		result.DeclarationID = stored.ID
		result.Created = created
	}

	s.logger.Info("Ingested submission", "txid", txid, "versionId", ids.VersionID, "tag", result.Tag, "created", result.Created)
	return result, nil
}

// checkTransaction validates the raw transaction hex and reconciles the
// claimed txid with the one computed from it. Both are returned lowercased.
// Only the legacy serialization is accepted, byte for byte, so the txid and
// the OP_RETURN scan always read the same outputs.
func (s *Service) checkTransaction(rawTxHex, claimedTxid string) (string, string, error) {
	rawTxHex = utils.NormalizeHex(rawTxHex)
	if rawTxHex == "" || !utils.IsHex(rawTxHex) {
		return "", "", newError(KindInvalidInput, "rawTx must be hex", ErrInvalidInput)
	}
	if len(rawTxHex)/2 > s.maxRawTxBytes {
		return "", "", newError(KindPayloadTooLarge, "rawTx exceeds the size limit",
			fmt.Errorf("%w: %d > %d bytes", ErrInvalidInput, len(rawTxHex)/2, s.maxRawTxBytes))
	}

	raw, err := hex.DecodeString(rawTxHex)
	if err != nil {
		return "", "", newError(KindInvalidInput, "rawTx must be hex", fmt.Errorf("%w: %w", ErrInvalidInput, err))
	}
	tx, err := transaction.NewTransactionFromBytes(raw)
	if err != nil {
		return "", "", newError(KindInvalidInput, "rawTx is not a transaction", fmt.Errorf("%w: %w", ErrInvalidInput, err))
	}
	if !bytes.Equal(tx.Bytes(), raw) {
		return "", "", newError(KindInvalidInput, "rawTx must be a legacy serialized transaction",
			fmt.Errorf("%w: %d bytes do not re-serialize to themselves", ErrInvalidInput, len(raw)))
	}
	txid := tx.TxID().String()

	if claimedTxid != "" {
		if !utils.IsHash64Hex(claimedTxid) {
			return "", "", newError(KindInvalidInput, "txid must be 64 hex characters", ErrInvalidInput)
		}
		if strings.ToLower(claimedTxid) != txid {
			return "", "", newError(KindInvalidInput, "txid does not match rawTx",
				fmt.Errorf("%w: claimed %s, computed %s", ErrInvalidInput, strings.ToLower(claimedTxid), txid))
		}
	}
	return rawTxHex, txid, nil
}

// compareAnchor decodes the DLM1 anchor of out and checks its manifest hash.
// An anchor that cannot be decoded is logged and ignored.
func (s *Service) compareAnchor(out *opreturn.Output, txid, manifestHash string) error {
	payload, ok := out.TaggedPayload(dlm1.TagDLM1)
	if !ok {
		s.logger.Warn("DLM1 tag without payload", "txid", txid, "vout", out.Vout)
		return nil
	}
	anchor, err := dlm1.DecodeAnchor(payload)
	if err != nil {
		s.logger.Warn("DLM1 decode failed", "txid", txid, "vout", out.Vout, "error", err)
		return nil
	}

	onchain := anchor.ManifestHash.String()
	if !strings.EqualFold(onchain, manifestHash) {
		s.logger.Warn("On-chain manifest hash mismatch", "txid", txid, "vout", out.Vout,
			"onchainHash", onchain, "manifestHash", manifestHash)
		return newError(KindOnchainHashMismatch, "the transaction anchors a different manifest",
			fmt.Errorf("%w: on-chain %s, derived %s", ErrOnchainHashMismatch, onchain, manifestHash))
	}
	return nil
}

func manifestRecord(m *dlm1.Manifest, ids dlm1.IDs, parents []string, manifestCID string) (types.ManifestRecord, error) {
	manifestJSON, err := m.MarshalJSON()
	if err != nil {
		return types.ManifestRecord{}, err
	}
	return types.ManifestRecord{
		VersionID:      ids.VersionID,
		ManifestHash:   ids.ManifestHash,
		DatasetID:      m.DatasetID,
		ContentHash:    strings.ToLower(m.Content.ContentHash),
		License:        m.Policy.License,
		Classification: m.Policy.Classification,
		Parents:        parents,
		CID:            manifestCID,
		ManifestJSON:   string(manifestJSON),
	}, nil
}
