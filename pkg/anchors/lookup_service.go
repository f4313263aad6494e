package anchors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bsv-blockchain/go-overlay-services/pkg/core/engine"
	"github.com/bsv-blockchain/go-sdk/chainhash"
	"github.com/bsv-blockchain/go-sdk/overlay"
	"github.com/bsv-blockchain/go-sdk/overlay/lookup"
	"github.com/bsv-blockchain/go-sdk/transaction"

	"github.com/bsv-blockchain/go-overlay-dataset-anchors/pkg/types"
	"github.com/bsv-blockchain/go-overlay-dataset-anchors/pkg/utils"
)

// Static error variables for err113 compliance
var (
	errInvalidAdmissionMode      = errors.New("invalid admission mode")
	errValidQueryMustBeProvided  = errors.New("a valid query must be provided")
	errLookupServiceNotSupported = errors.New("lookup service not supported")
	errInvalidStringQuery        = errors.New("invalid string query: only 'findAll' is supported")
	errQueryVersionIDInvalid     = errors.New("query.versionId must be a 64-character hex string if provided")
	errQueryTxidInvalid          = errors.New("query.txid must be a 64-character hex string if provided")
	errQueryParentInvalid        = errors.New("query.parent must be a 64-character hex string if provided")
	errQueryLimitInvalid         = errors.New("query.limit must be a positive number if provided")
	errQuerySkipInvalid          = errors.New("query.skip must be a non-negative number if provided")
	errQuerySortOrderInvalid     = errors.New("query.sortOrder must be 'asc' or 'desc' if provided")
)

// LookupService implements the BSV overlay LookupService interface for DLM1
// anchors. It indexes admitted anchors by manifest hash, txid and parent.
type LookupService struct {
	storage               StorageInterface
	logger                *slog.Logger
	AdmissionMode         types.AdmissionMode
	SpendNotificationMode types.SpendNotificationMode
}

// Compile-time verification that LookupService implements engine.LookupService
var _ engine.LookupService = (*LookupService)(nil)

// NewLookupService creates a new DLM1 lookup service instance. A nil logger
// uses slog.Default().
func NewLookupService(storage StorageInterface, logger *slog.Logger) *LookupService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LookupService{
		storage:               storage,
		logger:                logger,
		AdmissionMode:         types.AnchorAdmissionMode,
		SpendNotificationMode: types.AnchorSpendNotificationMode,
	}
}

// OutputAdmittedByTopic decodes the anchor from the admitted locking script
// and stores it. Outputs of other topics are ignored.
func (s *LookupService) OutputAdmittedByTopic(ctx context.Context, payload *engine.OutputAdmittedByTopic) error {
	if s.AdmissionMode != types.AdmissionModeLockingScript {
		return fmt.Errorf("%w: %s", errInvalidAdmissionMode, s.AdmissionMode)
	}
	if payload.Topic != Topic {
		return nil
	}

	anchor, err := DecodeAnchorScript(payload.LockingScript)
	if err != nil {
		return fmt.Errorf("failed to decode admitted anchor: %w", err)
	}

	record := types.AnchorRecord{
		Txid:         payload.Outpoint.Txid.String(),
		OutputIndex:  payload.Outpoint.Index,
		ManifestHash: anchor.ManifestHash.String(),
		Parents:      anchor.ParentStrings(),
	}
	if err := s.storage.StoreAnchorRecord(ctx, record); err != nil {
		return err
	}
	s.logger.Info("Stored DLM1 anchor", "outpoint", payload.Outpoint.String(), "manifestHash", record.ManifestHash)
	return nil
}

// OutputSpent removes the record of a spent output. OP_RETURN outputs cannot
// be spent, but the engine contract is honoured for completeness.
func (s *LookupService) OutputSpent(ctx context.Context, payload *engine.OutputSpent) error {
	if payload.Topic != Topic {
		return nil
	}
	return s.storage.DeleteAnchorRecord(ctx, payload.Outpoint.Txid.String(), payload.Outpoint.Index)
}

// OutputEvicted removes the record of an evicted output.
func (s *LookupService) OutputEvicted(ctx context.Context, outpoint *transaction.Outpoint) error {
	return s.storage.DeleteAnchorRecord(ctx, outpoint.Txid.String(), outpoint.Index)
}

// OutputNoLongerRetainedInHistory is a no-op: anchors are kept regardless of
// history retention.
func (s *LookupService) OutputNoLongerRetainedInHistory(_ context.Context, _ *transaction.Outpoint, _ string) error {
	return nil
}

// OutputBlockHeightUpdated records the block height of a mined anchor transaction.
func (s *LookupService) OutputBlockHeightUpdated(ctx context.Context, txid *chainhash.Hash, blockHeight uint32, _ uint64) error {
	return s.storage.UpdateBlockHeight(ctx, txid.String(), blockHeight)
}

// Lookup performs a lookup query and returns matching anchors as a freeform answer.
//
// Supported query formats:
//   - String "findAll": Returns all anchors
//   - Object with AnchorQuery fields: Filters by versionId, txid and parent with pagination
func (s *LookupService) Lookup(ctx context.Context, question *lookup.LookupQuestion) (*lookup.LookupAnswer, error) {
	if len(question.Query) == 0 {
		return nil, errValidQueryMustBeProvided
	}
	if question.Service != Service {
		return nil, fmt.Errorf("%w: expected '%s', got '%s'", errLookupServiceNotSupported, Service, question.Service)
	}

	var queryStr string
	if err := json.Unmarshal(question.Query, &queryStr); err == nil {
		if queryStr != "findAll" {
			return nil, fmt.Errorf("%w: got '%s'", errInvalidStringQuery, queryStr)
		}
		results, err := s.storage.FindAll(ctx, nil, nil, nil)
		if err != nil {
			return nil, err
		}
		return toLookupAnswer(results), nil
	}

	query, err := parseQuery(question.Query)
	if err != nil {
		return nil, fmt.Errorf("invalid query format: %w", err)
	}

	var results []types.AnchorLookupResult
	if query.FindAll != nil && *query.FindAll {
		results, err = s.storage.FindAll(ctx, query.Limit, query.Skip, query.SortOrder)
	} else {
		results, err = s.storage.FindRecord(ctx, *query)
	}
	if err != nil {
		return nil, err
	}
	return toLookupAnswer(results), nil
}

// parseQuery decodes and validates an object query. Hex filters are lowercased.
func parseQuery(raw json.RawMessage) (*types.AnchorQuery, error) {
	var query types.AnchorQuery
	if err := json.Unmarshal(raw, &query); err != nil {
		return nil, fmt.Errorf("failed to unmarshal query object: %w", err)
	}
	if err := validateQuery(&query); err != nil {
		return nil, err
	}
	return &query, nil
}

func normalizeHashFilter(v *string, errInvalid error) error {
	if v == nil {
		return nil
	}
	if !utils.IsHash64Hex(*v) {
		return errInvalid
	}
	*v = strings.ToLower(*v)
	return nil
}

// validateQuery validates the query parameters
func validateQuery(query *types.AnchorQuery) error {
	if err := normalizeHashFilter(query.VersionID, errQueryVersionIDInvalid); err != nil {
		return err
	}
	if err := normalizeHashFilter(query.Txid, errQueryTxidInvalid); err != nil {
		return err
	}
	if err := normalizeHashFilter(query.Parent, errQueryParentInvalid); err != nil {
		return err
	}

	if query.Limit != nil && *query.Limit < 0 {
		return errQueryLimitInvalid
	}
	if query.Skip != nil && *query.Skip < 0 {
		return errQuerySkipInvalid
	}
	if query.SortOrder != nil && *query.SortOrder != types.SortOrderAsc && *query.SortOrder != types.SortOrderDesc {
		return errQuerySortOrderInvalid
	}
	return nil
}

func toLookupAnswer(results []types.AnchorLookupResult) *lookup.LookupAnswer {
	if results == nil {
		results = []types.AnchorLookupResult{}
	}
	return &lookup.LookupAnswer{
		Type:   lookup.AnswerTypeFreeform,
		Result: results,
	}
}

// GetDocumentation returns the service documentation.
func (s *LookupService) GetDocumentation() string {
	return LookupDocumentation
}

// GetMetaData returns the service metadata.
func (s *LookupService) GetMetaData() *overlay.MetaData {
	return &overlay.MetaData{
		Name:        "DLM1 Lookup Service",
		Description: "Finds on-chain DLM1 anchors by manifest hash, transaction or parent version.",
	}
}
