package anchors

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/bsv-blockchain/go-overlay-services/pkg/core/engine"
	"github.com/bsv-blockchain/go-sdk/chainhash"
	"github.com/bsv-blockchain/go-sdk/overlay/lookup"
	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/bsv-blockchain/go-sdk/transaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bsv-blockchain/go-overlay-dataset-anchors/pkg/dlm1"
	"github.com/bsv-blockchain/go-overlay-dataset-anchors/pkg/opreturn"
	"github.com/bsv-blockchain/go-overlay-dataset-anchors/pkg/types"
)

const TxID = "bdf1e48e845a65ba8c139c9b94844de30716f38d53787ba0a435e8705c4216d5"

// Static error variables for testing
var errTestStorage = errors.New("storage error")

// MockStorage is a mock implementation of StorageInterface
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) EnsureIndexes(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockStorage) StoreAnchorRecord(ctx context.Context, record types.AnchorRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockStorage) DeleteAnchorRecord(ctx context.Context, txid string, outputIndex uint32) error {
	args := m.Called(ctx, txid, outputIndex)
	return args.Error(0)
}

func (m *MockStorage) UpdateBlockHeight(ctx context.Context, txid string, blockHeight uint32) error {
	args := m.Called(ctx, txid, blockHeight)
	return args.Error(0)
}

func (m *MockStorage) FindRecord(ctx context.Context, query types.AnchorQuery) ([]types.AnchorLookupResult, error) {
	args := m.Called(ctx, query)
	return args.Get(0).([]types.AnchorLookupResult), args.Error(1)
}

func (m *MockStorage) FindAll(ctx context.Context, limit, skip *int, sortOrder *types.SortOrder) ([]types.AnchorLookupResult, error) {
	args := m.Called(ctx, limit, skip, sortOrder)
	return args.Get(0).([]types.AnchorLookupResult), args.Error(1)
}

// Test helper functions

func createTestLookupService() (*LookupService, *MockStorage) {
	mockStorage := new(MockStorage)
	return NewLookupService(mockStorage, discardLogger()), mockStorage
}

func hashOf(b byte) dlm1.Hash {
	var h dlm1.Hash
	for i := range h {
		h[i] = b
	}
	return h
}

// anchorScript builds OP_FALSE OP_RETURN <DLM1 || cbor(anchor)>.
func anchorScript(t *testing.T, a dlm1.Anchor) *script.Script {
	t.Helper()
	payload, err := dlm1.EncodeAnchor(a)
	require.NoError(t, err)
	blob, err := dlm1.ComposeTag(dlm1.TagDLM1, payload)
	require.NoError(t, err)
	s, err := opreturn.NewBuilder(0).Script(blob)
	require.NoError(t, err)
	return s
}

func testOutpoint(t *testing.T, index uint32) *transaction.Outpoint {
	t.Helper()
	txid, err := chainhash.NewHashFromHex(TxID)
	require.NoError(t, err)
	return &transaction.Outpoint{Txid: *txid, Index: index}
}

func TestOutputAdmittedByTopic(t *testing.T) {
	service, mockStorage := createTestLookupService()
	anchor := dlm1.Anchor{ManifestHash: hashOf(0xaa), Parents: []dlm1.Hash{hashOf(0xbb)}}

	expected := types.AnchorRecord{
		Txid:         TxID,
		OutputIndex:  1,
		ManifestHash: strings.Repeat("aa", 32),
		Parents:      []string{strings.Repeat("bb", 32)},
	}
	mockStorage.On("StoreAnchorRecord", mock.Anything, expected).Return(nil)

	err := service.OutputAdmittedByTopic(context.Background(), &engine.OutputAdmittedByTopic{
		Topic:         Topic,
		Outpoint:      testOutpoint(t, 1),
		LockingScript: anchorScript(t, anchor),
	})
	require.NoError(t, err)
	mockStorage.AssertExpectations(t)
}

func TestOutputAdmittedByTopic_OtherTopic(t *testing.T) {
	service, mockStorage := createTestLookupService()

	err := service.OutputAdmittedByTopic(context.Background(), &engine.OutputAdmittedByTopic{
		Topic:         "tm_other",
		Outpoint:      testOutpoint(t, 0),
		LockingScript: &script.Script{},
	})
	require.NoError(t, err)
	mockStorage.AssertNotCalled(t, "StoreAnchorRecord", mock.Anything, mock.Anything)
}

func TestOutputAdmittedByTopic_InvalidScripts(t *testing.T) {
	truncated, err := opreturn.NewBuilder(0).Script(append([]byte("DLM1"), 0xa1, 0x62, 0x6d, 0x68))
	require.NoError(t, err)
	otherTag, err := opreturn.NewBuilder(0).Script([]byte("TRN1payload"))
	require.NoError(t, err)

	tests := []struct {
		name    string
		script  *script.Script
		wantErr error
	}{
		{"p2pkh-like script", &script.Script{0x76, 0xa9}, errNotOpReturn},
		{"nil script", nil, errNilLockingScript},
		{"other tag", otherTag, errNoDLM1Tag},
		{"truncated cbor", truncated, dlm1.ErrAnchorDecode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, mockStorage := createTestLookupService()
			err := service.OutputAdmittedByTopic(context.Background(), &engine.OutputAdmittedByTopic{
				Topic:         Topic,
				Outpoint:      testOutpoint(t, 0),
				LockingScript: tt.script,
			})
			require.ErrorIs(t, err, tt.wantErr)
			mockStorage.AssertNotCalled(t, "StoreAnchorRecord", mock.Anything, mock.Anything)
		})
	}
}

func TestOutputAdmittedByTopic_StorageError(t *testing.T) {
	service, mockStorage := createTestLookupService()
	mockStorage.On("StoreAnchorRecord", mock.Anything, mock.Anything).Return(errTestStorage)

	err := service.OutputAdmittedByTopic(context.Background(), &engine.OutputAdmittedByTopic{
		Topic:         Topic,
		Outpoint:      testOutpoint(t, 0),
		LockingScript: anchorScript(t, dlm1.Anchor{ManifestHash: hashOf(0x01)}),
	})
	require.ErrorIs(t, err, errTestStorage)
}

func TestOutputAdmittedByTopic_WrongAdmissionMode(t *testing.T) {
	service, _ := createTestLookupService()
	service.AdmissionMode = types.AdmissionModeWholeTx

	err := service.OutputAdmittedByTopic(context.Background(), &engine.OutputAdmittedByTopic{Topic: Topic})
	require.ErrorIs(t, err, errInvalidAdmissionMode)
}

func TestOutputSpentAndEvicted(t *testing.T) {
	service, mockStorage := createTestLookupService()
	mockStorage.On("DeleteAnchorRecord", mock.Anything, TxID, uint32(2)).Return(nil).Twice()

	require.NoError(t, service.OutputSpent(context.Background(), &engine.OutputSpent{
		Topic:    Topic,
		Outpoint: testOutpoint(t, 2),
	}))
	require.NoError(t, service.OutputSpent(context.Background(), &engine.OutputSpent{
		Topic:    "tm_other",
		Outpoint: testOutpoint(t, 2),
	}))
	require.NoError(t, service.OutputEvicted(context.Background(), testOutpoint(t, 2)))
	require.NoError(t, service.OutputNoLongerRetainedInHistory(context.Background(), testOutpoint(t, 2), Topic))

	mockStorage.AssertExpectations(t)
}

func TestOutputBlockHeightUpdated(t *testing.T) {
	service, mockStorage := createTestLookupService()
	txid, err := chainhash.NewHashFromHex(TxID)
	require.NoError(t, err)
	mockStorage.On("UpdateBlockHeight", mock.Anything, TxID, uint32(850000)).Return(nil)

	require.NoError(t, service.OutputBlockHeightUpdated(context.Background(), txid, 850000, 3))
	mockStorage.AssertExpectations(t)
}

func TestLookup_FindAllString(t *testing.T) {
	service, mockStorage := createTestLookupService()
	results := []types.AnchorLookupResult{{
		UTXOReference: types.UTXOReference{Txid: TxID, OutputIndex: 0},
		ManifestHash:  strings.Repeat("aa", 32),
		Parents:       []string{},
	}}
	mockStorage.On("FindAll", mock.Anything, (*int)(nil), (*int)(nil), (*types.SortOrder)(nil)).Return(results, nil)

	answer, err := service.Lookup(context.Background(), &lookup.LookupQuestion{
		Service: Service,
		Query:   json.RawMessage(`"findAll"`),
	})
	require.NoError(t, err)
	assert.Equal(t, lookup.AnswerTypeFreeform, answer.Type)
	assert.Equal(t, results, answer.Result)
}

func TestLookup_ObjectQuery(t *testing.T) {
	service, mockStorage := createTestLookupService()
	parent := strings.Repeat("bb", 32)
	limit := 10
	mockStorage.On("FindRecord", mock.Anything, types.AnchorQuery{Parent: &parent, Limit: &limit}).
		Return([]types.AnchorLookupResult(nil), nil)

	answer, err := service.Lookup(context.Background(), &lookup.LookupQuestion{
		Service: Service,
		Query:   json.RawMessage(`{"parent":"` + strings.ToUpper(parent) + `","limit":10}`),
	})
	require.NoError(t, err)
	assert.Equal(t, []types.AnchorLookupResult{}, answer.Result)
	mockStorage.AssertExpectations(t)
}

func TestLookup_ObjectFindAll(t *testing.T) {
	service, mockStorage := createTestLookupService()
	skip := 5
	asc := types.SortOrderAsc
	mockStorage.On("FindAll", mock.Anything, (*int)(nil), &skip, &asc).Return([]types.AnchorLookupResult{}, nil)

	_, err := service.Lookup(context.Background(), &lookup.LookupQuestion{
		Service: Service,
		Query:   json.RawMessage(`{"findAll":true,"skip":5,"sortOrder":"asc"}`),
	})
	require.NoError(t, err)
	mockStorage.AssertExpectations(t)
}

func TestLookup_Errors(t *testing.T) {
	tests := []struct {
		name     string
		question *lookup.LookupQuestion
		wantErr  error
	}{
		{"empty query", &lookup.LookupQuestion{Service: Service, Query: json.RawMessage{}}, errValidQueryMustBeProvided},
		{"wrong service", &lookup.LookupQuestion{Service: "ls_ship", Query: json.RawMessage(`"findAll"`)}, errLookupServiceNotSupported},
		{"unknown string", &lookup.LookupQuestion{Service: Service, Query: json.RawMessage(`"findSome"`)}, errInvalidStringQuery},
		{"bad version id", &lookup.LookupQuestion{Service: Service, Query: json.RawMessage(`{"versionId":"abc"}`)}, errQueryVersionIDInvalid},
		{"bad txid", &lookup.LookupQuestion{Service: Service, Query: json.RawMessage(`{"txid":""}`)}, errQueryTxidInvalid},
		{"bad parent", &lookup.LookupQuestion{Service: Service, Query: json.RawMessage(`{"parent":"zz"}`)}, errQueryParentInvalid},
		{"negative limit", &lookup.LookupQuestion{Service: Service, Query: json.RawMessage(`{"limit":-1}`)}, errQueryLimitInvalid},
		{"negative skip", &lookup.LookupQuestion{Service: Service, Query: json.RawMessage(`{"skip":-1}`)}, errQuerySkipInvalid},
		{"bad sort", &lookup.LookupQuestion{Service: Service, Query: json.RawMessage(`{"sortOrder":"up"}`)}, errQuerySortOrderInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, _ := createTestLookupService()
			_, err := service.Lookup(context.Background(), tt.question)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLookup_StorageError(t *testing.T) {
	service, mockStorage := createTestLookupService()
	mockStorage.On("FindAll", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]types.AnchorLookupResult(nil), errTestStorage)

	_, err := service.Lookup(context.Background(), &lookup.LookupQuestion{
		Service: Service,
		Query:   json.RawMessage(`"findAll"`),
	})
	require.ErrorIs(t, err, errTestStorage)
}

func TestLookupServiceMetadata(t *testing.T) {
	service, _ := createTestLookupService()
	assert.Equal(t, LookupDocumentation, service.GetDocumentation())
	assert.Equal(t, "DLM1 Lookup Service", service.GetMetaData().Name)
	assert.Equal(t, types.AdmissionModeLockingScript, service.AdmissionMode)
	assert.Equal(t, types.SpendNotificationModeNone, service.SpendNotificationMode)
}
