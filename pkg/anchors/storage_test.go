package anchors

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bsv-blockchain/go-overlay-services/pkg/core/engine"
	"github.com/bsv-blockchain/go-sdk/overlay/lookup"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/bsv-blockchain/go-overlay-dataset-anchors/pkg/dlm1"
	"github.com/bsv-blockchain/go-overlay-dataset-anchors/pkg/ingest"
	"github.com/bsv-blockchain/go-overlay-dataset-anchors/pkg/types"
)

func stringPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }

func sortOrderPtr(s types.SortOrder) *types.SortOrder { return &s }

// TestAnchorStorage is an in-memory StorageInterface for exercising the
// lookup service end to end.
type TestAnchorStorage struct {
	mu      sync.Mutex
	records []types.AnchorRecord
	clock   time.Time
}

func NewTestAnchorStorage() *TestAnchorStorage {
	return &TestAnchorStorage{clock: time.Unix(1700000000, 0)}
}

func (s *TestAnchorStorage) EnsureIndexes(_ context.Context) error {
	return nil
}

func (s *TestAnchorStorage) StoreAnchorRecord(_ context.Context, record types.AnchorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.Txid == record.Txid && r.OutputIndex == record.OutputIndex {
			return nil
		}
	}
	s.clock = s.clock.Add(time.Second)
	record.CreatedAt = s.clock
	s.records = append(s.records, record)
	return nil
}

func (s *TestAnchorStorage) DeleteAnchorRecord(_ context.Context, txid string, outputIndex uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.records {
		if r.Txid == txid && r.OutputIndex == outputIndex {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *TestAnchorStorage) UpdateBlockHeight(_ context.Context, txid string, blockHeight uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].Txid == txid {
			h := blockHeight
			s.records[i].BlockHeight = &h
		}
	}
	return nil
}

func (s *TestAnchorStorage) FindRecord(_ context.Context, query types.AnchorQuery) ([]types.AnchorLookupResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []types.AnchorRecord
	for _, r := range s.records {
		if query.VersionID != nil && r.ManifestHash != *query.VersionID {
			continue
		}
		if query.Txid != nil && r.Txid != *query.Txid {
			continue
		}
		if query.Parent != nil && !contains(r.Parents, *query.Parent) {
			continue
		}
		matched = append(matched, r)
	}
	return page(matched, query.Limit, query.Skip, query.SortOrder), nil
}

func (s *TestAnchorStorage) FindAll(_ context.Context, limit, skip *int, sortOrder *types.SortOrder) ([]types.AnchorLookupResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return page(append([]types.AnchorRecord(nil), s.records...), limit, skip, sortOrder), nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func page(records []types.AnchorRecord, limit, skip *int, sortOrder *types.SortOrder) []types.AnchorLookupResult {
	asc := sortOrder != nil && *sortOrder == types.SortOrderAsc
	sort.SliceStable(records, func(i, j int) bool {
		if asc {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if skip != nil && *skip > 0 {
		if *skip >= len(records) {
			return []types.AnchorLookupResult{}
		}
		records = records[*skip:]
	}
	if limit != nil && *limit > 0 && len(records) > *limit {
		records = records[:*limit]
	}
	out := make([]types.AnchorLookupResult, 0, len(records))
	for _, r := range records {
		out = append(out, types.AnchorLookupResult{
			UTXOReference: types.UTXOReference{Txid: r.Txid, OutputIndex: r.OutputIndex},
			ManifestHash:  r.ManifestHash,
			Parents:       r.Parents,
		})
	}
	return out
}

var _ StorageInterface = (*TestAnchorStorage)(nil)

// Compile-time verification that MongoStorage implements StorageInterface
var _ StorageInterface = (*MongoStorage)(nil)

// MongoStorage also backs the ingestion service
var _ ingest.Repository = (*MongoStorage)(nil)

func TestAnchorFilter(t *testing.T) {
	hash := strings.Repeat("ab", 32)

	tests := []struct {
		name     string
		query    types.AnchorQuery
		expected bson.M
	}{
		{"empty", types.AnchorQuery{}, bson.M{}},
		{"version id maps to manifest hash", types.AnchorQuery{VersionID: &hash}, bson.M{"manifestHash": hash}},
		{"txid", types.AnchorQuery{Txid: &hash}, bson.M{"txid": hash}},
		{"parent matches array element", types.AnchorQuery{Parent: &hash}, bson.M{"parents": hash}},
		{
			"combined",
			types.AnchorQuery{VersionID: &hash, Txid: stringPtr(TxID), Parent: &hash},
			bson.M{"manifestHash": hash, "txid": TxID, "parents": hash},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, anchorFilter(tt.query))
		})
	}
}

func TestFindOptions(t *testing.T) {
	t.Run("defaults to newest first without paging", func(t *testing.T) {
		opts := findOptions(nil, nil, nil)
		assert.Equal(t, bson.D{{Key: "createdAt", Value: -1}}, opts.Sort)
		assert.Nil(t, opts.Limit)
		assert.Nil(t, opts.Skip)
	})

	t.Run("ascending with paging", func(t *testing.T) {
		opts := findOptions(intPtr(10), intPtr(20), sortOrderPtr(types.SortOrderAsc))
		assert.Equal(t, bson.D{{Key: "createdAt", Value: 1}}, opts.Sort)
		require.NotNil(t, opts.Limit)
		require.NotNil(t, opts.Skip)
		assert.Equal(t, int64(10), *opts.Limit)
		assert.Equal(t, int64(20), *opts.Skip)
	})

	t.Run("zero limit and skip are ignored", func(t *testing.T) {
		opts := findOptions(intPtr(0), intPtr(0), sortOrderPtr(types.SortOrderDesc))
		assert.Nil(t, opts.Limit)
		assert.Nil(t, opts.Skip)
	})
}

// TestLookupLineage admits a chain of anchors and walks it through lookup
// queries the way a lineage browser would.
func TestLookupLineage(t *testing.T) {
	ctx := context.Background()
	storage := NewTestAnchorStorage()
	service := NewLookupService(storage, discardLogger())

	root := dlm1.Anchor{ManifestHash: hashOf(0x01)}
	childA := dlm1.Anchor{ManifestHash: hashOf(0x02), Parents: []dlm1.Hash{root.ManifestHash}}
	childB := dlm1.Anchor{ManifestHash: hashOf(0x03), Parents: []dlm1.Hash{root.ManifestHash}}

	for i, a := range []dlm1.Anchor{root, childA, childB} {
		err := service.OutputAdmittedByTopic(ctx, &engine.OutputAdmittedByTopic{
			Topic:         Topic,
			Outpoint:      testOutpoint(t, uint32(i)), //nolint:gosec // small test index
			LockingScript: anchorScript(t, a),
		})
		require.NoError(t, err)
	}

	// Re-admitting an outpoint keeps a single record.
	err := service.OutputAdmittedByTopic(ctx, &engine.OutputAdmittedByTopic{
		Topic:         Topic,
		Outpoint:      testOutpoint(t, 0),
		LockingScript: anchorScript(t, root),
	})
	require.NoError(t, err)

	lookupResults := func(query string) []types.AnchorLookupResult {
		answer, err := service.Lookup(ctx, &lookup.LookupQuestion{Service: Service, Query: json.RawMessage(query)})
		require.NoError(t, err)
		results, ok := answer.Result.([]types.AnchorLookupResult)
		require.True(t, ok)
		return results
	}

	all := lookupResults(`"findAll"`)
	require.Len(t, all, 3)
	assert.Equal(t, childB.ManifestHash.String(), all[0].ManifestHash)

	children := lookupResults(`{"parent":"` + root.ManifestHash.String() + `","sortOrder":"asc"}`)
	require.Len(t, children, 2)
	assert.Equal(t, childA.ManifestHash.String(), children[0].ManifestHash)
	assert.Equal(t, childB.ManifestHash.String(), children[1].ManifestHash)

	version := lookupResults(`{"versionId":"` + strings.ToUpper(childA.ManifestHash.String()) + `"}`)
	require.Len(t, version, 1)
	assert.Equal(t, uint32(1), version[0].OutputIndex)
	assert.Equal(t, []string{root.ManifestHash.String()}, version[0].Parents)

	paged := lookupResults(`{"findAll":true,"limit":1,"skip":1}`)
	require.Len(t, paged, 1)
	assert.Equal(t, childA.ManifestHash.String(), paged[0].ManifestHash)

	require.NoError(t, service.OutputEvicted(ctx, testOutpoint(t, 1)))
	assert.Empty(t, lookupResults(`{"versionId":"`+childA.ManifestHash.String()+`"}`))
}
