package anchors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/bsv-blockchain/go-overlay-dataset-anchors/pkg/types"
)

// Collection names used by MongoStorage.
const (
	anchorRecordsCollection = "dlm1AnchorRecords"
	manifestsCollection     = "dlm1Manifests"
	declarationsCollection  = "dlm1Declarations"
)

// MongoStorage implements a storage engine for DLM1 records. It keeps the
// overlay's admitted anchors alongside the manifests and declarations
// recorded by submission and ingestion.
type MongoStorage struct {
	db            *mongo.Database
	anchorRecords *mongo.Collection
	manifests     *mongo.Collection
	declarations  *mongo.Collection
}

// NewMongoStorage constructs a new MongoStorage with the provided MongoDB database.
//
// Parameters:
//   - db: A connected MongoDB database instance
//
// Returns:
//   - *MongoStorage: A new MongoStorage instance
func NewMongoStorage(db *mongo.Database) *MongoStorage {
	return &MongoStorage{
		db:            db,
		anchorRecords: db.Collection(anchorRecordsCollection),
		manifests:     db.Collection(manifestsCollection),
		declarations:  db.Collection(declarationsCollection),
	}
}

// EnsureIndexes creates the indexes for all three collections. It should be
// called once during application initialization.
func (s *MongoStorage) EnsureIndexes(ctx context.Context) error {
	_, err := s.anchorRecords.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "txid", Value: 1}, {Key: "outputIndex", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "manifestHash", Value: 1}}},
		{Keys: bson.D{{Key: "parents", Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create indexes for anchor records: %w", err)
	}

	_, err = s.manifests.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "versionId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "datasetId", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create indexes for manifests: %w", err)
	}

	_, err = s.declarations.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "txid", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "versionId", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create indexes for declarations: %w", err)
	}

	return nil
}

// StoreAnchorRecord upserts an admitted anchor keyed by its outpoint.
func (s *MongoStorage) StoreAnchorRecord(ctx context.Context, record types.AnchorRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	if record.Parents == nil {
		record.Parents = []string{}
	}

	filter := bson.M{"txid": record.Txid, "outputIndex": record.OutputIndex}
	update := bson.M{"$setOnInsert": record}
	_, err := s.anchorRecords.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to store anchor record: %w", err)
	}
	return nil
}

// DeleteAnchorRecord deletes the anchor record for an outpoint.
func (s *MongoStorage) DeleteAnchorRecord(ctx context.Context, txid string, outputIndex uint32) error {
	_, err := s.anchorRecords.DeleteOne(ctx, bson.M{"txid": txid, "outputIndex": outputIndex})
	if err != nil {
		return fmt.Errorf("failed to delete anchor record: %w", err)
	}
	return nil
}

// UpdateBlockHeight sets the block height on the anchors and declaration of txid.
func (s *MongoStorage) UpdateBlockHeight(ctx context.Context, txid string, blockHeight uint32) error {
	filter := bson.M{"txid": txid}
	if _, err := s.anchorRecords.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"blockHeight": blockHeight}}); err != nil {
		return fmt.Errorf("failed to update anchor block height: %w", err)
	}
	update := bson.M{"$set": bson.M{"height": blockHeight, "status": types.DeclarationStatusConfirmed}}
	if _, err := s.declarations.UpdateOne(ctx, filter, update); err != nil {
		return fmt.Errorf("failed to update declaration block height: %w", err)
	}
	return nil
}

// anchorFilter builds the MongoDB filter for an AnchorQuery.
func anchorFilter(query types.AnchorQuery) bson.M {
	filter := bson.M{}
	if query.VersionID != nil {
		filter["manifestHash"] = *query.VersionID
	}
	if query.Txid != nil {
		filter["txid"] = *query.Txid
	}
	if query.Parent != nil {
		filter["parents"] = *query.Parent
	}
	return filter
}

// findOptions applies projection, sorting (newest first by default) and pagination.
func findOptions(limit, skip *int, sortOrder *types.SortOrder) *options.FindOptions {
	findOpts := options.Find()
	findOpts.SetProjection(bson.M{
		"_id":          0,
		"txid":         1,
		"outputIndex":  1,
		"manifestHash": 1,
		"parents":      1,
	})

	order := -1
	if sortOrder != nil && *sortOrder == types.SortOrderAsc {
		order = 1
	}
	findOpts.SetSort(bson.D{{Key: "createdAt", Value: order}})

	if skip != nil && *skip > 0 {
		findOpts.SetSkip(int64(*skip))
	}
	if limit != nil && *limit > 0 {
		findOpts.SetLimit(int64(*limit))
	}
	return findOpts
}

func (s *MongoStorage) find(ctx context.Context, filter bson.M, findOpts *options.FindOptions) ([]types.AnchorLookupResult, error) {
	cursor, err := s.anchorRecords.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to find anchor records: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	results := []types.AnchorLookupResult{}
	for cursor.Next(ctx) {
		var result types.AnchorLookupResult
		if err := cursor.Decode(&result); err != nil {
			return nil, fmt.Errorf("failed to decode anchor record: %w", err)
		}
		results = append(results, result)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error while finding anchor records: %w", err)
	}
	return results, nil
}

// FindRecord finds anchors by version id, txid or parent with pagination.
func (s *MongoStorage) FindRecord(ctx context.Context, query types.AnchorQuery) ([]types.AnchorLookupResult, error) {
	return s.find(ctx, anchorFilter(query), findOptions(query.Limit, query.Skip, query.SortOrder))
}

// FindAll returns all anchor records with optional pagination and sorting.
func (s *MongoStorage) FindAll(ctx context.Context, limit, skip *int, sortOrder *types.SortOrder) ([]types.AnchorLookupResult, error) {
	return s.find(ctx, bson.M{}, findOptions(limit, skip, sortOrder))
}

// UpsertManifest stores a manifest record keyed by version id. An existing
// record for the same version is left unchanged.
func (s *MongoStorage) UpsertManifest(ctx context.Context, record types.ManifestRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	if record.Parents == nil {
		record.Parents = []string{}
	}

	filter := bson.M{"versionId": record.VersionID}
	_, err := s.manifests.UpdateOne(ctx, filter, bson.M{"$setOnInsert": record}, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to store manifest: %w", err)
	}
	return nil
}

// FindManifest returns the manifest record for versionID, or nil if none exists.
func (s *MongoStorage) FindManifest(ctx context.Context, versionID string) (*types.ManifestRecord, error) {
	var record types.ManifestRecord
	err := s.manifests.FindOne(ctx, bson.M{"versionId": versionID}).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil //nolint:nilnil // absence is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find manifest: %w", err)
	}
	return &record, nil
}

// CreateOrGetDeclaration inserts decl unless a declaration for the same txid
// exists, and returns the stored declaration. created reports whether decl
// was inserted.
func (s *MongoStorage) CreateOrGetDeclaration(ctx context.Context, decl types.Declaration) (types.Declaration, bool, error) {
	if decl.CreatedAt.IsZero() {
		decl.CreatedAt = time.Now()
	}

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var stored types.Declaration
	err := s.declarations.FindOneAndUpdate(ctx, bson.M{"txid": decl.Txid}, bson.M{"$setOnInsert": decl}, opts).Decode(&stored)
	if err != nil {
		return types.Declaration{}, false, fmt.Errorf("failed to create declaration: %w", err)
	}
	return stored, stored.ID == decl.ID, nil
}
