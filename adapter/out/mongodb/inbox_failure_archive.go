package mongodb

import (
	"context"
	"time"

	"inbox_server/core/port/out"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collectionParseFailures = "parse_failures"

	// Failures are kept for 30 days.
	parseFailureRetention = 30 * 24 * time.Hour
)

// FailureArchive implements out.FailureArchive using MongoDB.
type FailureArchive struct {
	collection *mongo.Collection
}

// NewFailureArchive creates the archive over db.
func NewFailureArchive(db *mongo.Database) *FailureArchive {
	return &FailureArchive{collection: db.Collection(collectionParseFailures)}
}

var _ out.FailureArchive = (*FailureArchive)(nil)

// EnsureIndexes creates the lookup and TTL indexes.
func (a *FailureArchive) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "external_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "failed_at", Value: -1}},
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	}

	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

type headerDocument struct {
	Name  string `bson:"name"`
	Value string `bson:"value"`
}

type parseFailureDocument struct {
	AccountID    int64            `bson:"account_id"`
	ExternalID   string           `bson:"external_id"`
	ThreadID     string           `bson:"thread_id,omitempty"`
	Reason       string           `bson:"reason"`
	InternalDate int64            `bson:"internal_date,omitempty"`
	LabelIDs     []string         `bson:"label_ids,omitempty"`
	Snippet      string           `bson:"snippet,omitempty"`
	Headers      []headerDocument `bson:"headers,omitempty"`
	Attempts     int              `bson:"attempts"`
	FailedAt     time.Time        `bson:"failed_at"`
	ExpiresAt    time.Time        `bson:"expires_at"`
}

func toDocument(rec out.ParseFailureRecord) parseFailureDocument {
	failedAt := rec.FailedAt
	if failedAt.IsZero() {
		failedAt = time.Now().UTC()
	}
	doc := parseFailureDocument{
		AccountID:  rec.AccountID,
		ExternalID: rec.ExternalID,
		Reason:     rec.Reason,
		FailedAt:   failedAt,
		ExpiresAt:  failedAt.Add(parseFailureRetention),
	}
	if p := rec.Payload; p != nil {
		doc.ThreadID = p.ThreadID
		doc.InternalDate = p.InternalDate
		doc.LabelIDs = p.LabelIDs
		doc.Snippet = p.Snippet
		for _, h := range p.Headers {
			doc.Headers = append(doc.Headers, headerDocument{Name: h.Name, Value: h.Value})
		}
	}
	return doc
}

// RecordParseFailure upserts by external id and counts repeat failures.
func (a *FailureArchive) RecordParseFailure(ctx context.Context, rec out.ParseFailureRecord) error {
	doc := toDocument(rec)

	filter := bson.M{"external_id": doc.ExternalID}
	update := bson.M{
		"$set": bson.M{
			"account_id":    doc.AccountID,
			"thread_id":     doc.ThreadID,
			"reason":        doc.Reason,
			"internal_date": doc.InternalDate,
			"label_ids":     doc.LabelIDs,
			"snippet":       doc.Snippet,
			"headers":       doc.Headers,
			"failed_at":     doc.FailedAt,
			"expires_at":    doc.ExpiresAt,
		},
		"$inc": bson.M{"attempts": 1},
	}

	_, err := a.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

// Recent returns the newest failures for an account.
func (a *FailureArchive) Recent(ctx context.Context, accountID int64, limit int64) ([]out.ParseFailureRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	opts := options.Find().SetSort(bson.D{{Key: "failed_at", Value: -1}}).SetLimit(limit)
	cursor, err := a.collection.Find(ctx, bson.M{"account_id": accountID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []parseFailureDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	recs := make([]out.ParseFailureRecord, 0, len(docs))
	for _, d := range docs {
		recs = append(recs, out.ParseFailureRecord{
			AccountID:  d.AccountID,
			ExternalID: d.ExternalID,
			Reason:     d.Reason,
			FailedAt:   d.FailedAt,
		})
	}
	return recs, nil
}
