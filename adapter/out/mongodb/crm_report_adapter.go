package mongodb

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"crm_server/core/port/out"

	"github.com/goccy/go-json"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collectionReports = "lead_reports"

	// Report bodies above this size are stored gzip-compressed.
	reportCompressionThreshold = 512
)

// ReportAdapter implements out.ReportRepository using MongoDB.
type ReportAdapter struct {
	collection *mongo.Collection
	retention  time.Duration
	now        func() time.Time
}

// NewReportAdapter creates the adapter. Reports expire after retention; zero
// keeps them forever.
func NewReportAdapter(db *mongo.Database, retention time.Duration) *ReportAdapter {
	return &ReportAdapter{
		collection: db.Collection(collectionReports),
		retention:  retention,
		now:        time.Now,
	}
}

var _ out.ReportRepository = (*ReportAdapter)(nil)

// EnsureIndexes creates necessary indexes for the collection.
func (a *ReportAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "run_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "generated_at", Value: -1}},
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	}

	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// reportDocument is the stored shape. The full record is kept as JSON so the
// document layout does not follow every change of the report types.
type reportDocument struct {
	RunID            string     `bson:"run_id"`
	GeneratedAt      time.Time  `bson:"generated_at"`
	Score            int        `bson:"score"`
	EngagementLevel  string     `bson:"engagement_level"`
	CloseProbability int        `bson:"close_probability"`
	CustomerMessages int        `bson:"customer_messages"`
	Content          []byte     `bson:"content"`
	IsCompressed     bool       `bson:"is_compressed"`
	OriginalSize     int64      `bson:"original_size"`
	CompressedSize   int64      `bson:"compressed_size"`
	CreatedAt        time.Time  `bson:"created_at"`
	ExpiresAt        *time.Time `bson:"expires_at,omitempty"`
}

// SaveReport upserts the record keyed by run id.
func (a *ReportAdapter) SaveReport(ctx context.Context, record *out.ReportRecord) error {
	doc, err := a.toDocument(record)
	if err != nil {
		return fmt.Errorf("failed to convert report to document: %w", err)
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := a.collection.ReplaceOne(ctx, bson.M{"run_id": record.RunID}, doc, opts); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

// LatestReport returns the most recently generated report.
func (a *ReportAdapter) LatestReport(ctx context.Context) (*out.ReportRecord, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "generated_at", Value: -1}})

	var doc reportDocument
	err := a.collection.FindOne(ctx, bson.M{}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest report: %w", err)
	}
	return toRecord(&doc)
}

// ListReports returns up to limit reports, newest first.
func (a *ReportAdapter) ListReports(ctx context.Context, offset, limit int) ([]*out.ReportRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "generated_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	if offset > 0 {
		opts.SetSkip(int64(offset))
	}

	cursor, err := a.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer cursor.Close(ctx)

	records := []*out.ReportRecord{}
	for cursor.Next(ctx) {
		var doc reportDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode report: %w", err)
		}
		record, err := toRecord(&doc)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, cursor.Err()
}

func (a *ReportAdapter) toDocument(record *out.ReportRecord) (*reportDocument, error) {
	content, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}

	doc := &reportDocument{
		RunID:            record.RunID,
		GeneratedAt:      record.GeneratedAt,
		Score:            record.Lead.Score,
		EngagementLevel:  record.Lead.EngagementLevel,
		CloseProbability: record.Lead.CloseProbability,
		CustomerMessages: record.Metrics.CustomerMessages,
		Content:          content,
		OriginalSize:     int64(len(content)),
		CompressedSize:   int64(len(content)),
		CreatedAt:        a.now().UTC(),
	}

	if len(content) > reportCompressionThreshold {
		compressed, err := compress(content)
		if err != nil {
			return nil, fmt.Errorf("failed to compress report: %w", err)
		}
		doc.Content = compressed
		doc.IsCompressed = true
		doc.CompressedSize = int64(len(compressed))
	}

	if a.retention > 0 {
		expires := doc.CreatedAt.Add(a.retention)
		doc.ExpiresAt = &expires
	}
	return doc, nil
}

func toRecord(doc *reportDocument) (*out.ReportRecord, error) {
	content := doc.Content
	if doc.IsCompressed {
		decompressed, err := decompress(content)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress report %s: %w", doc.RunID, err)
		}
		content = decompressed
	}

	var record out.ReportRecord
	if err := json.Unmarshal(content, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report %s: %w", doc.RunID, err)
	}
	return &record, nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)
	if _, err := writer.Write(data); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}
