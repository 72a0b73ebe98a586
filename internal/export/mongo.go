package export

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"canlog/internal/domain"
	"canlog/internal/telemetry"
)

// ── MongoDB Destination ────────────────────────────────────
// One document per row: {timestamp, <signature>: value, ...}. Field
// order follows the table's column order.

const mongoBatchSize = 1000

// MongoWriter implements Destination for MongoDB.
type MongoWriter struct {
	client *mongo.Client
	dbName string
}

func newMongoWriter(t *domain.ExportTarget, password string) (*MongoWriter, error) {
	uri, dbName := buildMongoURI(t, password)

	logURI := uri
	if password != "" {
		logURI = strings.ReplaceAll(logURI, url.QueryEscape(password), "***")
	}
	log.Printf("[MONGO] connecting to %s (database %s)", logURI, dbName)

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	return &MongoWriter{client: client, dbName: dbName}, nil
}

func (m *MongoWriter) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return m.client.Ping(ctx, nil)
}

func (m *MongoWriter) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (m *MongoWriter) Write(ctx context.Context, t *telemetry.Table, target string, mode domain.SyncMode) (int, error) {
	if target == "" {
		return 0, fmt.Errorf("mongo export: empty collection name")
	}
	coll := m.client.Database(m.dbName).Collection(target)

	if mode == domain.SyncReplace {
		if err := coll.Drop(ctx); err != nil {
			return 0, fmt.Errorf("drop %s: %w", target, err)
		}
	}

	written := 0
	for start := 0; start < len(t.Rows); start += mongoBatchSize {
		end := min(start+mongoBatchSize, len(t.Rows))
		docs := Documents(t, start, end)
		res, err := coll.InsertMany(ctx, docs)
		if res != nil {
			written += len(res.InsertedIDs)
		}
		if err != nil {
			return written, fmt.Errorf("insert rows %d-%d: %w", start, end-1, err)
		}
	}
	return written, nil
}

// Documents converts rows [start, end) of t to BSON documents.
func Documents(t *telemetry.Table, start, end int) []bson.D {
	header := t.Header()
	docs := make([]bson.D, 0, end-start)
	for _, row := range t.Rows[start:end] {
		doc := make(bson.D, 0, len(header))
		doc = append(doc, bson.E{Key: header[0], Value: row.Timestamp})
		for j, v := range row.Values {
			doc = append(doc, bson.E{Key: header[j+1], Value: v})
		}
		docs = append(docs, doc)
	}
	return docs
}
