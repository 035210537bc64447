package exporter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/yehzhang/dmscrape/internal/types"
)

// Mongo writes one document per CID to a MongoDB collection: the merged
// comment flow plus enough metadata (roll dates walked, pool capacity) to
// tell a reconstructed document from a bare current-snapshot one.
type Mongo struct {
	client     *mongo.Client
	collection *mongo.Collection
	log        *slog.Logger
}

// NewMongo connects to uri and selects database.collection.
func NewMongo(ctx context.Context, uri, database, collection string, log *slog.Logger) (*Mongo, error) {
	if log == nil {
		log = slog.Default()
	}
	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(cctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("exporter: mongo connect: %w", err)
	}
	if err := client.Ping(cctx, nil); err != nil {
		return nil, fmt.Errorf("exporter: mongo ping: %w", err)
	}

	return &Mongo{
		client:     client,
		collection: client.Database(database).Collection(collection),
		log:        log.With("component", "mongo_exporter"),
	}, nil
}

func (m *Mongo) Name() string { return "mongodb" }

func (m *Mongo) Connect(ctx context.Context) error { return nil }

func (m *Mongo) Disconnect(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(cctx)
}

type mongoComment struct {
	ID       int64   `bson:"id"`
	Offset   float64 `bson:"offset"`
	Mode     int     `bson:"mode"`
	FontSize int     `bson:"font_size"`
	Color    int     `bson:"color"`
	Date     int64   `bson:"date"`
	Pool     int     `bson:"pool"`
	User     string  `bson:"user"`
	Text     string  `bson:"text"`
}

func toMongoComments(comments []types.Comment) []mongoComment {
	out := make([]mongoComment, len(comments))
	for i, c := range comments {
		out[i] = mongoComment{
			ID: c.ID, Offset: c.Offset, Mode: c.Mode, FontSize: c.FontSize,
			Color: c.Color, Date: c.Date, Pool: int(c.Pool), User: c.User, Text: c.Text,
		}
	}
	return out
}

func (m *Mongo) Dump(ctx context.Context, cid int64, flow *types.CommentFlow) error {
	doc := map[string]any{
		"_id":          cid,
		"has_history":  flow.HasHistory(),
		"max_limit":    flow.MaxLimit,
		"comments":     toMongoComments(flow.Document()),
		"scraped_at":   time.Now().UTC(),
	}
	if flow.HasHistory() {
		doc["roll_dates"] = []int64(flow.RollDates)
	}

	cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := m.collection.ReplaceOne(cctx, map[string]any{"_id": cid}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("exporter: mongo upsert for cid %d: %w", cid, err)
	}
	return nil
}
