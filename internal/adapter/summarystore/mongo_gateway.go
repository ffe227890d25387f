package summarystore

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"news-orchestrator/internal/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// summaryFinder is the subset of *mongo.Collection the gateway uses.
type summaryFinder interface {
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
}

type summaryDocument struct {
	ArticleID interface{} `bson:"article_id"`
	Summary   string      `bson:"summary"`
}

// MongoGateway reads precomputed summaries from a MongoDB collection keyed by article_id.
type MongoGateway struct {
	coll   summaryFinder
	logger *slog.Logger
}

func NewMongoGateway(coll *mongo.Collection, logger *slog.Logger) *MongoGateway {
	return newMongoGateway(coll, logger)
}

func newMongoGateway(coll summaryFinder, logger *slog.Logger) *MongoGateway {
	return &MongoGateway{coll: coll, logger: logger}
}

// Fetch returns summaries for ids. Ids without a document are absent from the result.
// Ids are matched both as strings and, when numeric, as integers.
func (g *MongoGateway) Fetch(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	wanted := make(map[string]struct{}, len(ids))
	in := make([]interface{}, 0, len(ids)*2)
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := wanted[id]; dup {
			continue
		}
		wanted[id] = struct{}{}
		in = append(in, id)
		if n, err := strconv.ParseInt(id, 10, 64); err == nil {
			in = append(in, n)
		}
	}

	opts := options.Find().SetProjection(bson.M{"_id": 0, "article_id": 1, "summary": 1})
	cursor, err := g.coll.Find(ctx, bson.M{"article_id": bson.M{"$in": in}}, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query summaries: %v", domain.ErrExecution, err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc summaryDocument
		if err := cursor.Decode(&doc); err != nil {
			g.logger.Warn("summary_decode_failed", slog.String("error", err.Error()))
			continue
		}
		id := fmt.Sprint(doc.ArticleID)
		if _, ok := wanted[id]; !ok {
			continue
		}
		if summary := strings.TrimSpace(doc.Summary); summary != "" {
			out[id] = summary
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to read summaries: %v", domain.ErrExecution, err)
	}
	return out, nil
}

var _ domain.SummaryStore = (*MongoGateway)(nil)
