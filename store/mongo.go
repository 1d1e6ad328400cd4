package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	mongoDatabase   = "reservas_clases"
	mongoCollection = "clases_reservadas"
)

// MongoLedger stores records as flat documents, one per reservation.
type MongoLedger struct {
	client *mongo.Client
	coll   *mongo.Collection
	log    *zap.Logger
}

func OpenMongo(ctx context.Context, uri string, log *zap.Logger) (*MongoLedger, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping MongoDB: %w", err)
	}
	log.Info("connected to ledger", zap.String("backend", "mongodb"))

	return &MongoLedger{
		client: client,
		coll:   client.Database(mongoDatabase).Collection(mongoCollection),
		log:    log,
	}, nil
}

// Recent relies on fecha being YYYY-MM-DD, which sorts lexically.
func (l *MongoLedger) Recent(ctx context.Context, since time.Time) ([]Record, error) {
	cur, err := l.coll.Find(ctx, bson.M{"fecha": bson.M{"$gte": dateString(since)}})
	if err != nil {
		return nil, fmt.Errorf("find recent reservations: %w", err)
	}
	defer cur.Close(ctx)

	var out []Record
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode reservations: %w", err)
	}
	return out, nil
}

func (l *MongoLedger) InsertIfAbsent(ctx context.Context, r Record) (bool, error) {
	filter := bson.M{"nombre": nameRegex(r.Name), "hora": r.Time, "fecha": r.Date}
	err := l.coll.FindOne(ctx, filter).Err()
	switch {
	case err == nil:
		l.log.Info("reservation already in ledger", zap.String("key", r.Key()))
		return false, nil
	case !errors.Is(err, mongo.ErrNoDocuments):
		return false, fmt.Errorf("look up reservation: %w", err)
	}

	if r.InsertedAt.IsZero() {
		r.InsertedAt = time.Now().UTC()
	}
	if _, err := l.coll.InsertOne(ctx, r); err != nil {
		return false, fmt.Errorf("insert reservation: %w", err)
	}
	l.log.Info("reservation recorded", zap.String("key", r.Key()))
	return true, nil
}

// nameRegex matches a stored name equal to name under NormalizeName.
func nameRegex(name string) primitive.Regex {
	words := strings.Fields(name)
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return primitive.Regex{
		Pattern: `^\s*` + strings.Join(words, `\s+`) + `\s*$`,
		Options: "i",
	}
}

func (l *MongoLedger) Close(ctx context.Context) error {
	return l.client.Disconnect(ctx)
}
