package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/message"
)

const (
	defaultSessionCollection = "agent_sessions"
	defaultMongoTimeout      = 5 * time.Second
)

// sessionDocument is the stored shape of a session record.
type sessionDocument struct {
	SessionID string         `bson:"session_id"`
	Messages  []bson.Raw     `bson:"messages"`
	Metadata  map[string]any `bson:"metadata"`
	UpdatedAt time.Time      `bson:"updated_at"`
}

// MongoBackend is the document-store Backend of spec.md §4.6, grounded on
// the teacher's atomic $setOnInsert/$set/$push upsert for memory.Snapshot,
// extended here with a $slice clause so the stored message array never
// grows past maxMessages without a separate trim round trip.
type MongoBackend struct {
	coll    *mongodriver.Collection
	timeout time.Duration
	ttl     time.Duration
}

// MongoOptions configures a MongoBackend.
type MongoOptions struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
	// TTL, if non-zero, is surfaced via TTL() for callers that want to
	// provision a TTL index on updated_at themselves.
	TTL time.Duration
}

// NewMongoBackend returns a MongoBackend backed by an existing client.
func NewMongoBackend(opts MongoOptions) (*MongoBackend, error) {
	if opts.Client == nil {
		return nil, errors.New("session: mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("session: mongo database name is required")
	}
	collection := opts.Collection
	if collection == "" {
		collection = defaultSessionCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultMongoTimeout
	}
	coll := opts.Client.Database(opts.Database).Collection(collection)
	return &MongoBackend{coll: coll, timeout: timeout, ttl: opts.TTL}, nil
}

func (b *MongoBackend) Kind() string       { return "mongo" }
func (b *MongoBackend) TTL() time.Duration { return b.ttl }

func (b *MongoBackend) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, b.timeout)
}

func (b *MongoBackend) LoadMessages(ctx context.Context, sessionID string) ([]message.Message, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	var doc sessionDocument
	err := b.coll.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&doc)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: mongo find: %w", err)
	}
	out := make([]message.Message, 0, len(doc.Messages))
	for _, raw := range doc.Messages {
		var m message.Message
		if err := bson.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("session: decoding stored message: %w", err)
		}
		out = append(out, m)
	}
	return out, nil
}

// AppendMessages upserts the session document, pushing msgs onto the stored
// array and slicing it down to the trailing maxMessages entries atomically
// via $push's $each/$slice modifiers.
func (b *MongoBackend) AppendMessages(ctx context.Context, sessionID string, msgs []message.Message, maxMessages int) error {
	if len(msgs) == 0 {
		return nil
	}
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	docs := make([]bson.Raw, 0, len(msgs))
	for _, m := range msgs {
		raw, err := bson.Marshal(m)
		if err != nil {
			return fmt.Errorf("session: encoding message: %w", err)
		}
		docs = append(docs, raw)
	}

	pushEach := bson.M{"$each": docs}
	if maxMessages > 0 {
		pushEach["$slice"] = -maxMessages
	}
	update := bson.M{
		"$setOnInsert": bson.M{
			"session_id": sessionID,
		},
		"$set": bson.M{
			"updated_at": time.Now().UTC(),
		},
		"$push": bson.M{
			"messages": pushEach,
		},
	}
	_, err := b.coll.UpdateOne(ctx, bson.M{"session_id": sessionID}, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("session: mongo append upsert: %w", err)
	}
	return nil
}

func (b *MongoBackend) ReplaceMessages(ctx context.Context, sessionID string, msgs []message.Message) error {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	docs := make([]bson.Raw, 0, len(msgs))
	for _, m := range msgs {
		raw, err := bson.Marshal(m)
		if err != nil {
			return fmt.Errorf("session: encoding message: %w", err)
		}
		docs = append(docs, raw)
	}
	update := bson.M{
		"$set": bson.M{
			"messages":   docs,
			"updated_at": time.Now().UTC(),
		},
		"$setOnInsert": bson.M{
			"session_id": sessionID,
		},
	}
	_, err := b.coll.UpdateOne(ctx, bson.M{"session_id": sessionID}, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("session: mongo replace upsert: %w", err)
	}
	return nil
}

func (b *MongoBackend) ClearMessages(ctx context.Context, sessionID string) error {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()
	_, err := b.coll.DeleteOne(ctx, bson.M{"session_id": sessionID})
	if err != nil {
		return fmt.Errorf("session: mongo delete: %w", err)
	}
	return nil
}

func (b *MongoBackend) LoadMetadata(ctx context.Context, sessionID string) (Metadata, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	var doc sessionDocument
	err := b.coll.FindOne(ctx, bson.M{"session_id": sessionID},
		options.FindOne().SetProjection(bson.M{"metadata": 1})).Decode(&doc)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return Metadata{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: mongo find metadata: %w", err)
	}
	out := Metadata{}
	for k, v := range doc.Metadata {
		out[k] = v
	}
	return out, nil
}

func (b *MongoBackend) UpdateMetadata(ctx context.Context, sessionID string, patch Metadata) error {
	if len(patch) == 0 {
		return nil
	}
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	set := bson.M{"updated_at": time.Now().UTC()}
	for k, v := range patch {
		set["metadata."+k] = v
	}
	update := bson.M{
		"$set": set,
		"$setOnInsert": bson.M{
			"session_id": sessionID,
		},
	}
	_, err := b.coll.UpdateOne(ctx, bson.M{"session_id": sessionID}, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("session: mongo update metadata: %w", err)
	}
	return nil
}
