package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDatabase implements Database on a MongoDB database.
// Documents keep their string "id" field (unique index) and let Mongo assign
// _id, which is stripped again on the way out.
type MongoDatabase struct {
	db *mongo.Database
}

func NewMongoDatabase(db *mongo.Database) *MongoDatabase {
	return &MongoDatabase{db: db}
}

func (m *MongoDatabase) CollectionExists(ctx context.Context, name string) (bool, error) {
	names, err := m.db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return false, fmt.Errorf("list collections: %w", err)
	}
	return len(names) > 0, nil
}

func (m *MongoDatabase) CreateCollection(ctx context.Context, name string) error {
	if err := m.db.CreateCollection(ctx, name); err != nil {
		var ce mongo.CommandError
		if errors.As(err, &ce) && ce.Name == "NamespaceExists" {
			return fmt.Errorf("create collection %s: %w", name, ErrConflict)
		}
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	idx := mongo.IndexModel{Keys: bson.D{{Key: IDField, Value: 1}}, Options: options.Index().SetUnique(true)}
	if _, err := m.db.Collection(name).Indexes().CreateOne(ctx, idx); err != nil {
		return fmt.Errorf("create id index on %s: %w", name, err)
	}
	return nil
}

func (m *MongoDatabase) DropCollection(ctx context.Context, name string) error {
	if err := m.db.Collection(name).Drop(ctx); err != nil {
		return fmt.Errorf("drop collection %s: %w", name, err)
	}
	return nil
}

func (m *MongoDatabase) Collection(name string) Collection {
	return &mongoCollection{col: m.db.Collection(name)}
}

type mongoCollection struct {
	col *mongo.Collection
}

func (c *mongoCollection) Name() string { return c.col.Name() }

func (c *mongoCollection) Insert(ctx context.Context, doc Document) (Result, error) {
	id := DocumentID(doc)
	if id == "" {
		return Result{}, ErrMissingID
	}
	etag := uuid.NewString()
	if _, err := c.col.InsertOne(ctx, withField(withoutField(doc, "_id"), ETagField, etag)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return Result{}, fmt.Errorf("insert %s: %w", id, ErrConflict)
		}
		return Result{}, fmt.Errorf("insert %s: %w", id, err)
	}
	return Result{ETag: etag, Cost: 1}, nil
}

func (c *mongoCollection) Upsert(ctx context.Context, doc Document, opts UpsertOptions) (Result, error) {
	id := DocumentID(doc)
	if id == "" {
		return Result{}, ErrMissingID
	}
	etag := uuid.NewString()
	repl := withField(withoutField(doc, "_id"), ETagField, etag)
	filter := bson.D{{Key: IDField, Value: id}}
	ropts := options.Replace().SetUpsert(true)
	if opts.IfMatch != "" {
		filter = append(filter, bson.E{Key: ETagField, Value: opts.IfMatch})
		ropts = options.Replace()
	}
	res, err := c.col.ReplaceOne(ctx, filter, repl, ropts)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return Result{}, fmt.Errorf("upsert %s: %w", id, ErrConflict)
		}
		return Result{}, fmt.Errorf("upsert %s: %w", id, err)
	}
	if opts.IfMatch != "" && res.MatchedCount == 0 {
		return Result{}, fmt.Errorf("upsert %s: %w", id, ErrPreconditionFailed)
	}
	return Result{ETag: etag, Cost: 1}, nil
}

func (c *mongoCollection) Query(ctx context.Context, p Pipeline, opts QueryOptions) (Pager, error) {
	stages, err := toAggregation(p)
	if err != nil {
		return nil, err
	}
	size := opts.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	cur, err := c.col.Aggregate(ctx, stages, options.Aggregate().SetBatchSize(int32(size)))
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", c.col.Name(), err)
	}
	return &mongoPager{cur: cur}, nil
}

// mongoPager maps cursor batches to pages: one getMore round trip each.
type mongoPager struct {
	cur  *mongo.Cursor
	done bool
}

func (p *mongoPager) HasMore() bool { return !p.done }

func (p *mongoPager) Next(ctx context.Context) (Page, error) {
	if p.done {
		return Page{}, nil
	}
	page := Page{Cost: 1}
	if !p.cur.Next(ctx) {
		p.done = true
		err := p.cur.Err()
		_ = p.cur.Close(ctx)
		return page, err
	}
	for {
		var raw bson.D
		if err := p.cur.Decode(&raw); err != nil {
			return Page{}, err
		}
		page.Documents = append(page.Documents, withoutField(raw, "_id"))
		if p.cur.RemainingBatchLength() == 0 || !p.cur.Next(ctx) {
			break
		}
	}
	if p.cur.ID() == 0 && p.cur.RemainingBatchLength() == 0 {
		p.done = true
		_ = p.cur.Close(ctx)
	}
	return page, p.cur.Err()
}

func (p *mongoPager) Close(ctx context.Context) error {
	p.done = true
	return p.cur.Close(ctx)
}

// toAggregation translates a Pipeline into aggregation stages.
func toAggregation(p Pipeline) (mongo.Pipeline, error) {
	out := make(mongo.Pipeline, 0, len(p))
	for _, st := range p {
		switch st.Kind {
		case StageMatch:
			out = append(out, bson.D{{Key: "$match", Value: filterDocument(st.Conditions)}})
		case StageSort:
			dir := 1
			if st.Descending {
				dir = -1
			}
			out = append(out, bson.D{{Key: "$sort", Value: bson.D{{Key: st.Field, Value: dir}}}})
		case StageUnwind:
			out = append(out, bson.D{{Key: "$unwind", Value: "$" + st.Field}})
		case StageLimit:
			out = append(out, bson.D{{Key: "$limit", Value: st.N}})
		case StageReplaceRoot:
			out = append(out, bson.D{{Key: "$replaceRoot", Value: bson.D{{Key: "newRoot", Value: "$" + st.Field}}}})
		default:
			return nil, fmt.Errorf("unsupported stage %d", st.Kind)
		}
	}
	return out, nil
}

// filterDocument builds a query filter. Several conditions are combined with
// $and so two conditions on the same field never collide.
func filterDocument(conds []Condition) bson.D {
	if len(conds) == 1 {
		return bson.D{conditionElement(conds[0])}
	}
	and := make(bson.A, 0, len(conds))
	for _, c := range conds {
		and = append(and, bson.D{conditionElement(c)})
	}
	return bson.D{{Key: "$and", Value: and}}
}

func conditionElement(c Condition) bson.E {
	switch c.Op {
	case OpGt:
		return bson.E{Key: c.Field, Value: bson.D{{Key: "$gt", Value: c.Value}}}
	case OpHasPrefix:
		prefix, _ := c.Value.(string)
		return bson.E{Key: c.Field, Value: bson.D{{Key: "$regex", Value: primitive.Regex{Pattern: "^" + regexp.QuoteMeta(prefix)}}}}
	case OpElemMatch:
		return bson.E{Key: c.Field, Value: bson.D{{Key: "$elemMatch", Value: filterDocument(c.Elem)}}}
	}
	return bson.E{Key: c.Field, Value: c.Value}
}
