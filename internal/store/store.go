// Package store is the document store client the blog repository is built on:
// collection lifecycle, single-document writes, declarative paged queries and
// server-side procedures.
package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
)

// Document is a schemaless, ordered key/value document.
type Document = bson.D

const (
	IDField   = "id"
	ETagField = "_etag"
)

var (
	ErrConflict           = errors.New("document already exists")
	ErrPreconditionFailed = errors.New("document etag mismatch")
	ErrCollectionNotFound = errors.New("collection not found")
	ErrProcedureNotFound  = errors.New("procedure not found")
	ErrMissingID          = errors.New("document has no id")
)

// Result is returned by single-document writes.
type Result struct {
	ETag string
	Cost float64
}

// UpsertOptions makes an upsert conditional on the stored etag.
// An empty IfMatch replaces unconditionally (inserting when absent).
type UpsertOptions struct {
	IfMatch string
}

type QueryOptions struct {
	PageSize int
}

const DefaultPageSize = 100

// Page is one round trip worth of query results.
type Page struct {
	Documents []Document
	Cost      float64
}

// Pager walks the pages of a query. Next returns an empty page once
// HasMore reports false.
type Pager interface {
	HasMore() bool
	Next(ctx context.Context) (Page, error)
	Close(ctx context.Context) error
}

type Collection interface {
	Name() string
	Insert(ctx context.Context, doc Document) (Result, error)
	Upsert(ctx context.Context, doc Document, opts UpsertOptions) (Result, error)
	Query(ctx context.Context, p Pipeline, opts QueryOptions) (Pager, error)
}

type Database interface {
	CollectionExists(ctx context.Context, name string) (bool, error)
	CreateCollection(ctx context.Context, name string) error
	// DropCollection is a no-op when the collection does not exist.
	DropCollection(ctx context.Context, name string) error
	Collection(name string) Collection
}

type ProcedureResult struct {
	Value interface{}
	Cost  float64
}

// Procedures runs named scripts atomically inside the store. Keys are
// relative to the collection and namespaced by the implementation.
type Procedures interface {
	CreateProcedure(ctx context.Context, collection, name, body string) error
	ExecuteProcedure(ctx context.Context, collection, name string, keys []string, args ...interface{}) (ProcedureResult, error)
	ListProcedures(ctx context.Context, collection string) ([]string, error)
	// DropProcedures removes every procedure and procedure-owned key of the collection.
	DropProcedures(ctx context.Context, collection string) error
}

// Client bundles the document side and the procedure side of the store.
type Client struct {
	Database
	Procedures
}

func NewClient(db Database, procs Procedures) *Client {
	return &Client{Database: db, Procedures: procs}
}

// Lookup returns the top-level value stored under key.
func Lookup(d Document, key string) (interface{}, bool) {
	for _, e := range d {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// DocumentID returns the string id of d, or "" when absent.
func DocumentID(d Document) string {
	v, _ := Lookup(d, IDField)
	s, _ := v.(string)
	return s
}

// DocumentETag returns the etag stamped by the store, or "" when absent.
func DocumentETag(d Document) string {
	v, _ := Lookup(d, ETagField)
	s, _ := v.(string)
	return s
}

// withField returns a copy of d with key set to v, keeping key order.
func withField(d Document, key string, v interface{}) Document {
	out := make(Document, 0, len(d)+1)
	found := false
	for _, e := range d {
		if e.Key == key {
			e.Value = v
			found = true
		}
		out = append(out, e)
	}
	if !found {
		out = append(out, bson.E{Key: key, Value: v})
	}
	return out
}

// withoutField returns a copy of d without key.
func withoutField(d Document, key string) Document {
	out := make(Document, 0, len(d))
	for _, e := range d {
		if e.Key != key {
			out = append(out, e)
		}
	}
	return out
}

// Encode converts a typed value into a Document using its bson tags.
func Encode(v interface{}) (Document, error) {
	b, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var d Document
	if err := bson.Unmarshal(b, &d); err != nil {
		return nil, err
	}
	return d, nil
}

// Decode fills out from a Document using its bson tags.
func Decode(d Document, out interface{}) error {
	b, err := bson.Marshal(d)
	if err != nil {
		return err
	}
	return bson.Unmarshal(b, out)
}
