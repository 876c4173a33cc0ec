// Package counter mints human-readable, monotonically increasing document
// ids. Counters live in the store and are advanced by a server-side
// procedure, so any number of writers can mint ids concurrently.
package counter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mantica/blog/backend/go-services/internal/store"
)

// ProcedureName is the server-side procedure registered by the bootstrap
// script sproc.nextId.
const ProcedureName = "nextId"

const idWidth = 5

var ErrUnknownEntityKind = errors.New("no counter defined for entity kind")

// Registry maps entity kinds to their counters.
type Registry struct {
	procs      store.Procedures
	collection string
	counters   map[string]string
}

func NewRegistry(procs store.Procedures, collection string) *Registry {
	return &Registry{
		procs:      procs,
		collection: collection,
		counters:   map[string]string{"article": "article"},
	}
}

// Resolve returns the counter backing kind.
func (r *Registry) Resolve(kind string) (string, error) {
	name, ok := r.counters[kind]
	if !ok {
		return "", fmt.Errorf("%q: %w", kind, ErrUnknownEntityKind)
	}
	return name, nil
}

// NextID advances the counter of kind and returns the new id, e.g.
// "article.00007".
func (r *Registry) NextID(ctx context.Context, kind string) (string, error) {
	return r.next(ctx, kind, 0)
}

// NextIDAfter is NextID for a counter that may have fallen behind the
// stored documents. The counter is first raised to the sequence number of
// lastID, so the returned id sorts after it.
func (r *Registry) NextIDAfter(ctx context.Context, kind, lastID string) (string, error) {
	name, err := r.Resolve(kind)
	if err != nil {
		return "", err
	}
	seq, ok := strings.CutPrefix(lastID, name+".")
	n, err := strconv.ParseInt(seq, 10, 64)
	if !ok || err != nil || n < 0 {
		return "", fmt.Errorf("next %s id after %q: not a %s id", kind, lastID, name)
	}
	return r.next(ctx, kind, n)
}

func (r *Registry) next(ctx context.Context, kind string, floor int64) (string, error) {
	name, err := r.Resolve(kind)
	if err != nil {
		return "", err
	}
	res, err := r.procs.ExecuteProcedure(ctx, r.collection, ProcedureName, []string{"counter." + name}, name, idWidth, floor)
	if err != nil {
		return "", fmt.Errorf("next %s id: %w", kind, err)
	}
	id, ok := res.Value.(string)
	if !ok || id == "" {
		return "", fmt.Errorf("next %s id: procedure returned %T", kind, res.Value)
	}
	return id, nil
}
