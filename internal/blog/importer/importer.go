// Package importer recreates a blog collection from bootstrap scripts.
//
// Script names have the form <kind>.<id>[.<ext>]. Kind "tbl" inserts the
// JSON body as a document, kind "sproc" registers the body as the
// server-side procedure <id>.
package importer

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/mantica/blog/backend/go-services/internal/store"
	"github.com/mantica/blog/backend/go-services/pkg/logger"
)

const (
	KindDocument  = "tbl"
	KindProcedure = "sproc"
)

var (
	ErrInvalidScriptName = errors.New("invalid script name")
	ErrUnknownScriptKind = errors.New("unknown script kind")
)

// step is a parsed script ready to be applied.
type step struct {
	file string
	kind string
	id   string
	doc  store.Document
	body string
}

// ParseScriptName splits a file name into its kind and id. The extension is
// dropped first, so "sproc.nextId.lua" yields ("sproc", "nextId").
func ParseScriptName(file string) (kind, id string, err error) {
	name := strings.TrimSuffix(file, path.Ext(file))
	kind, id, ok := strings.Cut(name, ".")
	if !ok || kind == "" || id == "" {
		return "", "", fmt.Errorf("%q: %w", file, ErrInvalidScriptName)
	}
	return kind, id, nil
}

func parse(s Script) (step, error) {
	kind, id, err := ParseScriptName(s.Name)
	if err != nil {
		return step{}, err
	}
	st := step{file: s.Name, kind: kind, id: id}
	switch kind {
	case KindDocument:
		// extended JSON keeps the key order of the file
		if err := bson.UnmarshalExtJSON(s.Body, false, &st.doc); err != nil {
			return step{}, fmt.Errorf("parse %s: %w", s.Name, err)
		}
	case KindProcedure:
		st.body = string(s.Body)
	default:
		return step{}, fmt.Errorf("%q: %w", s.Name, ErrUnknownScriptKind)
	}
	return st, nil
}

// Bootstrap drops collection together with its procedures and counters,
// recreates it and applies every script of src in name order. All scripts
// are parsed before anything is dropped. It must not run concurrently with
// readers or writers of the same collection.
func Bootstrap(ctx context.Context, src Source, client *store.Client, collection string) error {
	scripts, err := src.Scripts(ctx)
	if err != nil {
		return err
	}
	sort.Slice(scripts, func(i, j int) bool { return scripts[i].Name < scripts[j].Name })

	steps := make([]step, 0, len(scripts))
	for _, s := range scripts {
		st, err := parse(s)
		if err != nil {
			return err
		}
		steps = append(steps, st)
	}

	exists, err := client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", collection, err)
	}
	if exists {
		logger.Infof("dropping collection %s", collection)
		if err := client.DropCollection(ctx, collection); err != nil {
			return fmt.Errorf("drop collection %s: %w", collection, err)
		}
	}
	if err := client.DropProcedures(ctx, collection); err != nil {
		return fmt.Errorf("drop procedures of %s: %w", collection, err)
	}
	if err := client.CreateCollection(ctx, collection); err != nil {
		return fmt.Errorf("create collection %s: %w", collection, err)
	}

	coll := client.Collection(collection)
	for _, st := range steps {
		switch st.kind {
		case KindDocument:
			if _, err := coll.Insert(ctx, st.doc); err != nil {
				return fmt.Errorf("apply %s: %w", st.file, err)
			}
		case KindProcedure:
			if err := client.CreateProcedure(ctx, collection, st.id, st.body); err != nil {
				return fmt.Errorf("apply %s: %w", st.file, err)
			}
		}
		logger.Debugf("applied %s to %s", st.file, collection)
	}
	logger.Infof("collection %s bootstrapped from %d scripts", collection, len(steps))
	return nil
}
