package importer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
)

// Script is one bootstrap file. Name is the base file name including its
// extension.
type Script struct {
	Name string
	Body []byte
}

// Source lists the scripts a collection is bootstrapped from.
type Source interface {
	Scripts(ctx context.Context) ([]Script, error)
}

// FSSource reads every regular file in the root of a file system.
type FSSource struct {
	FS fs.FS
}

// DirSource reads scripts from a local directory.
func DirSource(dir string) FSSource {
	return FSSource{FS: os.DirFS(dir)}
}

func (s FSSource) Scripts(ctx context.Context) ([]Script, error) {
	entries, err := fs.ReadDir(s.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("read script directory: %w", err)
	}
	var out []Script
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.Type().IsRegular() {
			continue
		}
		body, err := fs.ReadFile(s.FS, e.Name())
		if err != nil {
			return nil, fmt.Errorf("read script %s: %w", e.Name(), err)
		}
		out = append(out, Script{Name: e.Name(), Body: body})
	}
	return out, nil
}

// ObjectStore is the part of the MinIO wrapper the importer needs.
type ObjectStore interface {
	ListObjects(ctx context.Context, prefix string) ([]string, error)
	DownloadFile(ctx context.Context, key string) (io.ReadCloser, error)
}

// ObjectSource reads scripts stored under a key prefix of a bucket.
type ObjectSource struct {
	Store  ObjectStore
	Prefix string
}

func (s ObjectSource) Scripts(ctx context.Context) ([]Script, error) {
	prefix := s.Prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	keys, err := s.Store.ListObjects(ctx, prefix)
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	out := make([]Script, 0, len(keys))
	for _, key := range keys {
		rc, err := s.Store.DownloadFile(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("download script %s: %w", key, err)
		}
		body, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read script %s: %w", key, err)
		}
		out = append(out, Script{Name: path.Base(key), Body: body})
	}
	return out, nil
}

// SelectSource picks where scripts come from: the bucket prefix when objects
// is set, then dir, then fallback.
func SelectSource(dir string, objects ObjectStore, prefix string, fallback fs.FS) Source {
	switch {
	case objects != nil && prefix != "":
		return ObjectSource{Store: objects, Prefix: prefix}
	case dir != "":
		return DirSource(dir)
	}
	return FSSource{FS: fallback}
}

// ObjectUploader is the write side of the MinIO wrapper.
type ObjectUploader interface {
	UploadFile(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
}

// Publish copies every script of src under prefix so that an ObjectSource
// with the same prefix reads them back. It returns the number of uploads.
func Publish(ctx context.Context, src Source, dst ObjectUploader, prefix string) (int, error) {
	scripts, err := src.Scripts(ctx)
	if err != nil {
		return 0, err
	}
	prefix = strings.TrimSuffix(prefix, "/")
	for i, s := range scripts {
		key := s.Name
		if prefix != "" {
			key = prefix + "/" + s.Name
		}
		if err := dst.UploadFile(ctx, key, bytes.NewReader(s.Body), int64(len(s.Body)), contentType(s.Name)); err != nil {
			return i, fmt.Errorf("upload script %s: %w", key, err)
		}
	}
	return len(scripts), nil
}

func contentType(name string) string {
	switch path.Ext(name) {
	case ".json":
		return "application/json"
	case ".lua":
		return "text/x-lua"
	}
	return "application/octet-stream"
}
