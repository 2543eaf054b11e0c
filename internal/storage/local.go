package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rowjay/s3backup/internal/util"
)

// Local stores objects as files under BasePath. Keys map to relative paths.
type Local struct {
	BasePath string
}

func NewLocal(path string) *Local {
	return &Local{BasePath: path}
}

func (l *Local) path(key string) (string, error) {
	p := filepath.Join(l.BasePath, filepath.FromSlash(key))
	if !util.WithinDir(l.BasePath, p) || p == filepath.Clean(l.BasePath) {
		return "", fmt.Errorf("key %q escapes the store root", key)
	}
	return p, nil
}

func (l *Local) Put(ctx context.Context, key string, reader io.Reader, _ int64) error {
	if err := ctx.Err(); err != nil {
		return wrap("put", key, err)
	}
	target, err := l.path(key)
	if err != nil {
		return wrap("put", key, err)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return wrap("put", key, fmt.Errorf("create directories: %w", err))
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".put-*")
	if err != nil {
		return wrap("put", key, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		return wrap("put", key, err)
	}
	if err := tmp.Close(); err != nil {
		return wrap("put", key, err)
	}
	return wrap("put", key, os.Rename(tmp.Name(), target))
}

func (l *Local) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrap("get", key, err)
	}
	p, err := l.path(key)
	if err != nil {
		return nil, wrap("get", key, err)
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, wrap("get", key, notFound(err))
	}
	return f, nil
}

func (l *Local) Stat(ctx context.Context, key string) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, wrap("stat", key, err)
	}
	p, err := l.path(key)
	if err != nil {
		return Object{}, wrap("stat", key, err)
	}
	info, err := os.Stat(p)
	if err != nil {
		return Object{}, wrap("stat", key, notFound(err))
	}
	return Object{Key: key, Size: info.Size(), LastModified: info.ModTime()}, nil
}

// List walks the directory of prefix. Temporary upload files are skipped.
func (l *Local) List(ctx context.Context, prefix string) ([]Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrap("list", prefix, err)
	}

	dir := prefix
	if !strings.HasSuffix(dir, "/") {
		dir = pathDir(dir)
	}
	root := filepath.Join(l.BasePath, filepath.FromSlash(dir))
	objects := []Object{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".put-") {
			return nil
		}
		rel, err := filepath.Rel(l.BasePath, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, Object{Key: key, Size: info.Size(), LastModified: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, wrap("list", prefix, err)
	}
	return objects, nil
}

func (l *Local) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return wrap("delete", key, err)
	}
	p, err := l.path(key)
	if err != nil {
		return wrap("delete", key, err)
	}
	return wrap("delete", key, notFound(os.Remove(p)))
}

func (l *Local) Exists(ctx context.Context, key string) (bool, error) {
	_, err := l.Stat(ctx, key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}

func (l *Local) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(l.BasePath)
	if err != nil {
		return wrap("ping", l.BasePath, err)
	}
	if !info.IsDir() {
		return wrap("ping", l.BasePath, fmt.Errorf("not a directory"))
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}

// pathDir is path.Dir for keys, returning "" instead of ".".
func pathDir(key string) string {
	i := strings.LastIndex(key, "/")
	if i < 0 {
		return ""
	}
	return key[:i+1]
}
