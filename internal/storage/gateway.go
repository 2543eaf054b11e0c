package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/rowjay/s3backup/internal/retention"
	"github.com/rowjay/s3backup/internal/util"
)

// Gateway applies the backup layout on top of a Store: one folder per
// element, one object per artifact. It never retries; callers decide.
type Gateway struct {
	Store Store
	Log   zerolog.Logger
}

func NewGateway(store Store, log zerolog.Logger) *Gateway {
	return &Gateway{Store: store, Log: log}
}

// Key returns the object key of a file name inside folder.
func Key(folder, name string) string {
	if folder == "" {
		return name
	}
	return path.Join(folder, name)
}

func folderPrefix(folder string) string {
	if folder == "" {
		return ""
	}
	return folder + "/"
}

// Upload streams localPath to <folder>/<basename> and returns the key.
func (g *Gateway) Upload(ctx context.Context, localPath, folder string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat artifact: %w", err)
	}

	key := Key(folder, filepath.Base(localPath))
	if err := g.Store.Put(ctx, key, f, info.Size()); err != nil {
		return "", err
	}
	return key, nil
}

// List returns every object under folder. Nothing is cached between calls.
func (g *Gateway) List(ctx context.Context, folder string) ([]Object, error) {
	return g.Store.List(ctx, folderPrefix(folder))
}

// SweepRemote deletes objects under folder whose last-modified time is more
// than retentionDays old at now. Objects without a timestamp are skipped.
// A failed delete stops the sweep; keys deleted so far are returned.
func (g *Gateway) SweepRemote(ctx context.Context, folder string, retentionDays int, now time.Time) ([]string, error) {
	objects, err := g.List(ctx, folder)
	if err != nil {
		return nil, err
	}
	var deleted []string
	for _, obj := range objects {
		if obj.LastModified.IsZero() {
			g.Log.Warn().Str("key", obj.Key).Msg("object has no usable last-modified time, skipping")
			continue
		}
		if !retention.Expired(obj.LastModified, now, retentionDays) {
			continue
		}
		if err := g.Store.Delete(ctx, obj.Key); err != nil {
			return deleted, err
		}
		deleted = append(deleted, obj.Key)
	}
	return deleted, nil
}

// FindLatest returns the most recently modified object under folder. Equal
// timestamps resolve to the lexicographically greatest key.
func (g *Gateway) FindLatest(ctx context.Context, folder string) (Object, error) {
	objects, err := g.List(ctx, folder)
	if err != nil {
		return Object{}, err
	}
	var latest Object
	found := false
	for _, obj := range objects {
		if !found || newer(obj, latest) {
			latest = obj
			found = true
		}
	}
	if !found {
		return Object{}, &Error{Op: "find latest", Key: folderPrefix(folder), Err: ErrNotFound}
	}
	return latest, nil
}

func newer(a, b Object) bool {
	if a.LastModified.Equal(b.LastModified) {
		return a.Key > b.Key
	}
	return a.LastModified.After(b.LastModified)
}

// Download fetches the latest object under folder to <destDir>/<key> and
// returns the local path. Parent directories are created; a partially
// written file is removed.
func (g *Gateway) Download(ctx context.Context, folder, destDir string) (string, error) {
	obj, err := g.FindLatest(ctx, folder)
	if err != nil {
		return "", err
	}

	dest := filepath.Join(destDir, filepath.FromSlash(obj.Key))
	if !util.WithinDir(destDir, dest) {
		return "", fmt.Errorf("object key %q escapes %s", obj.Key, destDir)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return "", fmt.Errorf("create download directory: %w", err)
	}

	body, err := g.Store.Get(ctx, obj.Key)
	if err != nil {
		return "", err
	}
	defer body.Close()

	part := dest + ".part"
	if err := writeFile(part, body); err != nil {
		_ = os.Remove(part)
		return "", &Error{Op: "download", Key: obj.Key, Err: err}
	}
	if err := os.Rename(part, dest); err != nil {
		_ = os.Remove(part)
		return "", fmt.Errorf("finalize download: %w", err)
	}
	return dest, nil
}

func writeFile(path string, r io.Reader) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		return errors.Join(err, f.Close())
	}
	return f.Close()
}
