// Package storage moves artifacts to and from the remote object store and
// applies the remote retention policy.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrNotFound is returned when a key or folder holds no object.
var ErrNotFound = errors.New("object not found")

// Object is one entry of a remote listing. LastModified is the zero time when
// the store did not report a usable timestamp.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
	ETag         string
}

// Store is an object store driver. List merges every page of the listing.
type Store interface {
	Put(ctx context.Context, key string, reader io.Reader, size int64) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (Object, error)
	List(ctx context.Context, prefix string) ([]Object, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// Ping checks that the bucket is reachable with the configured credentials.
	Ping(ctx context.Context) error
}

// Error reports a failed store operation.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("remote %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func wrap(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Key: key, Err: err}
}
