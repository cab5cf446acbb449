package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

var ErrStoreNotConfigured = errors.New("remote store is not configured")

type ObjectInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// RemoteStore is the capability set the engine needs from an object store.
// Implementations are bound to a single container for their lifetime.
type RemoteStore interface {
	EnsureContainer(ctx context.Context) error
	// ListObjects drains the full listing of the container.
	ListObjects(ctx context.Context) (map[string]ObjectInfo, error)
	GetObject(ctx context.Context, name string) (io.ReadCloser, error)
	PutObject(ctx context.Context, name string, body io.Reader, size int64) error
	// DeleteObject removes the object with all of its snapshots or versions.
	// Deleting an object that does not exist is not an error.
	DeleteObject(ctx context.Context, name string) error
}

// unconfiguredStore stands in for a backend that could not be built so the
// engine keeps running and every remote call fails with the original cause.
type unconfiguredStore struct {
	cause error
}

func newUnconfiguredStore(cause error) RemoteStore {
	return &unconfiguredStore{cause: cause}
}

func (s *unconfiguredStore) err() error {
	return fmt.Errorf("%w: %v", ErrStoreNotConfigured, s.cause)
}

func (s *unconfiguredStore) EnsureContainer(context.Context) error { return s.err() }

func (s *unconfiguredStore) ListObjects(context.Context) (map[string]ObjectInfo, error) {
	return nil, s.err()
}

func (s *unconfiguredStore) GetObject(context.Context, string) (io.ReadCloser, error) {
	return nil, s.err()
}

func (s *unconfiguredStore) PutObject(context.Context, string, io.Reader, int64) error {
	return s.err()
}

func (s *unconfiguredStore) DeleteObject(context.Context, string) error { return s.err() }
