package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BlobReader checks object storage for existing objects.
type BlobReader interface {
	Exists(ctx context.Context, path string) (bool, error)
}

// Archiver copies closed orders to cold storage.
type Archiver interface {
	ArchiveOrders(ctx context.Context, before time.Time) (int64, error)
}
