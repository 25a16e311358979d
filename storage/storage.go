// Package storage keeps uploaded files in object storage.
package storage

import (
	"context"
	"errors"
	"io"
)

var ErrNotFound = errors.New("storage: object not found")

// Object describes a stored file.
type Object struct {
	Key  string
	URL  string
	Size int64
}

// Store puts and removes uploaded files. Keys are slash-separated and
// chosen by the caller.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (*Object, error)
	Delete(ctx context.Context, key string) error
}
