package storage

import (
	"context"
	"io"
)

// FileStore is the external blob store uploaded media lands in. The
// relay only ever sees the resulting URL.
type FileStore interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
}
