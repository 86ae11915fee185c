// Package datasource abstracts where resource bytes come from, keeping the
// reader and every stage above it independent of local files versus fetched
// payloads.
package datasource

import (
	"context"
	"io"
)

// Source is one named tabular resource. Open may be called any number of
// times; every call yields a fresh reader positioned at the first byte,
// which is what lets the pipeline re-read a resource once per stage.
type Source interface {
	Name() string
	Open(ctx context.Context) (io.ReadCloser, error)
}
