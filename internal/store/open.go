package store

import (
	"context"
	"fmt"
	"strings"
)

// Backend names accepted by Open.
const (
	BackendFile     = "file"
	BackendMemory   = "memory"
	BackendNone     = "none"
	BackendValkey   = "valkey"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendS3       = "s3"
)

// Options selects and configures a backend.
type Options struct {
	Backend string
	Dir     string
	Valkey  ValkeyConfig
	SQL     SQLConfig
	S3      S3Config
}

// Open returns the configured Store. An empty backend means file.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(opts.Backend) {
	case "", BackendFile:
		return typed(NewFileStore(opts.Dir))
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendNone:
		return NoopStore{}, nil
	case BackendValkey:
		return typed(NewValkeyStore(ctx, opts.Valkey))
	case BackendSQLite, BackendPostgres:
		cfg := opts.SQL
		cfg.Driver = strings.ToLower(opts.Backend)
		return typed(OpenSQLStore(ctx, cfg))
	case BackendS3:
		return typed(NewS3Store(ctx, opts.S3))
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}

// typed keeps a nil concrete pointer from becoming a non-nil Store.
func typed[T Store](s T, err error) (Store, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}
