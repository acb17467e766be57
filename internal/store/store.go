// File: internal/store/store.go
package store

import (
	"context"
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mimic/internal/config"
)

// Well-known document keys.
const (
	KeyFingerprints = "fingerprints"
	KeyProxies      = "proxies"
	KeyCookies      = "cookies"
)

var (
	// ErrNotFound is returned by Load when no document exists under the key.
	ErrNotFound = errors.New("document not found")
	// ErrPersistence wraps every backend read or write failure other than a missing document.
	ErrPersistence = errors.New("persistence failure")
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DocumentStore persists whole JSON documents by key.
// Load decodes the stored document into v; Save replaces it wholesale.
type DocumentStore interface {
	Load(ctx context.Context, key string, v interface{}) error
	Save(ctx context.Context, key string, v interface{}) error
	Close() error
}

// Open builds the backend selected by cfg.Type.
func Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (DocumentStore, error) {
	switch cfg.Type {
	case "file", "":
		return NewFileStore(cfg.Dir, logger)
	case "postgres":
		return OpenPostgres(ctx, cfg.PostgresURL, logger)
	case "redis":
		return OpenRedis(ctx, cfg, logger)
	case "sqlite":
		return OpenSQLite(ctx, cfg.SQLitePath, logger)
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
}

func encode(key string, v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: encode %q: %v", ErrPersistence, key, err)
	}
	return data, nil
}

func decode(key string, data []byte, v interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: %q is empty", ErrNotFound, key)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: decode %q: %v", ErrPersistence, key, err)
	}
	return nil
}
