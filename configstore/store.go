package configstore

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/autoprocess/autoprocess"
	"github.com/c360/autoprocess/errors"
	"github.com/c360/autoprocess/natsclient"
)

// DefaultBucket is the bucket used when none is configured.
const DefaultBucket = "AUTOPROCESS_PROCESSES"

// Store provides persistence for process definitions.
type Store struct {
	kv     *natsclient.KVStore
	logger *slog.Logger
}

// NewStore opens (or creates) bucket.
func NewStore(ctx context.Context, client *natsclient.Client, bucket string, logger *slog.Logger) (*Store, error) {
	if client == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "configstore", "NewStore", "nats client is nil")
	}
	if bucket == "" {
		bucket = DefaultBucket
	}
	if logger == nil {
		logger = slog.Default()
	}
	b, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "Automatic process definitions",
		History:     10,
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "configstore", "NewStore", "create KV bucket")
	}
	return &Store{
		kv:     client.NewKVStore(b),
		logger: logger.With("component", "configstore", "bucket", bucket),
	}, nil
}

func encode(d autoprocess.Definition) ([]byte, error) {
	d.Version = 0
	data, err := json.Marshal(d)
	if err != nil {
		return nil, errors.WrapFatal(err, "configstore", "encode", "marshal definition "+d.ID)
	}
	return data, nil
}

func decode(key string, value []byte, revision uint64) (autoprocess.Definition, error) {
	var d autoprocess.Definition
	if err := json.Unmarshal(value, &d); err != nil {
		return d, errors.WrapFatal(errors.ErrDataCorrupted, "configstore", "decode",
			fmt.Sprintf("unmarshal %s: %v", key, err))
	}
	d.Version = int64(revision)
	return d, nil
}

// Create stores a new definition. It fails if the ID is taken or the definition does
// not compile.
func (s *Store) Create(ctx context.Context, d autoprocess.Definition) (autoprocess.Definition, error) {
	if _, err := autoprocess.Compile(d); err != nil {
		return d, err
	}
	data, err := encode(d)
	if err != nil {
		return d, err
	}
	rev, err := s.kv.Create(ctx, d.ID, data)
	if err != nil {
		if natsclient.IsKVConflictError(err) {
			return d, errors.WrapInvalid(err, "configstore", "Create", "process "+d.ID+" already exists")
		}
		return d, errors.WrapTransient(err, "configstore", "Create", "create in KV")
	}
	d.Version = int64(rev)
	s.logger.Info("Process created", "process", d.ID, "version", d.Version)
	return d, nil
}

// Get returns the stored definition with its Version set.
func (s *Store) Get(ctx context.Context, id string) (autoprocess.Definition, error) {
	if id == "" {
		return autoprocess.Definition{}, errors.WrapInvalid(errors.ErrInvalidData, "configstore", "Get", "process ID is empty")
	}
	entry, err := s.kv.Get(ctx, id)
	if err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return autoprocess.Definition{}, errors.WrapInvalid(errors.ErrConfigNotFound, "configstore", "Get", "process "+id)
		}
		return autoprocess.Definition{}, errors.WrapTransient(err, "configstore", "Get", "get from KV")
	}
	return decode(entry.Key, entry.Value, entry.Revision)
}

// Update replaces a definition. d.Version must match the stored version; a stale
// version fails with natsclient.ErrKVRevisionMismatch.
func (s *Store) Update(ctx context.Context, d autoprocess.Definition) (autoprocess.Definition, error) {
	if d.Version <= 0 {
		return d, errors.WrapInvalid(errors.ErrInvalidData, "configstore", "Update", "version is required")
	}
	if _, err := autoprocess.Compile(d); err != nil {
		return d, err
	}
	data, err := encode(d)
	if err != nil {
		return d, err
	}
	rev, err := s.kv.Update(ctx, d.ID, data, uint64(d.Version))
	if err != nil {
		if natsclient.IsKVConflictError(err) {
			return d, errors.WrapInvalid(err, "configstore", "Update",
				fmt.Sprintf("process %s was modified since version %d", d.ID, d.Version))
		}
		return d, errors.WrapTransient(err, "configstore", "Update", "update in KV")
	}
	d.Version = int64(rev)
	s.logger.Info("Process updated", "process", d.ID, "version", d.Version)
	return d, nil
}

// Delete removes a definition. Deleting an unknown ID is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "configstore", "Delete", "process ID is empty")
	}
	if err := s.kv.Delete(ctx, id); err != nil {
		return errors.WrapTransient(err, "configstore", "Delete", "delete from KV")
	}
	s.logger.Info("Process deleted", "process", id)
	return nil
}

// List returns every stored definition ordered by ID.
func (s *Store) List(ctx context.Context) ([]autoprocess.Definition, error) {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		return nil, errors.WrapTransient(err, "configstore", "List", "list KV keys")
	}
	sort.Strings(keys)

	defs := make([]autoprocess.Definition, 0, len(keys))
	for _, key := range keys {
		d, err := s.Get(ctx, key)
		if stderrors.Is(err, errors.ErrConfigNotFound) {
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "configstore", "List", "get "+key)
		}
		defs = append(defs, d)
	}
	return defs, nil
}
