// Package keyvalue implements the backend adapter for hash-per-key stores.
// Each table maps to one hash. When a statement pins the key field with an
// equality, the hash lives under "table:value" instead.
package keyvalue

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	"github.com/txn2/sql-gateway/pkg/backend"
	"github.com/txn2/sql-gateway/pkg/backend/filter"
	"github.com/txn2/sql-gateway/pkg/operation"
)

// Adapter implements backend.Adapter over a Store.
type Adapter struct {
	name   string
	cfg    Config
	store  Store
	logger *slog.Logger
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the adapter logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// New creates a key-value adapter over an existing store.
func New(name string, cfg Config, store Store, opts ...Option) (*Adapter, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.KeyField == "" {
		cfg.KeyField = defaultKeyField
	}
	a := &Adapter{
		name:   name,
		cfg:    cfg,
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// NewFromConfig opens the store cfg names and creates an adapter over it.
func NewFromConfig(ctx context.Context, name string, cfg Config, opts ...Option) (*Adapter, error) {
	var (
		store Store
		err   error
	)
	switch cfg.Store {
	case StoreS3:
		store, err = NewS3StoreFromConfig(ctx, cfg)
	default:
		store, err = OpenBlobStore(ctx, cfg.BucketURL, cfg.Prefix)
	}
	if err != nil {
		return nil, err
	}
	return New(name, cfg, store, opts...)
}

// Name returns the backend name.
func (a *Adapter) Name() string {
	return a.name
}

// Family returns backend.KeyValue.
func (a *Adapter) Family() backend.Family {
	return backend.KeyValue
}

// Execute runs a DML call against the store.
func (a *Adapter) Execute(ctx context.Context, call *backend.Call) (*backend.Result, error) {
	if call.Category != operation.DML {
		return nil, backend.UnsupportedKind(backend.KeyValue, call.Kind)
	}
	if err := backend.RejectJoins(backend.KeyValue, call); err != nil {
		return nil, err
	}

	switch call.Kind {
	case operation.Select:
		if err := backend.RejectPaging(backend.KeyValue, call); err != nil {
			return nil, err
		}
		return a.get(ctx, call)
	case operation.Insert:
		return a.insert(ctx, call)
	case operation.Update:
		return a.update(ctx, call)
	case operation.Delete:
		return a.del(ctx, call)
	default:
		return nil, backend.UnsupportedKind(backend.KeyValue, call.Kind)
	}
}

// hashKey returns the key a statement addresses and the pinned key value,
// if any.
func (a *Adapter) hashKey(target string, pins map[string]any) (string, any) {
	if v, ok := pins[a.cfg.KeyField]; ok && v != nil {
		return fmt.Sprintf("%s:%v", target, v), v
	}
	return target, nil
}

// load reads the hash a filtered statement addresses and reports whether
// it exists and satisfies the predicate.
func (a *Adapter) load(ctx context.Context, call *backend.Call) (string, map[string]any, bool, error) {
	where := call.Where()
	pins, _ := where.Equalities()
	key, pinned := a.hashKey(call.Target, pins)

	hash, ok, err := a.store.Get(ctx, key)
	if err != nil || !ok {
		return key, nil, false, err
	}
	if _, has := hash[a.cfg.KeyField]; !has && pinned != nil {
		hash[a.cfg.KeyField] = pinned
	}
	matched, err := filter.Match(where, hash)
	if err != nil {
		return key, nil, false, err
	}
	return key, hash, matched, nil
}

func (a *Adapter) get(ctx context.Context, call *backend.Call) (*backend.Result, error) {
	_, hash, ok, err := a.load(ctx, call)
	if err != nil {
		return nil, err
	}
	res := &backend.Result{Rows: []map[string]any{}}
	if cols := call.Columns(); len(cols) > 0 && cols[0] != "*" {
		res.Columns = cols
	}
	if ok {
		res.Rows = append(res.Rows, filter.Project(hash, call.Columns()))
		res.Affected = 1
	}
	return res, nil
}

// insert merges the values into the hash, creating it when absent.
func (a *Adapter) insert(ctx context.Context, call *backend.Call) (*backend.Result, error) {
	values := call.Values()
	if len(values) == 0 {
		return nil, fmt.Errorf("insert into %s has no values", call.Target)
	}
	key, _ := a.hashKey(call.Target, values)

	hash, _, err := a.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if hash == nil {
		hash = make(map[string]any, len(values))
	}
	maps.Copy(hash, values)
	if err := a.store.Put(ctx, key, hash); err != nil {
		return nil, err
	}
	a.logger.Debug("hash written", "backend", a.name, "key", key)
	return &backend.Result{Rows: []map[string]any{}, Affected: 1, Meta: map[string]any{"key": key}}, nil
}

// update merges the values into an existing hash that satisfies the
// predicate.
func (a *Adapter) update(ctx context.Context, call *backend.Call) (*backend.Result, error) {
	values := call.Values()
	if len(values) == 0 {
		return nil, fmt.Errorf("update of %s has no values", call.Target)
	}
	key, hash, ok, err := a.load(ctx, call)
	if err != nil {
		return nil, err
	}
	res := &backend.Result{Rows: []map[string]any{}, Meta: map[string]any{"key": key}}
	if !ok {
		return res, nil
	}
	maps.Copy(hash, values)
	if err := a.store.Put(ctx, key, hash); err != nil {
		return nil, err
	}
	res.Affected = 1
	return res, nil
}

func (a *Adapter) del(ctx context.Context, call *backend.Call) (*backend.Result, error) {
	key, _, ok, err := a.load(ctx, call)
	if err != nil {
		return nil, err
	}
	res := &backend.Result{Rows: []map[string]any{}, Meta: map[string]any{"key": key}}
	if !ok {
		return res, nil
	}
	deleted, err := a.store.Delete(ctx, key)
	if err != nil {
		return nil, err
	}
	if deleted {
		res.Affected = 1
	}
	return res, nil
}

// Close closes the store.
func (a *Adapter) Close() error {
	return a.store.Close()
}

var _ backend.Adapter = (*Adapter)(nil)
