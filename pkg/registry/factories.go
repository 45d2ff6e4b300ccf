package registry

import (
	"context"
	"fmt"
	"maps"

	"github.com/txn2/sql-gateway/pkg/backend"
	"github.com/txn2/sql-gateway/pkg/backend/keyvalue"
	"github.com/txn2/sql-gateway/pkg/backend/ledger"
	"github.com/txn2/sql-gateway/pkg/backend/pubsub"
	"github.com/txn2/sql-gateway/pkg/backend/relational"
)

// RegisterBuiltinFactories registers all built-in adapter factories. Besides
// one kind per family, it registers shorthand kinds that preset the
// family's config, such as "sqlite" or "hedera".
func RegisterBuiltinFactories(r *Registry) {
	r.RegisterFactory(string(backend.Relational), RelationalFactory)
	r.RegisterFactory(string(backend.KeyValue), KeyValueFactory)
	r.RegisterFactory(string(backend.PubSub), PubSubFactory)
	r.RegisterFactory(string(backend.Ledger), LedgerFactory)
	r.RegisterFactory("noop", NoopFactory)

	r.RegisterFactory("postgres", preset(RelationalFactory, map[string]any{"driver": relational.DriverPostgres}, nil))
	r.RegisterFactory("sqlite", preset(RelationalFactory,
		map[string]any{"driver": relational.DriverSQLite},
		map[string]any{"dsn": ":memory:"}))
	r.RegisterFactory(ledger.NetworkEthereum, preset(LedgerFactory, map[string]any{"network": ledger.NetworkEthereum}, nil))
	r.RegisterFactory(ledger.NetworkHedera, preset(LedgerFactory, map[string]any{"network": ledger.NetworkHedera}, nil))
	r.RegisterFactory(ledger.NetworkHyperledger, preset(LedgerFactory, map[string]any{"network": ledger.NetworkHyperledger}, nil))
}

// preset wraps factory so fixed keys always apply and defaults apply when
// the instance config leaves them out.
func preset(factory AdapterFactory, fixed, defaults map[string]any) AdapterFactory {
	return func(name string, cfg map[string]any) (backend.Adapter, error) {
		merged := make(map[string]any, len(cfg)+len(fixed)+len(defaults))
		maps.Copy(merged, defaults)
		maps.Copy(merged, cfg)
		maps.Copy(merged, fixed)
		return factory(name, merged)
	}
}

// RelationalFactory creates a database/sql adapter from configuration.
func RelationalFactory(name string, cfg map[string]any) (backend.Adapter, error) {
	config, err := relational.ParseConfig(cfg)
	if err != nil {
		return nil, err
	}
	return relational.NewFromConfig(name, config)
}

// KeyValueFactory creates a key-value adapter from configuration.
func KeyValueFactory(name string, cfg map[string]any) (backend.Adapter, error) {
	config, err := keyvalue.ParseConfig(cfg)
	if err != nil {
		return nil, err
	}
	return keyvalue.NewFromConfig(context.Background(), name, config)
}

// PubSubFactory creates a pub/sub adapter from configuration.
func PubSubFactory(name string, cfg map[string]any) (backend.Adapter, error) {
	config, err := pubsub.ParseConfig(cfg)
	if err != nil {
		return nil, err
	}
	return pubsub.New(name, config)
}

// LedgerFactory creates a ledger adapter from configuration.
func LedgerFactory(name string, cfg map[string]any) (backend.Adapter, error) {
	config, err := ledger.ParseConfig(cfg)
	if err != nil {
		return nil, err
	}
	return ledger.New(name, config)
}

// NoopFactory creates an adapter that accepts every call. The "family"
// key picks the family it reports, relational by default.
func NoopFactory(name string, cfg map[string]any) (backend.Adapter, error) {
	family := backend.Relational
	if f, ok := cfg["family"].(string); ok && f != "" {
		family = backend.Family(f)
	}
	if !family.Valid() {
		return nil, fmt.Errorf("unknown family %q", family)
	}
	return backend.NewNoopAdapter(name, family), nil
}
