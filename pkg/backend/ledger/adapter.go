// Package ledger implements the backend adapter for smart-contract ledgers.
// Rows live in a contract that exposes record functions; calls are relayed
// through a JSON gateway that holds the network credentials.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/txn2/sql-gateway/pkg/backend"
	"github.com/txn2/sql-gateway/pkg/backend/filter"
	"github.com/txn2/sql-gateway/pkg/operation"
)

// contractFunctions names the contract function each kind invokes.
var contractFunctions = map[string]map[operation.Kind]string{
	NetworkEthereum: {
		operation.Select: "getRecord",
		operation.Insert: "insertRecord",
		operation.Update: "updateRecord",
		operation.Delete: "deleteRecord",
	},
	NetworkHedera: {
		operation.Select: "selectRecord",
		operation.Insert: "insertRecord",
		operation.Update: "updateRecord",
		operation.Delete: "deleteRecord",
	},
	NetworkHyperledger: {
		operation.Select: "select",
		operation.Insert: "insert",
		operation.Update: "update",
		operation.Delete: "delete",
	},
}

// Adapter implements backend.Adapter against a ledger gateway.
type Adapter struct {
	name   string
	cfg    Config
	client *http.Client
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

// WithHTTPClient sets the client used to reach the gateway.
func WithHTTPClient(client *http.Client) Option {
	return func(a *Adapter) {
		a.client = client
	}
}

// New creates a ledger adapter.
func New(name string, cfg Config, opts ...Option) (*Adapter, error) {
	if _, ok := contractFunctions[cfg.Network]; !ok {
		return nil, fmt.Errorf("unsupported network %q", cfg.Network)
	}
	if cfg.GatewayURL == "" {
		return nil, fmt.Errorf("gateway_url is required")
	}
	a := &Adapter{
		name:   name,
		cfg:    cfg,
		client: http.DefaultClient,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Name returns the backend name.
func (a *Adapter) Name() string {
	return a.name
}

// Family returns backend.Ledger.
func (a *Adapter) Family() backend.Family {
	return backend.Ledger
}

// Network returns the configured ledger network.
func (a *Adapter) Network() string {
	return a.cfg.Network
}

// Execute invokes the contract function for the call's kind.
func (a *Adapter) Execute(ctx context.Context, call *backend.Call) (*backend.Result, error) {
	if call.Category != operation.DML {
		return nil, backend.UnsupportedKind(backend.Ledger, call.Kind)
	}
	fn, ok := contractFunctions[a.cfg.Network][call.Kind]
	if !ok {
		return nil, backend.UnsupportedKind(backend.Ledger, call.Kind)
	}
	if err := backend.RejectJoins(backend.Ledger, call); err != nil {
		return nil, err
	}

	if call.Kind == operation.Select {
		if err := backend.RejectPaging(backend.Ledger, call); err != nil {
			return nil, err
		}
		return a.query(ctx, fn, call)
	}
	return a.submit(ctx, fn, call)
}

func (a *Adapter) request(fn, mode string, args []any) invokeRequest {
	req := invokeRequest{
		Network:  a.cfg.Network,
		Contract: a.cfg.Contract,
		Function: fn,
		Args:     args,
		Mode:     mode,
	}
	if a.cfg.Network == NetworkHyperledger {
		req.Channel = a.cfg.Channel
	}
	return req
}

// query reads records and applies the predicate locally, since contracts
// only match on key equalities.
func (a *Adapter) query(ctx context.Context, fn string, call *backend.Call) (*backend.Result, error) {
	where, err := a.whereArg(call, false)
	if err != nil {
		return nil, err
	}

	var args []any
	switch a.cfg.Network {
	case NetworkEthereum:
		args = []any{call.Target}
	case NetworkHedera:
		args = []any{call.Target, a.listArg(toAny(call.Columns())), where}
	default:
		args = []any{call.Target, where}
	}

	out, err := a.invoke(ctx, a.request(fn, modeQuery, args))
	if err != nil {
		return nil, err
	}
	records, err := decodeRecords(out.Result)
	if err != nil {
		return nil, fmt.Errorf("decoding %s result: %w", fn, err)
	}

	res := &backend.Result{Rows: []map[string]any{}, Meta: map[string]any{"function": fn}}
	if cols := call.Columns(); len(cols) > 0 && cols[0] != "*" {
		res.Columns = cols
	}
	for _, rec := range records {
		ok, err := filter.Match(call.Where(), rec)
		if err != nil {
			return nil, err
		}
		if ok {
			res.Rows = append(res.Rows, filter.Project(rec, call.Columns()))
		}
	}
	res.Affected = int64(len(res.Rows))
	return res, nil
}

func (a *Adapter) submit(ctx context.Context, fn string, call *backend.Call) (*backend.Result, error) {
	fields, values := columnsAndValues(call.Values())
	if call.Kind != operation.Delete && len(fields) == 0 {
		return nil, fmt.Errorf("%s of %s has no values", call.Kind, call.Target)
	}

	var args []any
	switch call.Kind {
	case operation.Insert:
		args = []any{call.Target, a.listArg(fields), a.listArg(values)}
	case operation.Update:
		where, err := a.whereArg(call, true)
		if err != nil {
			return nil, err
		}
		args = []any{call.Target, a.listArg(fields), a.listArg(values), where}
	default:
		where, err := a.whereArg(call, true)
		if err != nil {
			return nil, err
		}
		args = []any{call.Target, where}
	}

	out, err := a.invoke(ctx, a.request(fn, modeSubmit, args))
	if err != nil {
		return nil, err
	}

	status := out.Status
	if status == "" {
		status = strings.ToUpper(string(call.Kind)) + " successful"
	}
	meta := map[string]any{"function": fn, "status": status}
	if out.TxID != "" {
		meta["txId"] = out.TxID
	}
	if len(out.Receipt) > 0 {
		var receipt any
		if err := json.Unmarshal(out.Receipt, &receipt); err == nil {
			meta["receipt"] = receipt
		}
	}
	a.logger.Debug("ledger transaction submitted", "backend", a.name, "function", fn, "status", status)
	return &backend.Result{Rows: []map[string]any{}, Affected: 1, Meta: meta}, nil
}

// whereArg encodes the key equalities of the predicate as a JSON object.
// Writes must name the records they touch, so a predicate that is not a
// conjunction of equalities is refused when required is set.
func (a *Adapter) whereArg(call *backend.Call, required bool) (string, error) {
	where := call.Where()
	pins, ok := where.Equalities()
	switch {
	case where == nil && required:
		return "", fmt.Errorf("%s of %s needs a key predicate: %w", call.Kind, call.Target, backend.ErrUnsupportedPredicate)
	case where != nil && !ok && required:
		return "", fmt.Errorf("%s of %s accepts only key equalities: %w", call.Kind, call.Target, backend.ErrUnsupportedPredicate)
	case !ok:
		pins = map[string]any{}
	}
	data, err := json.Marshal(pins)
	if err != nil {
		return "", fmt.Errorf("encoding predicate: %w", err)
	}
	return string(data), nil
}

// listArg renders a field or value list the way the network's contract
// ABI expects it.
func (a *Adapter) listArg(list []any) any {
	switch a.cfg.Network {
	case NetworkHedera:
		parts := make([]string, len(list))
		for i, v := range list {
			parts[i] = fmt.Sprint(v)
		}
		return strings.Join(parts, ",")
	case NetworkHyperledger:
		data, err := json.Marshal(list)
		if err != nil {
			return "[]"
		}
		return string(data)
	default:
		return list
	}
}

// columnsAndValues orders values by column name so argument positions are
// stable.
func columnsAndValues(values map[string]any) ([]any, []any) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	fields := make([]any, len(keys))
	vals := make([]any, len(keys))
	for i, k := range keys {
		fields[i] = k
		vals[i] = values[k]
	}
	return fields, vals
}

func toAny(list []string) []any {
	out := make([]any, len(list))
	for i, s := range list {
		out[i] = s
	}
	return out
}

// decodeRecords accepts an array of objects, a single object or null.
// Any other value is returned as one record under "result".
func decodeRecords(raw json.RawMessage) ([]map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case []any:
		out := make([]map[string]any, 0, len(x))
		for _, item := range x {
			if rec, ok := item.(map[string]any); ok {
				out = append(out, rec)
			} else {
				out = append(out, map[string]any{"result": item})
			}
		}
		return out, nil
	case map[string]any:
		return []map[string]any{x}, nil
	default:
		return []map[string]any{{"result": x}}, nil
	}
}

// Close does nothing; the HTTP client is shared.
func (a *Adapter) Close() error {
	return nil
}

var _ backend.Adapter = (*Adapter)(nil)
