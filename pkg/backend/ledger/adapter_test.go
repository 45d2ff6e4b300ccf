package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/sql-gateway/pkg/backend"
	"github.com/txn2/sql-gateway/pkg/operation"
)

const testTable = "assets"

// fakeGateway records invocations and answers with a canned response.
type fakeGateway struct {
	mu       sync.Mutex
	requests []invokeRequest
	auth     string
	status   int
	response any
}

func (g *fakeGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Path != "/invoke" {
		http.NotFound(w, r)
		return
	}
	var req invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.auth = r.Header.Get("Authorization")
	status, response := g.status, g.response
	g.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response)
}

func (g *fakeGateway) last(t *testing.T) invokeRequest {
	t.Helper()
	g.mu.Lock()
	defer g.mu.Unlock()
	require.NotEmpty(t, g.requests)
	return g.requests[len(g.requests)-1]
}

func newTestAdapter(t *testing.T, network string, gw *fakeGateway) *Adapter {
	t.Helper()
	srv := httptest.NewServer(gw)
	t.Cleanup(srv.Close)

	cfg, err := ParseConfig(map[string]any{
		"network":     network,
		"gateway_url": srv.URL + "/",
		"contract":    "0xabc",
		"token":       "secret",
	})
	require.NoError(t, err)
	a, err := New("chain", cfg, WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return a
}

func eq(field string, v any) *operation.Predicate {
	return &operation.Predicate{Expr: &operation.Expr{Op: operation.OpEq, Field: field, Value: v}}
}

func dml(kind operation.Kind) *backend.Call {
	return &backend.Call{Kind: kind, Category: operation.DML, Target: testTable}
}

func TestNew_RejectsUnknownNetwork(t *testing.T) {
	_, err := New("x", Config{Network: "bitcoin", GatewayURL: "http://gw"})
	assert.Error(t, err)
}

func TestAdapter_Identity(t *testing.T) {
	a := newTestAdapter(t, NetworkEthereum, &fakeGateway{})
	assert.Equal(t, "chain", a.Name())
	assert.Equal(t, backend.Ledger, a.Family())
	assert.Equal(t, NetworkEthereum, a.Network())
}

func TestAdapter_EthereumSelect(t *testing.T) {
	gw := &fakeGateway{response: map[string]any{"result": []any{
		map[string]any{"id": 1, "owner": "alice"},
		map[string]any{"id": 2, "owner": "bob"},
	}}}
	a := newTestAdapter(t, NetworkEthereum, gw)

	call := dml(operation.Select)
	call.ColumnsOrDefinition = []string{"owner"}
	call.PredicateOrTransaction = eq("id", int64(2))
	res, err := a.Execute(context.Background(), call)
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"owner": "bob"}}, res.Rows)
	assert.Equal(t, int64(1), res.Affected)

	req := gw.last(t)
	assert.Equal(t, "getRecord", req.Function)
	assert.Equal(t, modeQuery, req.Mode)
	assert.Equal(t, "0xabc", req.Contract)
	assert.Empty(t, req.Channel)
	assert.Equal(t, []any{testTable}, req.Args)
	assert.Equal(t, "Bearer secret", gw.auth)
}

func TestAdapter_HederaArguments(t *testing.T) {
	gw := &fakeGateway{response: map[string]any{"status": "SUCCESS", "txId": "0.0.1@1"}}
	a := newTestAdapter(t, NetworkHedera, gw)

	call := dml(operation.Insert)
	call.ValuesOrPrivileges = map[string]any{"owner": "alice", "id": 7}
	res, err := a.Execute(context.Background(), call)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Affected)
	assert.Equal(t, "SUCCESS", res.Meta["status"])
	assert.Equal(t, "0.0.1@1", res.Meta["txId"])

	req := gw.last(t)
	assert.Equal(t, "insertRecord", req.Function)
	assert.Equal(t, modeSubmit, req.Mode)
	assert.Equal(t, []any{testTable, "id,owner", "7,alice"}, req.Args)

	gw.response = map[string]any{"result": map[string]any{"id": 7, "owner": "alice"}}
	sel := dml(operation.Select)
	sel.ColumnsOrDefinition = []string{"id", "owner"}
	sel.PredicateOrTransaction = eq("id", int64(7))
	res, err = a.Execute(context.Background(), sel)
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"id": json.Number("7"), "owner": "alice"}}, res.Rows)
	assert.Equal(t, []any{testTable, "id,owner", `{"id":7}`}, gw.last(t).Args)
}

func TestAdapter_HyperledgerWrites(t *testing.T) {
	gw := &fakeGateway{response: map[string]any{}}
	a := newTestAdapter(t, NetworkHyperledger, gw)
	ctx := context.Background()

	update := dml(operation.Update)
	update.ValuesOrPrivileges = map[string]any{"owner": "carol"}
	update.PredicateOrTransaction = eq("id", "a1")
	res, err := a.Execute(ctx, update)
	require.NoError(t, err)
	assert.Equal(t, "UPDATE successful", res.Meta["status"])

	req := gw.last(t)
	assert.Equal(t, "update", req.Function)
	assert.Equal(t, defaultChannel, req.Channel)
	assert.Equal(t, "0xabc", req.Contract)
	assert.Equal(t, []any{testTable, `["owner"]`, `["carol"]`, `{"id":"a1"}`}, req.Args)

	del := dml(operation.Delete)
	del.PredicateOrTransaction = eq("id", "a1")
	res, err = a.Execute(ctx, del)
	require.NoError(t, err)
	assert.Equal(t, "DELETE successful", res.Meta["status"])
	assert.Equal(t, []any{testTable, `{"id":"a1"}`}, gw.last(t).Args)
}

func TestAdapter_ReceiptIsDecoded(t *testing.T) {
	gw := &fakeGateway{response: map[string]any{"receipt": map[string]any{"blockNumber": 12}}}
	a := newTestAdapter(t, NetworkEthereum, gw)

	call := dml(operation.Insert)
	call.ValuesOrPrivileges = map[string]any{"id": 1}
	res, err := a.Execute(context.Background(), call)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"blockNumber": float64(12)}, res.Meta["receipt"])
	assert.Equal(t, []any{testTable, []any{"id"}, []any{float64(1)}}, gw.last(t).Args)
}

func TestAdapter_GatewayErrors(t *testing.T) {
	gw := &fakeGateway{status: http.StatusBadGateway, response: map[string]any{"error": "node unreachable"}}
	a := newTestAdapter(t, NetworkEthereum, gw)

	_, err := a.Execute(context.Background(), dml(operation.Select))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node unreachable")
	assert.Contains(t, err.Error(), "502")

	gw.status = http.StatusOK
	gw.response = map[string]any{"error": "reverted"}
	_, err = a.Execute(context.Background(), dml(operation.Select))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reverted")
}

func TestAdapter_Rejections(t *testing.T) {
	a := newTestAdapter(t, NetworkEthereum, &fakeGateway{response: map[string]any{}})

	ranged := dml(operation.Delete)
	ranged.PredicateOrTransaction = &operation.Predicate{Expr: &operation.Expr{Op: operation.OpGt, Field: "id", Value: 1}}
	joined := dml(operation.Select)
	joined.Refinements.Joins = []operation.Join{{Type: "inner", Target: "owners"}}
	limited := dml(operation.Select)
	limited.Refinements.Limit = &operation.Limit{Count: 5}

	tests := []struct {
		name string
		call *backend.Call
		want error
	}{
		{"unfiltered delete", dml(operation.Delete), backend.ErrUnsupportedPredicate},
		{"range delete", ranged, backend.ErrUnsupportedPredicate},
		{"join", joined, backend.ErrUnsupportedRefinement},
		{"limit", limited, backend.ErrUnsupportedRefinement},
		{"describe", dml(operation.Describe), backend.ErrUnsupportedKind},
		{"ddl", &backend.Call{Kind: operation.Create, Category: operation.DDL, Target: testTable}, backend.ErrUnsupportedKind},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Execute(context.Background(), tt.call)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecodeRecords(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []map[string]any
	}{
		{"empty", ``, nil},
		{"null", `null`, nil},
		{"object", `{"a":"b"}`, []map[string]any{{"a": "b"}}},
		{"array", `[{"a":"b"},"x"]`, []map[string]any{{"a": "b"}, {"result": "x"}}},
		{"scalar", `"hello"`, []map[string]any{{"result": "hello"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeRecords(json.RawMessage(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
