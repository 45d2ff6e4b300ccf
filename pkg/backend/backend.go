// Package backend defines the contract between the dispatcher and the
// storage systems a request can be routed to.
package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/txn2/sql-gateway/pkg/operation"
)

// Family groups adapters that share a storage model.
type Family string

const (
	// Relational backends speak SQL through database/sql.
	Relational Family = "relational"
	// KeyValue backends store one hash of fields per key.
	KeyValue Family = "keyvalue"
	// PubSub backends publish and consume messages on topics.
	PubSub Family = "pubsub"
	// Ledger backends call contract functions on a ledger network.
	Ledger Family = "ledger"
)

// DefaultTimeout applies when neither the request, the backend config nor
// the family names a timeout.
const DefaultTimeout = 10 * time.Second

var familyTimeouts = map[Family]time.Duration{
	Relational: 5 * time.Second,
	KeyValue:   2 * time.Second,
	PubSub:     10 * time.Second,
	Ledger:     30 * time.Second,
}

// DefaultTimeout returns the family's call budget.
func (f Family) DefaultTimeout() time.Duration {
	if d, ok := familyTimeouts[f]; ok {
		return d
	}
	return DefaultTimeout
}

// Valid reports whether f is a known family.
func (f Family) Valid() bool {
	_, ok := familyTimeouts[f]
	return ok
}

// Families returns every known family.
func Families() []Family {
	return []Family{Relational, KeyValue, PubSub, Ledger}
}

// Adapter executes shaped calls against one configured backend.
type Adapter interface {
	// Name returns the configured backend name requests route on.
	Name() string

	// Family returns the storage family of the backend.
	Family() Family

	// Execute runs the call. Implementations must honor ctx cancellation
	// where the underlying client allows it.
	Execute(ctx context.Context, call *Call) (*Result, error)

	// Close releases connections held by the adapter.
	Close() error
}

// Result is what an adapter returns for a call.
type Result struct {
	Columns  []string         `json:"columns,omitempty"`
	Rows     []map[string]any `json:"rows"`
	Affected int64            `json:"affected"`
	Meta     map[string]any   `json:"meta,omitempty"`
}

// Sentinel errors adapters wrap when a call cannot be served. The
// dispatcher maps each of them to an unsupported-backend error.
var (
	ErrUnsupportedKind       = errors.New("statement kind not supported by backend")
	ErrUnsupportedRefinement = errors.New("refinement not supported by backend")
	ErrUnsupportedPredicate  = errors.New("predicate not supported by backend")
	ErrUnsafeName            = errors.New("name cannot be written into a backend statement")
)

// UnsupportedKind returns an error wrapping ErrUnsupportedKind.
func UnsupportedKind(f Family, kind operation.Kind) error {
	return fmt.Errorf("%s backend cannot run %s: %w", f, kind, ErrUnsupportedKind)
}

// RejectJoins fails calls whose joins a non-relational backend would
// otherwise have to drop.
func RejectJoins(f Family, call *Call) error {
	if len(call.Refinements.Joins) > 0 {
		return fmt.Errorf("%s backend cannot join %s: %w", f, call.Refinements.Joins[0].Target, ErrUnsupportedRefinement)
	}
	return nil
}

// RejectPaging fails calls carrying a limit or ordering that a backend
// without paging would answer incorrectly.
func RejectPaging(f Family, call *Call) error {
	r := call.Refinements
	if r.Limit != nil {
		return fmt.Errorf("%s backend cannot apply limit: %w", f, ErrUnsupportedRefinement)
	}
	if len(r.OrderBy) > 0 {
		return fmt.Errorf("%s backend cannot apply order by: %w", f, ErrUnsupportedRefinement)
	}
	return nil
}
