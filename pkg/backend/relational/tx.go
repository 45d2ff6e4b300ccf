package relational

import (
	"context"
	"errors"
	"fmt"

	"github.com/txn2/sql-gateway/pkg/apperror"
	"github.com/txn2/sql-gateway/pkg/backend"
	"github.com/txn2/sql-gateway/pkg/operation"
)

var (
	errTxOpen   = errors.New("a transaction is already open for this session")
	errNoTx     = errors.New("no transaction is open for this session")
	errNoTxInfo = errors.New("transaction control call is missing transaction info")
)

// session returns the caller's session id. Transactions belong to a
// session; calls without one run outside any transaction.
func session(call *backend.Call) string {
	s, _ := call.Options.String(operation.OptionSession)
	return s
}

func (a *Adapter) executeTCL(ctx context.Context, call *backend.Call) (*backend.Result, error) {
	info := call.Transaction()
	if info == nil {
		return nil, errNoTxInfo
	}
	id := session(call)
	if id == "" {
		return nil, apperror.Newf(apperror.Validation,
			"%s requires the %q option to name the transaction's session", info.Kind, operation.OptionSession)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	tx := a.txs[id]

	switch info.Kind {
	case operation.Begin:
		if tx != nil {
			return nil, errTxOpen
		}
		// The dispatcher cancels ctx once the call returns, and database/sql
		// rolls back a transaction whose context is done.
		opened, err := a.db.BeginTx(context.WithoutCancel(ctx), nil)
		if err != nil {
			return nil, fmt.Errorf("beginning transaction: %w", err)
		}
		a.txs[id] = opened
		a.logger.Debug("transaction opened", "backend", a.name, "session", id)
		return txResult(info), nil

	case operation.Commit, operation.End:
		if tx == nil {
			return nil, errNoTx
		}
		delete(a.txs, id)
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("committing transaction: %w", err)
		}
		return txResult(info), nil

	case operation.Rollback:
		if tx == nil {
			return nil, errNoTx
		}
		if info.Name != "" {
			name, err := identifier(info.Name)
			if err != nil {
				return nil, err
			}
			if _, err := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); err != nil {
				return nil, fmt.Errorf("rolling back to savepoint %s: %w", name, err)
			}
			return txResult(info), nil
		}
		delete(a.txs, id)
		if err := tx.Rollback(); err != nil {
			return nil, fmt.Errorf("rolling back transaction: %w", err)
		}
		return txResult(info), nil

	case operation.Savepoint:
		if tx == nil {
			return nil, errNoTx
		}
		name, err := identifier(info.Name)
		if err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
			return nil, fmt.Errorf("creating savepoint %s: %w", name, err)
		}
		return txResult(info), nil

	default:
		return nil, backend.UnsupportedKind(backend.Relational, info.Kind)
	}
}

// runner returns the session's open transaction, or the pool.
func (a *Adapter) runner(id string) runner {
	if id == "" {
		return a.db
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if tx, ok := a.txs[id]; ok {
		return tx
	}
	return a.db
}

// InTransaction reports whether the session holds an open transaction.
func (a *Adapter) InTransaction(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.txs[id]
	return ok
}

// rollbackAll ends every open transaction.
func (a *Adapter) rollbackAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, tx := range a.txs {
		_ = tx.Rollback()
		delete(a.txs, id)
	}
}

func txResult(info *operation.TransactionInfo) *backend.Result {
	meta := map[string]any{"transaction": string(info.Kind)}
	if info.Name != "" {
		meta["savepoint"] = info.Name
	}
	return &backend.Result{Rows: []map[string]any{}, Meta: meta}
}
