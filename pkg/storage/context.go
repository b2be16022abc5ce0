package storage

import "context"

type txKey struct{}

type boundTx struct {
	owner any
	tx    Tx
}

// WithTx returns a context carrying tx for the store identified by owner.
// Store implementations call it before handing the context to the callback.
func WithTx(ctx context.Context, owner any, tx Tx) context.Context {
	return context.WithValue(ctx, txKey{}, boundTx{owner: owner, tx: tx})
}

// TxFrom returns the transaction owner bound to ctx, if any.
func TxFrom(ctx context.Context, owner any) (Tx, bool) {
	bound, ok := ctx.Value(txKey{}).(boundTx)
	if !ok || bound.owner != owner {
		return nil, false
	}
	return bound.tx, true
}
