package repository

import "context"

type Tx interface{}

var NoTX Tx

// TransactionManager runs fn inside a storage transaction and passes the
// handle through tx. Repository methods MUST accept a nil tx (pool path).
type TransactionManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
