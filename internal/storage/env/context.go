package env

import (
	"context"

	"github.com/KilimcininKorOglu/voron/internal/storage"
)

// OperationContext holds at most one open transaction for a unit of work.
// Opening a second one, or asking for one that is not open, is a caller
// bug reported as an invalid operation.
type OperationContext struct {
	env *Environment
	tx  *Transaction
}

// NewOperationContext returns a context with no open transaction.
func (e *Environment) NewOperationContext() *OperationContext {
	return &OperationContext{env: e}
}

func (c *OperationContext) hasOpen() bool {
	return c.tx != nil && !c.tx.Disposed()
}

// OpenReadTransaction opens a read transaction on the context.
func (c *OperationContext) OpenReadTransaction() (*Transaction, error) {
	if c.hasOpen() {
		return nil, storage.ErrTransactionAlreadyOpen
	}
	tx, err := c.env.ReadTransaction()
	if err != nil {
		return nil, err
	}
	c.tx = tx
	return tx, nil
}

// OpenWriteTransaction opens the write transaction on the context.
func (c *OperationContext) OpenWriteTransaction(ctx context.Context) (*Transaction, error) {
	if c.hasOpen() {
		return nil, storage.ErrTransactionAlreadyOpen
	}
	tx, err := c.env.WriteTransaction(ctx)
	if err != nil {
		return nil, err
	}
	c.tx = tx
	return tx, nil
}

// Transaction returns the open transaction.
func (c *OperationContext) Transaction() (*Transaction, error) {
	if !c.hasOpen() {
		return nil, storage.ErrNoTransaction
	}
	return c.tx, nil
}

// Close disposes the open transaction, if any.
func (c *OperationContext) Close() {
	if c.tx != nil {
		c.tx.Dispose()
		c.tx = nil
	}
}
