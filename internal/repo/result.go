package repo

import (
	"errors"

	"github.com/lib/pq"
)

// Constraint names the admission flow branches on.
const (
	ConstraintOrderNumber = "orders_order_number_key"
	ConstraintToken       = "order_idempotency_token_key"
)

type InsertOutcome int

const (
	Inserted InsertOutcome = iota
	UniqueViolation
)

// InsertResult makes uniqueness conflicts a value instead of an error to
// untangle from the driver: callers branch on Outcome and the violated
// constraint name rather than on a caught backend exception.
type InsertResult struct {
	Outcome    InsertOutcome
	Constraint string
}

const (
	pqUniqueViolation      = "23505"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

// classifyInsert turns a unique-violation driver error into an InsertResult.
// Any other error is passed through. After a unique violation the enclosing
// transaction is aborted, so callers must roll back before retrying.
func classifyInsert(err error) (InsertResult, error) {
	if err == nil {
		return InsertResult{Outcome: Inserted}, nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
		return InsertResult{Outcome: UniqueViolation, Constraint: pqErr.Constraint}, nil
	}

	return InsertResult{}, err
}

// IsSerializationFailure reports whether err is a transient isolation
// conflict worth retrying with a fresh transaction.
func IsSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return string(pqErr.Code) == pqSerializationFailure || string(pqErr.Code) == pqDeadlockDetected
}
