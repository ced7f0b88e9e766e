package repository

import (
	"errors"

	"gorm.io/gorm/clause"
)

// ErrConditionFailed is returned when a guarded UPDATE matched no rows: the row
// exists but no longer satisfies the precondition (stock ran out, status moved
// on, a concurrent writer got there first).
var ErrConditionFailed = errors.New("repository: conditional update matched no rows")

// forUpdate locks the selected rows until the surrounding transaction ends.
// Dialects without row locks (SQLite) drop the clause.
var forUpdate = clause.Locking{Strength: "UPDATE"}
