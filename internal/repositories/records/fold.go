package records

import (
	"database/sql/driver"
	"strings"

	"modernc.org/sqlite"
)

// foldFunc lower-cases text with Go's Unicode rules. SQLite's LOWER folds
// ASCII only, so search folds both sides with this instead.
const foldFunc = "vault_fold"

func init() {
	sqlite.MustRegisterDeterministicScalarFunction(foldFunc, 1, fold)
}

func fold(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	}
	return args[0], nil
}
