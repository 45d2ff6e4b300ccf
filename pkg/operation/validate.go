package operation

import (
	"github.com/txn2/sql-gateway/pkg/apperror"
)

// Validate checks op for structural completeness.
func Validate(op *Operation) error {
	if op == nil {
		return apperror.New(apperror.Validation, "operation is required")
	}

	category, ok := CategoryOf(op.Kind)
	if !ok {
		return apperror.Newf(apperror.Validation, "unsupported statement kind %q", op.Kind)
	}
	if op.Category != category {
		return apperror.Newf(apperror.Validation,
			"statement kind %q belongs to category %s, not %s", op.Kind, category, op.Category)
	}

	if op.Kind.RequiresTarget() && op.Target == "" {
		return apperror.Newf(apperror.Validation, "%s requires a target", op.Kind)
	}

	if op.Kind == Insert {
		if len(op.Columns) == 0 {
			return apperror.New(apperror.Validation, "insert requires a column list")
		}
		if len(op.Columns) != len(op.Values) {
			return apperror.Newf(apperror.Validation,
				"insert has %d columns but %d values", len(op.Columns), len(op.Values))
		}
	}

	if op.Category == DCL && len(op.Privileges) == 0 {
		return apperror.Newf(apperror.Validation, "%s requires at least one privilege", op.Kind)
	}

	if op.Category == TCL && op.Transaction == nil {
		return apperror.Newf(apperror.Validation, "%s is missing transaction info", op.Kind)
	}

	return nil
}
