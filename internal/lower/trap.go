package lower

import (
	"fmt"

	"github.com/dkessler/corelang/internal/diag"
)

// CheckBounds is the runtime execution of a BoundsCheck instruction: the
// conditional branch to the trap path spec.md §4.11 describes, raising a
// structured BoundsViolation on failure.
func CheckBounds(index, length int64, errorMsg string) error {
	if index < 0 || index >= length {
		return diag.New(diag.KindBoundsViolation, diag.RT001,
			fmt.Sprintf("index %d out of bounds for length %d", index, length)).WithCategory(errorMsg)
	}
	return nil
}

// CheckFieldAccess is the runtime execution of a ValidateFieldAccess
// instruction, raising a structured FieldAccessViolation on failure.
func CheckFieldAccess(objectType, fieldName string, has bool) error {
	if !has {
		return diag.New(diag.KindFieldAccessViolation, diag.RT002,
			fmt.Sprintf("type %s has no field %q", objectType, fieldName))
	}
	return nil
}
