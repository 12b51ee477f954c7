package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestValidation_ErrorIncludesField(t *testing.T) {
	err := Validation("startDate", "invalid date format")
	if got := err.Error(); got != "startDate: invalid date format" {
		t.Errorf("Error() = %q", got)
	}
	if KindOf(err) != KindValidation {
		t.Error("KindOf should be KindValidation")
	}
	if FieldOf(err) != "startDate" {
		t.Errorf("FieldOf = %q, want startDate", FieldOf(err))
	}
}

func TestValidationf_FormatsMessage(t *testing.T) {
	err := Validationf("daysToKeep", "must be between %d and %d", 7, 365)
	if got := err.Error(); got != "daysToKeep: must be between 7 and 365" {
		t.Errorf("Error() = %q", got)
	}
}

func TestStore_HidesCauseFromMessage(t *testing.T) {
	cause := errors.New("pq: connection refused")
	err := Store(cause)
	if err.Msg != "internal error" {
		t.Errorf("Msg = %q, want internal error", err.Msg)
	}
	if !errors.Is(err, cause) {
		t.Error("Store should wrap the cause for errors.Is")
	}
}

func TestKindOf_WrappedError(t *testing.T) {
	err := fmt.Errorf("listing records: %w", NotFound("audit log not found"))
	if KindOf(err) != KindNotFound {
		t.Error("KindOf should see through fmt.Errorf wrapping")
	}
}

func TestKindOf_PlainError(t *testing.T) {
	if KindOf(errors.New("boom")) != KindUnknown {
		t.Error("KindOf should be KindUnknown for non-apperr errors")
	}
}

func TestAuthorization_Kind(t *testing.T) {
	err := Authorization("missing organization context")
	if KindOf(err) != KindAuthorization {
		t.Error("KindOf should be KindAuthorization")
	}
	if FieldOf(err) != "" {
		t.Errorf("FieldOf = %q, want empty", FieldOf(err))
	}
}
