package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKinds(t *testing.T) {
	nf := fmt.Errorf("failed to delete alert: %w", &NotFoundError{Entity: "alert", ID: 9})
	assert.True(t, errors.Is(nf, ErrNotFound))
	assert.False(t, errors.Is(nf, ErrValidation))
	assert.Equal(t, "failed to delete alert: alert 9 not found", nf.Error())

	fk := &ForeignKeyError{Entity: "user", ID: 43}
	assert.ErrorIs(t, fk, ErrForeignKey)
	assert.Equal(t, "referenced user 43 does not exist", fk.Error())
	assert.Equal(t, "referenced alert does not exist", (&ForeignKeyError{Entity: "alert"}).Error())

	ce := &ConstraintError{Constraint: "alert_view_alert_user_key"}
	assert.ErrorIs(t, ce, ErrConstraint)

	assert.EqualError(t, NewValidationError("title", "is required"), "invalid title: is required")
}
