package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	assert.Equal(t, "entity not found", NotFound("entity").Error())

	err := ExternalService("quantumleap", errors.New("status 503"))
	assert.Equal(t, "quantumleap request failed: status 503", err.Error())
	assert.Equal(t, CodeExternalService, err.Code)
}

func TestCodeOf_ThroughWrapping(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("saving day: %w", DatabaseError("upsert measurements", cause))

	assert.Equal(t, CodeDatabaseError, CodeOf(err))
	assert.True(t, Is(err, CodeDatabaseError))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, CodeInternalError, CodeOf(errors.New("plain")))
	assert.False(t, Is(nil, CodeInternalError))
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "ignored"))

	err := Wrap(Validation("bad date %q", "2019-13-01"), "parsing request")
	assert.Equal(t, CodeValidationError, CodeOf(err))
	assert.Equal(t, `parsing request: bad date "2019-13-01"`, err.Error())

	assert.Equal(t, CodeInternalError, CodeOf(Wrap(errors.New("boom"), "doing work")))
}
