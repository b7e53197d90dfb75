package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errSeats = Conflict("insufficient_seats", "not enough seats")

func TestIsMatchesCopies(t *testing.T) {
	detailed := errSeats.WithField("seats", "requested 3, available 1")
	assert.True(t, errors.Is(detailed, errSeats))
	assert.True(t, errors.Is(fmt.Errorf("accept: %w", detailed), errSeats))
	assert.False(t, errors.Is(detailed, Conflict("other", "x")))
	assert.Empty(t, errSeats.Fields, "sentinel must not be mutated")
}

func TestFromFallsBackToInternal(t *testing.T) {
	e := From(errors.New("pq: connection refused"))
	assert.Equal(t, KindInternal, e.Kind)
	assert.Equal(t, "internal error", e.Message)

	wrapped := fmt.Errorf("cascade: %w", errSeats)
	require.Equal(t, KindConflict, KindOf(wrapped))
	assert.Equal(t, "insufficient_seats", From(wrapped).Code)
}

func TestWithMessage(t *testing.T) {
	e := errSeats.WithMessage("only 1 seat left")
	assert.Equal(t, "only 1 seat left", e.Error())
	assert.True(t, errors.Is(e, errSeats))
}
