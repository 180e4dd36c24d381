package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "loading"))
	assert.Nil(t, Wrapf(nil, "loading %s", "x"))

	err := Wrapf(Wrap(ErrNoData, "fetching SPY"), "run %d", 3)
	assert.Equal(t, "run 3: fetching SPY: no data returned", err.Error())
	assert.True(t, Is(err, ErrNoData))
}

func TestTypedErrorsUnwrap(t *testing.T) {
	v := NewValidationError("backtest.stop_loss", 0.5, "must be negative")
	assert.True(t, errors.Is(Wrap(v, "validating config"), ErrConfigInvalid))

	var target *ValidationError
	assert.True(t, As(Wrap(v, "validating config"), &target))
	assert.Equal(t, "backtest.stop_loss", target.Field)

	p := NewProviderError("http", 503, "upstream error", ErrProviderUnavailable)
	assert.True(t, p.Retryable())
	assert.True(t, errors.Is(p, ErrProviderUnavailable))
	assert.False(t, NewProviderError("http", 403, "forbidden", nil).Retryable())
}
