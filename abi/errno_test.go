package abi

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	err := errors.Wrapf(errors.Wrap(NotFound, "unknown path"), "cd %s", "/nope")

	e, ok := Classify(err)
	require.True(t, ok)
	require.Equal(t, NotFound, e)
	require.True(t, Recoverable(err))
	require.Contains(t, err.Error(), "/nope")

	_, ok = Classify(errors.New("plain"))
	require.False(t, ok)
}

func TestRecoverable(t *testing.T) {
	require.True(t, Recoverable(Conflict))
	require.True(t, Recoverable(Unsupported))
	require.False(t, Recoverable(ResourceExhausted))
	require.False(t, Recoverable(errors.Wrap(InvariantViolation, "missing page")))
	require.False(t, Recoverable(nil))
}
