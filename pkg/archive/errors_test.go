package archive

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Error_Error_IncludesOpAndID(t *testing.T) {
	t.Parallel()

	err := newErr(KindNotFound, "store.read", "doc1", errors.New("boom"))
	assert.Equal(t, "store.read: boom (id=doc1)", err.Error())
}

func Test_Error_Error_OmitsIDWhenEmpty(t *testing.T) {
	t.Parallel()

	err := newErr(KindInvalid, "store.save", "", errors.New("bad input"))
	assert.Equal(t, "store.save: bad input", err.Error())
}

func Test_Error_UnwrapsToItsKindSentinelAndCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	err := newErr(KindLock, "store.save", "doc1", cause)

	assert.ErrorIs(t, err, ErrLocked)
	assert.ErrorIs(t, err, cause)
}

func Test_EngineError_WrapsFileAndLineOfCaller(t *testing.T) {
	t.Parallel()

	cause := errors.New("disk full")
	err := newEngineError(cause)

	assert.Contains(t, err.Error(), "disk full")
	assert.ErrorIs(t, err, cause)
	assert.NotEmpty(t, err.file)
	assert.Greater(t, err.line, 0)
}

func Test_WrapEngineErr_IsClassifiedAsKindEngine(t *testing.T) {
	t.Parallel()

	err := wrapEngineErr("engine.open", errors.New("disk full"))
	assert.ErrorIs(t, err, ErrEngine)
}
