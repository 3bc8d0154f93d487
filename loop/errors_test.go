package loop_test

import (
	"errors"
	"testing"

	"github.com/solaris-labs/goasync/loop"
	"github.com/stretchr/testify/assert"
)

func TestFatalErrorUnwrapsToCause(t *testing.T) {
	cause := errors.New("boom")
	fe := &loop.FatalError{Cause: cause}
	assert.ErrorIs(t, fe, cause)
}

func TestFatalErrorMessageFallsBackToCause(t *testing.T) {
	fe := &loop.FatalError{Cause: errors.New("boom")}
	assert.Contains(t, fe.Error(), "boom")
}
