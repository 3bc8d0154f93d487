package loop_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/joeycumines/stumpy"
	"github.com/solaris-labs/goasync/action"
	"github.com/solaris-labs/goasync/loop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithLoggerReceivesRecoveredPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := stumpy.L.New(stumpy.L.WithStumpy(stumpy.WithWriter(&buf), stumpy.WithTimeField("")))

	l, err := loop.New(loop.WithLogger(logger))
	require.NoError(t, err)
	defer l.Close()

	l.Execute(action.New(func() { panic("boom") }))
	l.Execute(action.New(func() { l.QuitLoop() }))

	require.NoError(t, l.RunProtected(nil))
	assert.True(t, strings.Contains(buf.String(), "boom"))
}
