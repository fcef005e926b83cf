package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromContextAddsRequestID(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	prev := L()
	SetGlobal(Wrap(zap.New(core)))
	t.Cleanup(func() { SetGlobal(prev) })

	ctx := NewContextWithID(context.Background(), "req-1")
	FromContext(ctx).Infow("hello", "k", 1)
	Info("plain %d", 2)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "req-1", entries[0].ContextMap()["request_id"])
	assert.Equal(t, "plain 2", entries[1].Message)
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New("loud", "json")
	assert.Error(t, err)

	l, err := New("debug", "console")
	require.NoError(t, err)
	l.Debug("ok")
}
