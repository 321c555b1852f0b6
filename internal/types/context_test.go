package types

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActorRoundTrip(t *testing.T) {
	ctx := WithActor(context.Background(), Actor{StudentID: "stu-1", SessionID: "sess-1"})

	actor, ok := GetActor(ctx)
	assert.True(t, ok)
	assert.Equal(t, "stu-1", actor.StudentID)

	_, ok = GetActor(context.Background())
	assert.False(t, ok)
}

func TestRequestID(t *testing.T) {
	assert.Equal(t, "", GetRequestID(context.Background()))
	assert.Equal(t, "req-42", GetRequestID(WithRequestID(context.Background(), "req-42")))
}

func TestLoggerFromContext(t *testing.T) {
	scoped := slog.New(slog.DiscardHandler)
	fallback := slog.New(slog.DiscardHandler)

	assert.Same(t, scoped, LoggerFromContext(WithLogger(context.Background(), scoped), fallback))
	assert.Same(t, fallback, LoggerFromContext(context.Background(), fallback))
	assert.NotNil(t, LoggerFromContext(context.Background(), nil))
}
