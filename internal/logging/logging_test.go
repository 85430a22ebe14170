package logging_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/shpitdev/site-classifier/internal/logging"
)

func TestFromContext(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := zap.New(core).With(zap.String("row_id", "abc"))

	ctx := logging.WithLogger(context.Background(), l)
	logging.FromContext(ctx, nil).Info("hello")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "abc", entries[0].ContextMap()["row_id"])
	}
}

func TestFromContextFallbacks(t *testing.T) {
	fallback := zap.NewExample()
	assert.Same(t, fallback, logging.FromContext(context.Background(), fallback))
	assert.NotNil(t, logging.FromContext(context.Background(), nil))
	assert.Equal(t, context.Background(), logging.WithLogger(context.Background(), nil))
}

func TestNewCorrelationID(t *testing.T) {
	a, b := logging.NewCorrelationID(), logging.NewCorrelationID()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
